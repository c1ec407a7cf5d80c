package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hashicorp/go-multierror"

	"dataledge/internal/shared/storage/object"
	"dataledge/internal/shared/telemetry"
)

const (
	backendName = "s3"
	// DeleteObjects accepts at most this many keys per request.
	maxDeleteKeys = 1000
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Store implements object.Store using Amazon S3. The bucket is the container.
type Store struct {
	client   s3API
	bucket   string
	prefix   string
	kmsKeyID string
}

// New creates a new S3-backed object store.
func New(ctx context.Context, region, bucket, prefix, kmsKeyID string) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newWithClient(s3.NewFromConfig(cfg), bucket, prefix, kmsKeyID), nil
}

func newWithClient(client s3API, bucket, prefix, kmsKeyID string) *Store {
	return &Store{
		client:   client,
		bucket:   bucket,
		prefix:   normalizePrefix(prefix),
		kmsKeyID: strings.TrimSpace(kmsKeyID),
	}
}

// Write uploads the reader contents to {tenantID}/{fileName}.
func (s *Store) Write(ctx context.Context, tenantID, fileName string, r io.Reader, size int64) (string, error) {
	key := object.Key(tenantID, fileName)
	if err := ctx.Err(); err != nil {
		return "", &object.WriteError{Key: key, Err: err}
	}
	objectKey := applyPrefix(s.prefix, key)

	var sniff [512]byte
	n, readErr := io.ReadFull(r, sniff[:])
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		return "", &object.WriteError{Key: key, Err: fmt.Errorf("read sniff: %w", readErr)}
	}
	mimeType := http.DetectContentType(sniff[:n])

	body := io.MultiReader(bytes.NewReader(sniff[:n]), r)
	counter := &sizedReader{r: body, want: size}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        counter,
		ContentType: aws.String(mimeType),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if s.kmsKeyID != "" {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(s.kmsKeyID)
	} else {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", &object.WriteError{Key: key, Err: fmt.Errorf("s3 put object bucket=%s key=%s: %w", s.bucket, objectKey, err)}
	}
	if size >= 0 && counter.n != size {
		// The upload completed with a truncated body; remove it.
		s.removeKeys(ctx, []string{objectKey})
		return "", &object.WriteError{Key: key, Err: fmt.Errorf("size mismatch: declared %d, sent %d", size, counter.n)}
	}
	return "s3://" + s.bucket + "/" + objectKey, nil
}

// Exists issues a HEAD request for relativePath.
func (s *Store) Exists(ctx context.Context, relativePath string) bool {
	if strings.TrimSpace(relativePath) == "" || ctx.Err() != nil {
		return false
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(applyPrefix(s.prefix, relativePath)),
	})
	if err != nil && !isNotFound(err) {
		telemetry.Warn("s3.head_object.failed", map[string]any{
			"bucket": s.bucket,
			"key":    relativePath,
			"error":  err.Error(),
		})
	}
	return err == nil
}

// ListByPrefix returns the file names directly under tenantID. Keys in
// deeper "directories" are grouped by the delimiter and skipped.
func (s *Store) ListByPrefix(ctx context.Context, tenantID string) ([]string, error) {
	prefix := tenantID + "/"
	listPrefix := applyPrefix(s.prefix, prefix)
	if !strings.HasSuffix(listPrefix, "/") {
		listPrefix += "/"
	}

	names := []string{}
	var token *string
	for {
		if err := ctx.Err(); err != nil {
			return nil, &object.ListError{Prefix: prefix, Err: err}
		}
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(listPrefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, &object.ListError{Prefix: prefix, Err: fmt.Errorf("s3 list bucket=%s prefix=%s: %w", s.bucket, listPrefix, err)}
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), listPrefix)
			if name != "" {
				names = append(names, name)
			}
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	return names, nil
}

// DeleteBatch removes the tenant-scoped keys with quiet DeleteObjects calls.
func (s *Store) DeleteBatch(ctx context.Context, tenantID string, fileNames []string) error {
	prefix := tenantID + "/"
	keys, rejected := object.ScopeToTenant(tenantID, fileNames)
	object.ReportRejected(backendName, tenantID, rejected)
	if len(keys) == 0 {
		return nil
	}

	var itemErrs *multierror.Error
	for start := 0; start < len(keys); start += maxDeleteKeys {
		end := start + maxDeleteKeys
		if end > len(keys) {
			end = len(keys)
		}
		if err := ctx.Err(); err != nil {
			return &object.DeleteError{Prefix: prefix, Err: err}
		}

		ids := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			ids = append(ids, s3types.ObjectIdentifier{Key: aws.String(applyPrefix(s.prefix, key))})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return &object.DeleteError{Prefix: prefix, Err: fmt.Errorf("s3 delete objects bucket=%s: %w", s.bucket, err)}
		}
		for _, e := range out.Errors {
			itemErrs = multierror.Append(itemErrs, fmt.Errorf("%s: %s %s",
				aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message)))
		}
	}
	object.ReportItemFailures(backendName, tenantID, itemErrs)
	return nil
}

// Open downloads a stored object for reading.
func (s *Store) Open(ctx context.Context, relativePath string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	objectKey := applyPrefix(s.prefix, relativePath)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, object.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	return out.Body, nil
}

// removeKeys deletes already-prefixed keys, logging instead of failing.
func (s *Store) removeKeys(ctx context.Context, objectKeys []string) {
	ids := make([]s3types.ObjectIdentifier, 0, len(objectKeys))
	for _, k := range objectKeys {
		ids = append(ids, s3types.ObjectIdentifier{Key: aws.String(k)})
	}
	_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		telemetry.Error("s3.write.cleanup_failed", map[string]any{
			"bucket": s.bucket,
			"keys":   objectKeys,
			"error":  err.Error(),
		})
	}
}

func isNotFound(err error) bool {
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// sizedReader counts bytes and, when want >= 0, fails the read that shows the
// body is shorter or longer than declared so the upload is aborted.
type sizedReader struct {
	r    io.Reader
	want int64
	n    int64
}

func (c *sizedReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.want < 0 {
		return n, err
	}
	if c.n > c.want {
		return n, fmt.Errorf("size mismatch: declared %d, body is longer", c.want)
	}
	if err == io.EOF && c.n != c.want {
		return n, fmt.Errorf("size mismatch: declared %d, body has %d", c.want, c.n)
	}
	return n, err
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

func applyPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	cleanKey := strings.TrimLeft(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix
	}
	return cleanPrefix + "/" + cleanKey
}

var _ object.Store = (*Store)(nil)
