package minio

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"dataledge/internal/shared/storage/object"
)

const backendName = "minio"

type minioAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucket, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	RemoveObjects(ctx context.Context, bucket string, objectsCh <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError
}

// Store implements object.Store against an S3-compatible MinIO server.
type Store struct {
	client  minioAPI
	bucket  string
	baseURL string
}

func NewClient(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
}

// New connects to endpoint and makes sure bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey string, useSSL bool, bucket string) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	client, err := NewClient(endpoint, accessKey, secretKey, useSSL)
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	s := newWithClient(client, bucket, client.EndpointURL().String())
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", bucket, err)
	}
	return s, nil
}

func newWithClient(client minioAPI, bucket, baseURL string) *Store {
	return &Store{client: client, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
}

// Write uploads r to {tenantID}/{fileName}.
func (s *Store) Write(ctx context.Context, tenantID, fileName string, r io.Reader, size int64) (string, error) {
	key := object.Key(tenantID, fileName)
	if err := ctx.Err(); err != nil {
		return "", &object.WriteError{Key: key, Err: err}
	}
	if size < 0 {
		size = -1
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{})
	if err != nil {
		return "", &object.WriteError{Key: key, Err: fmt.Errorf("minio put bucket=%s: %w", s.bucket, err)}
	}
	if size >= 0 && info.Size != size {
		return "", &object.WriteError{Key: key, Err: fmt.Errorf("size mismatch: declared %d, stored %d", size, info.Size)}
	}
	return s.location(key), nil
}

// Exists stats relativePath.
func (s *Store) Exists(ctx context.Context, relativePath string) bool {
	if strings.TrimSpace(relativePath) == "" || ctx.Err() != nil {
		return false
	}
	_, err := s.client.StatObject(ctx, s.bucket, relativePath, minio.StatObjectOptions{})
	return err == nil
}

// ListByPrefix lists non-recursively, so common prefixes come back with a
// trailing slash and are skipped.
func (s *Store) ListByPrefix(ctx context.Context, tenantID string) ([]string, error) {
	prefix := tenantID + "/"
	names := []string{}
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: false}) {
		if info.Err != nil {
			return nil, &object.ListError{Prefix: prefix, Err: info.Err}
		}
		if strings.HasSuffix(info.Key, "/") {
			continue
		}
		if name := strings.TrimPrefix(info.Key, prefix); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// DeleteBatch streams the tenant-scoped keys to RemoveObjects.
func (s *Store) DeleteBatch(ctx context.Context, tenantID string, fileNames []string) error {
	prefix := tenantID + "/"
	keys, rejected := object.ScopeToTenant(tenantID, fileNames)
	object.ReportRejected(backendName, tenantID, rejected)
	if len(keys) == 0 {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return &object.DeleteError{Prefix: prefix, Err: fmt.Errorf("minio bucket check %s: %w", s.bucket, err)}
	}
	if !exists {
		return &object.DeleteError{Prefix: prefix, Err: fmt.Errorf("bucket %s does not exist", s.bucket)}
	}

	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for _, key := range keys {
			select {
			case objectsCh <- minio.ObjectInfo{Key: key}:
			case <-ctx.Done():
				return
			}
		}
	}()

	itemErrs := collectRemoveErrors(s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}))
	if err := ctx.Err(); err != nil {
		return &object.DeleteError{Prefix: prefix, Err: err}
	}
	object.ReportItemFailures(backendName, tenantID, itemErrs)
	return nil
}

// Open returns a reader for relativePath.
func (s *Store) Open(ctx context.Context, relativePath string) (io.ReadCloser, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, relativePath, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, object.ErrNotFound
		}
		return nil, fmt.Errorf("minio stat bucket=%s key=%s: %w", s.bucket, relativePath, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, relativePath, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio get bucket=%s key=%s: %w", s.bucket, relativePath, err)
	}
	return obj, nil
}

func (s *Store) location(key string) string {
	return s.baseURL + "/" + s.bucket + "/" + key
}

// collectRemoveErrors drains errCh.
func collectRemoveErrors(errCh <-chan minio.RemoveObjectError) *multierror.Error {
	var result *multierror.Error
	for e := range errCh {
		if e.Err == nil {
			continue
		}
		result = multierror.Append(result, fmt.Errorf("%s: %w", e.ObjectName, e.Err))
	}
	return result
}

var _ object.Store = (*Store)(nil)
