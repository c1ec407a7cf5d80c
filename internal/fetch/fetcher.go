// Package fetch downloads third-party content for API ingestion while
// refusing to reach internal network addresses.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"dataledge/internal/shared/metrics"
	"dataledge/internal/shared/telemetry"
)

const (
	DefaultConnectTimeout = 3 * time.Second
	DefaultReadTimeout    = 5 * time.Second
	DefaultMaxBytes       = 10 << 20 // 10MiB
)

// Resolver resolves a host name to its addresses.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Options configures a Fetcher. Zero values fall back to the defaults above.
type Options struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxBytes       int64
	Resolver       Resolver
	// Transport overrides the guarded transport. Tests only.
	Transport http.RoundTripper
}

// Fetcher performs SSRF-guarded HTTPS GETs.
type Fetcher struct {
	resolver Resolver
	client   *http.Client
	maxBytes int64
}

// New constructs a Fetcher.
func New(opts Options) *Fetcher {
	connect := opts.ConnectTimeout
	if connect <= 0 {
		connect = DefaultConnectTimeout
	}
	read := opts.ReadTimeout
	if read <= 0 {
		read = DefaultReadTimeout
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	transport := opts.Transport
	if transport == nil {
		transport = newGuardedTransport(connect, read)
	}

	return &Fetcher{
		resolver: resolver,
		maxBytes: maxBytes,
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
			Timeout: connect + read,
		},
	}
}

// Fetch downloads url and returns at most the configured number of body bytes.
// Every failure is an *Error; none are retried.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, f.fail(KindInvalidURL, "invalid URL", "", 0, err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return nil, f.fail(KindProtocol, "only https allowed", u.Hostname(), 0, nil)
	}
	host := u.Hostname()
	if host == "" {
		return nil, f.fail(KindInvalidURL, "invalid URL", "", 0, nil)
	}

	if err := f.checkHost(ctx, host); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, f.fail(KindInvalidURL, "invalid URL", host, 0, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, errInternalAddress) {
			return nil, f.fail(KindHostDenied, "internal network denied", host, 0, nil)
		}
		return nil, f.fail(KindTransport, "upstream call failed", host, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, f.fail(KindStatus, fmt.Sprintf("upstream call failed, code=%d", resp.StatusCode), host, resp.StatusCode, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, f.fail(KindTransport, "upstream call failed", host, 0, err)
	}
	return body, nil
}

func (f *Fetcher) checkHost(ctx context.Context, host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if IsInternal(ip) {
			return f.fail(KindHostDenied, "internal network denied", host, 0, nil)
		}
		return nil
	}

	addrs, err := f.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return f.fail(KindHostUnresolved, "could not validate host", host, 0, err)
	}
	if len(addrs) == 0 {
		return f.fail(KindHostUnresolved, "could not validate host", host, 0, nil)
	}
	for _, addr := range addrs {
		if IsInternal(addr.IP) {
			return f.fail(KindHostDenied, "internal network denied", host, 0, nil)
		}
	}
	return nil
}

func (f *Fetcher) fail(kind Kind, msg, host string, status int, cause error) *Error {
	metrics.IncFetchRejected(string(kind))
	fields := map[string]any{
		"kind": string(kind),
		"host": host,
	}
	if status != 0 {
		fields["status"] = status
	}
	if cause != nil {
		fields["error"] = cause
	}
	telemetry.Warn("fetch.rejected", fields)
	return &Error{Kind: kind, Msg: msg, StatusCode: status, Err: cause}
}

// IsInternal reports whether ip is loopback, link-local, private/site-local
// or unspecified.
func IsInternal(ip net.IP) bool {
	if ip == nil {
		return true
	}
	return ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() ||
		ip.IsUnspecified() ||
		siteLocalV6.Contains(ip)
}

// fec0::/10, deprecated but still routable on some networks.
var siteLocalV6 = &net.IPNet{IP: net.ParseIP("fec0::"), Mask: net.CIDRMask(10, 128)}

var errInternalAddress = errors.New("dial to internal address denied")

// newGuardedTransport re-checks the address at connect time so a DNS answer
// that changes between validation and dial cannot reach an internal host.
func newGuardedTransport(connect, read time.Duration) *http.Transport {
	dialer := &net.Dialer{
		Timeout: connect,
		Control: denyInternal,
	}
	return &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   connect,
		ResponseHeaderTimeout: read,
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

func denyInternal(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return errInternalAddress
	}
	if IsInternal(net.ParseIP(host)) {
		return errInternalAddress
	}
	return nil
}
