package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

type fakeResolver struct {
	ips   []string
	err   error
	calls atomic.Int32
}

func (r *fakeResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	out := make([]net.IPAddr, 0, len(r.ips))
	for _, ip := range r.ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out, nil
}

// transportFor dials srv regardless of the requested host so tests can use
// a public-looking host name that matches the httptest certificate.
func transportFor(srv *httptest.Server) http.RoundTripper {
	base := srv.Client().Transport.(*http.Transport).Clone()
	addr := srv.Listener.Addr().String()
	base.DialContext = func(ctx context.Context, network, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, network, addr)
	}
	return base
}

func requireKind(t *testing.T, err error, want Kind) *Error {
	t.Helper()
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *fetch.Error, got %v", err)
	}
	if fe.Kind != want {
		t.Fatalf("expected kind %s, got %s (%v)", want, fe.Kind, fe)
	}
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("expected errors.Is(err, ErrFetch)")
	}
	return fe
}

func TestFetchRejectsNonHTTPSWithoutLookup(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"http://example.com/data",
		"ftp://example.com/data",
		"file:///etc/passwd",
		"gopher://example.com",
		"example.com/data",
	} {
		resolver := &fakeResolver{ips: []string{"93.184.216.34"}}
		f := New(Options{Resolver: resolver})
		_, err := f.Fetch(context.Background(), raw)
		fe := requireKind(t, err, KindProtocol)
		if fe.Msg != "only https allowed" {
			t.Fatalf("unexpected message %q", fe.Msg)
		}
		if resolver.calls.Load() != 0 {
			t.Fatalf("%s: expected no DNS lookup, got %d", raw, resolver.calls.Load())
		}
	}
}

func TestFetchRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	f := New(Options{Resolver: &fakeResolver{}})
	for _, raw := range []string{"://missing-scheme", "https://%zz", "https:///path-only"} {
		_, err := f.Fetch(context.Background(), raw)
		requireKind(t, err, KindInvalidURL)
	}
}

func TestFetchRejectsInternalAddresses(t *testing.T) {
	t.Parallel()

	for _, ip := range []string{"127.0.0.1", "10.0.0.1", "169.254.1.1", "0.0.0.0", "192.168.1.10", "172.16.0.5", "::1", "fe80::1", "fd00::1"} {
		resolver := &fakeResolver{ips: []string{ip}}
		f := New(Options{Resolver: resolver})
		_, err := f.Fetch(context.Background(), "https://internal.example.com/data")
		fe := requireKind(t, err, KindHostDenied)
		if fe.Msg != "internal network denied" {
			t.Fatalf("%s: unexpected message %q", ip, fe.Msg)
		}
	}
}

func TestFetchRejectsWhenAnyAddressIsInternal(t *testing.T) {
	t.Parallel()

	f := New(Options{Resolver: &fakeResolver{ips: []string{"93.184.216.34", "10.1.2.3"}}})
	_, err := f.Fetch(context.Background(), "https://mixed.example.com/")
	requireKind(t, err, KindHostDenied)
}

func TestFetchRejectsInternalLiteralWithoutLookup(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	f := New(Options{Resolver: resolver})
	_, err := f.Fetch(context.Background(), "https://127.0.0.1:8443/admin")
	requireKind(t, err, KindHostDenied)
	if resolver.calls.Load() != 0 {
		t.Fatalf("expected no lookup for IP literal")
	}
}

func TestFetchResolutionFailure(t *testing.T) {
	t.Parallel()

	f := New(Options{Resolver: &fakeResolver{err: errors.New("no such host")}})
	_, err := f.Fetch(context.Background(), "https://nowhere.invalid/")
	fe := requireKind(t, err, KindHostUnresolved)
	if fe.Msg != "could not validate host" {
		t.Fatalf("unexpected message %q", fe.Msg)
	}
}

func TestFetchReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := New(Options{Resolver: &fakeResolver{ips: []string{"93.184.216.34"}}, Transport: transportFor(srv)})
	body, err := f.Fetch(context.Background(), "https://example.com/data")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestFetchNon200(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(Options{Resolver: &fakeResolver{ips: []string{"93.184.216.34"}}, Transport: transportFor(srv)})
	_, err := f.Fetch(context.Background(), "https://example.com/data")
	fe := requireKind(t, err, KindStatus)
	if fe.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", fe.StatusCode)
	}
	if fe.Msg != "upstream call failed, code=503" {
		t.Fatalf("unexpected message %q", fe.Msg)
	}
}

func TestFetchDoesNotFollowRedirects(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "https://127.0.0.1/internal", http.StatusFound)
	}))
	defer srv.Close()

	f := New(Options{Resolver: &fakeResolver{ips: []string{"93.184.216.34"}}, Transport: transportFor(srv)})
	_, err := f.Fetch(context.Background(), "https://example.com/data")
	fe := requireKind(t, err, KindStatus)
	if fe.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", fe.StatusCode)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected exactly one request, got %d", hits.Load())
	}
}

func TestFetchTruncatesBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	f := New(Options{Resolver: &fakeResolver{ips: []string{"93.184.216.34"}}, Transport: transportFor(srv), MaxBytes: 16})
	body, err := f.Fetch(context.Background(), "https://example.com/big")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(body) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(body))
	}
}

func TestDenyInternal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		address string
		denied  bool
	}{
		{"127.0.0.1:443", true},
		{"[::1]:443", true},
		{"10.0.0.1:443", true},
		{"169.254.169.254:80", true},
		{"0.0.0.0:443", true},
		{"[fec0::1]:443", true},
		{"93.184.216.34:443", false},
		{"[2606:2800:220:1::1]:443", false},
		{"garbage", true},
	}
	for _, tt := range tests {
		err := denyInternal("tcp", tt.address, nil)
		if tt.denied && !errors.Is(err, errInternalAddress) {
			t.Fatalf("%s: expected denial, got %v", tt.address, err)
		}
		if !tt.denied && err != nil {
			t.Fatalf("%s: expected allow, got %v", tt.address, err)
		}
	}
}
