package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func TestNewRequestContextInitializesFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ip", nil)
	req.RemoteAddr = "203.0.113.10:51234"
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "host/abc-000001"))

	ctx := NewRequestContext(req)

	if ctx.RequestID != "host/abc-000001" {
		t.Fatalf("expected request id to be populated, got %q", ctx.RequestID)
	}
	if ctx.Path != "/ip" {
		t.Fatalf("expected path /ip, got %q", ctx.Path)
	}
	if ctx.ReceivedAt.IsZero() || time.Since(ctx.ReceivedAt) > time.Second {
		t.Fatalf("unexpected ReceivedAt: %s", ctx.ReceivedAt)
	}
	if ctx.IpAddress.String() != "203.0.113.10" {
		t.Fatalf("expected ip 203.0.113.10, got %s", ctx.IpAddress)
	}

	fields := ctx.LogFields()
	if len(fields) != 3 {
		t.Fatalf("expected 3 log fields, got %d", len(fields))
	}
	want := map[string]string{"request_id": "host/abc-000001", "client_ip": "203.0.113.10", "path": "/ip"}
	for _, f := range fields {
		if want[f.Key] != f.String {
			t.Fatalf("unexpected log field %q -> %q", f.Key, f.String)
		}
	}
}

func TestRequestIpAddress(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		want       string
	}{
		{"host and port", "198.51.100.7:8080", "198.51.100.7"},
		{"bare address from RealIP", "198.51.100.8", "198.51.100.8"},
		{"ipv6 with port", "[2001:db8::1]:443", "2001:db8::1"},
		{"ipv4 mapped", "[::ffff:192.0.2.1]:80", "192.0.2.1"},
		{"garbage", "not-an-ip", "invalid IP"},
		{"empty", "", "invalid IP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if got := requestIpAddress(req).String(); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMissingRequestID(t *testing.T) {
	ctx := NewRequestContext(httptest.NewRequest(http.MethodGet, "/", nil))
	if ctx.RequestID != "-" {
		t.Fatalf("expected placeholder request id, got %q", ctx.RequestID)
	}
}

func TestAddLogFieldsSkipsIdentityKeysAndCopies(t *testing.T) {
	ctx := NewRequestContext(httptest.NewRequest(http.MethodGet, "/ip", nil))

	ctx.AddLogFields(zap.String("provider", "jsonip.com"), zap.String("client_ip", "ignored"))

	fields := ctx.LogFields()
	if len(fields) != 4 {
		t.Fatalf("expected 4 log fields, got %d", len(fields))
	}
	if fields[3].Key != "provider" {
		t.Fatalf("expected provider field last, got %q", fields[3].Key)
	}

	fields[0] = zap.String("mutated", "x")
	if ctx.LogFields()[0].Key != "request_id" {
		t.Fatal("LogFields must return a copy")
	}
}

func TestAddLogFieldsConcurrent(t *testing.T) {
	ctx := NewRequestContext(httptest.NewRequest(http.MethodGet, "/", nil))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx.AddLogFields(zap.Int("n", i))
		}(i)
	}
	wg.Wait()

	if got := len(ctx.LogFields()); got != 53 {
		t.Fatalf("expected 53 fields, got %d", got)
	}
}

func TestMiddlewareStoresContext(t *testing.T) {
	var got *RequestContext
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/history", nil))

	if got == nil || got.Path != "/history" {
		t.Fatalf("expected request context for /history, got %+v", got)
	}
	if FromContext(context.Background()) != nil {
		t.Fatal("expected nil for a bare context")
	}
}

func TestNilRequestContextIsSafe(t *testing.T) {
	var ctx *RequestContext
	ctx.AddLogFields(zap.String("k", "v"))
	if ctx.LogFields() != nil {
		t.Fatal("expected nil fields")
	}
	if ctx.Elapsed() != 0 {
		t.Fatal("expected zero elapsed")
	}
}
