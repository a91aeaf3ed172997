// Package runtime provides request-scoped context for the lookup flow.
// It captures metadata from incoming HTTP requests, including the chi request
// id, the client IP address and structured logging fields.
package runtime

import (
	"context"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type contextKey struct{}

// RequestContext captures metadata used throughout a lookup request.
// Logging fields may be accumulated concurrently.
type RequestContext struct {
	// RequestID is the id assigned by the chi RequestID middleware, "-" when absent.
	RequestID string
	// ReceivedAt records when the request entered the handler chain.
	ReceivedAt time.Time
	// Path is the request URL path.
	Path string
	// IpAddress is the client address, zero-valued when it cannot be parsed.
	IpAddress netip.Addr

	mu        sync.RWMutex
	logFields []zap.Field
}

// NewRequestContext builds a RequestContext from an HTTP request.
func NewRequestContext(r *http.Request) *RequestContext {
	requestID := requestID(r)
	ipAddress := requestIpAddress(r)
	path := ""
	if r != nil && r.URL != nil {
		path = r.URL.Path
	}

	return &RequestContext{
		RequestID:  requestID,
		ReceivedAt: time.Now(),
		Path:       path,
		IpAddress:  ipAddress,
		logFields: []zap.Field{
			zap.String("request_id", requestID),
			zap.String("client_ip", ipAddress.String()),
			zap.String("path", path),
		},
	}
}

// WithRequestContext stores rc in ctx.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext returns the RequestContext stored in ctx, or nil.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rc
}

// Middleware attaches a RequestContext to every request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := NewRequestContext(r)
		next.ServeHTTP(w, r.WithContext(WithRequestContext(r.Context(), rc)))
	})
}

// AddLogFields attaches structured fields that should accompany request logging.
// Fields overriding the request identity keys are ignored.
func (r *RequestContext) AddLogFields(fields ...zap.Field) {
	if r == nil {
		return
	}

	kept := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch f.Key {
		case "request_id", "client_ip", "path":
			continue
		}
		kept = append(kept, f)
	}

	r.mu.Lock()
	r.logFields = append(r.logFields, kept...)
	r.mu.Unlock()
}

// LogFields returns a copy of the accumulated log fields.
func (r *RequestContext) LogFields() []zap.Field {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]zap.Field, len(r.logFields))
	copy(out, r.logFields)
	return out
}

// Elapsed returns the time spent since the request was received.
func (r *RequestContext) Elapsed() time.Duration {
	if r == nil {
		return 0
	}
	return time.Since(r.ReceivedAt)
}

func requestID(r *http.Request) string {
	if r == nil {
		return "-"
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return "-"
}

// requestIpAddress parses RemoteAddr, which is "host:port" from net/http or a
// bare address once RealIP has rewritten it.
func requestIpAddress(r *http.Request) netip.Addr {
	if r == nil || r.RemoteAddr == "" {
		return netip.Addr{}
	}
	if addrPort, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return addrPort.Addr().Unmap()
	}
	ip, _ := netip.ParseAddr(r.RemoteAddr)
	return ip.Unmap()
}
