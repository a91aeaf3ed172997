package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"

	"github.com/gtriggiano/ip-lookup-service/pkg/config"
)

type stubDependency struct{ err error }

func (s stubDependency) HealthCheck(context.Context) error { return s.err }

func testMetricsConfig() config.MetricsConfig {
	return config.MetricsConfig{
		Address:       ":0",
		HealthPath:    "/healthz",
		ReadinessPath: "/readyz",
		DropPrefixes:  []string{"go_", "process_"},
	}
}

func TestLiveness(t *testing.T) {
	srv := NewServer(testMetricsConfig(), zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected liveness response: %d %q", rec.Code, rec.Body.String())
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name     string
		ready    bool
		deps     []HealthChecker
		wantCode int
	}{
		{"not ready before api starts", false, nil, http.StatusServiceUnavailable},
		{"ready without dependencies", true, nil, http.StatusOK},
		{"ready with healthy dependency", true, []HealthChecker{stubDependency{}}, http.StatusOK},
		{"unhealthy dependency", true, []HealthChecker{stubDependency{}, stubDependency{err: errors.New("down")}}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(testMetricsConfig(), zaptest.NewLogger(t), tt.deps...)
			srv.SetReady(tt.ready)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
		})
	}
}

func TestMetricsEndpointFiltersRuntimeFamilies(t *testing.T) {
	srv := NewServer(testMetricsConfig(), zaptest.NewLogger(t))
	srv.Instrumentation().ObserveLookup("jsonip.com", true, time.Millisecond)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if !strings.Contains(string(body), `ip_lookup_lookups_total{provider="jsonip.com",result="OK"} 1`) {
		t.Fatalf("expected lookup counter in output:\n%s", body)
	}
	if strings.Contains(string(body), "go_goroutines") {
		t.Fatal("expected go_ families to be dropped")
	}
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	srv := NewServer(testMetricsConfig(), zaptest.NewLogger(t))
	inst := srv.Instrumentation()

	router := chi.NewRouter()
	router.Use(inst.Middleware)
	router.Get("/history", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	router.Get("/ip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})

	for _, path := range []string{"/history", "/ip", "/ip", "/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`ip_lookup_http_requests_total{method="GET",route="/history",status="500"} 1`,
		`ip_lookup_http_requests_total{method="GET",route="/ip",status="200"} 2`,
		`ip_lookup_http_requests_total{method="GET",route="unmatched",status="404"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}
