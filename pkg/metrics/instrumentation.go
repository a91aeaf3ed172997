package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OK               = "OK"
	ERROR            = "ERROR"
	UNKNOWN_PROVIDER = "UNKNOWN_PROVIDER"

	OperationEnsureSchema = "ensure_schema"
	OperationInsert       = "insert"
	OperationListRecent   = "list_recent"
	OperationHealthCheck  = "health_check"
)

// Instrumentation publishes Prometheus metrics for lookups and their side effects.
// Every method is safe to call on a nil receiver.
type Instrumentation struct {
	lookupTotals    *prometheus.CounterVec
	lookupDuration  *prometheus.HistogramVec
	storeOperations *prometheus.CounterVec
	storeDuration   *prometheus.HistogramVec
	snapshotWrites  *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpInFlight    prometheus.Gauge
}

// NewInstrumentation registers all metric vectors.
func NewInstrumentation(reg prometheus.Registerer) *Instrumentation {
	inst := &Instrumentation{
		lookupTotals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ip_lookup",
			Name:      "lookups_total",
			Help:      "Total IP lookups by provider and result",
		}, []string{"provider", "result"}),
		lookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ip_lookup",
			Name:      "lookup_duration_seconds",
			Help:      "Outbound provider request latency",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"provider", "result"}),
		storeOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ip_lookup",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "History store operations by backend, operation and result",
		}, []string{"backend", "operation", "result"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ip_lookup",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "History store operation latency including connection setup",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		}, []string{"backend", "operation", "result"}),
		snapshotWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ip_lookup",
			Subsystem: "snapshot",
			Name:      "writes_total",
			Help:      "Snapshot files written by result",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ip_lookup",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP API requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ip_lookup",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ip_lookup",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "HTTP API requests currently being served",
		}),
	}

	reg.MustRegister(
		inst.lookupTotals,
		inst.lookupDuration,
		inst.storeOperations,
		inst.storeDuration,
		inst.snapshotWrites,
		inst.httpRequests,
		inst.httpDuration,
		inst.httpInFlight,
	)
	return inst
}

// ObserveLookup records one provider fetch.
func (i *Instrumentation) ObserveLookup(provider string, success bool, duration time.Duration) {
	if i == nil {
		return
	}
	result := resultLabel(success)
	i.lookupTotals.WithLabelValues(provider, result).Inc()
	i.lookupDuration.WithLabelValues(provider, result).Observe(duration.Seconds())
}

// ObserveUnknownProvider counts /ip requests for a key missing from the registry.
func (i *Instrumentation) ObserveUnknownProvider(key string) {
	if i == nil {
		return
	}
	i.lookupTotals.WithLabelValues(key, UNKNOWN_PROVIDER).Inc()
}

// ObserveStoreOperation records a history store call.
func (i *Instrumentation) ObserveStoreOperation(backend, operation string, err error, duration time.Duration) {
	if i == nil {
		return
	}
	result := resultLabel(err == nil)
	i.storeOperations.WithLabelValues(backend, operation, result).Inc()
	i.storeDuration.WithLabelValues(backend, operation, result).Observe(duration.Seconds())
}

// ObserveSnapshotWrite records a snapshot file write.
func (i *Instrumentation) ObserveSnapshotWrite(err error) {
	if i == nil {
		return
	}
	i.snapshotWrites.WithLabelValues(resultLabel(err == nil)).Inc()
}

// InFlight adjusts the in-flight HTTP request gauge.
func (i *Instrumentation) InFlight(delta float64) {
	if i == nil || delta == 0 {
		return
	}
	i.httpInFlight.Add(delta)
}

// ObserveHTTPRequest records a served HTTP request.
func (i *Instrumentation) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if i == nil {
		return
	}
	i.httpRequests.WithLabelValues(method, route, statusLabel(status)).Inc()
	i.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func resultLabel(success bool) string {
	if success {
		return OK
	}
	return ERROR
}
