package metrics

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveLookup(t *testing.T) {
	inst := NewInstrumentation(prometheus.NewRegistry())

	inst.ObserveLookup("ip-api.com", true, 40*time.Millisecond)
	inst.ObserveLookup("ip-api.com", false, 10*time.Second)
	inst.ObserveUnknownProvider("ipinfo")

	if v := testutil.ToFloat64(inst.lookupTotals.WithLabelValues("ip-api.com", OK)); v != 1 {
		t.Fatalf("expected 1 successful lookup, got %v", v)
	}
	if v := testutil.ToFloat64(inst.lookupTotals.WithLabelValues("ip-api.com", ERROR)); v != 1 {
		t.Fatalf("expected 1 failed lookup, got %v", v)
	}
	if v := testutil.ToFloat64(inst.lookupTotals.WithLabelValues("ipinfo", UNKNOWN_PROVIDER)); v != 1 {
		t.Fatalf("expected 1 unknown provider lookup, got %v", v)
	}
	if c := testutil.CollectAndCount(inst.lookupDuration); c != 2 {
		t.Fatalf("expected two lookup duration series, got %d", c)
	}
}

func TestObserveStoreAndSnapshot(t *testing.T) {
	inst := NewInstrumentation(prometheus.NewRegistry())

	inst.ObserveStoreOperation("postgres", OperationInsert, nil, 3*time.Millisecond)
	inst.ObserveStoreOperation("postgres", OperationInsert, errors.New("boom"), time.Second)
	inst.ObserveStoreOperation("postgres", OperationListRecent, nil, 5*time.Millisecond)
	inst.ObserveSnapshotWrite(nil)
	inst.ObserveSnapshotWrite(errors.New("disk full"))
	inst.ObserveSnapshotWrite(nil)

	if v := testutil.ToFloat64(inst.storeOperations.WithLabelValues("postgres", OperationInsert, OK)); v != 1 {
		t.Fatalf("expected 1 ok insert, got %v", v)
	}
	if v := testutil.ToFloat64(inst.storeOperations.WithLabelValues("postgres", OperationInsert, ERROR)); v != 1 {
		t.Fatalf("expected 1 failed insert, got %v", v)
	}
	if c := testutil.CollectAndCount(inst.storeDuration); c != 3 {
		t.Fatalf("expected three store duration series, got %d", c)
	}
	if v := testutil.ToFloat64(inst.snapshotWrites.WithLabelValues(OK)); v != 2 {
		t.Fatalf("expected 2 snapshot writes, got %v", v)
	}
	if v := testutil.ToFloat64(inst.snapshotWrites.WithLabelValues(ERROR)); v != 1 {
		t.Fatalf("expected 1 failed snapshot write, got %v", v)
	}
}

func TestObserveHTTP(t *testing.T) {
	inst := NewInstrumentation(prometheus.NewRegistry())

	inst.InFlight(1)
	inst.InFlight(1)
	inst.InFlight(-2)
	inst.InFlight(0)
	if v := testutil.ToFloat64(inst.httpInFlight); v != 0 {
		t.Fatalf("expected in-flight gauge back to zero, got %v", v)
	}

	inst.ObserveHTTPRequest(http.MethodGet, "/ip", http.StatusNotFound, time.Millisecond)
	inst.ObserveHTTPRequest(http.MethodGet, "/ip", 0, time.Millisecond)
	if v := testutil.ToFloat64(inst.httpRequests.WithLabelValues(http.MethodGet, "/ip", "404")); v != 1 {
		t.Fatalf("expected 1 404 request, got %v", v)
	}
	if v := testutil.ToFloat64(inst.httpRequests.WithLabelValues(http.MethodGet, "/ip", "200")); v != 1 {
		t.Fatalf("expected unwritten status to count as 200, got %v", v)
	}
}

func TestNilInstrumentationIsSafe(t *testing.T) {
	var inst *Instrumentation
	inst.ObserveLookup("p", true, time.Second)
	inst.ObserveUnknownProvider("p")
	inst.ObserveStoreOperation("postgres", OperationInsert, nil, time.Second)
	inst.ObserveSnapshotWrite(nil)
	inst.InFlight(1)
	inst.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Second)
}
