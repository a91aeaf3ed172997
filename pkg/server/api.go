// Package server implements the public HTTP API: the index page, IP lookups,
// lookup history and the health report.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/gtriggiano/ip-lookup-service/pkg/metrics"
	"github.com/gtriggiano/ip-lookup-service/pkg/provider"
	"github.com/gtriggiano/ip-lookup-service/pkg/runtime"
	"github.com/gtriggiano/ip-lookup-service/pkg/store"
)

const (
	indexPage = `<h1>IP Lookup</h1><p><a href="/ip">Get IP</a></p><p><a href="/history">View history</a></p>`

	errProviderNotFound    = "Provider not found"
	errLookupFailed        = "Failed to get IP"
	errSnapshotFailed      = "Failed to save snapshot"
	errDatabaseUnavailable = "Database unavailable"

	databaseConnected    = "connected"
	databaseDisconnected = "disconnected"
)

// SnapshotWriter persists a successful lookup to a file.
type SnapshotWriter interface {
	Write(ip, provider string) (string, error)
}

// Dependencies are the collaborators of the API handlers.
type Dependencies struct {
	Providers       *provider.Registry
	ActiveProvider  string
	Store           store.Store
	Snapshots       SnapshotWriter
	Instrumentation *metrics.Instrumentation
	Logger          *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// API serves the public routes.
type API struct {
	providers       *provider.Registry
	active          string
	store           store.Store
	snapshots       SnapshotWriter
	instrumentation *metrics.Instrumentation
	logger          *zap.Logger
	now             func() time.Time
}

type lookupResponse struct {
	MyIP     string `json:"myIP"`
	Provider string `json:"provider"`
	SavedTo  string `json:"saved_to"`
}

type historyResponse struct {
	Count   int            `json:"count"`
	History []store.Record `json:"history"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Timestamp string `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewAPI wires the handlers to their dependencies.
func NewAPI(deps Dependencies) *API {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		providers:       deps.Providers,
		active:          deps.ActiveProvider,
		store:           deps.Store,
		snapshots:       deps.Snapshots,
		instrumentation: deps.Instrumentation,
		logger:          logger,
		now:             now,
	}
}

// Routes returns the chi router serving the API.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(a.instrumentation.Middleware)
	r.Use(runtime.Middleware)

	r.Get("/", a.handleIndex)
	r.Get("/ip", a.handleIP)
	r.Get("/history", a.handleHistory)
	r.Get("/health", a.handleHealth)
	return r
}

func (a *API) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(indexPage))
}

func (a *API) handleIP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqCtx := runtime.FromContext(ctx)
	reqCtx.AddLogFields(zap.String("provider_key", a.active))

	source, err := a.providers.Get(a.active)
	if err != nil {
		a.instrumentation.ObserveUnknownProvider(a.active)
		a.logger.Warn("active provider is not registered", reqCtx.LogFields()...)
		writeError(w, http.StatusNotFound, errProviderNotFound)
		return
	}
	reqCtx.AddLogFields(zap.String("provider", source.Name()))

	start := time.Now()
	result := source.Fetch(ctx)
	a.instrumentation.ObserveLookup(source.Name(), result.OK(), time.Since(start))
	if !result.OK() {
		a.logger.Warn("ip lookup failed", append(reqCtx.LogFields(), zap.Error(result.Err))...)
		writeError(w, http.StatusInternalServerError, errLookupFailed)
		return
	}
	reqCtx.AddLogFields(zap.String("ip", result.IP))

	if err := a.observeStore(metrics.OperationInsert, func() error {
		return a.store.Insert(ctx, result.IP, source.Name())
	}); err != nil {
		a.logger.Error("could not persist lookup", append(reqCtx.LogFields(), zap.Error(err))...)
	}

	path, err := a.snapshots.Write(result.IP, source.Name())
	a.instrumentation.ObserveSnapshotWrite(err)
	if err != nil {
		a.logger.Error("could not write snapshot", append(reqCtx.LogFields(), zap.Error(err))...)
		writeError(w, http.StatusInternalServerError, errSnapshotFailed)
		return
	}

	a.logger.Info("ip lookup served", append(reqCtx.LogFields(),
		zap.String("snapshot", path),
		zap.Duration("elapsed", reqCtx.Elapsed()),
	)...)
	writeJSON(w, http.StatusOK, lookupResponse{
		MyIP:     result.IP,
		Provider: source.Name(),
		SavedTo:  a.store.Label() + " + file",
	})
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var records []store.Record
	err := a.observeStore(metrics.OperationListRecent, func() error {
		var err error
		records, err = a.store.ListRecent(ctx, store.MaxRecentRecords)
		return err
	})
	if err != nil {
		a.logger.Error("could not read history", append(runtime.FromContext(ctx).LogFields(), zap.Error(err))...)
		message := err.Error()
		if errors.Is(err, store.ErrUnavailable) {
			message = errDatabaseUnavailable
		}
		writeError(w, http.StatusInternalServerError, message)
		return
	}

	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Count: len(records), History: records})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	database := databaseConnected
	if err := a.observeStore(metrics.OperationHealthCheck, func() error {
		return a.store.HealthCheck(r.Context())
	}); err != nil {
		a.logger.Debug("database health check failed", zap.Error(err))
		database = databaseDisconnected
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Database:  database,
		Timestamp: store.FormatTimestamp(a.now()),
	})
}

// EnsureSchema prepares the store, recording the outcome like any other store call.
func (a *API) EnsureSchema(ctx context.Context) error {
	return a.observeStore(metrics.OperationEnsureSchema, func() error {
		return a.store.EnsureSchema(ctx)
	})
}

func (a *API) observeStore(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	a.instrumentation.ObserveStoreOperation(a.store.Kind(), operation, err, time.Since(start))
	return err
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
