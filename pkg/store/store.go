// Package store persists successful lookups and reads them back as history.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gtriggiano/ip-lookup-service/pkg/config"
)

const (
	// TableName is the relational table holding lookup history.
	TableName = "ip_history"
	// MaxRecentRecords bounds ListRecent.
	MaxRecentRecords = 20

	// timestampLayout renders timestamps as ISO-8601 without a zone, with
	// fractional seconds only when present.
	timestampLayout = "2006-01-02T15:04:05.999999"
)

// ErrUnavailable marks failures to reach the backend at all.
var ErrUnavailable = errors.New("database unavailable")

// Record is one persisted lookup.
type Record struct {
	ID        int64  `json:"id"`
	IP        string `json:"ip"`
	Provider  string `json:"provider"`
	Timestamp string `json:"timestamp"`
}

// Store is the persistence gateway for lookup history.
type Store interface {
	// Kind is the backend type, used as a metrics label.
	Kind() string
	// Label names the backend for clients, e.g. "PostgreSQL".
	Label() string
	// EnsureSchema idempotently prepares the backend.
	EnsureSchema(ctx context.Context) error
	// Insert stores one record stamped with the backend's current time. An empty ip is a no-op.
	Insert(ctx context.Context, ip, provider string) error
	// ListRecent returns at most limit records, newest first.
	ListRecent(ctx context.Context, limit int) ([]Record, error)
	// HealthCheck reports whether the backend is reachable.
	HealthCheck(ctx context.Context) error
	Close() error
}

// New builds the store selected by configuration. Construction never dials the
// backend so that the service can start while the database is unavailable.
func New(cfg config.DatabaseConfig, logger *zap.Logger) (Store, error) {
	timeout := cfg.DatabaseConnectionTimeout()
	switch cfg.Type {
	case config.DatabaseTypePostgres:
		return NewPostgresStore(cfg.Postgres, timeout, logger)
	case config.DatabaseTypeRedis:
		return NewRedisStore(cfg.Redis, timeout, logger)
	default:
		return nil, fmt.Errorf("unsupported database type '%s'", cfg.Type)
	}
}

// FormatTimestamp renders t as ISO-8601 text.
func FormatTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// clampLimit keeps limit within [1, MaxRecentRecords].
func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxRecentRecords {
		return MaxRecentRecords
	}
	return limit
}
