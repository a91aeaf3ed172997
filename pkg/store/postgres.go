package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/gtriggiano/ip-lookup-service/pkg/config"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS ip_history (
	id SERIAL PRIMARY KEY,
	ip VARCHAR(45),
	provider VARCHAR(50),
	timestamp TIMESTAMP DEFAULT NOW()
)`
	insertSQL     = `INSERT INTO ip_history (ip, provider) VALUES ($1, $2)`
	listRecentSQL = `SELECT id, ip, provider, timestamp FROM ip_history ORDER BY timestamp DESC LIMIT $1`
)

// PostgresStore opens a new connection for every operation and closes it
// before returning. No handle is shared between operations, so under load
// there is one server connection per in-flight request.
type PostgresStore struct {
	connConfig *pgx.ConnConfig
	logger     *zap.Logger
}

// NewPostgresStore parses the connection parameters without connecting.
func NewPostgresStore(cfg *config.PostgresConfig, connectTimeout time.Duration, logger *zap.Logger) (*PostgresStore, error) {
	if cfg == nil {
		return nil, errors.New("postgres configuration is required")
	}

	connConfig, err := pgx.ParseConfig(connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	connConfig.ConnectTimeout = connectTimeout

	return &PostgresStore{connConfig: connConfig, logger: logger}, nil
}

// connString builds a URL so credentials containing reserved characters survive.
// TLS material is passed as libpq parameters, which pgx turns into its TLS config.
func connString(cfg *config.PostgresConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.DatabaseName,
	}

	if tls := cfg.TLS; tls != nil {
		params := url.Values{}
		for key, value := range map[string]string{
			"sslmode":     tls.Mode,
			"sslrootcert": tls.CACert,
			"sslcert":     tls.ClientCert,
			"sslkey":      tls.ClientKey,
		} {
			if value != "" {
				params.Set(key, value)
			}
		}
		u.RawQuery = params.Encode()
	}
	return u.String()
}

func (p *PostgresStore) Kind() string  { return config.DatabaseTypePostgres }
func (p *PostgresStore) Label() string { return "PostgreSQL" }

// connect opens a dedicated connection. Callers must close it.
func (p *PostgresStore) connect(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, p.connConfig.Copy())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to PostgreSQL: %w", ErrUnavailable, err)
	}
	return conn, nil
}

// release closes conn with a fresh deadline so a cancelled request still
// terminates the session cleanly.
func (p *PostgresStore) release(conn *pgx.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), p.connConfig.ConnectTimeout)
	defer cancel()
	if err := conn.Close(ctx); err != nil {
		p.logger.Debug("closing postgres connection failed", zap.Error(err))
	}
}

// EnsureSchema creates the history table when it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer p.release(conn)

	if _, err := conn.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", TableName, err)
	}
	return nil
}

// Insert writes one row; the timestamp defaults to the server's NOW().
func (p *PostgresStore) Insert(ctx context.Context, ip, provider string) error {
	if ip == "" {
		return nil
	}

	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer p.release(conn)

	if _, err := conn.Exec(ctx, insertSQL, ip, provider); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", TableName, err)
	}
	return nil
}

// ListRecent returns the newest rows by timestamp.
func (p *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer p.release(conn)

	rows, err := conn.Query(ctx, listRecentSQL, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", TableName, err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var (
			record    Record
			ip        *string
			provider  *string
			timestamp *time.Time
		)
		if err := row.Scan(&record.ID, &ip, &provider, &timestamp); err != nil {
			return Record{}, err
		}
		if ip != nil {
			record.IP = *ip
		}
		if provider != nil {
			record.Provider = *provider
		}
		if timestamp != nil {
			record.Timestamp = FormatTimestamp(*timestamp)
		}
		return record, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", TableName, err)
	}
	return records, nil
}

// HealthCheck only opens and closes a connection.
func (p *PostgresStore) HealthCheck(ctx context.Context) error {
	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	p.release(conn)
	return nil
}

// Close is a no-op: no connection outlives an operation.
func (p *PostgresStore) Close() error {
	return nil
}
