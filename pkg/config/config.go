// Package config loads the ip-lookup-service configuration. Values come from an
// optional YAML file, are overridden by the process environment, then defaulted
// and validated.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gtriggiano/ip-lookup-service/pkg/logging"
)

const (
	defaultShutdownTimeout           = 20 * time.Second
	defaultProviderTimeout           = 10 * time.Second
	defaultDatabaseConnectionTimeout = 5 * time.Second

	// DefaultPostgresPort is the port of the existing deployment. It is not
	// PostgreSQL's conventional 5432 and can only be changed through the YAML file.
	DefaultPostgresPort = 5434
	defaultRedisPort    = 6379

	DatabaseTypePostgres = "postgres"
	DatabaseTypeRedis    = "redis"

	DefaultActiveProvider = "jsonip"
)

// Environment variables recognised by Load.
const (
	EnvPostgresHost     = "POSTGRES_HOST"
	EnvPostgresDB       = "POSTGRES_DB"
	EnvPostgresUser     = "POSTGRES_USER"
	EnvPostgresPassword = "POSTGRES_PASSWORD"
	EnvProviderType     = "TYPE"
	EnvPort             = "PORT"
	EnvLogLevel         = "LOG_LEVEL"
)

// Config models the complete application configuration.
type Config struct {
	// Server configures the public HTTP API listener.
	Server ServerConfig `yaml:"server"`
	// Metrics configures the HTTP server for Prometheus metrics and health probes.
	Metrics MetricsConfig `yaml:"metrics"`
	// Logging configures structured logging output and levels.
	Logging logging.Config `yaml:"logging"`
	// Provider selects the active IP provider and the outbound client behaviour.
	Provider ProviderSelection `yaml:"provider"`
	// Providers lists the provider instances available in the registry.
	Providers []ProviderConfig `yaml:"providers"`
	// Database configures the lookup history store.
	Database DatabaseConfig `yaml:"database"`
	// Snapshots configures the JSON snapshot file sink.
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	// Shutdown controls graceful shutdown behavior.
	Shutdown ShutdownConfig `yaml:"shutdown"`
}

// ServerConfig controls the public HTTP listener.
type ServerConfig struct {
	// Address is the bind address (e.g., ":8000").
	Address string `yaml:"address"`
}

// MetricsConfig controls the metrics/health HTTP server.
type MetricsConfig struct {
	Address       string   `yaml:"address"`
	HealthPath    string   `yaml:"healthPath"`
	ReadinessPath string   `yaml:"readinessPath"`
	DropPrefixes  []string `yaml:"dropPrefixes"`
}

// ProviderSelection picks the registry key served by /ip.
type ProviderSelection struct {
	// Active is the registry key of the provider used for lookups.
	Active string `yaml:"active"`
	// Timeout bounds every outbound provider request (e.g., "10s").
	Timeout string `yaml:"timeout"`
}

// ProviderConfig defines one provider instance.
type ProviderConfig struct {
	// Name is the registry key, e.g. "ipapi".
	Name string `yaml:"name"`
	// Type is the provider kind, e.g. "ip-api" or "jsonip".
	Type string `yaml:"type"`
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`
	// Settings holds kind-specific options.
	Settings map[string]any `yaml:"settings"`
}

// DatabaseConfig selects and configures the history store backend.
type DatabaseConfig struct {
	Type              string          `yaml:"type"`
	ConnectionTimeout string          `yaml:"connectionTimeout"`
	Postgres          *PostgresConfig `yaml:"postgres"`
	Redis             *RedisConfig    `yaml:"redis"`
}

// PostgresConfig represents PostgreSQL connection parameters.
type PostgresConfig struct {
	Host         string             `yaml:"host"`
	Port         int                `yaml:"port"`
	DatabaseName string             `yaml:"databaseName"`
	Username     string             `yaml:"username"`
	Password     string             `yaml:"password"`
	TLS          *PostgresTLSConfig `yaml:"tls"`
}

// PostgresTLSConfig represents TLS configuration for PostgreSQL.
type PostgresTLSConfig struct {
	Mode       string `yaml:"mode"`
	CACert     string `yaml:"caCert"`
	ClientCert string `yaml:"clientCert"`
	ClientKey  string `yaml:"clientKey"`
}

// RedisConfig represents Redis connection parameters.
type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	DB        int    `yaml:"db"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// SnapshotsConfig configures where lookup snapshots are written.
type SnapshotsConfig struct {
	Directory string `yaml:"directory"`
}

// ShutdownConfig holds graceful shutdown parameters.
type ShutdownConfig struct {
	// Timeout is the maximum duration to wait for graceful shutdown (e.g., "25s").
	Timeout string `yaml:"timeout"`
}

// Load builds the configuration. The file at path is optional: an empty path
// skips it, while a path that cannot be read or parsed is an error. Environment
// variables always take precedence over file values.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read the configuration file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("could not parse the configuration file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv copies recognised environment variables over file values.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvProviderType); ok && v != "" {
		c.Provider.Active = v
	}

	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("environment variable %s must be a port number, got %q", EnvPort, v)
		}
		c.Server.Address = ":" + v
	}

	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}

	if c.Database.Postgres == nil {
		c.Database.Postgres = &PostgresConfig{}
	}
	pg := c.Database.Postgres
	setFromEnv(lookup, EnvPostgresHost, &pg.Host)
	setFromEnv(lookup, EnvPostgresDB, &pg.DatabaseName)
	setFromEnv(lookup, EnvPostgresUser, &pg.Username)
	setFromEnv(lookup, EnvPostgresPassword, &pg.Password)

	return nil
}

func setFromEnv(lookup func(string) (string, bool), key string, target *string) {
	if v, ok := lookup(key); ok && v != "" {
		*target = v
	}
}

// applyDefaults fills every field left empty by the file and the environment.
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8000"
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Metrics.HealthPath == "" {
		c.Metrics.HealthPath = "/healthz"
	}
	if c.Metrics.ReadinessPath == "" {
		c.Metrics.ReadinessPath = "/readyz"
	}
	if c.Metrics.DropPrefixes == nil {
		c.Metrics.DropPrefixes = []string{"go_", "process_", "promhttp_"}
	}

	if c.Provider.Active == "" {
		c.Provider.Active = DefaultActiveProvider
	}
	if c.Provider.Timeout == "" {
		c.Provider.Timeout = defaultProviderTimeout.String()
	}
	if len(c.Providers) == 0 {
		c.Providers = DefaultProviders()
	}

	if c.Database.Type == "" {
		c.Database.Type = DatabaseTypePostgres
	}
	if c.Database.ConnectionTimeout == "" {
		c.Database.ConnectionTimeout = defaultDatabaseConnectionTimeout.String()
	}
	c.Database.Postgres.applyDefaults()
	c.Database.Redis.applyDefaults()

	if c.Snapshots.Directory == "" {
		c.Snapshots.Directory = "/app/data"
	}

	if c.Shutdown.Timeout == "" {
		c.Shutdown.Timeout = defaultShutdownTimeout.String()
	}

	c.resolveTLSPaths()
}

func (p *PostgresConfig) applyDefaults() {
	if p == nil {
		return
	}
	if p.Host == "" {
		p.Host = "postgres-service"
	}
	if p.Port == 0 {
		p.Port = DefaultPostgresPort
	}
	if p.DatabaseName == "" {
		p.DatabaseName = "ip_lookup_db"
	}
	if p.Username == "" {
		p.Username = "postgres"
	}
	if p.Password == "" {
		p.Password = "postgres"
	}
}

func (r *RedisConfig) applyDefaults() {
	if r == nil {
		return
	}
	if r.Host == "" {
		r.Host = "localhost"
	}
	if r.Port == 0 {
		r.Port = defaultRedisPort
	}
	if r.KeyPrefix == "" {
		r.KeyPrefix = "ip_history"
	}
}

// DefaultProviders returns the registry entries used when none are configured.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{Name: "ipapi", Type: "ip-api"},
		{Name: "jsonip", Type: "jsonip"},
	}
}

// Validate checks that the configuration is usable. An active provider key
// missing from the registry is not an error: /ip answers 404 for it.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Address == "" {
		return errors.New("configuration 'server.address' is required")
	}
	if c.Metrics.Address == "" {
		return errors.New("configuration 'metrics.address' is required")
	}
	if c.Metrics.Address == c.Server.Address {
		return fmt.Errorf("configuration 'metrics.address' must differ from 'server.address' (%s)", c.Server.Address)
	}

	if err := validatePositiveDuration("provider.timeout", c.Provider.Timeout); err != nil {
		return err
	}
	if err := validateProviderSet(c.Providers); err != nil {
		return err
	}

	if err := c.Database.validate(); err != nil {
		return err
	}

	if c.Snapshots.Directory == "" {
		return errors.New("configuration 'snapshots.directory' is required")
	}

	return nil
}

// validateProviderSet ensures every provider has a name and a type and that names are unique.
func validateProviderSet(providers []ProviderConfig) error {
	names := make(map[string]struct{}, len(providers))
	for _, p := range providers {
		if p.Name == "" {
			return errors.New("provider name is required")
		}
		if p.Type == "" {
			return fmt.Errorf("provider '%s' type is required", p.Name)
		}
		if _, exists := names[p.Name]; exists {
			return fmt.Errorf("duplicate provider name %s", p.Name)
		}
		names[p.Name] = struct{}{}
	}
	return nil
}

func (d DatabaseConfig) validate() error {
	if err := validatePositiveDuration("database.connectionTimeout", d.ConnectionTimeout); err != nil {
		return err
	}

	switch d.Type {
	case DatabaseTypePostgres:
		return d.Postgres.validate()
	case DatabaseTypeRedis:
		if d.Redis == nil {
			return errors.New("database.redis configuration is required when database.type is 'redis'")
		}
		if d.Redis.Host == "" {
			return errors.New("database.redis.host is required")
		}
		if d.Redis.Port < 1 || d.Redis.Port > 65535 {
			return errors.New("database.redis.port must be between 1 and 65535")
		}
		return nil
	default:
		return fmt.Errorf("database.type must be 'postgres' or 'redis', got '%s'", d.Type)
	}
}

func (p *PostgresConfig) validate() error {
	if p == nil {
		return errors.New("database.postgres configuration is required when database.type is 'postgres'")
	}
	if p.Host == "" {
		return errors.New("database.postgres.host is required")
	}
	if p.Port < 1 || p.Port > 65535 {
		return errors.New("database.postgres.port must be between 1 and 65535")
	}
	if p.DatabaseName == "" {
		return errors.New("database.postgres.databaseName is required")
	}
	if p.TLS != nil {
		if err := p.TLS.validate(); err != nil {
			return fmt.Errorf("invalid postgres TLS configuration: %w", err)
		}
	}
	return nil
}

// validate ensures the SSL mode is known and certificate files exist.
func (t *PostgresTLSConfig) validate() error {
	validModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if t.Mode != "" && !slices.Contains(validModes, t.Mode) {
		return fmt.Errorf("invalid ssl mode '%s', must be one of: %s", t.Mode, strings.Join(validModes, ", "))
	}

	if (t.ClientCert != "") != (t.ClientKey != "") {
		return errors.New("both clientCert and clientKey must be provided for mutual TLS")
	}

	for _, filePath := range []string{t.CACert, t.ClientCert, t.ClientKey} {
		if filePath == "" {
			continue
		}
		if _, err := os.Stat(filePath); err != nil {
			return err
		}
	}
	return nil
}

func validatePositiveDuration(key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", key)
	}
	return nil
}

// IsEnabled reports whether the provider entry should be registered.
func (p ProviderConfig) IsEnabled() bool {
	if p.Enabled == nil {
		return true
	}
	return *p.Enabled
}

// ProviderTimeout returns the parsed outbound request timeout.
func (p ProviderSelection) ProviderTimeout() time.Duration {
	return parseDurationOr(p.Timeout, defaultProviderTimeout)
}

// DatabaseConnectionTimeout returns the parsed per-connection timeout.
func (d DatabaseConfig) DatabaseConnectionTimeout() time.Duration {
	return parseDurationOr(d.ConnectionTimeout, defaultDatabaseConnectionTimeout)
}

// ShutdownTimeout returns the parsed graceful shutdown deadline.
func (c ShutdownConfig) ShutdownTimeout() time.Duration {
	return parseDurationOr(c.Timeout, defaultShutdownTimeout)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// resolveTLSPaths makes relative certificate paths absolute against the working directory.
func (c *Config) resolveTLSPaths() {
	if c.Database.Postgres == nil || c.Database.Postgres.TLS == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	tls := c.Database.Postgres.TLS
	for _, p := range []*string{&tls.CACert, &tls.ClientCert, &tls.ClientKey} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(cwd, *p)
		}
	}
}
