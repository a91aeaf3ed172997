package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gtriggiano/ip-lookup-service/pkg/config"
)

// RedisStore keeps history in a list (newest first) next to an id counter.
// Unlike PostgresStore it reuses the go-redis connection pool.
type RedisStore struct {
	client     *redis.Client
	recordsKey string
	sequence   string
	logger     *zap.Logger
}

// redisRecord is the stored form. The server clock is kept as the seconds and
// microseconds strings returned by TIME.
type redisRecord struct {
	ID       int64  `json:"id,string"`
	IP       string `json:"ip"`
	Provider string `json:"provider"`
	Seconds  int64  `json:"sec,string"`
	Micros   int64  `json:"usec,string"`
}

// insertScript allocates the id, reads the server clock and prepends the
// record in one atomic step, so list order is timestamp order.
var insertScript = redis.NewScript(`
local id = redis.call('INCR', KEYS[2])
local now = redis.call('TIME')
local record = cjson.encode({
	id = tostring(id),
	ip = ARGV[1],
	provider = ARGV[2],
	sec = now[1],
	usec = now[2],
})
redis.call('LPUSH', KEYS[1], record)
return id
`)

// NewRedisStore creates the client without contacting the server.
func NewRedisStore(cfg *config.RedisConfig, timeout time.Duration, logger *zap.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, errors.New("redis configuration is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		DB:           cfg.DB,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	return &RedisStore{
		client:     client,
		recordsKey: cfg.KeyPrefix + ":records",
		sequence:   cfg.KeyPrefix + ":seq",
		logger:     logger,
	}, nil
}

func (r *RedisStore) Kind() string  { return config.DatabaseTypeRedis }
func (r *RedisStore) Label() string { return "Redis" }

// EnsureSchema has nothing to create; it verifies the server is reachable.
func (r *RedisStore) EnsureSchema(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: failed to connect to Redis: %w", ErrUnavailable, err)
	}
	return nil
}

// Insert assigns the next id, stamps the record with the server clock and
// prepends it to the history list.
func (r *RedisStore) Insert(ctx context.Context, ip, provider string) error {
	if ip == "" {
		return nil
	}

	if err := insertScript.Run(ctx, r.client, []string{r.recordsKey, r.sequence}, ip, provider).Err(); err != nil {
		return fmt.Errorf("failed to push record: %w", err)
	}
	return nil
}

// ListRecent reads the head of the history list.
func (r *RedisStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	raw, err := r.client.LRange(ctx, r.recordsKey, 0, int64(clampLimit(limit)-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis query failed: %w", err)
	}

	records := make([]Record, 0, len(raw))
	for _, item := range raw {
		record, err := decodeRedisRecord(item)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func decodeRedisRecord(item string) (Record, error) {
	var stored redisRecord
	if err := json.Unmarshal([]byte(item), &stored); err != nil {
		return Record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return Record{
		ID:        stored.ID,
		IP:        stored.IP,
		Provider:  stored.Provider,
		Timestamp: FormatTimestamp(time.Unix(stored.Seconds, stored.Micros*int64(time.Microsecond)).UTC()),
	}, nil
}

// HealthCheck verifies connectivity to Redis.
func (r *RedisStore) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Close releases Redis client resources.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
