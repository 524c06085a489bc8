package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/psecars/merch-backend/pkg/config"
	"github.com/psecars/merch-backend/pkg/logger"
)

// Keyspace prefixes every key the backend writes. Empty segments are dropped.
type Keyspace string

const DefaultKeyspace Keyspace = "merch"

func (k Keyspace) key(kind string, parts ...string) string {
	segments := make([]string, 0, len(parts)+2)
	segments = append(segments, string(k), kind)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			segments = append(segments, part)
		}
	}
	return strings.Join(segments, ":")
}

var errNotInitialized = errors.New("redis client not initialized")

const compareAndDelete = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type cmdable interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
	ExpireNX(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Client backs idempotency records, checkout rate limits, cart session
// attributes and the cron lock.
type Client struct {
	store    cmdable
	closer   func() error
	keyspace Keyspace
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// IdempotencyStore is what the idempotency middleware needs.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// New dials Redis and fails fast when the server does not answer a ping.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := buildOptions(cfg)
	if err != nil {
		return nil, err
	}
	conn := redis.NewClient(opts)
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis connection established")
	}
	return &Client{store: conn, closer: conn.Close, keyspace: DefaultKeyspace}, nil
}

// buildOptions prefers MERCH_REDIS_URL; pool and timeout settings from the
// environment fill whatever the URL leaves unset.
func buildOptions(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	opts.DB = firstNonZero(opts.DB, cfg.DB)
	opts.PoolSize = firstNonZero(opts.PoolSize, cfg.PoolSize)
	opts.MinIdleConns = firstNonZero(opts.MinIdleConns, cfg.MinIdleConns)
	opts.DialTimeout = firstNonZero(opts.DialTimeout, cfg.DialTimeout)
	opts.ReadTimeout = firstNonZero(opts.ReadTimeout, cfg.ReadTimeout)
	opts.WriteTimeout = firstNonZero(opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func firstNonZero[T int | time.Duration](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

func (c *Client) cmd() (cmdable, error) {
	if c == nil || c.store == nil {
		return nil, errNotInitialized
	}
	return c.store, nil
}

func (c *Client) keys() Keyspace {
	if c == nil || c.keyspace == "" {
		return DefaultKeyspace
	}
	return c.keyspace
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	store, err := c.cmd()
	if err != nil {
		return err
	}
	return store.Set(ctx, key, value, ttl).Err()
}

// Get returns redis.Nil when key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	store, err := c.cmd()
	if err != nil {
		return "", err
	}
	return store.Get(ctx, key).Result()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	store, err := c.cmd()
	if err != nil {
		return false, err
	}
	return store.SetNX(ctx, key, value, ttl).Result()
}

// Expire resets the TTL on key. It reports false when the key does not exist.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	store, err := c.cmd()
	if err != nil {
		return false, err
	}
	return store.Expire(ctx, key, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	store, err := c.cmd()
	if err != nil {
		return err
	}
	return store.Del(ctx, keys...).Err()
}

// DelIfEquals deletes key only while it still holds value, in one round trip.
func (c *Client) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	store, err := c.cmd()
	if err != nil {
		return false, err
	}
	n, err := store.Eval(ctx, compareAndDelete, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FixedWindowAllow counts one hit against scope and reports whether the
// window still admits it. EXPIRE NX runs on every hit so a counter orphaned
// between INCR and EXPIRE still ages out.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	store, err := c.cmd()
	if err != nil {
		return false, 0, err
	}
	key := c.RateLimitKey(scope)
	count, err := store.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if window > 0 {
		if err := store.ExpireNX(ctx, key, window).Err(); err != nil {
			return false, count, err
		}
	}
	return count <= limit, count, nil
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return c.keys().key("idempotency", scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return c.keys().key("rate_limit", scope)
}

// SessionAttributeKey addresses one attribute of a server-side session.
func (c *Client) SessionAttributeKey(sessionID, name string) string {
	return c.keys().key("session", sessionID, name)
}

func (c *Client) Ping(ctx context.Context) error {
	store, err := c.cmd()
	if err != nil {
		return err
	}
	return store.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}
