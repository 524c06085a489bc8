package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "MERCH"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "MERCH_DB_DSN"
	EnvDBHost = "MERCH_DB_HOST"
	EnvDBUser = "MERCH_DB_USER"
	EnvDBName = "MERCH_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	HTTP         HTTPConfig
	Cart         CartConfig
	RateLimit    RateLimitConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MERCH_APP_ENV" default:"dev"`
	Port         string `envconfig:"MERCH_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"MERCH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MERCH_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MERCH_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MERCH_DB_DSN"`
	Driver string `envconfig:"MERCH_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MERCH_DB_HOST"`
	LegacyPort     int    `envconfig:"MERCH_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MERCH_DB_USER"`
	LegacyPassword string `envconfig:"MERCH_DB_PASSWORD"`
	LegacyName     string `envconfig:"MERCH_DB_NAME"`
	LegacySSLMode  string `envconfig:"MERCH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MERCH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MERCH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MERCH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MERCH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"MERCH_DB_SLOW_QUERY" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MERCH_REDIS_URL"`
	Address      string        `envconfig:"MERCH_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"MERCH_REDIS_PASSWORD"`
	DB           int           `envconfig:"MERCH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MERCH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MERCH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MERCH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MERCH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MERCH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite        bool `envconfig:"MERCH_USE_SQLITE" default:"false"`
	AutoMigrate      bool `envconfig:"MERCH_AUTO_MIGRATE" default:"false"`
	InProcessSweeper bool `envconfig:"MERCH_IN_PROCESS_SWEEPER" default:"false"`
}

type HTTPConfig struct {
	AllowedOrigins  []string      `envconfig:"MERCH_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
	ReadTimeout     time.Duration `envconfig:"MERCH_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"MERCH_HTTP_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"MERCH_HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool `envconfig:"MERCH_HTTP_TRUST_PROXY" default:"true"`
}

// CartConfig carries the anonymous cart lifecycle knobs.
type CartConfig struct {
	TTL              time.Duration `envconfig:"MERCH_CART_TTL" default:"168h"`
	SweepInterval    time.Duration `envconfig:"MERCH_CART_SWEEP_INTERVAL" default:"1h"`
	InactiveAfter    time.Duration `envconfig:"MERCH_CART_INACTIVE_AFTER" default:"0"`
	SessionCookie    string        `envconfig:"MERCH_CART_SESSION_COOKIE" default:"CART_SESSION_ID"`
	ServerCookie     string        `envconfig:"MERCH_SERVER_SESSION_COOKIE" default:"MERCH_SESSION"`
	SecureCookies    bool          `envconfig:"MERCH_SECURE_COOKIES" default:"false"`
	ServerSessionTTL time.Duration `envconfig:"MERCH_SERVER_SESSION_TTL" default:"168h"`
	SessionAttribute string        `envconfig:"MERCH_CART_SESSION_ATTRIBUTE" default:"cartSessionId"`
}

type RateLimitConfig struct {
	CheckoutWindow time.Duration `envconfig:"MERCH_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutLimit  int           `envconfig:"MERCH_RATE_LIMIT_CHECKOUT_LIMIT" default:"10"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MERCH_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"MERCH_CRON_LOCK_TTL" default:"55m"`
	// MetricsAddr, when set, serves /metrics for the worker (e.g. ":9102").
	MetricsAddr string `envconfig:"MERCH_CRON_METRICS_ADDR"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"MERCH_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"MERCH_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrderEventsTopic string `envconfig:"MERCH_PUBSUB_ORDER_EVENTS_TOPIC" default:"merch-order-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MERCH_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MERCH_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MERCH_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"MERCH_OUTBOX_RETENTION_DAYS" default:"30"`
	PurgeBatchSize int `envconfig:"MERCH_OUTBOX_PURGE_BATCH_SIZE" default:"500"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = "file:merch.db?cache=shared"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
