package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/psecars/merch-backend/pkg/config"
	"github.com/psecars/merch-backend/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Client wraps the shared GORM connection.
type Client struct {
	conn   *gorm.DB
	driver string
}

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens the pool for cfg and verifies it answers a ping. useSQLite forces
// the sqlite dialect regardless of cfg.Driver.
func New(ctx context.Context, cfg config.DBConfig, useSQLite bool, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db: dsn is required")
	}
	driver := resolveDriver(cfg.Driver, useSQLite)
	dialector, err := dialectorFor(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLog(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
		NowFunc:                NowUTC,
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", driver, err)
	}
	client := &Client{conn: conn, driver: driver}

	pool, err := client.SQL()
	if err != nil {
		return nil, fmt.Errorf("db: pool handle: %w", err)
	}
	applyPoolSettings(pool, cfg, driver)
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("db: ping %s: %w", driver, err)
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"db_driver":      driver,
			"max_open_conns": pool.Stats().MaxOpenConnections,
		}), "db.connected")
	}
	return client, nil
}

// NowFunc used for autoCreateTime/autoUpdateTime columns. Timestamps are stored in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// NewFromConn wraps an already opened connection, mostly for tests.
func NewFromConn(conn *gorm.DB) *Client {
	return &Client{conn: conn, driver: conn.Dialector.Name()}
}

func resolveDriver(raw string, useSQLite bool) string {
	if useSQLite {
		return DriverSQLite
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case DriverSQLite, "sqlite3":
		return DriverSQLite
	default:
		return DriverPostgres
	}
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverPostgres:
		return postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), nil
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func applyPoolSettings(sqlDB *sql.DB, cfg config.DBConfig, driver string) {
	if driver == DriverSQLite {
		// sqlite serializes writers; a single connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		return
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// DB returns the underlying GORM connection.
func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Driver reports which dialect the client was opened with.
func (c *Client) Driver() string {
	return c.driver
}

// SQL exposes the pooled *sql.DB, used by goose.
func (c *Client) SQL() (*sql.DB, error) {
	return c.conn.DB()
}

// Ping verifies the datasource is reachable.
func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.SQL()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

// Close shuts down the pooled connections.
func (c *Client) Close() error {
	pool, err := c.SQL()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in a transaction that commits when fn returns nil and rolls
// back on error or panic. Calls nested inside fn's tx become savepoints.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
