package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderportal/pkg/config"
	"github.com/angelmondragon/orderportal/pkg/logger"
)

// retryBackoff is the pause before the first transaction retry; it doubles
// on each further attempt.
const retryBackoff = 20 * time.Millisecond

type Client struct {
	conn      *gorm.DB
	txRetries int
	backoff   time.Duration
	logg      *logger.Logger
}

// TxRunner is what services depend on to group writes.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// New opens and pings the configured database.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	driver := driverName(cfg)
	dialector, err := dialect(driver, cfg)
	if err != nil {
		return nil, err
	}
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQueryThreshold),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	pool, err := conn.DB()
	if err != nil {
		return nil, err
	}
	tunePool(pool, driver, cfg)
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"driver":     driver,
			"tx_retries": cfg.TxRetries,
		}), "database connection established")
	}
	return &Client{conn: conn, txRetries: cfg.TxRetries, backoff: retryBackoff, logg: logg}, nil
}

// Wrap adapts an open handle. Wrapped clients never retry transactions.
func Wrap(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

func dialect(driver string, cfg config.DBConfig) (gorm.Dialector, error) {
	if driver == config.DriverSQLite {
		if cfg.SQLitePath == "" {
			return nil, errors.New("sqlite path is required")
		}
		// Writers wait up to 5s on the file lock.
		return sqlite.Open("file:" + cfg.SQLitePath + "?_busy_timeout=5000&_foreign_keys=on"), nil
	}
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}), nil
}

func driverName(cfg config.DBConfig) string {
	if cfg.Driver == "" {
		return config.DriverPostgres
	}
	return cfg.Driver
}

func tunePool(pool *sql.DB, driver string, cfg config.DBConfig) {
	if driver == config.DriverSQLite {
		pool.SetMaxOpenConns(1)
		return
	}
	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in one transaction, rolling back on error or panic. When the
// database aborts the attempt with a serialization failure, deadlock or lock
// timeout, fn runs again from the start, at most txRetries more times.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := c.conn.WithContext(ctx).Transaction(fn)
		if err == nil || attempt > c.txRetries || !IsTransient(err) {
			return err
		}
		if c.logg != nil {
			c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
				"attempt": attempt,
				"error":   err.Error(),
			}), "db.tx_retry")
		}
		if wait > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(err, ctx.Err())
			case <-time.After(wait):
			}
			wait *= 2
		} else if ctx.Err() != nil {
			return err
		}
	}
}
