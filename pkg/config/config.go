package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Ledger       LedgerConfig
	Orders       OrdersConfig
	Mail         MailConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ORDERPORTAL_APP_ENV" required:"true"`
	Port         string `envconfig:"ORDERPORTAL_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ORDERPORTAL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ORDERPORTAL_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"ORDERPORTAL_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ORDERPORTAL_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN        string `envconfig:"ORDERPORTAL_DB_DSN"`
	SQLitePath string `envconfig:"ORDERPORTAL_SQLITE_PATH" default:"orderportal.db"`

	LegacyHost     string `envconfig:"ORDERPORTAL_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERPORTAL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERPORTAL_DB_USER"`
	LegacyPassword string `envconfig:"ORDERPORTAL_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERPORTAL_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERPORTAL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERPORTAL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERPORTAL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERPORTAL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERPORTAL_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"ORDERPORTAL_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
	TxRetries          int           `envconfig:"ORDERPORTAL_DB_TX_RETRIES" default:"2"`

	// Driver is derived from the feature flags during Load.
	Driver string `ignored:"true"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERPORTAL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ORDERPORTAL_REDIS_ADDR"`
	Password     string        `envconfig:"ORDERPORTAL_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERPORTAL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERPORTAL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERPORTAL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERPORTAL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERPORTAL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERPORTAL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ORDERPORTAL_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ORDERPORTAL_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ORDERPORTAL_JWT_EXPIRATION_MINUTES" required:"true"`
}

// LedgerConfig holds the balance floor and notification thresholds.
type LedgerConfig struct {
	MinBalance          decimal.Decimal `envconfig:"ORDERPORTAL_LEDGER_MIN_BALANCE" default:"0"`
	LowBalanceThreshold decimal.Decimal `envconfig:"ORDERPORTAL_LEDGER_LOW_BALANCE_THRESHOLD" default:"10"`
	MaxDepositRequest   decimal.Decimal `envconfig:"ORDERPORTAL_LEDGER_MAX_DEPOSIT_REQUEST" default:"10000"`
	DepositRequestLimit int             `envconfig:"ORDERPORTAL_LEDGER_DEPOSIT_REQUESTS_PER_HOUR" default:"10"`
}

func (l LedgerConfig) validate() error {
	if l.MinBalance.GreaterThan(decimal.Zero) {
		return fmt.Errorf("%s must not be positive", EnvLedgerMinBalance)
	}
	if !l.MaxDepositRequest.IsPositive() {
		return fmt.Errorf("%s must be positive", EnvLedgerMaxDeposit)
	}
	return nil
}

type OrdersConfig struct {
	EnforceOrderHours bool   `envconfig:"ORDERPORTAL_ORDER_HOURS_ENFORCED" default:"false"`
	Timezone          string `envconfig:"ORDERPORTAL_ORDER_TIMEZONE" default:"UTC"`
}

// Location resolves the configured ordering timezone, falling back to UTC.
func (o OrdersConfig) Location() *time.Location {
	if strings.TrimSpace(o.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type MailConfig struct {
	Topic       string `envconfig:"ORDERPORTAL_MAIL_TOPIC"`
	FromAddress string `envconfig:"ORDERPORTAL_MAIL_FROM" default:"noreply@orderportal.local"`
	AdminEmail  string `envconfig:"ORDERPORTAL_MAIL_ADMIN"`
	SiteURL     string `envconfig:"ORDERPORTAL_SITE_URL" default:"http://localhost:3000"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ORDERPORTAL_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ORDERPORTAL_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"ORDERPORTAL_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"ORDERPORTAL_PUBSUB_DOMAIN_TOPIC" default:"orderportal-domain-events"`
	DomainSubscription string `envconfig:"ORDERPORTAL_PUBSUB_DOMAIN_SUBSCRIPTION"`
	MailTopic          string `envconfig:"ORDERPORTAL_PUBSUB_MAIL_TOPIC" default:"orderportal-mail"`

	ConsumerIdempotencyTTL time.Duration `envconfig:"ORDERPORTAL_PUBSUB_CONSUMER_IDEMPOTENCY_TTL" default:"168h"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"ORDERPORTAL_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"ORDERPORTAL_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"ORDERPORTAL_OUTBOX_MAX_ATTEMPTS" default:"10"`
	PublishTimeout time.Duration `envconfig:"ORDERPORTAL_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
	Retention      time.Duration `envconfig:"ORDERPORTAL_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"ORDERPORTAL_CRON_INTERVAL" default:"1h"`
	NotificationRetention int           `envconfig:"ORDERPORTAL_CRON_NOTIFICATION_RETENTION_DAYS" default:"30"`
	// CleanupEvery spaces out the retention jobs; reconciliation runs every cycle.
	CleanupEvery time.Duration `envconfig:"ORDERPORTAL_CRON_CLEANUP_EVERY" default:"24h"`
	JobTimeout   time.Duration `envconfig:"ORDERPORTAL_CRON_JOB_TIMEOUT" default:"10m"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
		if strings.TrimSpace(db.SQLitePath) == "" {
			return fmt.Errorf("%s is required when sqlite is enabled", EnvSQLitePath)
		}
		return nil
	}
	db.Driver = DriverPostgres
	if db.DSN != "" {
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
