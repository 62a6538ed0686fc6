package config

const (
	EnvPrefix = "ORDERPORTAL"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv     = "ORDERPORTAL_APP_ENV"
	EnvPort       = "ORDERPORTAL_APP_PORT"
	EnvDBDSN      = "ORDERPORTAL_DB_DSN"
	EnvDBHost     = "ORDERPORTAL_DB_HOST"
	EnvDBUser     = "ORDERPORTAL_DB_USER"
	EnvDBName     = "ORDERPORTAL_DB_NAME"
	EnvSQLitePath = "ORDERPORTAL_SQLITE_PATH"
	EnvUseSQLite  = "ORDERPORTAL_USE_SQLITE"
	EnvRedisURL   = "ORDERPORTAL_REDIS_URL"
	EnvJWTSecret  = "ORDERPORTAL_JWT_SECRET"
	EnvJWTIssuer  = "ORDERPORTAL_JWT_ISSUER"
	EnvJWTExpMins = "ORDERPORTAL_JWT_EXPIRATION_MINUTES"

	EnvLedgerMinBalance   = "ORDERPORTAL_LEDGER_MIN_BALANCE"
	EnvLedgerLowThreshold = "ORDERPORTAL_LEDGER_LOW_BALANCE_THRESHOLD"
	EnvLedgerMaxDeposit   = "ORDERPORTAL_LEDGER_MAX_DEPOSIT_REQUEST"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
