package config

const EnvPrefix = "LEADENGINE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	NotifyDriverLog    = "log"
	NotifyDriverRedis  = "redis"
	NotifyDriverPubSub = "pubsub"
)

const (
	EnvAppEnv        = "LEADENGINE_APP_ENV"
	EnvPort          = "LEADENGINE_APP_PORT"
	EnvDBDSN         = "LEADENGINE_DB_DSN"
	EnvDBHost        = "LEADENGINE_DB_HOST"
	EnvDBUser        = "LEADENGINE_DB_USER"
	EnvDBName        = "LEADENGINE_DB_NAME"
	EnvRedisURL      = "LEADENGINE_REDIS_URL"
	EnvJWTSecret     = "LEADENGINE_JWT_SECRET"
	EnvJWTIssuer     = "LEADENGINE_JWT_ISSUER"
	EnvUseSQLite     = "LEADENGINE_USE_SQLITE"
	EnvInactivity    = "LEADENGINE_INACTIVITY_DAYS"
	EnvExtensionDays = "LEADENGINE_EXTENSION_DAYS"
	EnvNotifyDriver  = "LEADENGINE_NOTIFY_DRIVER"
	EnvCandidateTerm = "LEADENGINE_CANDIDATES_TERMS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

const defaultSQLiteDSN = "file:leadengine.db?cache=shared&_busy_timeout=5000"
