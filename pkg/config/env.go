package config

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverSQLite     = "sqlite"
	defaultSQLiteDSN = "file:captures.db?_busy_timeout=5000&_foreign_keys=on"
)

const (
	EnvAppEnv       = "CAPTURES_APP_ENV"
	EnvPort         = "CAPTURES_APP_PORT"
	EnvLogFormat    = "CAPTURES_LOG_FORMAT"
	EnvDBDSN        = "CAPTURES_DB_DSN"
	EnvDBDriver     = "CAPTURES_DB_DRIVER"
	EnvDBHost       = "CAPTURES_DB_HOST"
	EnvDBPort       = "CAPTURES_DB_PORT"
	EnvDBUser       = "CAPTURES_DB_USER"
	EnvDBPassword   = "CAPTURES_DB_PASSWORD"
	EnvDBName       = "CAPTURES_DB_NAME"
	EnvUseSQLite    = "CAPTURES_USE_SQLITE"
	EnvRedisURL     = "CAPTURES_REDIS_URL"
	EnvJWTSecret    = "CAPTURES_JWT_SECRET"
	EnvJWTIssuer    = "CAPTURES_JWT_ISSUER"
	EnvGCPProjectID = "CAPTURES_GCP_PROJECT_ID"
	EnvLikeLimit    = "CAPTURES_RATE_LIMIT_LIKE_LIMIT"
	EnvCronInterval = "CAPTURES_CRON_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
