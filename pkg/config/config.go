package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	RateLimit    RateLimitConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CAPTURES_APP_ENV" required:"true"`
	Port         string `envconfig:"CAPTURES_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CAPTURES_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"CAPTURES_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"CAPTURES_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"CAPTURES_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CAPTURES_DB_DSN"`
	Driver string `envconfig:"CAPTURES_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CAPTURES_DB_HOST"`
	LegacyPort     int    `envconfig:"CAPTURES_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CAPTURES_DB_USER"`
	LegacyPassword string `envconfig:"CAPTURES_DB_PASSWORD"`
	LegacyName     string `envconfig:"CAPTURES_DB_NAME"`
	LegacySSLMode  string `envconfig:"CAPTURES_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CAPTURES_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CAPTURES_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CAPTURES_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CAPTURES_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"CAPTURES_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CAPTURES_REDIS_URL"`
	Address      string        `envconfig:"CAPTURES_REDIS_ADDR"`
	Password     string        `envconfig:"CAPTURES_REDIS_PASSWORD"`
	DB           int           `envconfig:"CAPTURES_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CAPTURES_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CAPTURES_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CAPTURES_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CAPTURES_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CAPTURES_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string        `envconfig:"CAPTURES_JWT_SECRET"`
	Issuer            string        `envconfig:"CAPTURES_JWT_ISSUER" default:"captures-identity"`
	ExpirationMinutes int           `envconfig:"CAPTURES_JWT_EXPIRATION_MINUTES" default:"60"`
	Leeway            time.Duration `envconfig:"CAPTURES_JWT_LEEWAY" default:"30s"`
}

// Validate ensures the API has what it needs to verify identity tokens.
func (j JWTConfig) Validate() error {
	if strings.TrimSpace(j.Secret) == "" {
		return fmt.Errorf("%s is required", EnvJWTSecret)
	}
	if strings.TrimSpace(j.Issuer) == "" {
		return fmt.Errorf("%s is required", EnvJWTIssuer)
	}
	return nil
}

// TokenTTL returns the access token lifetime.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CAPTURES_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CAPTURES_AUTO_MIGRATE" default:"false"`
}

type RateLimitConfig struct {
	LikeWindow     time.Duration `envconfig:"CAPTURES_RATE_LIMIT_LIKE_WINDOW" default:"1m"`
	LikeLimit      int           `envconfig:"CAPTURES_RATE_LIMIT_LIKE_LIMIT" default:"60"`
	DownloadWindow time.Duration `envconfig:"CAPTURES_RATE_LIMIT_DOWNLOAD_WINDOW" default:"1m"`
	DownloadLimit  int           `envconfig:"CAPTURES_RATE_LIMIT_DOWNLOAD_LIMIT" default:"30"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"CAPTURES_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CAPTURES_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CAPTURES_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CAPTURES_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ModerationTopic        string `envconfig:"CAPTURES_PUBSUB_MODERATION_TOPIC" default:"capture-moderation-events"`
	ModerationSubscription string `envconfig:"CAPTURES_PUBSUB_MODERATION_SUBSCRIPTION"`
	OrderedPublishing      bool   `envconfig:"CAPTURES_PUBSUB_ORDERED_PUBLISHING" default:"true"`
}

type BigQueryConfig struct {
	Dataset        string `envconfig:"CAPTURES_BIGQUERY_DATASET" default:"captures"`
	DownloadsTable string `envconfig:"CAPTURES_BIGQUERY_DOWNLOADS_TABLE" default:"capture_downloads"`
	CreateTable    bool   `envconfig:"CAPTURES_BIGQUERY_CREATE_TABLE" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"CAPTURES_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"CAPTURES_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"CAPTURES_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"CAPTURES_OUTBOX_RETENTION" default:"720h"`
	DLQRetention   time.Duration `envconfig:"CAPTURES_OUTBOX_DLQ_RETENTION" default:"2160h"`
	PruneChunk     int           `envconfig:"CAPTURES_OUTBOX_PRUNE_CHUNK" default:"1000"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"CAPTURES_CRON_INTERVAL" default:"5m"`
	LockTTL             time.Duration `envconfig:"CAPTURES_CRON_LOCK_TTL" default:"4m"`
	JobTimeout          time.Duration `envconfig:"CAPTURES_CRON_JOB_TIMEOUT" default:"2m"`
	DownloadExportBatch int           `envconfig:"CAPTURES_CRON_DOWNLOAD_EXPORT_BATCH" default:"500"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, DriverSQLite) {
		db.DSN = defaultSQLiteDSN
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
