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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Webhooks     WebhooksConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MEDIAVAULT_APP_ENV" required:"true"`
	Port         string `envconfig:"MEDIAVAULT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MEDIAVAULT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MEDIAVAULT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MEDIAVAULT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MEDIAVAULT_DB_DSN"`
	Driver string `envconfig:"MEDIAVAULT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MEDIAVAULT_DB_HOST"`
	LegacyPort     int    `envconfig:"MEDIAVAULT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MEDIAVAULT_DB_USER"`
	LegacyPassword string `envconfig:"MEDIAVAULT_DB_PASSWORD"`
	LegacyName     string `envconfig:"MEDIAVAULT_DB_NAME"`
	LegacySSLMode  string `envconfig:"MEDIAVAULT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MEDIAVAULT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MEDIAVAULT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MEDIAVAULT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MEDIAVAULT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MEDIAVAULT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MEDIAVAULT_REDIS_ADDR"`
	Password     string        `envconfig:"MEDIAVAULT_REDIS_PASSWORD"`
	DB           int           `envconfig:"MEDIAVAULT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MEDIAVAULT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MEDIAVAULT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MEDIAVAULT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MEDIAVAULT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MEDIAVAULT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MEDIAVAULT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MEDIAVAULT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MEDIAVAULT_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MEDIAVAULT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MEDIAVAULT_AUTO_MIGRATE" default:"false"`
}

// WebhooksConfig tunes the webhook delivery core.
type WebhooksConfig struct {
	SigningSecret   string        `envconfig:"MEDIAVAULT_WEBHOOK_SIGNING_SECRET" required:"true"`
	MaxAttempts     int           `envconfig:"MEDIAVAULT_WEBHOOK_MAX_ATTEMPTS" default:"3"`
	BaseRetryDelay  time.Duration `envconfig:"MEDIAVAULT_WEBHOOK_BASE_RETRY_DELAY" default:"1s"`
	PollInterval    time.Duration `envconfig:"MEDIAVAULT_WEBHOOK_POLL_INTERVAL" default:"30s"`
	BatchSize       int           `envconfig:"MEDIAVAULT_WEBHOOK_BATCH_SIZE" default:"10"`
	AttemptTimeout  time.Duration `envconfig:"MEDIAVAULT_WEBHOOK_ATTEMPT_TIMEOUT" default:"30s"`
	RetentionWindow time.Duration `envconfig:"MEDIAVAULT_WEBHOOK_RETENTION_WINDOW" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MEDIAVAULT_CRON_INTERVAL" default:"24h"`
	LockKey  string        `envconfig:"MEDIAVAULT_CRON_LOCK_KEY" default:"cron:leader"`
	LockTTL  time.Duration `envconfig:"MEDIAVAULT_CRON_LOCK_TTL" default:"25h"`
}

func (db *DBConfig) ensureDSN() error {
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
