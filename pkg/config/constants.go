package config

// EnvPrefix namespaces every MediaVault environment variable.
const EnvPrefix = "mediavault"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv        = "MEDIAVAULT_APP_ENV"
	EnvPort          = "MEDIAVAULT_APP_PORT"
	EnvDBDSN         = "MEDIAVAULT_DB_DSN"
	EnvDBHost        = "MEDIAVAULT_DB_HOST"
	EnvDBUser        = "MEDIAVAULT_DB_USER"
	EnvDBName        = "MEDIAVAULT_DB_NAME"
	EnvRedisURL      = "MEDIAVAULT_REDIS_URL"
	EnvJWTSecret     = "MEDIAVAULT_JWT_SECRET"
	EnvJWTIssuer     = "MEDIAVAULT_JWT_ISSUER"
	EnvJWTExpMins    = "MEDIAVAULT_JWT_EXPIRATION_MINUTES"
	EnvWebhookSecret = "MEDIAVAULT_WEBHOOK_SIGNING_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
