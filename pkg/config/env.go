package config

// EnvPrefix is passed to envconfig; every field carries an explicit name so the
// prefix only matters for fields without one.
const EnvPrefix = "LEARNPAY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv         = "LEARNPAY_APP_ENV"
	EnvPort           = "LEARNPAY_APP_PORT"
	EnvAppBaseURL     = "LEARNPAY_APP_BASE_URL"
	EnvDBDSN          = "LEARNPAY_DB_DSN"
	EnvDBHost         = "LEARNPAY_DB_HOST"
	EnvDBUser         = "LEARNPAY_DB_USER"
	EnvDBName         = "LEARNPAY_DB_NAME"
	EnvRedisURL       = "LEARNPAY_REDIS_URL"
	EnvClerkIssuer    = "LEARNPAY_CLERK_ISSUER"
	EnvStripeAPIKey   = "LEARNPAY_STRIPE_API_KEY"
	EnvStripeMonthly  = "LEARNPAY_STRIPE_MONTHLY_PRICE_ID"
	EnvStripeYearly   = "LEARNPAY_STRIPE_YEARLY_PRICE_ID"
	EnvRateLimitLimit = "LEARNPAY_CHECKOUT_RATE_LIMIT_LIMIT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
