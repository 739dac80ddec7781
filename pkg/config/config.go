package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App               AppConfig
	Service           ServiceConfig
	DB                DBConfig
	Redis             RedisConfig
	Clerk             ClerkConfig
	Stripe            StripeConfig
	CheckoutRateLimit CheckoutRateLimitConfig
	FeatureFlags      FeatureFlagsConfig
	Cron              CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.App.validateBaseURL(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LEARNPAY_APP_ENV" required:"true"`
	Port         string `envconfig:"LEARNPAY_APP_PORT" required:"true"`
	BaseURL      string `envconfig:"LEARNPAY_APP_BASE_URL" required:"true"`
	LogLevel     string `envconfig:"LEARNPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LEARNPAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// PublicBaseURL returns the base URL without a trailing slash.
func (a AppConfig) PublicBaseURL() string {
	return strings.TrimRight(strings.TrimSpace(a.BaseURL), "/")
}

func (a AppConfig) validateBaseURL() error {
	raw := a.PublicBaseURL()
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", EnvAppBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an absolute http(s) url", EnvAppBaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", EnvAppBaseURL)
	}
	return nil
}

type ServiceConfig struct {
	Kind string `envconfig:"LEARNPAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LEARNPAY_DB_DSN"`
	Driver string `envconfig:"LEARNPAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LEARNPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"LEARNPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LEARNPAY_DB_USER"`
	LegacyPassword string `envconfig:"LEARNPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"LEARNPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"LEARNPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LEARNPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LEARNPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LEARNPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEARNPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"LEARNPAY_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LEARNPAY_REDIS_URL"`
	Address      string        `envconfig:"LEARNPAY_REDIS_ADDR"`
	Password     string        `envconfig:"LEARNPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEARNPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEARNPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEARNPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEARNPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEARNPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LEARNPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// ClerkConfig points the identity verifier at the Clerk frontend API.
type ClerkConfig struct {
	Issuer string `envconfig:"LEARNPAY_CLERK_ISSUER" required:"true"`
}

// JWKSURL returns the well-known key set location for the issuer.
func (c ClerkConfig) JWKSURL() string {
	return strings.TrimRight(strings.TrimSpace(c.Issuer), "/") + "/.well-known/jwks.json"
}

type StripeConfig struct {
	APIKey         string `envconfig:"LEARNPAY_STRIPE_API_KEY" required:"true"`
	Env            string `envconfig:"LEARNPAY_STRIPE_ENV" default:"test"`
	Currency       string `envconfig:"LEARNPAY_STRIPE_CURRENCY" default:"usd"`
	MonthlyPriceID string `envconfig:"LEARNPAY_STRIPE_MONTHLY_PRICE_ID"`
	YearlyPriceID  string `envconfig:"LEARNPAY_STRIPE_YEARLY_PRICE_ID"`

	MaxNetworkRetries int64 `envconfig:"LEARNPAY_STRIPE_MAX_NETWORK_RETRIES" default:"2"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// CheckoutRateLimitConfig bounds how many checkout sessions a user may open per window.
type CheckoutRateLimitConfig struct {
	Window time.Duration `envconfig:"LEARNPAY_CHECKOUT_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int           `envconfig:"LEARNPAY_CHECKOUT_RATE_LIMIT_LIMIT" default:"5"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LEARNPAY_AUTO_MIGRATE" default:"false"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"LEARNPAY_CRON_INTERVAL" default:"24h"`
	SweepGrace time.Duration `envconfig:"LEARNPAY_CRON_SWEEP_GRACE" default:"720h"`
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
