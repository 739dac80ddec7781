package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/event"
	"github.com/stripe/stripe-go/v84/subscription"

	"github.com/angelmondragon/learnpay-backend/pkg/config"
	"github.com/angelmondragon/learnpay-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Secret and restricted keys carry their mode in the prefix.
var keyPrefixes = map[string][]string{
	testEnv: {"sk_test_", "rk_test_"},
	liveEnv: {"sk_live_", "rk_live_"},
}

// Client talks to Stripe with its own key and backend; the package-level
// stripe.Key is never touched.
type Client struct {
	sessions      *session.Client
	events        *event.Client
	subscriptions *subscription.Client
	environment   string
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
	}
	if logg != nil {
		backendCfg.LeveledLogger = &leveledLogger{ctx: ctx, logg: logg}
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe client initialized")
	}
	return &Client{
		sessions:      &session.Client{B: backend, Key: apiKey},
		events:        &event.Client{B: backend, Key: apiKey},
		subscriptions: &subscription.Client{B: backend, Key: apiKey},
		environment:   env,
	}, nil
}

// Environment is "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		return testEnv, nil
	}
	if _, ok := keyPrefixes[env]; !ok {
		return "", errInvalidStripeEnv
	}
	return env, nil
}

func validateAPIKey(env, key string) error {
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return errInvalidStripeEnv
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return nil
		}
	}
	return fmt.Errorf("stripe environment %q requires a key starting with %s", env, strings.Join(prefixes, " or "))
}

// leveledLogger forwards stripe-go's request diagnostics; debug and info
// chatter is demoted to debug.
type leveledLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (l *leveledLogger) Debugf(format string, v ...any) {
	l.logg.Debug(l.ctx, "stripe: "+fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Infof(format string, v ...any) {
	l.logg.Debug(l.ctx, "stripe: "+fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Warnf(format string, v ...any) {
	l.logg.Warn(l.ctx, "stripe: "+fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Errorf(format string, v ...any) {
	l.logg.Error(l.ctx, "stripe: "+fmt.Sprintf(format, v...), nil)
}
