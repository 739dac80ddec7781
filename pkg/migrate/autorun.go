package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/learnpay-backend/pkg/config"
	"github.com/angelmondragon/learnpay-backend/pkg/db"
	"github.com/angelmondragon/learnpay-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot when running in dev with
// the auto-migrate flag set. It is a no-op everywhere else.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	runner, err := NewRunner(sqlDB, Embedded(), logg)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "applying schema migrations (dev auto-migrate)")
	return runner.Up(ctx)
}
