package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/learnpay-backend/api/responses"
	"github.com/angelmondragon/learnpay-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/learnpay-backend/pkg/errors"
	"github.com/angelmondragon/learnpay-backend/pkg/logger"
)

const envHeader = "X-LearnPay-Env"

const readyTimeout = 2 * time.Second

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and redis before reporting ready.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP Pinger, redisP Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := map[string]Pinger{"database": dbP, "redis": redisP}
		for name, p := range checks {
			if p == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, name+" not configured"))
				return
			}
			if err := p.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
