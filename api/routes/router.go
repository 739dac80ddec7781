package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/learnpay-backend/api/controllers"
	subscriptionControllers "github.com/angelmondragon/learnpay-backend/api/controllers/subscriptions"
	"github.com/angelmondragon/learnpay-backend/api/middleware"
	pkgAuth "github.com/angelmondragon/learnpay-backend/pkg/auth"
	"github.com/angelmondragon/learnpay-backend/pkg/config"
	"github.com/angelmondragon/learnpay-backend/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	verifier pkgAuth.Verifier,
	checkoutService controllers.CheckoutService,
	gate subscriptionControllers.UserResolver,
	subscriptionReader subscriptionControllers.Reader,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.PublicBaseURL(), cfg.App.IsDev()),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(verifier, logg))

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/courses/{courseId}", controllers.CourseCheckout(checkoutService, logg))
			r.Post("/subscriptions", controllers.SubscriptionCheckout(checkoutService, logg))
		})

		r.Get("/subscriptions/current", subscriptionControllers.CurrentSubscription(gate, subscriptionReader, logg))
	})

	return r
}
