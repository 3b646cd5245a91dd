package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumasites/lumasites-backend/api/controllers"
	"github.com/lumasites/lumasites-backend/api/middleware"
	"github.com/lumasites/lumasites-backend/internal/adminauth"
	"github.com/lumasites/lumasites-backend/internal/catalog"
	"github.com/lumasites/lumasites-backend/pkg/auth"
	"github.com/lumasites/lumasites-backend/pkg/auth/session"
	"github.com/lumasites/lumasites-backend/pkg/config"
	"github.com/lumasites/lumasites-backend/pkg/logger"
	"github.com/lumasites/lumasites-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs. Nil health pingers are
// skipped; a nil Prometheus gatherer disables /metrics.
type Deps struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             controllers.Pinger
	Redis          *redis.Client
	Storage        controllers.Pinger
	BigQuery       controllers.Pinger
	SessionChecker session.AccessSessionChecker
	AuthService    adminauth.Service
	Catalog        *catalog.Service
	Gatherer       prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger
	svc := deps.Catalog

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": deps.DB,
			"redis":    deps.Redis,
			"storage":  deps.Storage,
			"bigquery": deps.BigQuery,
		}))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginLimit,
	)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, deps.Redis, logg)).Post("/login", controllers.AuthLogin(deps.AuthService, logg))
		r.Post("/refresh", controllers.AuthRefresh(deps.AuthService, logg))
		r.Post("/logout", controllers.AuthLogout(deps.AuthService, logg))
	})

	r.Route("/api/v1/sites/{siteKey}", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.SessionChecker, logg))
		r.Use(middleware.SiteScope(logg))

		r.Route("/entities/{kind}", func(r chi.Router) {
			r.Post("/", controllers.EntityCreate(svc, logg))
			r.Get("/", controllers.EntityList(svc, logg))
			r.Route("/{entityID}", func(r chi.Router) {
				r.Get("/", controllers.EntityGet(svc, logg))
				r.Patch("/", controllers.EntityUpdate(svc, logg))
				r.With(middleware.RequireRole(string(auth.RoleOwner), logg)).Delete("/", controllers.EntityDelete(svc, logg))
				r.Post("/media", controllers.MediaSave(svc, logg))
			})
		})

		r.Route("/saves/{saveID}", func(r chi.Router) {
			r.Get("/progress", controllers.MediaSaveProgress(svc.Registry(), logg))
			r.Post("/cancel", controllers.MediaSaveCancel(svc, logg))
		})
	})

	return r
}
