package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/lumasites/lumasites-backend/api/responses"
	"github.com/lumasites/lumasites-backend/pkg/config"
	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
	"github.com/lumasites/lumasites-backend/pkg/logger"
)

const envHeader = "X-LumaSites-Env"

// Pinger is any dependency that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every named dependency with a short deadline and reports
// per-dependency status. Any failure flips the endpoint to 503.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := map[string]string{}
		healthy := true
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				healthy = false
				status[name] = "unavailable"
				if logg != nil {
					depCtx := logg.WithField(ctx, "dependency", name)
					logg.Warn(depCtx, "readiness ping failed")
				}
				continue
			}
			status[name] = "ok"
		}

		if !healthy {
			err := pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(status)
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
