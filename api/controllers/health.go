package controllers

import (
	"context"
	"net/http"

	"github.com/mediavault/mediavault-backend/api/responses"
	"github.com/mediavault/mediavault-backend/pkg/config"
	pkgerrors "github.com/mediavault/mediavault-backend/pkg/errors"
	"github.com/mediavault/mediavault-backend/pkg/logger"
)

const envHeader = "X-MediaVault-Env"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the wired dependencies. Nil pingers are skipped so the
// endpoint works for binaries that carry a subset of the stack.
func HealthReady(cfg *config.Config, logg *logger.Logger, db, redis Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		checks := map[string]Pinger{
			"database": db,
			"redis":    redis,
		}
		for name, pinger := range checks {
			if pinger == nil {
				continue
			}
			if err := pinger.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
