package controllers

import (
	"net/http"

	"go.uber.org/multierr"

	"github.com/Stefan-migo/opticore-backend/api/responses"
	"github.com/Stefan-migo/opticore-backend/pkg/config"
	"github.com/Stefan-migo/opticore-backend/pkg/db"
	"github.com/Stefan-migo/opticore-backend/pkg/errors"
	"github.com/Stefan-migo/opticore-backend/pkg/logger"
	"github.com/Stefan-migo/opticore-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-OptiCore-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings each backing dependency and reports ready only when all
// of them answer. A nil pinger counts as not configured and is skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("X-OptiCore-Env", cfg.App.Env)

		var err error
		if dbP != nil {
			if pingErr := dbP.Ping(ctx); pingErr != nil {
				err = multierr.Append(err, errors.Wrap(errors.CodeDependency, pingErr, "database ping failed"))
			}
		}
		if redisP != nil {
			if pingErr := redisP.Ping(ctx); pingErr != nil {
				err = multierr.Append(err, errors.Wrap(errors.CodeDependency, pingErr, "redis ping failed"))
			}
		}

		if err != nil {
			responses.WriteError(ctx, logg, w, errors.Wrap(errors.CodeDependency, err, "service not ready"))
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
