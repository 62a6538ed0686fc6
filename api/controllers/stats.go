package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/orderportal/api/middleware"
	"github.com/angelmondragon/orderportal/api/responses"
	"github.com/angelmondragon/orderportal/api/validators"
	"github.com/angelmondragon/orderportal/internal/stats"
	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
	"github.com/angelmondragon/orderportal/pkg/logger"
	"github.com/angelmondragon/orderportal/pkg/types"
)

var timeNowUTC = func() time.Time {
	return time.Now().UTC()
}

// AdminStatsOverview returns the dashboard headline numbers.
func AdminStatsOverview(svc stats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		overview, err := svc.Overview(r.Context(), actor, timeNowUTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, overview)
	}
}

func AdminSalesStats(svc stats.Service, logg *logger.Logger) http.HandlerFunc {
	return rangeReport(logg, func(ctx context.Context, actor types.Actor, rng stats.Range) (any, error) {
		return svc.Sales(ctx, actor, rng)
	})
}

func AdminProductStats(svc stats.Service, logg *logger.Logger) http.HandlerFunc {
	return rangeReport(logg, func(ctx context.Context, actor types.Actor, rng stats.Range) (any, error) {
		return svc.Products(ctx, actor, rng)
	})
}

func AdminUserStats(svc stats.Service, logg *logger.Logger) http.HandlerFunc {
	return rangeReport(logg, func(ctx context.Context, actor types.Actor, rng stats.Range) (any, error) {
		return svc.Users(ctx, actor, rng)
	})
}

// MyStats returns the caller's spending profile.
func MyStats(svc stats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		overview, err := svc.UserOverview(r.Context(), actor, actor.UserID, timeNowUTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, overview)
	}
}

// AdminUserOverview returns another user's spending profile.
func AdminUserOverview(svc stats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		overview, err := svc.UserOverview(r.Context(), actor, userID, timeNowUTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, overview)
	}
}

func rangeReport(logg *logger.Logger, run func(ctx context.Context, actor types.Actor, rng stats.Range) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rng, err := resolveStatsRange(r, timeNowUTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := run(r.Context(), actor, rng)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// resolveStatsRange reads either an explicit from/to pair (RFC 3339) or a preset
// (7d, 30d, 90d; default 30d) ending now.
func resolveStatsRange(r *http.Request, now time.Time) (stats.Range, error) {
	query := r.URL.Query()
	from := strings.TrimSpace(query.Get("from"))
	to := strings.TrimSpace(query.Get("to"))

	if from != "" || to != "" {
		if from == "" || to == "" {
			return stats.Range{}, pkgerrors.New(pkgerrors.CodeValidation, "from and to must be provided together")
		}
		start, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return stats.Range{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid from timestamp")
		}
		end, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return stats.Range{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid to timestamp")
		}
		rng := stats.Range{Start: start.UTC(), End: end.UTC()}
		return rng, stats.ValidateRange(rng)
	}

	days, ok := presetDays(strings.TrimSpace(query.Get("preset")))
	if !ok {
		return stats.Range{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid preset").
			WithDetails(map[string]any{"allowed": []string{"7d", "30d", "90d"}})
	}
	return stats.Range{Start: now.AddDate(0, 0, -days), End: now}, nil
}

func presetDays(value string) (int, bool) {
	switch strings.ToLower(value) {
	case "7d":
		return 7, true
	case "", "30d":
		return 30, true
	case "90d":
		return 90, true
	default:
		return 0, false
	}
}
