package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/orderportal/internal/ledger"
	"github.com/angelmondragon/orderportal/pkg/logger"
	"go.uber.org/multierr"
)

const defaultDriftLimit = 100

type driftFinder interface {
	FindDrift(ctx context.Context, limit int) ([]ledger.Drift, error)
}

type BalanceReconcileJobParams struct {
	Logger *logger.Logger
	Ledger driftFinder
	Limit  int
}

// NewBalanceReconcileJob checks that every stored balance equals the sum of its ledger entries.
// Mismatches are reported, never repaired.
func NewBalanceReconcileJob(params BalanceReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultDriftLimit
	}
	return &balanceReconcileJob{logg: params.Logger, ledger: params.Ledger, limit: limit}, nil
}

type balanceReconcileJob struct {
	logg   *logger.Logger
	ledger driftFinder
	limit  int
}

func (j *balanceReconcileJob) Name() string { return "balance-reconcile" }

func (j *balanceReconcileJob) Run(ctx context.Context) error {
	drifts, err := j.ledger.FindDrift(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("find drift: %w", err)
	}
	var errs error
	for _, drift := range drifts {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"user_id":      drift.UserID.String(),
			"balance":      drift.Balance.StringFixed(2),
			"ledger_total": drift.LedgerTotal.StringFixed(2),
		}), "balance.drift_detected")
		errs = multierr.Append(errs, fmt.Errorf("user %s: balance %s != ledger %s",
			drift.UserID, drift.Balance.StringFixed(2), drift.LedgerTotal.StringFixed(2)))
	}
	if errs == nil {
		j.logg.Info(ctx, "balances reconciled")
	}
	return errs
}
