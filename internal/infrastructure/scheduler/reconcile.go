package scheduler

import (
	"context"
	"time"

	salesvc "tokenshare-backend/internal/application/sale"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// LedgerReconciler periodically re-submits unconfirmed token creations.
type LedgerReconciler struct {
	Sales    *salesvc.Service
	Batch    int
	Schedule string
	// PassTimeout bounds one pass; zero means five minutes.
	PassTimeout time.Duration
}

// RunOnce performs a single reconciliation pass.
func (r *LedgerReconciler) RunOnce(ctx context.Context) (salesvc.ReconcileResult, error) {
	timeout := r.PassTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := r.Sales.ReconcileLedger(ctx, r.Batch)
	if err != nil {
		log.Error().Err(err).Msg("ledger reconciliation failed")
	}
	return res, err
}

// Start registers the pass on Schedule and starts the cron runner. Overlapping
// passes are skipped. Stop the returned runner on shutdown.
func (r *LedgerReconciler) Start(ctx context.Context) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(r.Schedule, func() {
		_, _ = r.RunOnce(ctx)
	}); err != nil {
		return nil, err
	}
	c.Start()
	log.Info().Str("schedule", r.Schedule).Int("batch", r.Batch).Msg("ledger reconciler started")
	return c, nil
}
