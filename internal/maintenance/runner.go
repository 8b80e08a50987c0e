package maintenance

import (
	"context"
	"time"

	"anivault/internal/observability"
)

// Runner sweeps on a fixed interval until its context is cancelled.
type Runner struct {
	sweeper  Sweeper
	logger   *observability.Logger
	interval time.Duration
	now      func() time.Time
}

func NewRunner(sweeper Sweeper, logger *observability.Logger, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Runner{
		sweeper:  sweeper,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Run returns nil once ctx is done. Sweep failures are logged and retried on
// the next tick.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

func (r *Runner) sweepOnce(ctx context.Context) {
	deleted, err := r.sweeper.Sweep(ctx, r.now().UTC())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("refresh_token_sweep_failed", map[string]any{"error": err.Error()})
		return
	}
	r.logger.Debug("refresh_token_sweep_completed", map[string]any{"deleted": deleted})
}
