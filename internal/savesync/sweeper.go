package savesync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/isle-dino-bot/internal/obslog"
)

type Sweepable interface {
	SweepStale(ctx context.Context) (int, error)
}

// Sweeper periodically expires staged saves older than the stale threshold,
// so saves abandoned by a crash or a lost UI timer do not linger.
type Sweeper struct {
	pending  Sweepable
	interval time.Duration
}

func NewSweeper(pending Sweepable, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{pending: pending, interval: interval}
}

// Run sweeps once at start and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	obslog.L().Info("pending_sweeper_started", zap.Duration("interval", s.interval))
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			obslog.L().Info("pending_sweeper_stopped")
			return nil
		case <-t.C:
			s.sweep(ctx)
		}
	}
}

// RunNow performs one sweep and returns the number of expired saves.
func (s *Sweeper) RunNow(ctx context.Context) (int, error) {
	return s.pending.SweepStale(ctx)
}

func (s *Sweeper) sweep(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := s.RunNow(sctx)
	if err != nil {
		obslog.L().Warn("pending_sweep_failed", zap.Error(err))
		return
	}
	if n > 0 {
		obslog.L().Info("pending_swept", zap.Int("rows", n))
	}
}
