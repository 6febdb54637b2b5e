package reservation

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically reclaims expired reservations so abandoned checkouts
// do not leak apparent stock. Nothing in the request path waits on it; it
// runs alongside checkout and commit without coordination because the sweep
// only deletes rows that are already past their expiry.
type Sweeper struct {
	manager  Manager
	interval time.Duration
	lg       *zap.Logger
}

// NewSweeper creates a Sweeper that runs SweepExpired every interval.
func NewSweeper(manager Manager, interval time.Duration, lg *zap.Logger) *Sweeper {
	return &Sweeper{manager: manager, interval: interval, lg: lg}
}

// Run blocks, sweeping on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.manager.SweepExpired(ctx)
			if err != nil {
				s.lg.Error("reservation sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.lg.Info("reclaimed expired reservations", zap.Int64("count", n))
			}
		}
	}
}
