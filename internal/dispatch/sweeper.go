package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mikoto-dev/banchod/internal/session"
)

// Sweeper evicts sessions that stop polling. One sweep runs at a time:
// Run's loop is serial, so a slow sweep delays the next tick instead of
// overlapping it.
type Sweeper struct {
	log      *zap.Logger
	registry *session.Registry
	interval time.Duration
	timeout  time.Duration
}

func NewSweeper(log *zap.Logger, registry *session.Registry, interval, timeout time.Duration) *Sweeper {
	return &Sweeper{
		log:      log.Named("sweeper"),
		registry: registry,
		interval: interval,
		timeout:  timeout,
	}
}

// Run sweeps until the context is cancelled.
func (sw *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(sw.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			sw.Sweep()
		}
	}
}

// Sweep scans active sessions and removes any whose last poll is older
// than the timeout window.
func (sw *Sweeper) Sweep() {
	cutoff := time.Now().Add(-sw.timeout)
	for _, s := range sw.registry.Active() {
		if s.LastSeen().Before(cutoff) {
			s.SetStatus(session.StatusTimedOut)
			sw.registry.Remove(s.ID)
			sw.log.Info("idle session evicted",
				zap.Int32("user_id", s.ID), zap.String("name", s.Name))
		}
	}
}
