package local

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner deletes sessions older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// Janitor periodically evicts sessions older than its retention.
type Janitor struct {
	pruner    Pruner
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewJanitor creates a Janitor. now defaults to time.Now.
func NewJanitor(pruner Pruner, retention, interval time.Duration, now func() time.Time, logger *zap.Logger) *Janitor {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{pruner: pruner, retention: retention, interval: interval, now: now, logger: logger}
}

// Sweep runs one eviction pass.
func (j *Janitor) Sweep(ctx context.Context) int {
	cutoff := j.now().Add(-j.retention)
	removed, err := j.pruner.Prune(ctx, cutoff)
	if err != nil {
		j.logger.Warn("session prune failed", zap.Time("cutoff", cutoff), zap.Error(err))
	}
	if removed > 0 {
		j.logger.Info("expired sessions removed", zap.Int("count", removed), zap.Time("cutoff", cutoff))
	}
	return removed
}

// Run sweeps immediately and then every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	if j.retention <= 0 || j.interval <= 0 {
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	j.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}
