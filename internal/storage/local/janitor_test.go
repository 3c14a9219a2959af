package local_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/blogshot/internal/storage/local"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	removed int
	err     error
}

func (f *fakePruner) Prune(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.removed, f.err
}

func (f *fakePruner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestJanitorSweepUsesRetentionCutoff(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	pruner := &fakePruner{removed: 3}
	j := local.NewJanitor(pruner, 24*time.Hour, time.Hour, func() time.Time { return now }, nil)

	require.Equal(t, 3, j.Sweep(context.Background()))
	require.Equal(t, []time.Time{now.Add(-24 * time.Hour)}, pruner.cutoffs)

	pruner.err = errors.New("permission denied")
	pruner.removed = 0
	require.Zero(t, j.Sweep(context.Background()))
}

func TestJanitorRunStopsWithContext(t *testing.T) {
	t.Parallel()

	pruner := &fakePruner{}
	j := local.NewJanitor(pruner, time.Hour, 10*time.Millisecond, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return pruner.calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestJanitorDisabled(t *testing.T) {
	t.Parallel()

	pruner := &fakePruner{}
	local.NewJanitor(pruner, 0, time.Minute, nil, nil).Run(context.Background())
	require.Zero(t, pruner.calls())
}
