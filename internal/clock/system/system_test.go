// Package system exercises the clock adapters.
package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestClockNowUTC ensures the clock returns UTC timestamps.
func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after))
}

// TestFixedAdvance checks the manual clock only moves when told to.
func TestFixedAdvance(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	clk := NewFixed(start)
	require.Equal(t, start, clk.Now())
	require.Equal(t, start, clk.Now())

	clk.Advance(1500 * time.Millisecond)
	require.Equal(t, start.Add(1500*time.Millisecond), clk.Now())
}
