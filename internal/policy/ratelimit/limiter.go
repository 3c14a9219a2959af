// Package ratelimit paces navigations per host with token buckets so a batch
// of posts on one blog platform does not hammer it.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/blogshot/internal/metrics"
)

// Config holds pacing configuration.
type Config struct {
	// PerHostQPS is the sustained navigation rate per host. Zero or negative
	// disables pacing.
	PerHostQPS float64 `mapstructure:"per_host_qps"`
	// Burst is the number of navigations allowed back to back.
	Burst int `mapstructure:"burst"`
}

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.PerHostQPS)
	if cfg.PerHostQPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    r,
		burst:    burst,
	}
}

// Wait blocks until the host of rawURL may be navigated, respecting ctx.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if l.limit == rate.Inf {
		return nil
	}
	host := metrics.SanitizeSite(rawURL)
	l.mu.Lock()
	limiter, exists := l.limiters[host]
	if !exists {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacing wait for %s: %w", host, err)
	}
	// Immediate grants are not delays.
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObservePacingDelay(host, waited)
	}
	return nil
}

// Hosts returns the number of hosts with an active bucket.
func (l *Limiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// String describes the configured rate, for startup logs.
func (l *Limiter) String() string {
	if l.limit == rate.Inf {
		return "unlimited"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%.2f/s burst %d", float64(l.limit), l.burst)
	return b.String()
}
