// Package ratelimit throttles requests to the remote service with one token
// bucket per host, shared by the browser and the blob transport.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration. RequestsPerSecond <= 0 disables
// throttling.
type Config struct {
	RequestsPerSecond float64
	Burst             int
	// Registerer, when set, receives a histogram of time spent waiting.
	Registerer prometheus.Registerer
}

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	delay    *prometheus.HistogramVec
}

// New creates a Limiter.
func New(cfg Config) (*Limiter, error) {
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
	if cfg.Registerer != nil {
		l.delay = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_rate_limit_delay_seconds",
			Help:    "Time spent waiting for a rate limit token, by host.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"host"})
		if err := cfg.Registerer.Register(l.delay); err != nil {
			return nil, fmt.Errorf("register rate limit collector: %w", err)
		}
	}
	return l, nil
}

// Wait blocks until a token is available for rawURL's host.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if l == nil {
		return nil
	}
	host := hostOf(rawURL)
	limiter := l.forHost(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); l.delay != nil && waited > time.Millisecond {
		l.delay.WithLabelValues(host).Observe(waited.Seconds())
	}
	return nil
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = limiter
	}
	return limiter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
