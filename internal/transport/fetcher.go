// Package transport downloads blobs (partition results and images) from the
// remote service using a colly collector.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
	"github.com/JakeFAU/ned-harvester/internal/policy/ratelimit"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	// Timeout bounds a single request. Defaults to 60s.
	Timeout time.Duration
	// MaxBodyBytes caps a downloaded body; 0 means unlimited.
	MaxBodyBytes int
	Retry        RetryPolicy
	Limiter      *ratelimit.Limiter
	Logger       *zap.Logger
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// Fetcher implements harvest.Fetcher.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = NewExponentialRetryPolicy(1, 0, 0)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	base := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
		colly.IgnoreRobotsTxt(),
	)
	if cfg.UserAgent != "" {
		base.UserAgent = cfg.UserAgent
	}
	base.WithTransport(newHTTPTransport())
	base.SetRequestTimeout(cfg.Timeout)
	return &Fetcher{cfg: cfg, base: base}
}

// Fetch downloads rawURL, retrying per the configured policy. The body is
// fully buffered; callers still close it.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (harvest.Response, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return harvest.Response{}, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		if err := f.cfg.Limiter.Wait(ctx, rawURL); err != nil {
			return harvest.Response{}, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		resp, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return resp, nil
		}
		if !f.cfg.Retry.ShouldRetry(err, attempt) {
			return harvest.Response{}, harvest.Remote("fetch", rawURL, err)
		}
		wait := f.cfg.Retry.Backoff(attempt)
		f.cfg.Logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return harvest.Response{}, fmt.Errorf("fetch %s: %w", rawURL, ctx.Err())
		case <-time.After(wait):
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (harvest.Response, error) {
	var (
		result   harvest.Response
		fetchErr error
	)
	collector := f.base.Clone()
	// Cancelling ctx aborts the in-flight request, not only the wait for it.
	collector.Context = ctx
	collector.OnResponse(func(r *colly.Response) {
		result = harvest.Response{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        io.NopCloser(bytes.NewReader(append([]byte(nil), r.Body...))),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 && (r.StatusCode < 200 || r.StatusCode >= 300) {
			fetchErr = &StatusError{Code: r.StatusCode}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()
	select {
	case <-ctx.Done():
		return harvest.Response{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return harvest.Response{}, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		if err != nil {
			return harvest.Response{}, fmt.Errorf("colly visit failed: %w", err)
		}
		if result.Body == nil {
			return harvest.Response{}, fmt.Errorf("colly visit %s: no response", rawURL)
		}
		return result, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
