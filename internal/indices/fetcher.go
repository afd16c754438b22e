// Package indices downloads the result table of every query partition. Each
// partition moves through NOT_STARTED, DISPATCH_MARKER_PRESENT and COMPLETED;
// the marker holds the remote job's URL so an interrupted run resumes waiting
// instead of resubmitting.
package indices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
	"github.com/JakeFAU/ned-harvester/internal/partition"
	"github.com/JakeFAU/ned-harvester/internal/pool"
	"github.com/JakeFAU/ned-harvester/internal/storage"
)

// DefaultFormURL is the remote query-by-parameters form.
const DefaultFormURL = "https://ned.ipac.caltech.edu/byparams"

// Config tunes the state machine.
type Config struct {
	FormURL string
	// PollAttempts is the completion-polling ceiling. Defaults to 120.
	PollAttempts int
	// PollTimeout bounds each polling attempt. Defaults to 30s.
	PollTimeout time.Duration
	Logger      *zap.Logger
	Clock       harvest.Clock
}

// Fetcher drives partitions to completion.
type Fetcher struct {
	cfg     Config
	browser harvest.Browser
	blobs   harvest.Fetcher
	store   harvest.Store
	logger  *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, browser harvest.Browser, blobs harvest.Fetcher, store harvest.Store) *Fetcher {
	if cfg.FormURL == "" {
		cfg.FormURL = DefaultFormURL
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 120
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = harvest.SystemClock{}
	}
	return &Fetcher{
		cfg:     cfg,
		browser: browser,
		blobs:   blobs,
		store:   store,
		logger:  cfg.Logger.Named("indices"),
	}
}

// Supplier turns an enumerator into pool work.
func (f *Fetcher) Supplier(enum *partition.Enumerator) pool.Supplier {
	return pool.Map(enum.Next, f.Item)
}

// Item wraps one partition as a pool item.
func (f *Fetcher) Item(p harvest.Partition) pool.Item {
	return pool.Item{
		Key: p.Key(),
		Run: func(ctx context.Context) (pool.Outcome, error) {
			return f.Fetch(ctx, p)
		},
	}
}

// Fetch brings p to COMPLETED. A partition whose result already exists is
// skipped without any remote call.
func (f *Fetcher) Fetch(ctx context.Context, p harvest.Partition) (pool.Outcome, error) {
	opt, err := partition.Lookup(p.Category)
	if err != nil {
		return pool.Completed, err
	}
	key := p.Key()
	resultKey, markerKey := storage.ResultKey(key), storage.MarkerKey(key)
	logger := f.logger.With(zap.String("key", key))

	done, err := f.store.Exists(ctx, resultKey)
	if err != nil {
		return pool.Completed, err
	}
	if done {
		return pool.Skipped, nil
	}

	dispatched, err := f.store.Exists(ctx, markerKey)
	if err != nil {
		return pool.Completed, err
	}
	if dispatched {
		logger.Info("resuming dispatched request")
		err := f.resume(ctx, key, markerKey, resultKey)
		if err == nil {
			return pool.Completed, nil
		}
		if ctx.Err() != nil {
			return pool.Completed, err
		}
		logger.Warn("dispatched request could not be resumed; resubmitting",
			zap.Error(fmt.Errorf("%w: %w", harvest.ErrCorruptDispatchMarker, err)))
		if err := f.store.Delete(ctx, markerKey); err != nil {
			return pool.Completed, err
		}
	}

	if err := f.submit(ctx, p, opt, markerKey, resultKey); err != nil {
		return pool.Completed, err
	}
	return pool.Completed, nil
}

func (f *Fetcher) resume(ctx context.Context, key, markerKey, resultKey string) error {
	raw, err := f.store.ReadAll(ctx, markerKey)
	if err != nil {
		return err
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return fmt.Errorf("%w: empty marker", harvest.ErrCorruptDispatchMarker)
	}

	session, err := f.browser.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer closeQuietly(session)

	if err := session.Navigate(ctx, token); err != nil {
		return err
	}
	return f.complete(ctx, session, key, markerKey, resultKey)
}

func (f *Fetcher) submit(ctx context.Context, p harvest.Partition, opt partition.Option, markerKey, resultKey string) error {
	key := p.Key()
	session, err := f.browser.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer closeQuietly(session)

	if err := session.Navigate(ctx, f.cfg.FormURL); err != nil {
		return err
	}
	if err := fillForm(ctx, session, p, opt); err != nil {
		return err
	}
	job, err := session.ClickAndFollow(ctx, submitSelector)
	if err != nil {
		return fmt.Errorf("submit query: %w", err)
	}
	defer closeQuietly(job)

	token, err := job.Location(ctx)
	if err != nil {
		return err
	}
	if err := f.store.WriteAll(ctx, markerKey, []byte(token), "text/plain; charset=utf-8"); err != nil {
		return err
	}
	f.logger.Info("request dispatched", zap.String("key", key), zap.String("job_url", token))

	return f.complete(ctx, job, key, markerKey, resultKey)
}

// complete waits for the job, stores its result, and only then removes the
// marker.
func (f *Fetcher) complete(ctx context.Context, job harvest.Session, key, markerKey, resultKey string) error {
	dataURL, err := f.await(ctx, job, key)
	if err != nil {
		return err
	}
	if err := f.download(ctx, dataURL, resultKey); err != nil {
		return err
	}
	return f.store.Delete(ctx, markerKey)
}

// await polls for the result link and returns its target.
func (f *Fetcher) await(ctx context.Context, job harvest.Session, key string) (string, error) {
	for attempt := 1; attempt <= f.cfg.PollAttempts; attempt++ {
		found, err := job.WaitVisible(ctx, resultLinkSelector, f.cfg.PollTimeout)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if err != nil || !found {
			// Visibility detection is unreliable on this page; look directly.
			if evalErr := job.Evaluate(ctx, presenceOf(resultLinkSelector), &found); evalErr != nil {
				found = false
			}
		}
		if found {
			var href string
			if err := job.Evaluate(ctx, hrefOf(resultLinkSelector), &href); err != nil {
				return "", err
			}
			if href != "" {
				return href, nil
			}
		}
		f.logger.Debug("job not complete", zap.String("key", key), zap.Int("attempt", attempt))
	}
	f.capture(ctx, job, key)
	return "", harvest.Remote("await job", key, harvest.ErrJobTimeout)
}

func (f *Fetcher) download(ctx context.Context, dataURL, resultKey string) error {
	resp, err := f.blobs.Fetch(ctx, dataURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := f.store.Write(ctx, resultKey, resp.Body, "text/plain; charset=utf-8"); err != nil {
		return err
	}
	return nil
}

// capture stores a diagnostic screenshot; failures are only logged.
func (f *Fetcher) capture(ctx context.Context, s harvest.Session, key string) {
	png, err := s.Screenshot(ctx)
	if err != nil {
		f.logger.Warn("diagnostic screenshot failed", zap.String("key", key), zap.Error(err))
		return
	}
	shotKey := storage.ScreenshotKey(f.cfg.Clock.Now())
	if err := f.store.WriteAll(ctx, shotKey, png, "image/png"); err != nil {
		f.logger.Warn("diagnostic screenshot not stored", zap.String("key", key), zap.Error(err))
		return
	}
	f.logger.Warn("job timed out", zap.String("key", key), zap.String("screenshot", shotKey))
}

func closeQuietly(s harvest.Session) {
	if s != nil {
		_ = s.Close()
	}
}
