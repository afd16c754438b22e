// Package browser drives the remote service's interactive pages with a
// chromedp-controlled Chrome. Each Session is its own tab under one shared
// browser process, so concurrent items never share a navigable context.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
	"github.com/JakeFAU/ned-harvester/internal/policy/ratelimit"
)

// Config controls the Chrome process and its tabs.
type Config struct {
	UserAgent string
	// NavigationTimeout bounds every single page action. Defaults to 60s.
	NavigationTimeout time.Duration
	Headless          bool
	// ExecPath overrides the Chrome binary; empty uses chromedp's lookup.
	ExecPath string
	Limiter  *ratelimit.Limiter
	Logger   *zap.Logger
}

// Chrome is a running browser process.
type Chrome struct {
	cfg           Config
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// Factory returns a harvest.BrowserFactory starting Chrome with cfg.
func Factory(cfg Config) harvest.BrowserFactory {
	return func(ctx context.Context) (harvest.Browser, error) {
		return NewChrome(ctx, cfg)
	}
}

// NewChrome launches Chrome and waits until it accepts commands.
func NewChrome(ctx context.Context, cfg Config) (*Chrome, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	// The browser outlives the caller's ctx; it is torn down by Close.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(cfg.Logger.Sugar().Debugf),
		chromedp.WithErrorf(cfg.Logger.Sugar().Warnf),
	)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	cfg.Logger.Info("browser started", zap.Bool("headless", cfg.Headless))
	return &Chrome{
		cfg:           cfg,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// NewSession opens a fresh tab.
func (c *Chrome) NewSession(ctx context.Context) (harvest.Session, error) {
	tabCtx, cancel := chromedp.NewContext(c.browserCtx)
	s := &Session{cfg: c.cfg, ctx: tabCtx, cancel: cancel}
	if err := s.attach(ctx, c.setupAction()); err != nil {
		cancel()
		return nil, harvest.Remote("open tab", "", err)
	}
	return s, nil
}

func (c *Chrome) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// Close shuts down every tab and the browser process.
func (c *Chrome) Close() error {
	var err error
	if cerr := chromedp.Cancel(c.browserCtx); cerr != nil && !errors.Is(cerr, context.Canceled) {
		err = fmt.Errorf("close browser: %w", cerr)
	}
	c.browserCancel()
	c.allocCancel()
	return err
}
