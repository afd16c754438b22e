package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
)

// popupTimeout bounds how long ClickAndFollow waits for the opened page.
const popupTimeout = 30 * time.Second

// Session is one browser tab.
type Session struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
}

var _ harvest.Session = (*Session)(nil)

// run executes actions on the tab, bounded by the navigation timeout and
// aborted when the caller's ctx ends.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	return s.runWithin(ctx, s.cfg.NavigationTimeout, actions...)
}

// attach performs the first Run on the tab. chromedp binds the tab's event
// loop to the ctx of that call, so it runs on the tab's own ctx; the timeout
// and the caller's ctx tear the tab down instead.
func (s *Session) attach(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timer := time.AfterFunc(s.cfg.NavigationTimeout, s.cancel)
	defer timer.Stop()
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()
	if err := chromedp.Run(s.ctx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !timer.Stop() {
			return fmt.Errorf("attach within %s: %w", s.cfg.NavigationTimeout, context.DeadlineExceeded)
		}
		return err
	}
	return nil
}

func (s *Session) runWithin(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Navigate loads url and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.cfg.Limiter.Wait(ctx, url); err != nil {
		return err
	}
	if err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return harvest.Remote("navigate", url, err)
	}
	return nil
}

// Location returns the tab's current URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, chromedp.Location(&location)); err != nil {
		return "", harvest.Remote("location", "", err)
	}
	return location, nil
}

// Fill replaces the value of an input by typing into it.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	if err := s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	); err != nil {
		return harvest.Remote("fill", selector, err)
	}
	return nil
}

// Select chooses value in a select element and fires its change event.
func (s *Session) Select(ctx context.Context, selector, value string) error {
	script, err := selectScript(selector, value)
	if err != nil {
		return err
	}
	var found bool
	if err := s.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return harvest.Remote("select", selector, err)
	}
	if !found {
		return harvest.Remote("select", selector, fmt.Errorf("no element matches %q", selector))
	}
	return nil
}

// Click clicks the first visible element matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return harvest.Remote("click", selector, err)
	}
	return nil
}

// ClickAndFollow clicks selector and attaches to the page that this tab
// opened in response. Only targets whose opener is this tab are considered,
// and the listener does not outlive the call.
func (s *Session) ClickAndFollow(ctx context.Context, selector string) (harvest.Session, error) {
	self := chromedp.FromContext(s.ctx)
	if self == nil || self.Target == nil {
		return nil, errors.New("session has no attached target")
	}
	opener := self.Target.TargetID

	waitCtx, cancelWait := context.WithCancel(s.ctx)
	defer cancelWait()
	opened := chromedp.WaitNewTarget(waitCtx, func(info *target.Info) bool {
		return info.OpenerID == opener
	})

	if err := s.Click(ctx, selector); err != nil {
		return nil, err
	}

	timer := time.NewTimer(popupTimeout)
	defer timer.Stop()
	select {
	case id := <-opened:
		popupCtx, cancel := chromedp.NewContext(s.ctx, chromedp.WithTargetID(id))
		popup := &Session{cfg: s.cfg, ctx: popupCtx, cancel: cancel}
		if err := popup.attach(ctx); err != nil {
			cancel()
			return nil, harvest.Remote("attach popup", selector, err)
		}
		return popup, nil
	case <-timer.C:
		return nil, harvest.Remote("await popup", selector, fmt.Errorf("no page opened within %s", popupTimeout))
	case <-ctx.Done():
		return nil, fmt.Errorf("await popup: %w", ctx.Err())
	}
}

// WaitVisible reports whether selector became visible within timeout. A
// timeout is not an error.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	err := s.runWithin(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, harvest.Remote("wait visible", selector, err)
	}
}

// ExtractTable returns the cells of every row matching rowSelector in the
// rendered document.
func (s *Session) ExtractTable(ctx context.Context, rowSelector string) ([]harvest.TableRow, error) {
	var location, html string
	if err := s.run(ctx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, harvest.Remote("extract table", rowSelector, err)
	}
	return parseTable(html, location, rowSelector)
}

// Evaluate runs a JavaScript expression and decodes its result into out.
func (s *Session) Evaluate(ctx context.Context, expression string, out any) error {
	if err := s.run(ctx, chromedp.Evaluate(expression, out)); err != nil {
		return harvest.Remote("evaluate", "", err)
	}
	return nil
}

// Screenshot captures the viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, harvest.Remote("screenshot", "", err)
	}
	return buf, nil
}

// Close closes the tab.
func (s *Session) Close() error {
	s.cancel()
	return nil
}

func selectScript(selector, value string) (string, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("encode selector: %w", err)
	}
	val, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  el.value = %s;
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
})()`, sel, val), nil
}
