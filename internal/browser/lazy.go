package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
)

// Lazy defers starting a browser until the first session is requested, so
// a run in which every item is skipped never launches one. It is safe for
// concurrent use; a failed start is retried on the next request.
type Lazy struct {
	factory harvest.BrowserFactory

	mu      sync.Mutex
	browser harvest.Browser
}

// NewLazy wraps factory.
func NewLazy(factory harvest.BrowserFactory) *Lazy {
	return &Lazy{factory: factory}
}

// NewSession starts the browser if needed and opens a session on it.
func (l *Lazy) NewSession(ctx context.Context) (harvest.Session, error) {
	browser, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return browser.NewSession(ctx)
}

func (l *Lazy) get(ctx context.Context) (harvest.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.browser != nil {
		return l.browser, nil
	}
	browser, err := l.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	l.browser = browser
	return browser, nil
}

// Started reports whether the browser has been launched.
func (l *Lazy) Started() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.browser != nil
}

// Close shuts the browser down if it was started.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.browser == nil {
		return nil
	}
	err := l.browser.Close()
	l.browser = nil
	return err
}
