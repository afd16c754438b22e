package harvest

import (
	"context"
	"io"
	"time"
)

// Session is an interactive page context on the remote service.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	Fill(ctx context.Context, selector, value string) error
	Select(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	// ClickAndFollow clicks selector and returns the page that the click
	// opened. The wait is scoped to this call and this page only.
	ClickAndFollow(ctx context.Context, selector string) (Session, error)
	// WaitVisible reports whether selector became visible within timeout.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	ExtractTable(ctx context.Context, rowSelector string) ([]TableRow, error)
	Evaluate(ctx context.Context, expression string, out any) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Browser hands out independent sessions (tabs) that may be driven
// concurrently.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// BrowserFactory starts a new browser.
type BrowserFactory func(ctx context.Context) (Browser, error)

// Response is a fetched blob. Callers must close Body.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
}

// Fetcher downloads blobs over the network.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

// Store is the durable key-value layer holding partition results, dispatch
// markers, and per-object metadata and images.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	ReadAll(ctx context.Context, key string) ([]byte, error)
	WriteAll(ctx context.Context, key string, data []byte, contentType string) error
	Write(ctx context.Context, key string, r io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using time.Now.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
