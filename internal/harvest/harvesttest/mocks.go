// Package harvesttest provides test doubles for the harvest collaborators.
package harvesttest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
)

// Session is a testify mock of harvest.Session.
type Session struct {
	mock.Mock
}

var _ harvest.Session = (*Session)(nil)

// Navigate records the call.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.Called(ctx, url).Error(0)
}

// Location records the call.
func (s *Session) Location(ctx context.Context) (string, error) {
	args := s.Called(ctx)
	return args.String(0), args.Error(1)
}

// Fill records the call.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	return s.Called(ctx, selector, value).Error(0)
}

// Select records the call.
func (s *Session) Select(ctx context.Context, selector, value string) error {
	return s.Called(ctx, selector, value).Error(0)
}

// Click records the call.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.Called(ctx, selector).Error(0)
}

// ClickAndFollow records the call.
func (s *Session) ClickAndFollow(ctx context.Context, selector string) (harvest.Session, error) {
	args := s.Called(ctx, selector)
	next, _ := args.Get(0).(harvest.Session)
	return next, args.Error(1)
}

// WaitVisible records the call.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	args := s.Called(ctx, selector, timeout)
	return args.Bool(0), args.Error(1)
}

// ExtractTable records the call.
func (s *Session) ExtractTable(ctx context.Context, rowSelector string) ([]harvest.TableRow, error) {
	args := s.Called(ctx, rowSelector)
	rows, _ := args.Get(0).([]harvest.TableRow)
	return rows, args.Error(1)
}

// Evaluate records the call. Use Run to populate out.
func (s *Session) Evaluate(ctx context.Context, expression string, out any) error {
	return s.Called(ctx, expression, out).Error(0)
}

// Screenshot records the call.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	args := s.Called(ctx)
	png, _ := args.Get(0).([]byte)
	return png, args.Error(1)
}

// Close records the call.
func (s *Session) Close() error {
	return s.Called().Error(0)
}

// Browser is a testify mock of harvest.Browser.
type Browser struct {
	mock.Mock
}

var _ harvest.Browser = (*Browser)(nil)

// NewSession records the call.
func (b *Browser) NewSession(ctx context.Context) (harvest.Session, error) {
	args := b.Called(ctx)
	s, _ := args.Get(0).(harvest.Session)
	return s, args.Error(1)
}

// Close records the call.
func (b *Browser) Close() error {
	return b.Called().Error(0)
}

// Blob is a canned response served by Blobs.
type Blob struct {
	ContentType string
	Body        []byte
	Err         error
}

// Blobs is an in-memory harvest.Fetcher.
type Blobs struct {
	mu    sync.Mutex
	blobs map[string]Blob
	calls []string
}

var _ harvest.Fetcher = (*Blobs)(nil)

// NewBlobs serves the given URL to blob mapping.
func NewBlobs(blobs map[string]Blob) *Blobs {
	if blobs == nil {
		blobs = map[string]Blob{}
	}
	return &Blobs{blobs: blobs}
}

// Fetch returns the canned blob for url.
func (b *Blobs) Fetch(_ context.Context, url string) (harvest.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, url)
	blob, ok := b.blobs[url]
	if !ok {
		return harvest.Response{}, harvest.Remote("fetch", url, fmt.Errorf("unexpected status 404"))
	}
	if blob.Err != nil {
		return harvest.Response{}, blob.Err
	}
	return harvest.Response{
		URL:         url,
		StatusCode:  200,
		ContentType: blob.ContentType,
		Body:        io.NopCloser(bytes.NewReader(blob.Body)),
	}, nil
}

// Calls lists every fetched URL in order.
func (b *Blobs) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}
