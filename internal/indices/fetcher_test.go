package indices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
	"github.com/JakeFAU/ned-harvester/internal/harvest/harvesttest"
	"github.com/JakeFAU/ned-harvester/internal/partition"
	"github.com/JakeFAU/ned-harvester/internal/pool"
	"github.com/JakeFAU/ned-harvester/internal/storage"
)

const (
	jobURL   = "https://ned.example.org/uri/job-42"
	dataURL  = "https://ned.example.org/spool/job-42.txt"
	formURL  = "https://ned.example.org/byparams"
	resultTx = "No.|Object Name|RA(deg)\n1|NGC 123|10.5\n"
)

var (
	anything = mock.Anything

	lastPartition = harvest.Partition{
		PrimaryMin:      23*time.Hour + 58*time.Minute,
		PrimaryMax:      24 * time.Hour,
		PrimaryClosed:   true,
		SecondaryMin:    12 * time.Hour,
		SecondaryMax:    24 * time.Hour,
		SecondaryClosed: true,
		Category:        "QSO",
	}
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(context.Background(), "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newFetcher(browser harvest.Browser, blobs harvest.Fetcher, store harvest.Store) *Fetcher {
	return New(Config{
		FormURL:      formURL,
		PollAttempts: 3,
		PollTimeout:  time.Millisecond,
		Clock:        fixedClock{t: time.UnixMilli(1700000000000)},
	}, browser, blobs, store)
}

func exists(t *testing.T, store harvest.Store, key string) bool {
	t.Helper()
	ok, err := store.Exists(context.Background(), key)
	require.NoError(t, err)
	return ok
}

// expectCompletedJob scripts a job page whose result link is already present.
func expectCompletedJob(job *harvesttest.Session) {
	job.On("WaitVisible", anything, resultLinkSelector, time.Millisecond).Return(true, nil).Once()
	job.On("Evaluate", anything, hrefOf(resultLinkSelector), anything).
		Run(func(args mock.Arguments) { *args.Get(2).(*string) = dataURL }).
		Return(nil).Once()
	job.On("Close").Return(nil)
}

// expectForm scripts a form page that accepts every constraint for p.
func expectForm(form *harvesttest.Session, p harvest.Partition, job harvest.Session) {
	opt, _ := partition.Lookup(p.Category)
	area := skyAreaFor(p)
	form.On("Navigate", anything, formURL).Return(nil).Once()
	form.On("Evaluate", anything, textOf(challengeLabelSelector), anything).
		Run(func(args mock.Arguments) { *args.Get(2).(*string) = "What is 3 + 4 ?" }).
		Return(nil).Once()
	form.On("Fill", anything, challengeInputSelector, "7").Return(nil).Once()
	form.On("Click", anything, skyAreaToggleSelector).Return(nil).Once()
	form.On("Select", anything, raRangeSelector, rangeModeBetween).Return(nil).Once()
	form.On("Select", anything, decRangeSelector, rangeModeBetween).Return(nil).Once()
	form.On("Fill", anything, raMinSelector, area.RAMin).Return(nil).Once()
	form.On("Fill", anything, raMaxSelector, area.RAMax).Return(nil).Once()
	form.On("Fill", anything, decMinSelector, area.DecMin).Return(nil).Once()
	form.On("Fill", anything, decMaxSelector, area.DecMax).Return(nil).Once()
	form.On("Click", anything, typeToggleSelector).Return(nil).Once()
	form.On("Evaluate", anything, clickOf(categorySelector(opt)), anything).
		Run(func(args mock.Arguments) { *args.Get(2).(*bool) = true }).
		Return(nil).Once()
	form.On("ClickAndFollow", anything, submitSelector).Return(job, nil).Once()
	form.On("Close").Return(nil)
}

func TestFetchSkipsCompletedPartitionWithoutRemoteCalls(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	browser := &harvesttest.Browser{}
	blobs := harvesttest.NewBlobs(nil)
	f := newFetcher(browser, blobs, store)

	require.NoError(t, store.WriteAll(ctx, storage.ResultKey(lastPartition.Key()), []byte(resultTx), ""))

	for range 2 {
		outcome, err := f.Fetch(ctx, lastPartition)
		require.NoError(t, err)
		assert.Equal(t, pool.Skipped, outcome)
	}
	browser.AssertNotCalled(t, "NewSession", anything)
	assert.Empty(t, blobs.Calls())
}

func TestFetchResumesDispatchedJobWithoutResubmitting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	key := lastPartition.Key()
	require.NoError(t, store.WriteAll(ctx, storage.MarkerKey(key), []byte(jobURL+"\n"), ""))

	job := &harvesttest.Session{}
	job.On("Navigate", anything, jobURL).Return(nil).Once()
	expectCompletedJob(job)
	browser := &harvesttest.Browser{}
	browser.On("NewSession", anything).Return(job, nil).Once()
	blobs := harvesttest.NewBlobs(map[string]harvesttest.Blob{dataURL: {ContentType: "text/plain", Body: []byte(resultTx)}})

	outcome, err := newFetcher(browser, blobs, store).Fetch(ctx, lastPartition)
	require.NoError(t, err)
	assert.Equal(t, pool.Completed, outcome)

	data, err := store.ReadAll(ctx, storage.ResultKey(key))
	require.NoError(t, err)
	assert.Equal(t, resultTx, string(data))
	assert.False(t, exists(t, store, storage.MarkerKey(key)))

	job.AssertExpectations(t)
	browser.AssertExpectations(t)
	job.AssertNotCalled(t, "ClickAndFollow", anything, anything)
	job.AssertNotCalled(t, "Navigate", anything, formURL)
}

func TestFetchSubmitsWithClampedBoundsAndPersistsMarkerFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	key := lastPartition.Key()

	job := &harvesttest.Session{}
	job.On("Location", anything).Return(jobURL, nil).Once()
	job.On("WaitVisible", anything, resultLinkSelector, time.Millisecond).
		Run(func(mock.Arguments) {
			assert.True(t, exists(t, store, storage.MarkerKey(key)), "marker must exist before polling")
		}).
		Return(true, nil).Once()
	job.On("Evaluate", anything, hrefOf(resultLinkSelector), anything).
		Run(func(args mock.Arguments) { *args.Get(2).(*string) = dataURL }).
		Return(nil).Once()
	job.On("Close").Return(nil)

	form := &harvesttest.Session{}
	expectForm(form, lastPartition, job)
	browser := &harvesttest.Browser{}
	browser.On("NewSession", anything).Return(form, nil).Once()
	blobs := harvesttest.NewBlobs(map[string]harvesttest.Blob{dataURL: {ContentType: "text/plain", Body: []byte(resultTx)}})

	outcome, err := newFetcher(browser, blobs, store).Fetch(ctx, lastPartition)
	require.NoError(t, err)
	assert.Equal(t, pool.Completed, outcome)

	form.AssertExpectations(t)
	job.AssertExpectations(t)
	form.AssertCalled(t, "Fill", anything, raMaxSelector, "23:59:59")
	form.AssertCalled(t, "Fill", anything, decMaxSelector, "23:59:59")
	form.AssertNotCalled(t, "Fill", anything, raMaxSelector, "24:00:00")
	assert.True(t, exists(t, store, storage.ResultKey(key)))
	assert.False(t, exists(t, store, storage.MarkerKey(key)))
}

func TestFetchTimeoutKeepsMarkerAndCapturesScreenshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	key := lastPartition.Key()

	job := &harvesttest.Session{}
	job.On("Location", anything).Return(jobURL, nil).Once()
	job.On("WaitVisible", anything, resultLinkSelector, time.Millisecond).Return(false, nil).Times(3)
	job.On("Evaluate", anything, presenceOf(resultLinkSelector), anything).
		Run(func(args mock.Arguments) { *args.Get(2).(*bool) = false }).
		Return(nil).Times(3)
	job.On("Screenshot", anything).Return([]byte("png"), nil).Once()
	job.On("Close").Return(nil)

	form := &harvesttest.Session{}
	expectForm(form, lastPartition, job)
	browser := &harvesttest.Browser{}
	browser.On("NewSession", anything).Return(form, nil).Once()
	blobs := harvesttest.NewBlobs(nil)

	_, err := newFetcher(browser, blobs, store).Fetch(ctx, lastPartition)
	require.ErrorIs(t, err, harvest.ErrJobTimeout)
	assert.True(t, harvest.IsTransient(err))

	assert.True(t, exists(t, store, storage.MarkerKey(key)), "marker survives for a later resume")
	assert.False(t, exists(t, store, storage.ResultKey(key)))
	assert.True(t, exists(t, store, storage.ScreenshotKey(time.UnixMilli(1700000000000))))
	assert.Empty(t, blobs.Calls())
	job.AssertExpectations(t)
}

func TestFetchFallsBackToFreshSubmissionOnBrokenMarker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	key := lastPartition.Key()
	require.NoError(t, store.WriteAll(ctx, storage.MarkerKey(key), []byte("https://ned.example.org/uri/expired"), ""))

	stale := &harvesttest.Session{}
	stale.On("Navigate", anything, "https://ned.example.org/uri/expired").Return(errors.New("net::ERR_ABORTED")).Once()
	stale.On("Close").Return(nil)

	job := &harvesttest.Session{}
	job.On("Location", anything).Return(jobURL, nil).Once()
	expectCompletedJob(job)

	form := &harvesttest.Session{}
	expectForm(form, lastPartition, job)

	browser := &harvesttest.Browser{}
	browser.On("NewSession", anything).Return(stale, nil).Once()
	browser.On("NewSession", anything).Return(form, nil).Once()
	blobs := harvesttest.NewBlobs(map[string]harvesttest.Blob{dataURL: {ContentType: "text/plain", Body: []byte(resultTx)}})

	outcome, err := newFetcher(browser, blobs, store).Fetch(ctx, lastPartition)
	require.NoError(t, err)
	assert.Equal(t, pool.Completed, outcome)

	browser.AssertNumberOfCalls(t, "NewSession", 2)
	stale.AssertExpectations(t)
	form.AssertExpectations(t)
	assert.True(t, exists(t, store, storage.ResultKey(key)))
	assert.False(t, exists(t, store, storage.MarkerKey(key)))
}

func TestFetchPropagatesUnsolvableChallenge(t *testing.T) {
	t.Parallel()

	form := &harvesttest.Session{}
	form.On("Navigate", anything, formURL).Return(nil).Once()
	form.On("Evaluate", anything, textOf(challengeLabelSelector), anything).
		Run(func(args mock.Arguments) { *args.Get(2).(*string) = "" }).
		Return(nil).Once()
	form.On("Close").Return(nil)
	browser := &harvesttest.Browser{}
	browser.On("NewSession", anything).Return(form, nil).Once()

	_, err := newFetcher(browser, harvesttest.NewBlobs(nil), newStore(t)).Fetch(context.Background(), lastPartition)
	require.ErrorIs(t, err, harvest.ErrChallengeUnsolvable)
	form.AssertNotCalled(t, "ClickAndFollow", anything, anything)
}

func TestSupplierCoversEnumeration(t *testing.T) {
	t.Parallel()

	enum, err := partition.New(partition.Config{
		PrimaryBucket:   12 * time.Hour,
		SecondaryBucket: 12 * time.Hour,
		Categories:      []string{"G"},
	})
	require.NoError(t, err)

	supply := newFetcher(&harvesttest.Browser{}, harvesttest.NewBlobs(nil), newStore(t)).Supplier(enum)
	var keys []string
	for {
		item, ok := supply.Next()
		if !ok {
			break
		}
		keys = append(keys, item.Key)
	}
	assert.Equal(t, []string{
		"G-000000-120000-000000-120000",
		"G-000000-120000-120000-240000",
		"G-120000-240000-000000-120000",
		"G-120000-240000-120000-240000",
	}, keys)
}
