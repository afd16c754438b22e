// Package assets harvests per-object image assets. Each object is checked
// against persisted output first; only incomplete objects cause remote work.
package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
	"github.com/JakeFAU/ned-harvester/internal/pool"
	"github.com/JakeFAU/ned-harvester/internal/storage"
)

// Default remote locations. Templates substitute {objectID}, {ra} and {dec}.
const (
	DefaultObjectURLTemplate = "https://ned.ipac.caltech.edu/byname?objname={objectID}&hconst=67.8&omegam=0.308&omegav=0.692&wmap=4&corr_z=1"
	DefaultGuessURLTemplate  = "https://archive.stsci.edu/cgi-bin/dss_search?v=poss2ukstu_red&r={ra}&d={dec}&e=J2000&h=5.0&w=5.0&f=gif"
)

const (
	imagesTabSelector  = "a#ui-id-7"
	imageTableSelector = "#imagetable"
	imageRowSelector   = "#imagetable tr"
	imageHeaderRows    = 2
)

// Config tunes the harvester.
type Config struct {
	ObjectURLTemplate string
	GuessURLTemplate  string
	// TableTimeout bounds the wait for the image table to render.
	TableTimeout time.Duration
	Logger       *zap.Logger
}

// Harvester drives one object at a time through discovery, download and
// metadata persistence.
type Harvester struct {
	cfg     Config
	oracle  *Oracle
	browser harvest.Browser
	blobs   harvest.Fetcher
	store   harvest.Store
	logger  *zap.Logger
}

// New builds a Harvester. browser is only used by the full strategy; pass a
// lazily started one so runs that skip everything never launch it.
func New(cfg Config, browser harvest.Browser, blobs harvest.Fetcher, store harvest.Store) *Harvester {
	if cfg.ObjectURLTemplate == "" {
		cfg.ObjectURLTemplate = DefaultObjectURLTemplate
	}
	if cfg.GuessURLTemplate == "" {
		cfg.GuessURLTemplate = DefaultGuessURLTemplate
	}
	if cfg.TableTimeout <= 0 {
		cfg.TableTimeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger.Named("assets")
	return &Harvester{
		cfg:     cfg,
		oracle:  NewOracle(store, logger),
		browser: browser,
		blobs:   blobs,
		store:   store,
		logger:  logger,
	}
}

// Oracle exposes the completeness check used by Harvest.
func (h *Harvester) Oracle() *Oracle {
	return h.oracle
}

// Supplier turns parsed records into pool work.
func (h *Harvester) Supplier(records []harvest.Record, strategy harvest.Strategy) pool.Supplier {
	return pool.Slice(records, func(record harvest.Record) pool.Item {
		objectID := record.ObjectID()
		return pool.Item{
			Key: objectID,
			Run: func(ctx context.Context) (pool.Outcome, error) {
				return h.Harvest(ctx, objectID, record, strategy)
			},
		}
	})
}

// Harvest discovers and downloads objectID's images under strategy. Image
// failures are isolated: metadata is still written and the joined image
// errors are returned afterwards.
func (h *Harvester) Harvest(ctx context.Context, objectID string, record harvest.Record, strategy harvest.Strategy) (pool.Outcome, error) {
	if strings.TrimSpace(objectID) == "" {
		return pool.Completed, errors.New("record has no object identifier")
	}
	st, err := h.oracle.inspect(ctx, objectID)
	if err != nil {
		return pool.Completed, err
	}
	if st.complete(objectID, strategy) {
		return pool.Skipped, nil
	}
	if st.found && st.metadata.Strategy != strategy && st.metadata.Strategy.Satisfies(strategy) {
		return h.retryMissing(ctx, st, objectID)
	}
	if st.found && st.metadata.Strategy != strategy {
		if err := h.dropImages(ctx, st, objectID); err != nil {
			return pool.Completed, err
		}
	}

	images, err := h.discover(ctx, objectID, record, strategy)
	if err != nil {
		return pool.Completed, err
	}
	imageErr := h.downloadAll(ctx, objectID, images, allIndices(len(images)))

	md := NewMetadata(objectID, record, images, strategy)
	data, err := json.MarshalIndent(md, "", "    ")
	if err != nil {
		return pool.Completed, fmt.Errorf("encode metadata %s: %w", objectID, err)
	}
	if err := h.store.WriteAll(ctx, storage.MetadataKey(objectID), data, "application/json"); err != nil {
		return pool.Completed, err
	}
	if imageErr != nil {
		return pool.Completed, imageErr
	}
	h.logger.Debug("object harvested", zap.String("key", objectID), zap.Int("images", len(images)))
	return pool.Completed, nil
}

// retryMissing downloads the images absent from a higher-fidelity harvest
// without rediscovering or downgrading it. The persisted metadata is kept.
func (h *Harvester) retryMissing(ctx context.Context, st state, objectID string) (pool.Outcome, error) {
	var missing []int
	for i := range st.metadata.Images {
		if !st.hasImage(objectID, i) {
			missing = append(missing, i)
		}
	}
	h.logger.Info("retrying missing images",
		zap.String("key", objectID),
		zap.String("strategy", string(st.metadata.Strategy)),
		zap.Int("missing", len(missing)))
	if err := h.downloadAll(ctx, objectID, st.metadata.Images, missing); err != nil {
		return pool.Completed, err
	}
	return pool.Completed, nil
}

// dropImages removes images produced under a different strategy so that
// stale blobs never satisfy the new descriptors.
func (h *Harvester) dropImages(ctx context.Context, st state, objectID string) error {
	for key := range st.blobs {
		if !storage.IsImageKey(objectID, key) {
			continue
		}
		if err := h.store.Delete(ctx, key); err != nil {
			return err
		}
	}
	h.logger.Info("discarded images from previous strategy",
		zap.String("key", objectID),
		zap.String("previous", string(st.metadata.Strategy)))
	return nil
}

func (h *Harvester) discover(ctx context.Context, objectID string, record harvest.Record, strategy harvest.Strategy) ([]harvest.Descriptor, error) {
	if strategy == harvest.StrategyGuess {
		d, err := guessDescriptor(h.cfg.GuessURLTemplate, objectID, record)
		if err != nil {
			return nil, err
		}
		return []harvest.Descriptor{d}, nil
	}
	return h.scrape(ctx, objectID)
}

func (h *Harvester) scrape(ctx context.Context, objectID string) ([]harvest.Descriptor, error) {
	session, err := h.browser.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer func() { _ = session.Close() }()

	if err := session.Navigate(ctx, expand(h.cfg.ObjectURLTemplate, objectID, nil)); err != nil {
		return nil, err
	}
	if err := session.Click(ctx, imagesTabSelector); err != nil {
		return nil, fmt.Errorf("open images tab: %w", err)
	}
	visible, err := session.WaitVisible(ctx, imageTableSelector, h.cfg.TableTimeout)
	if err != nil {
		return nil, err
	}
	if !visible {
		h.logger.Debug("no image table", zap.String("key", objectID))
		return nil, nil
	}
	rows, err := session.ExtractTable(ctx, imageRowSelector)
	if err != nil {
		return nil, err
	}
	if len(rows) <= imageHeaderRows {
		return nil, nil
	}
	images := make([]harvest.Descriptor, 0, len(rows)-imageHeaderRows)
	for _, row := range rows[imageHeaderRows:] {
		d, ok := descriptorFromRow(row)
		if !ok {
			h.logger.Debug("skipping malformed image row", zap.String("key", objectID), zap.Int("cells", len(row)))
			continue
		}
		images = append(images, d)
	}
	return images, nil
}

// imageColumns names the cells of an image table row, in order.
var imageColumns = []string{
	harvest.DescriptorSource, "fileSize", "information", "lambda", "clambda", "spectralRegion",
	"band", "fov1", "fov2", "res", "telescope", "refCode",
}

func descriptorFromRow(row harvest.TableRow) (harvest.Descriptor, bool) {
	if len(row) < len(imageColumns) || row[0].Image == "" {
		return nil, false
	}
	d := make(harvest.Descriptor, len(imageColumns))
	for i, name := range imageColumns {
		cell := row[i]
		switch name {
		case harvest.DescriptorSource:
			d[name] = cell.Image
		case "information", "refCode":
			d[name] = cell.Link
		default:
			d[name] = cell.Text
		}
	}
	return d, true
}

func guessDescriptor(template, objectID string, record harvest.Record) (harvest.Descriptor, error) {
	ra, okRA := record.Number(harvest.FieldRA)
	dec, okDec := record.Number(harvest.FieldDec)
	if !okRA || !okDec {
		return nil, fmt.Errorf("guess image for %s: record has no numeric coordinates", objectID)
	}
	return harvest.Descriptor{
		harvest.DescriptorSource: expand(template, objectID, map[string]float64{"ra": ra, "dec": dec}),
	}, nil
}

func expand(template, objectID string, coords map[string]float64) string {
	pairs := []string{"{objectID}", url.QueryEscape(objectID)}
	for name, v := range coords {
		pairs = append(pairs, "{"+name+"}", strconv.FormatFloat(v, 'f', -1, 64))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// downloadAll fetches images[i] for every i in indices concurrently.
func (h *Harvester) downloadAll(ctx context.Context, objectID string, images []harvest.Descriptor, indices []int) error {
	errs := make([]error, len(images))
	var wg sync.WaitGroup
	for _, i := range indices {
		d := images[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.download(ctx, objectID, i, d); err != nil {
				errs[i] = fmt.Errorf("image %d of %s: %w", i, objectID, err)
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (h *Harvester) download(ctx context.Context, objectID string, index int, d harvest.Descriptor) error {
	src := d.Source()
	if src == "" {
		return errors.New("descriptor has no source")
	}
	resp, err := h.blobs.Fetch(ctx, src)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	mediaType, ext, err := extensionFor(resp.ContentType)
	if err != nil {
		return err
	}
	for _, other := range RecognizedExtensions {
		if other == ext {
			continue
		}
		if err := h.store.Delete(ctx, storage.ImageKey(objectID, index, other)); err != nil {
			return err
		}
	}
	return h.store.Write(ctx, storage.ImageKey(objectID, index, ext), resp.Body, mediaType)
}

// extensionFor maps a Content-Type header to a recognized file extension.
func extensionFor(contentType string) (string, string, error) {
	if strings.TrimSpace(contentType) == "" {
		return "", "", harvest.ErrMissingContentType
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", harvest.ErrUnsupportedContentType, contentType)
	}
	kind, ext, ok := strings.Cut(mediaType, "/")
	if !ok || kind != "image" || !slices.Contains(RecognizedExtensions, ext) {
		return "", "", fmt.Errorf("%w: %q", harvest.ErrUnsupportedContentType, contentType)
	}
	return mediaType, ext, nil
}
