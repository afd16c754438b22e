package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ned-harvester/internal/app"
	"github.com/JakeFAU/ned-harvester/internal/catalog"
	"github.com/JakeFAU/ned-harvester/internal/config"
	"github.com/JakeFAU/ned-harvester/internal/pool"
	"github.com/JakeFAU/ned-harvester/internal/storage"
)

const allIndices = "all"

// newObjectsCmd creates the 'objects' subcommand, which harvests images and
// metadata for the records of one or every partition result file.
func newObjectsCmd(withApp appRunner) *cobra.Command {
	var (
		concurrency int
		strategy    string
	)
	cmd := &cobra.Command{
		Use:   "objects <index-file|all> [concurrency]",
		Short: "Download images and metadata for catalog objects",
		Long: `Reads the records of a partition result file (or of every stored one
with "all") and harvests each object's images. Objects whose stored output
already satisfies the requested strategy are skipped.`,
		Args: cobra.RangeArgs(1, 2),
	}
	adjust := func(cfg *config.Config, args []string) error {
		if concurrency > 0 {
			cfg.Objects.Concurrency = concurrency
		}
		if len(args) == 2 {
			n, err := parseConcurrency(args[1])
			if err != nil {
				return err
			}
			cfg.Objects.Concurrency = n
		}
		if strategy != "" {
			cfg.Objects.Strategy = strategy
		}
		return cfg.Validate()
	}
	cmd.RunE = withApp(adjust, runObjects)
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "objects harvested at once (default from config)")
	cmd.Flags().StringVar(&strategy, "strategy", "", `image discovery strategy: "full" or "guess" (default from config)`)
	return cmd
}

func runObjects(ctx context.Context, a *app.App, args []string) error {
	strategy, err := a.Config.Strategy()
	if err != nil {
		return err
	}
	target := strings.TrimSpace(args[0])
	var keys []string
	if target == allIndices {
		keys, err = catalog.ListResults(ctx, a.Store)
		if err != nil {
			return err
		}
	} else {
		key := resultKeyFor(target)
		ok, err := a.Store.Exists(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("index file %s not found in %s", key, a.Config.Storage.URL)
		}
		keys = []string{key}
	}

	start := time.Now()
	harvester := a.Assets()
	opts := a.PoolOptions("objects", a.Config.Objects.Concurrency)
	var total pool.Summary
	for i, key := range keys {
		if ctx.Err() != nil {
			break
		}
		records, err := catalog.ParseKey(ctx, a.Store, key)
		if err != nil {
			if target != allIndices {
				return err
			}
			a.Logger.Warn("skipping unreadable index file", zap.String("key", key), zap.Error(err))
			continue
		}
		summary := pool.Run(ctx, harvester.Supplier(records, strategy), opts)
		total.Completed += summary.Completed
		total.Skipped += summary.Skipped
		total.Failed += summary.Failed
		a.Logger.Info("index file harvested",
			zap.String("key", key),
			zap.Int("file", i+1),
			zap.Int("files", len(keys)),
			zap.Int("records", len(records)),
			zap.Int("completed_total", total.Completed),
			zap.Int("skipped_total", total.Skipped),
			zap.Int("failed_total", total.Failed),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	total.Elapsed = time.Since(start)
	logSummary(a.Logger, "objects", total, total.Elapsed)
	if ctx.Err() != nil {
		a.Logger.Warn("run interrupted; rerun to resume")
	}
	return nil
}

// resultKeyFor accepts a partition key, a result file name, or a full store
// key and returns the store key.
func resultKeyFor(target string) string {
	if strings.HasPrefix(target, storage.IndexPrefix) {
		return target
	}
	return storage.ResultKey(strings.TrimSuffix(target, ".txt"))
}
