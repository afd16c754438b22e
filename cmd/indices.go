package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ned-harvester/internal/app"
	"github.com/JakeFAU/ned-harvester/internal/config"
	"github.com/JakeFAU/ned-harvester/internal/partition"
	"github.com/JakeFAU/ned-harvester/internal/pool"
)

// newIndicesCmd creates the 'indices' subcommand, which fetches one result
// file per query partition.
func newIndicesCmd(withApp appRunner) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "indices [concurrency]",
		Short: "Download the object list of every sky partition",
		Long: `Walks the partition grid (right ascension bucket x declination bucket x
object type) and downloads each partition's result file. Partitions whose
result already exists are skipped; partitions with a pending remote job
are resumed instead of resubmitted.`,
		Args: cobra.MaximumNArgs(1),
	}
	adjust := func(cfg *config.Config, args []string) error {
		if concurrency > 0 {
			cfg.Indices.Concurrency = concurrency
		}
		if len(args) == 1 {
			n, err := parseConcurrency(args[0])
			if err != nil {
				return err
			}
			cfg.Indices.Concurrency = n
		}
		return nil
	}
	cmd.RunE = withApp(adjust, runIndices)
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "partitions fetched at once (default from config)")
	return cmd
}

func runIndices(ctx context.Context, a *app.App, _ []string) error {
	enum, err := partition.New(a.Config.Partitions())
	if err != nil {
		return fmt.Errorf("build partition grid: %w", err)
	}
	a.Logger.Info("fetching partitions",
		zap.Int("partitions", enum.Total()),
		zap.Int("concurrency", a.Config.Indices.Concurrency))

	summary := pool.Run(ctx, a.Indices().Supplier(enum), a.PoolOptions("indices", a.Config.Indices.Concurrency))
	logSummary(a.Logger, "indices", summary, summary.Elapsed)
	if ctx.Err() != nil {
		a.Logger.Warn("run interrupted; rerun to resume")
	}
	return nil
}
