// Package cmd defines and implements the CLI commands for the harvester
// executable.
package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ned-harvester/internal/app"
	"github.com/JakeFAU/ned-harvester/internal/config"
	"github.com/JakeFAU/ned-harvester/internal/pool"
)

// runFunc is a subcommand body running against fully built services.
type runFunc func(ctx context.Context, a *app.App, args []string) error

// appRunner turns a config adjustment plus a runFunc into a cobra RunE.
type appRunner func(adjust func(*config.Config, []string) error, run runFunc) func(*cobra.Command, []string) error

// newRootCmd creates and configures the root command. opts are passed to
// app.New for every subcommand.
func newRootCmd(opts ...app.Option) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Resumable harvester for the NED extragalactic catalog.",
		Long: `harvester downloads the NED catalog in two phases. "indices" walks the
sky in coordinate partitions and stores each partition's object list;
"objects" reads those lists and downloads every object's images and
metadata. Both phases persist their progress, so an interrupted run
picks up where it stopped.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	// withApp loads configuration, lets the subcommand adjust it, builds the
	// services, and closes them when the subcommand returns.
	var withApp appRunner = func(adjust func(*config.Config, []string) error, run runFunc) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if adjust != nil {
				if err := adjust(&cfg, args); err != nil {
					return err
				}
			}
			a, err := app.New(cmd.Context(), cfg, opts...)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer func() {
				if cerr := a.Close(context.WithoutCancel(cmd.Context())); cerr != nil {
					a.Logger.Warn("error shutting down services", zap.Error(cerr))
				}
			}()
			return run(cmd.Context(), a, args)
		}
	}

	cmd.AddCommand(newIndicesCmd(withApp))
	cmd.AddCommand(newObjectsCmd(withApp))
	return cmd
}

// Execute runs the CLI until ctx is canceled or the command finishes.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

// parseConcurrency reads an optional positional concurrency override.
func parseConcurrency(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("concurrency must be a positive integer, got %q", raw)
	}
	return n, nil
}

func logSummary(logger *zap.Logger, name string, summary pool.Summary, elapsed time.Duration) {
	logger.Info("run finished",
		zap.String("pool", name),
		zap.Duration("elapsed", elapsed),
		zap.Int("completed", summary.Completed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
}
