package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/blockcheck/internal/errors"
	"github.com/3leaps/blockcheck/internal/observability"
	"github.com/3leaps/blockcheck/pkg/completeness"
	"github.com/3leaps/blockcheck/pkg/watch"
)

var waitCmd = &cobra.Command{
	Use:   "wait <iteration>",
	Short: "Block until a run is complete",
	Long: `Re-check a run until it is complete, then print 1.

Checks run every --interval. For local output roots, writes to progress logs
trigger an early re-check. With --timeout, prints 0 and exits non-zero when
the run is still incomplete at the deadline. Corrupt artifacts end the wait
immediately with a non-zero exit.

Examples:
  blockcheck wait 10000 --output-root setup01/cell/cell_it10000.n5
  blockcheck wait 10000 --output-root s3://bucket/run.n5 --interval 2m --timeout 6h`,
	Args: cobra.ExactArgs(1),
	RunE: runWait,
}

var (
	waitRoot         string
	waitInterval     time.Duration
	waitTimeout      time.Duration
	waitExpectedJobs int
	waitNoWatch      bool
)

func init() {
	rootCmd.AddCommand(waitCmd)

	f := waitCmd.Flags()
	f.StringVar(&waitRoot, "output-root", "", "output N5 container (path or s3:// URI)")
	f.DurationVar(&waitInterval, "interval", 0, "time between checks (default from wait.interval)")
	f.DurationVar(&waitTimeout, "timeout", 0, "give up after this long, 0 waits forever (default from wait.timeout)")
	f.IntVar(&waitExpectedJobs, "expected-jobs", 0, "treat the run as incomplete until this many manifests exist")
	f.BoolVar(&waitNoWatch, "no-watch", false, "poll only, without filesystem notifications")
	_ = waitCmd.MarkFlagRequired("output-root")
}

func runWait(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := currentConfig()

	iteration, err := strconv.Atoi(args[0])
	if err != nil || iteration < 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid iteration", fmt.Errorf("iteration must be a non-negative integer, got %q", args[0]))
	}

	root, err := ParseRoot(waitRoot)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid output root", err)
	}
	store, err := openStore(ctx, root, cfg)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open output root", err)
	}
	defer func() { _ = store.Close() }()

	vcfg := completeness.Config{
		Concurrency:  cfg.Check.Concurrency,
		RateLimit:    cfg.Check.RateLimit,
		MaxMissing:   cfg.Check.MaxMissing,
		ExpectedJobs: waitExpectedJobs,
	}
	v := completeness.New(store, vcfg, completeness.WithLogger(observability.CLILogger))

	wcfg := watch.Config{Interval: cfg.Wait.Interval, Timeout: cfg.Wait.Timeout}
	if cmd.Flags().Changed("interval") {
		wcfg.Interval = waitInterval
	}
	if cmd.Flags().Changed("timeout") {
		wcfg.Timeout = waitTimeout
	}
	if root.IsLocal() && !waitNoWatch {
		wcfg.Dir = root.Path
	}

	observability.CLILogger.Info("Waiting for run",
		zap.String("root", root.String()),
		zap.Int("iteration", iteration),
		zap.Duration("interval", wcfg.Interval),
		zap.Duration("timeout", wcfg.Timeout))

	res, err := watch.Until(ctx, wcfg, func(ctx context.Context) (bool, error) {
		return v.RunComplete(ctx, iteration)
	}, watch.WithLogger(observability.CLILogger))
	if err != nil {
		if errors.Is(err, watch.ErrTimeout) {
			printVerdict(cmd, false)
			return exitError(apperrors.ExitGeneric, "Run incomplete at timeout", err)
		}
		return verifyError(ctx, root, err)
	}

	observability.CLILogger.Debug("Wait finished", zap.Int("checks", res.Checks), zap.Duration("elapsed", res.Elapsed))
	printVerdict(cmd, true)
	return nil
}
