package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/blockcheck/internal/observability"
	"github.com/3leaps/blockcheck/pkg/completeness"
	"github.com/3leaps/blockcheck/pkg/outpath"
	"github.com/3leaps/blockcheck/pkg/provider"
)

var checkCmd = &cobra.Command{
	Use:   "check <n_job> <n_cpus> <raw_data_path> <iteration>",
	Short: "Print 1 if an inference run is complete, 0 otherwise",
	Long: `Check whether every job of an inference run has processed every block of
its manifest for the given iteration.

The output container is derived from raw_data_path the same way inference
derives it: <setup_path>/<cell>/<raw name>_it<iteration>.n5, where <cell> is
the directory holding the raw container. --output_path overrides it and may
be an s3:// URI.

Prints 1 when complete and 0 otherwise. Corrupt manifests or progress logs
fail the command with a non-zero exit code instead of printing 0.

The dataset and normalization flags are accepted so inference command lines
can be reused verbatim; they do not affect the verdict.

Examples:
  blockcheck check 8 4 /groups/cosem/HeLa_Cell2_4x4x4nm/HeLa_Cell2_4x4x4nm.n5 10000 --setup_path setup01
  blockcheck check 8 4 raw.n5 10000 --output_path s3://bucket/setup01/cell/cell_it10000.n5`,
	Args: cobra.ExactArgs(4),
	RunE: runCheck,
}

var (
	checkRawDS             string
	checkMaskDS            string
	checkSetupPath         string
	checkOutputPath        string
	checkFinishInterrupted bool
	checkFactor            int
	checkMinSc             float64
	checkMaxSc             float64
	checkFloatRange        []int
	checkSafeScale         bool
	checkResolution        []int

	checkRequireJobs bool
	checkConcurrency int
	checkRateLimit   float64
)

func init() {
	rootCmd.AddCommand(checkCmd)

	f := checkCmd.Flags()
	f.StringVar(&checkRawDS, "raw_ds", "volumes/raw/s0", "dataset in raw_data_path holding raw data")
	f.StringVar(&checkMaskDS, "mask_ds", "volumes/masks/foreground", "dataset in raw_data_path holding the mask")
	f.StringVar(&checkSetupPath, "setup_path", ".", "path containing the setup")
	f.StringVar(&checkOutputPath, "output_path", "", "N5 container the run writes to (derived when empty)")
	f.BoolVar(&checkFinishInterrupted, "finish_interrupted", false, "whether this finishes an interrupted run")
	f.IntVar(&checkFactor, "factor", 0, "factor to normalize raw data by")
	f.Float64Var(&checkMinSc, "min_sc", 0, "minimum intensity (mapped to -1)")
	f.Float64Var(&checkMaxSc, "max_sc", 0, "maximum intensity (mapped to 1)")
	f.IntSliceVar(&checkFloatRange, "float_range", []int{-1, 1}, "output float range")
	f.BoolVar(&checkSafeScale, "safe_scale", false, "clip before scaling")
	f.IntSliceVar(&checkResolution, "resolution", nil, "voxel resolution")

	f.BoolVar(&checkRequireJobs, "require-jobs", false, "report incomplete until n_job manifests exist")
	f.IntVar(&checkConcurrency, "concurrency", 0, "jobs evaluated at once (default from check.concurrency)")
	f.Float64Var(&checkRateLimit, "rate-limit", -1, "storage reads per second, 0 for unlimited (default from check.rate_limit)")
}

// checkArgs are the positional arguments of check.
type checkArgs struct {
	NJob        int
	NCPUs       int
	RawDataPath string
	Iteration   int
}

func parseCheckArgs(args []string) (checkArgs, error) {
	nJob, err := strconv.Atoi(args[0])
	if err != nil || nJob < 0 {
		return checkArgs{}, fmt.Errorf("n_job must be a non-negative integer, got %q", args[0])
	}
	nCPUs, err := strconv.Atoi(args[1])
	if err != nil || nCPUs < 0 {
		return checkArgs{}, fmt.Errorf("n_cpus must be a non-negative integer, got %q", args[1])
	}
	iteration, err := strconv.Atoi(args[3])
	if err != nil || iteration < 0 {
		return checkArgs{}, fmt.Errorf("iteration must be a non-negative integer, got %q", args[3])
	}
	return checkArgs{NJob: nJob, NCPUs: nCPUs, RawDataPath: args[2], Iteration: iteration}, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := currentConfig()

	ca, err := parseCheckArgs(args)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid arguments", err)
	}

	root, err := checkOutputRoot(ca)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid output location", err)
	}

	observability.CLILogger.Debug("Checking run",
		zap.String("root", root.String()),
		zap.Int("iteration", ca.Iteration),
		zap.Int("n_job", ca.NJob),
		zap.Int("n_cpus", ca.NCPUs),
		zap.String("raw_ds", checkRawDS),
		zap.String("mask_ds", checkMaskDS),
		zap.Bool("finish_interrupted", checkFinishInterrupted))

	store, err := openStore(ctx, root, cfg)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open output root", err)
	}
	defer func() { _ = store.Close() }()

	vcfg := verifierConfig(cmd, cfg.Check.Concurrency, cfg.Check.RateLimit, cfg.Check.MaxMissing)
	if checkRequireJobs {
		vcfg.ExpectedJobs = ca.NJob
	}
	v := completeness.New(store, vcfg, completeness.WithLogger(observability.CLILogger))

	complete, err := v.RunComplete(ctx, ca.Iteration)
	if err != nil {
		return verifyError(ctx, root, err)
	}
	printVerdict(cmd, complete)
	return nil
}

// checkOutputRoot locates the container check inspects. Local containers
// are created when absent, as inference itself would.
func checkOutputRoot(ca checkArgs) (*RootURI, error) {
	if strings.HasPrefix(strings.ToLower(checkOutputPath), "s3://") {
		if !outpath.IsContainer(checkOutputPath) {
			return nil, fmt.Errorf("%w: output path %q", outpath.ErrInvalidContainer, checkOutputPath)
		}
		return ParseRoot(checkOutputPath)
	}
	paths, err := outpath.Resolve(ca.RawDataPath, checkSetupPath, checkOutputPath, ca.Iteration)
	if err != nil {
		return nil, err
	}
	return ParseRoot(paths.Container)
}

// verifierConfig applies --concurrency and --rate-limit over configured values.
func verifierConfig(cmd *cobra.Command, concurrency int, rateLimit float64, maxMissing int) completeness.Config {
	if f := cmd.Flags().Lookup("concurrency"); f != nil && f.Changed {
		if n, err := strconv.Atoi(f.Value.String()); err == nil {
			concurrency = n
		}
	}
	if f := cmd.Flags().Lookup("rate-limit"); f != nil && f.Changed {
		if r, err := strconv.ParseFloat(f.Value.String(), 64); err == nil {
			rateLimit = r
		}
	}
	return completeness.Config{Concurrency: concurrency, RateLimit: rateLimit, MaxMissing: maxMissing}
}

// verifyError maps a verifier failure to an exit code.
func verifyError(ctx context.Context, root *RootURI, err error) error {
	switch {
	case ctx.Err() != nil:
		return exitError(foundry.ExitSignalInt, "Check cancelled", err)
	case completeness.IsCorruption(err):
		observability.CLILogger.Error("Run artifacts are corrupt", zap.String("root", root.String()), zap.Error(err))
		return exitError(foundry.ExitFileReadError, "Run artifacts are corrupt", err)
	case provider.IsAccessDenied(err):
		return exitError(foundry.ExitExternalServiceUnavailable, "Access denied to output root", err)
	default:
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to check output root", err)
	}
}
