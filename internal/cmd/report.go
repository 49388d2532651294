package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/blockcheck/internal/observability"
	"github.com/3leaps/blockcheck/pkg/completeness"
	"github.com/3leaps/blockcheck/pkg/output"
)

var reportCmd = &cobra.Command{
	Use:   "report <iteration>",
	Short: "Emit per-job completeness records for a run",
	Long: `Evaluate every job of a run and emit JSONL records to stdout: one
blockcheck.job.v1 record per job, a blockcheck.error.v1 record for each job
whose artifacts are corrupt, and a final blockcheck.summary.v1 record.

Unlike check, corrupt jobs do not abort the report. The command still exits
non-zero when any job is corrupt.

Examples:
  blockcheck report 10000 --output-root setup01/cell/cell_it10000.n5
  blockcheck report 10000 --output-root s3://bucket/run.n5 --jobs '1?' --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

var (
	reportRoot         string
	reportJobs         []string
	reportFormat       string
	reportExpectedJobs int
	reportMaxMissing   int
	reportConcurrency  int
	reportRateLimit    float64
)

func init() {
	rootCmd.AddCommand(reportCmd)

	f := reportCmd.Flags()
	f.StringVar(&reportRoot, "output-root", "", "output N5 container (path or s3:// URI)")
	f.StringSliceVar(&reportJobs, "jobs", nil, "only emit job records whose id matches one of these glob patterns")
	f.StringVar(&reportFormat, "format", "jsonl", "output format (jsonl|json)")
	f.IntVar(&reportExpectedJobs, "expected-jobs", 0, "report incomplete until this many manifests exist")
	f.IntVar(&reportMaxMissing, "max-missing", 0, "missing coordinates listed per job, -1 for all (default from check.max_missing)")
	f.IntVar(&reportConcurrency, "concurrency", 0, "jobs evaluated at once (default from check.concurrency)")
	f.Float64Var(&reportRateLimit, "rate-limit", -1, "storage reads per second, 0 for unlimited (default from check.rate_limit)")
	_ = reportCmd.MarkFlagRequired("output-root")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := currentConfig()

	iteration, err := strconv.Atoi(args[0])
	if err != nil || iteration < 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid iteration", fmt.Errorf("iteration must be a non-negative integer, got %q", args[0]))
	}
	if reportFormat != "jsonl" && reportFormat != "json" {
		return exitError(foundry.ExitInvalidArgument, "Invalid --format value", fmt.Errorf("format must be jsonl or json, got %q", reportFormat))
	}
	for _, p := range reportJobs {
		if !doublestar.ValidatePattern(p) {
			return exitError(foundry.ExitInvalidArgument, "Invalid --jobs pattern", fmt.Errorf("bad pattern %q", p))
		}
	}

	root, err := ParseRoot(reportRoot)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid output root", err)
	}
	store, err := openStore(ctx, root, cfg)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open output root", err)
	}
	defer func() { _ = store.Close() }()

	maxMissing := cfg.Check.MaxMissing
	if cmd.Flags().Changed("max-missing") {
		maxMissing = reportMaxMissing
	}
	vcfg := verifierConfig(cmd, cfg.Check.Concurrency, cfg.Check.RateLimit, maxMissing)
	vcfg.ExpectedJobs = reportExpectedJobs
	v := completeness.New(store, vcfg, completeness.WithLogger(observability.CLILogger))

	rep, err := v.Report(ctx, iteration)
	if err != nil {
		return verifyError(ctx, root, err)
	}
	summary := output.Summarize(rep)
	rep.Jobs = filterJobs(rep.Jobs, reportJobs)

	if reportFormat == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write report", err)
		}
	} else {
		w := output.NewJSONLWriter(cmd.OutOrStdout(), root.String())
		defer func() { _ = w.Close() }()
		if err := w.WriteJobs(ctx, rep.Jobs); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write report", err)
		}
		if err := w.WriteSummary(ctx, summary); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write report", err)
		}
	}

	observability.CLILogger.Info("Report complete",
		zap.String("root", root.String()),
		zap.Int("iteration", iteration),
		zap.Bool("complete", rep.Complete),
		zap.Int("jobs_error", rep.JobsError),
		zap.Int("jobs_corrupt", rep.JobsCorrupt))

	switch {
	case rep.Corrupt():
		return exitError(foundry.ExitFileReadError, "Run artifacts are corrupt",
			fmt.Errorf("%d job(s) with corrupt manifests or progress logs", rep.JobsCorrupt))
	case rep.JobsError > 0:
		return exitError(foundry.ExitExternalServiceUnavailable, "Run artifacts unreadable",
			fmt.Errorf("%d job(s) could not be read", rep.JobsError))
	}
	return nil
}

// filterJobs keeps jobs whose id matches any pattern. No patterns keeps all.
func filterJobs(jobs []*completeness.JobStatus, patterns []string) []*completeness.JobStatus {
	if len(patterns) == 0 {
		return jobs
	}
	out := make([]*completeness.JobStatus, 0, len(jobs))
	for _, st := range jobs {
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, st.JobID); ok {
				out = append(out, st)
				break
			}
		}
	}
	return out
}
