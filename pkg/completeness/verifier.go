// Package completeness decides whether a block-partitioned inference run has
// finished by cross-referencing each job's manifest against its progress log.
//
// Verdicts are never cached. Every call re-reads the output root, so polling
// the same run repeatedly observes logs as workers keep appending to them.
// The verifier only reads; it never coordinates with the writers.
package completeness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/3leaps/blockcheck/pkg/block"
	"github.com/3leaps/blockcheck/pkg/provider"
)

// DefaultMaxMissing caps how many missing coordinates a JobStatus lists.
const DefaultMaxMissing = 20

// Config tunes how a run is evaluated.
type Config struct {
	// Concurrency is the number of jobs evaluated at once. Values <= 1
	// evaluate jobs one after another in job id order.
	Concurrency int

	// RateLimit caps storage reads per second. Zero means unlimited.
	RateLimit float64

	// ExpectedJobs, when > 0, marks a run incomplete until at least this
	// many job manifests have been discovered.
	ExpectedJobs int

	// MaxMissing caps JobStatus.Missing. Zero uses DefaultMaxMissing;
	// negative lists every missing coordinate.
	MaxMissing int
}

// Verifier evaluates job and run completeness against one output root.
type Verifier struct {
	store   provider.Provider
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithLogger sets the logger used for per-job diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// New returns a Verifier reading from store, which must be rooted at the
// output container.
func New(store provider.Provider, cfg Config, opts ...Option) *Verifier {
	v := &Verifier{store: store, cfg: cfg, logger: zap.NewNop()}
	if cfg.RateLimit > 0 {
		v.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// JobComplete reports whether every block in the job's manifest appears in
// its progress log for the given iteration.
//
// A missing manifest or progress log yields false with a nil error. A
// manifest that exists but cannot be decoded yields block.ErrManifestCorrupt;
// a log that cannot be decoded even after truncation repair yields
// block.ErrProgressLogCorrupt.
func (v *Verifier) JobComplete(ctx context.Context, jobID string, iteration int) (bool, error) {
	st, err := v.JobStatus(ctx, jobID, iteration)
	if err != nil {
		return false, err
	}
	return st.Complete, nil
}

// JobStatus evaluates one job and reports what is missing.
func (v *Verifier) JobStatus(ctx context.Context, jobID string, iteration int) (*JobStatus, error) {
	st := &JobStatus{JobID: jobID, Iteration: iteration, State: StateNoManifest}

	manifestKey := ManifestKey(jobID)
	manifestData, found, err := v.readOptional(ctx, manifestKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return st, nil
	}

	logKey := ProgressLogKey(jobID, iteration)
	logData, found, err := v.readOptional(ctx, logKey)
	if err != nil {
		return nil, err
	}

	if !found {
		// Not started for this iteration. The manifest is only decoded for
		// counts; a missing log means incomplete, never an error.
		st.State = StateNoProgressLog
		if expected, perr := block.ParseManifest(manifestData, manifestKey); perr == nil {
			st.Expected = expected.Len()
			st.MissingCount = st.Expected
			st.Missing = v.capMissing(expected.Sorted())
		}
		return st, nil
	}

	expected, err := block.ParseManifest(manifestData, manifestKey)
	if err != nil {
		return nil, err
	}
	st.Expected = expected.Len()

	processed, err := block.ParseProgressLog(logData, logKey)
	if err != nil {
		return nil, err
	}
	st.Processed = processed.Len()

	missing := block.Missing(expected, processed)
	st.MissingCount = len(missing)
	st.Missing = v.capMissing(missing)
	st.Complete = len(missing) == 0
	if st.Complete {
		st.State = StateComplete
	} else {
		st.State = StateInProgress
	}

	v.logger.Debug("Evaluated job",
		zap.String("job_id", jobID),
		zap.Int("iteration", iteration),
		zap.Int("expected", st.Expected),
		zap.Int("processed", st.Processed),
		zap.Int("missing", st.MissingCount))
	return st, nil
}

// Jobs lists the job ids whose manifests sit directly under the output root,
// in numeric order.
func (v *Verifier) Jobs(ctx context.Context) ([]string, error) {
	var ids []string
	var token string
	for {
		if err := v.wait(ctx); err != nil {
			return nil, err
		}
		res, err := v.store.List(ctx, provider.ListOptions{Prefix: "list_gpu_", ContinuationToken: token})
		if err != nil {
			return nil, fmt.Errorf("list output root: %w", err)
		}
		for _, obj := range res.Objects {
			if id, ok := ParseManifestKey(obj.Key); ok {
				ids = append(ids, id)
			}
		}
		if !res.IsTruncated || res.ContinuationToken == "" {
			break
		}
		token = res.ContinuationToken
	}
	sortJobIDs(ids)
	return ids, nil
}

// RunComplete reports whether every discovered job is complete for the
// given iteration.
//
// A missing output root, or one with no job manifests, is incomplete. The
// first corruption error from any job aborts the check and is returned.
func (v *Verifier) RunComplete(ctx context.Context, iteration int) (bool, error) {
	jobs, _, err := v.discover(ctx)
	if err != nil || len(jobs) == 0 {
		return false, err
	}

	statuses, err := v.evaluate(ctx, jobs, iteration, true)
	if err != nil {
		return false, err
	}

	complete := v.enoughJobs(len(jobs))
	for _, st := range statuses {
		if !st.Complete {
			complete = false
		}
	}
	v.logger.Info("Checked run completeness",
		zap.Int("iteration", iteration),
		zap.Int("jobs", len(jobs)),
		zap.Bool("complete", complete))
	return complete, nil
}

// discover returns the job ids under the root and whether the root exists.
func (v *Verifier) discover(ctx context.Context) (jobs []string, rootExists bool, err error) {
	if rc, ok := v.store.(provider.RootChecker); ok {
		if err := v.wait(ctx); err != nil {
			return nil, false, err
		}
		exists, err := rc.RootExists(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("stat output root: %w", err)
		}
		if !exists {
			v.logger.Debug("Output root does not exist")
			return nil, false, nil
		}
	}

	jobs, err = v.Jobs(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(jobs) == 0 {
		v.logger.Debug("No job manifests under output root")
	}
	return jobs, true, nil
}

func (v *Verifier) enoughJobs(found int) bool {
	if v.cfg.ExpectedJobs > 0 && found < v.cfg.ExpectedJobs {
		v.logger.Info("Fewer job manifests than expected",
			zap.Int("found", found),
			zap.Int("expected", v.cfg.ExpectedJobs))
		return false
	}
	return true
}

// evaluate runs JobStatus for every job. With abort set, the first error
// cancels the remaining jobs and is returned; otherwise errors are recorded
// on the job's status.
func (v *Verifier) evaluate(ctx context.Context, jobs []string, iteration int, abort bool) ([]*JobStatus, error) {
	statuses := make([]*JobStatus, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	limit := v.cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, id := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			st, err := v.JobStatus(gctx, id, iteration)
			if err != nil {
				if abort {
					return fmt.Errorf("job %s: %w", id, err)
				}
				st = &JobStatus{JobID: id, Iteration: iteration, State: StateError, Err: err}
			}
			statuses[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return statuses, nil
}

// readOptional fetches a whole object; a missing object is reported as found=false.
func (v *Verifier) readOptional(ctx context.Context, key string) ([]byte, bool, error) {
	if err := v.wait(ctx); err != nil {
		return nil, false, err
	}
	data, err := provider.ReadAll(ctx, v.store, key)
	if err != nil {
		if provider.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return data, true, nil
}

func (v *Verifier) wait(ctx context.Context) error {
	if v.limiter == nil {
		return ctx.Err()
	}
	return v.limiter.Wait(ctx)
}

func (v *Verifier) capMissing(missing []block.Coord) []block.Coord {
	limit := v.cfg.MaxMissing
	if limit == 0 {
		limit = DefaultMaxMissing
	}
	if limit > 0 && len(missing) > limit {
		return missing[:limit]
	}
	return missing
}

// IsCorruption reports whether err signals a data-integrity problem rather
// than ordinary incompleteness.
func IsCorruption(err error) bool {
	return block.IsManifestCorrupt(err) || block.IsProgressLogCorrupt(err)
}

// describeErr renders an error for JSON records without the wrapping chain noise.
func describeErr(err error) string {
	if err == nil {
		return ""
	}
	var pe *block.ParseError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return strings.TrimSpace(err.Error())
}
