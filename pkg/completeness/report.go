package completeness

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/blockcheck/pkg/block"
)

// JobState summarises where a job stands for one iteration.
type JobState string

const (
	// StateNoManifest means the job's manifest has not been written.
	StateNoManifest JobState = "no_manifest"

	// StateNoProgressLog means the worker has not started this iteration.
	StateNoProgressLog JobState = "no_progress_log"

	// StateInProgress means some manifest blocks are not yet in the log.
	StateInProgress JobState = "in_progress"

	// StateComplete means every manifest block is in the log.
	StateComplete JobState = "complete"

	// StateError means the job's artifacts could not be decoded.
	StateError JobState = "error"
)

// JobStatus is the evaluation of one job at one iteration.
type JobStatus struct {
	JobID     string   `json:"job_id"`
	Iteration int      `json:"iteration"`
	State     JobState `json:"state"`
	Complete  bool     `json:"complete"`

	// Expected is the number of distinct blocks in the manifest.
	Expected int `json:"expected"`

	// Processed is the number of distinct blocks in the repaired log,
	// including entries not in the manifest.
	Processed int `json:"processed"`

	MissingCount int `json:"missing_count"`

	// Missing lists the first missing coordinates in lexicographic order.
	Missing []block.Coord `json:"missing,omitempty"`

	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// RunReport aggregates every job of a run at one iteration.
type RunReport struct {
	Iteration    int          `json:"iteration"`
	RootExists   bool         `json:"root_exists"`
	ExpectedJobs int          `json:"expected_jobs,omitempty"`
	Complete     bool         `json:"complete"`
	Jobs         []*JobStatus `json:"jobs"`

	JobsComplete int `json:"jobs_complete"`

	// JobsError counts every job that could not be evaluated; JobsCorrupt
	// is the subset whose artifacts failed to decode.
	JobsError   int `json:"jobs_error"`
	JobsCorrupt int `json:"jobs_corrupt"`

	BlocksExpected int `json:"blocks_expected"`
	BlocksMissing  int `json:"blocks_missing"`

	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// Corrupt reports whether any job failed to decode.
func (r *RunReport) Corrupt() bool {
	return r.JobsCorrupt > 0
}

// Report evaluates every job without aborting on corruption. Jobs whose
// artifacts fail to read or decode are recorded with StateError and make the
// run incomplete.
//
// Only failures to stat or list the root itself are returned as errors.
// Read failures of individual jobs count toward JobsError but not
// JobsCorrupt.
func (v *Verifier) Report(ctx context.Context, iteration int) (*RunReport, error) {
	start := time.Now()
	rep := &RunReport{
		Iteration:    iteration,
		ExpectedJobs: v.cfg.ExpectedJobs,
		CheckedAt:    start.UTC(),
		Jobs:         []*JobStatus{},
	}

	jobs, rootExists, err := v.discover(ctx)
	if err != nil {
		return nil, err
	}
	rep.RootExists = rootExists
	if len(jobs) == 0 {
		rep.Duration = time.Since(start)
		return rep, nil
	}

	statuses, err := v.evaluate(ctx, jobs, iteration, false)
	if err != nil {
		return nil, err
	}

	rep.Complete = v.enoughJobs(len(jobs))
	for _, st := range statuses {
		if st.Err != nil {
			st.Error = describeErr(st.Err)
			rep.JobsError++
			if IsCorruption(st.Err) {
				rep.JobsCorrupt++
				v.logger.Warn("Job artifacts corrupt", zap.String("job_id", st.JobID), zap.Error(st.Err))
			} else {
				v.logger.Warn("Job artifacts unreadable", zap.String("job_id", st.JobID), zap.Error(st.Err))
			}
		}
		if st.Complete {
			rep.JobsComplete++
		} else {
			rep.Complete = false
		}
		rep.BlocksExpected += st.Expected
		rep.BlocksMissing += st.MissingCount
	}
	rep.Jobs = statuses
	rep.Duration = time.Since(start)
	return rep, nil
}
