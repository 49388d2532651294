package output

import (
	"errors"

	"github.com/3leaps/blockcheck/pkg/block"
	"github.com/3leaps/blockcheck/pkg/completeness"
	"github.com/3leaps/blockcheck/pkg/provider"
)

// Summarize converts a run report to its summary payload.
func Summarize(rep *completeness.RunReport) *SummaryRecord {
	return &SummaryRecord{
		Iteration:      rep.Iteration,
		RootExists:     rep.RootExists,
		Complete:       rep.Complete,
		Jobs:           len(rep.Jobs),
		ExpectedJobs:   rep.ExpectedJobs,
		JobsComplete:   rep.JobsComplete,
		JobsError:      rep.JobsError,
		JobsCorrupt:    rep.JobsCorrupt,
		BlocksExpected: rep.BlocksExpected,
		BlocksMissing:  rep.BlocksMissing,
		Duration:       rep.Duration,
		DurationHuman:  rep.Duration.String(),
	}
}

// ErrorFromJob builds an error record for a job whose evaluation failed.
func ErrorFromJob(st *completeness.JobStatus) *ErrorRecord {
	rec := &ErrorRecord{Code: ErrorCode(st.Err), Message: st.Error, JobID: st.JobID}
	if rec.Message == "" && st.Err != nil {
		rec.Message = st.Err.Error()
	}
	var pe *block.ParseError
	if errors.As(st.Err, &pe) {
		rec.Key = pe.Source
	}
	return rec
}

// ErrorCode maps an error to a record code.
func ErrorCode(err error) string {
	switch {
	case block.IsManifestCorrupt(err):
		return ErrCodeManifestCorrupt
	case block.IsProgressLogCorrupt(err):
		return ErrCodeProgressLogCorrupt
	case provider.IsAccessDenied(err):
		return ErrCodeAccessDenied
	case provider.IsNotFound(err):
		return ErrCodeNotFound
	default:
		return ErrCodeInternal
	}
}
