// Package output provides JSONL output for completeness reports.
//
// Every line is a typed record envelope holding one payload: a job status,
// an error, or the final run summary. Lines are self-contained and can be
// parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record types follow the pattern blockcheck.<type>.v<version>.
const (
	// TypeJob identifies per-job status records.
	TypeJob = "blockcheck.job.v1"

	// TypeError identifies error records.
	TypeError = "blockcheck.error.v1"

	// TypeSummary identifies the final run summary record.
	TypeSummary = "blockcheck.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	Type string    `json:"type"`
	TS   time.Time `json:"ts"`

	// CheckID correlates every record emitted by one invocation.
	CheckID string `json:"check_id"`

	// Root is the output root that was checked.
	Root string `json:"root"`

	Data json.RawMessage `json:"data"`
}

// ErrorRecord is the payload for errors that did not abort the report.
type ErrorRecord struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	JobID   string `json:"job_id,omitempty"`
	Key     string `json:"key,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeManifestCorrupt    = "MANIFEST_CORRUPT"
	ErrCodeProgressLogCorrupt = "PROGRESS_LOG_CORRUPT"
	ErrCodeAccessDenied       = "ACCESS_DENIED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternal           = "INTERNAL"
)

// SummaryRecord is the payload of the final record of a report.
type SummaryRecord struct {
	Iteration    int  `json:"iteration"`
	RootExists   bool `json:"root_exists"`
	Complete     bool `json:"complete"`
	Jobs         int  `json:"jobs"`
	ExpectedJobs int  `json:"expected_jobs,omitempty"`
	JobsComplete int  `json:"jobs_complete"`
	JobsError    int  `json:"jobs_error"`
	JobsCorrupt  int  `json:"jobs_corrupt"`

	BlocksExpected int `json:"blocks_expected"`
	BlocksMissing  int `json:"blocks_missing"`

	Duration      time.Duration `json:"duration_ns"`
	DurationHuman string        `json:"duration"`
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = errors.New("writer is closed")

// WriteError wraps failures to encode or emit a record.
type WriteError struct {
	Op  string // "marshal_data", "marshal_record" or "write"
	Err error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
