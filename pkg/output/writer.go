package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/3leaps/blockcheck/pkg/completeness"
)

// Writer emits report records.
//
// Implementations must be safe for concurrent use. Each Write method emits
// one complete line.
type Writer interface {
	WriteJob(ctx context.Context, st *completeness.JobStatus) error
	WriteError(ctx context.Context, rec *ErrorRecord) error
	WriteSummary(ctx context.Context, sum *SummaryRecord) error
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON.
//
// Writes are serialized so lines never interleave.
type JSONLWriter struct {
	w       io.Writer
	checkID string
	root    string

	mu     sync.Mutex
	closed bool
}

// NewJSONLWriter returns a writer stamping every record with a fresh check
// id and the given output root.
func NewJSONLWriter(w io.Writer, root string) *JSONLWriter {
	return &JSONLWriter{w: w, checkID: uuid.NewString(), root: root}
}

// CheckID returns the correlation id stamped on every record.
func (jw *JSONLWriter) CheckID() string {
	return jw.checkID
}

// WriteJob emits a job status record.
func (jw *JSONLWriter) WriteJob(ctx context.Context, st *completeness.JobStatus) error {
	return jw.writeRecord(ctx, TypeJob, st)
}

// WriteError emits an error record.
func (jw *JSONLWriter) WriteError(ctx context.Context, rec *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, rec)
}

// WriteSummary emits the summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// WriteReport emits one record per job, an error record for every job that
// failed to decode, and the summary.
func (jw *JSONLWriter) WriteReport(ctx context.Context, rep *completeness.RunReport) error {
	if err := jw.WriteJobs(ctx, rep.Jobs); err != nil {
		return err
	}
	return jw.WriteSummary(ctx, Summarize(rep))
}

// WriteJobs emits a job record per status, followed by an error record for
// each status carrying an evaluation error.
func (jw *JSONLWriter) WriteJobs(ctx context.Context, jobs []*completeness.JobStatus) error {
	for _, st := range jobs {
		if err := jw.WriteJob(ctx, st); err != nil {
			return err
		}
		if st.Err != nil {
			if err := jw.WriteError(ctx, ErrorFromJob(st)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close marks the writer closed. The underlying writer is left open.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	jw.closed = true
	return nil
}

func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}

	recordBytes, err := json.Marshal(Record{
		Type:    recordType,
		TS:      time.Now().UTC(),
		CheckID: jw.checkID,
		Root:    jw.root,
		Data:    dataBytes,
	})
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// io.Writer may report a short write with a nil error; a partial line
	// would corrupt the stream.
	if err := writeAll(jw.w, append(recordBytes, '\n')); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

var _ Writer = (*JSONLWriter)(nil)
