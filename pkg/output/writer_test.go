package output

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/blockcheck/pkg/block"
	"github.com/3leaps/blockcheck/pkg/completeness"
	"github.com/3leaps/blockcheck/pkg/provider"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []Record {
	t.Helper()
	var out []Record
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		out = append(out, r)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestNewJSONLWriter(t *testing.T) {
	w := NewJSONLWriter(io.Discard, "/data/cell_it100.n5")
	_, err := uuid.Parse(w.CheckID())
	assert.NoError(t, err)
	assert.NotEqual(t, w.CheckID(), NewJSONLWriter(io.Discard, "").CheckID())
}

func TestJSONLWriter_WriteJob(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "s3://bucket/run.n5")

	st := &completeness.JobStatus{
		JobID:        "3",
		Iteration:    100,
		State:        completeness.StateInProgress,
		Expected:     3,
		Processed:    2,
		MissingCount: 1,
		Missing:      []block.Coord{{2, 0, 0}},
	}
	require.NoError(t, w.WriteJob(context.Background(), st))

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, TypeJob, recs[0].Type)
	assert.Equal(t, w.CheckID(), recs[0].CheckID)
	assert.Equal(t, "s3://bucket/run.n5", recs[0].Root)
	assert.False(t, recs[0].TS.IsZero())

	var data map[string]any
	require.NoError(t, json.Unmarshal(recs[0].Data, &data))
	assert.Equal(t, "3", data["job_id"])
	assert.Equal(t, "in_progress", data["state"])
	assert.Equal(t, []any{[]any{float64(2), float64(0), float64(0)}}, data["missing"])
	assert.NotContains(t, data, "error")
}

func TestJSONLWriter_WriteReport(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "/r.n5")

	corrupt := &block.ParseError{Source: "list_gpu_1.json", Kind: block.ErrManifestCorrupt, Err: errors.New("unexpected end of JSON input")}
	rep := &completeness.RunReport{
		Iteration:  7,
		RootExists: true,
		Jobs: []*completeness.JobStatus{
			{JobID: "0", Iteration: 7, State: completeness.StateComplete, Complete: true, Expected: 2},
			{JobID: "1", Iteration: 7, State: completeness.StateError, Err: fmt.Errorf("job 1: %w", corrupt), Error: corrupt.Error()},
		},
		JobsComplete:   1,
		JobsError:      1,
		JobsCorrupt:    1,
		BlocksExpected: 2,
		Duration:       1500 * time.Millisecond,
	}
	require.NoError(t, w.WriteReport(context.Background(), rep))

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 4)
	assert.Equal(t, []string{TypeJob, TypeJob, TypeError, TypeSummary},
		[]string{recs[0].Type, recs[1].Type, recs[2].Type, recs[3].Type})

	var errRec ErrorRecord
	require.NoError(t, json.Unmarshal(recs[2].Data, &errRec))
	assert.Equal(t, ErrorRecord{
		Code:    ErrCodeManifestCorrupt,
		Message: corrupt.Error(),
		JobID:   "1",
		Key:     "list_gpu_1.json",
	}, errRec)

	var sum SummaryRecord
	require.NoError(t, json.Unmarshal(recs[3].Data, &sum))
	assert.Equal(t, 7, sum.Iteration)
	assert.Equal(t, 2, sum.Jobs)
	assert.Equal(t, 1, sum.JobsCorrupt)
	assert.False(t, sum.Complete)
	assert.Equal(t, "1.5s", sum.DurationHuman)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&block.ParseError{Kind: block.ErrProgressLogCorrupt, Err: errors.New("x")}, ErrCodeProgressLogCorrupt},
		{&provider.ProviderError{Op: "GetObject", Err: provider.ErrAccessDenied}, ErrCodeAccessDenied},
		{fmt.Errorf("read: %w", provider.ErrNotFound), ErrCodeNotFound},
		{errors.New("boom"), ErrCodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCode(tt.err), tt.err.Error())
	}
}

func TestJSONLWriter_Close(t *testing.T) {
	w := NewJSONLWriter(io.Discard, "")
	require.NoError(t, w.Close())
	err := w.WriteSummary(context.Background(), &SummaryRecord{})
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestJSONLWriter_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "/r.n5")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st := &completeness.JobStatus{JobID: fmt.Sprint(i), State: completeness.StateNoManifest}
			assert.NoError(t, w.WriteJob(context.Background(), st))
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 20)
	for _, line := range lines {
		assert.True(t, json.Valid([]byte(line)), line)
	}
}

func TestJSONLWriter_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := NewJSONLWriter(&buf, "").WriteSummary(ctx, &SummaryRecord{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

// shortWriteWriter accepts at most n bytes per call without an error.
type shortWriteWriter struct {
	buf bytes.Buffer
	n   int
}

func (sw *shortWriteWriter) Write(p []byte) (int, error) {
	if len(p) > sw.n {
		p = p[:sw.n]
	}
	return sw.buf.Write(p)
}

type zeroWriteWriter struct{}

func (zeroWriteWriter) Write([]byte) (int, error) { return 0, nil }

func TestJSONLWriter_WriteFailures(t *testing.T) {
	ctx := context.Background()

	err := NewJSONLWriter(failingWriter{}, "").WriteSummary(ctx, &SummaryRecord{})
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "write", we.Op)

	err = NewJSONLWriter(zeroWriteWriter{}, "").WriteSummary(ctx, &SummaryRecord{})
	assert.ErrorIs(t, err, io.ErrShortWrite)

	sw := &shortWriteWriter{n: 7}
	require.NoError(t, NewJSONLWriter(sw, "").WriteSummary(ctx, &SummaryRecord{Iteration: 3}))
	assert.True(t, strings.HasSuffix(sw.buf.String(), "\n"))
	assert.True(t, json.Valid(bytes.TrimSpace(sw.buf.Bytes())))
}

func TestWriteError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &WriteError{Op: "marshal_data", Err: underlying}
	assert.Equal(t, "output: marshal_data: underlying error", err.Error())
	assert.ErrorIs(t, err, underlying)
}
