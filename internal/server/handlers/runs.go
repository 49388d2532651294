package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/blockcheck/internal/errors"
	"github.com/3leaps/blockcheck/pkg/completeness"
	"github.com/3leaps/blockcheck/pkg/provider"
)

var jobIDPattern = regexp.MustCompile(`^\d+$`)

// RunsHandler serves completeness verdicts for one output root.
type RunsHandler struct {
	verifier *completeness.Verifier
	root     string
	logger   *zap.Logger
}

// CompleteResponse is the body of GET /runs/{iteration}/complete.
type CompleteResponse struct {
	Root      string `json:"root"`
	Iteration int    `json:"iteration"`
	Complete  bool   `json:"complete"`
}

// NewRunsHandler serves verdicts computed by v against root.
func NewRunsHandler(v *completeness.Verifier, root string, logger *zap.Logger) *RunsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunsHandler{verifier: v, root: root, logger: logger}
}

// Routes mounts the run endpoints on r.
func (h *RunsHandler) Routes(r chi.Router) {
	r.Get("/runs/{iteration}", h.Report)
	r.Get("/runs/{iteration}/complete", h.Complete)
	r.Get("/runs/{iteration}/jobs", h.Jobs)
	r.Get("/runs/{iteration}/jobs/{job}", h.Job)
}

// Report returns the full run report without aborting on corrupt jobs.
func (h *RunsHandler) Report(w http.ResponseWriter, r *http.Request) {
	iteration, ok := h.iteration(w, r)
	if !ok {
		return
	}
	rep, err := h.verifier.Report(r.Context(), iteration)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Complete returns the run verdict. Corruption is reported as 422.
func (h *RunsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	iteration, ok := h.iteration(w, r)
	if !ok {
		return
	}
	done, err := h.verifier.RunComplete(r.Context(), iteration)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CompleteResponse{Root: h.root, Iteration: iteration, Complete: done})
}

// Jobs lists discovered job ids.
func (h *RunsHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.iteration(w, r); !ok {
		return
	}
	ids, err := h.verifier.Jobs(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": ids})
}

// Job returns one job's status.
func (h *RunsHandler) Job(w http.ResponseWriter, r *http.Request) {
	iteration, ok := h.iteration(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "job")
	if !jobIDPattern.MatchString(jobID) {
		respondWithError(w, r, apperrors.WithDetails(http.StatusBadRequest, apperrors.CodeBadRequest,
			map[string]any{"param": "job", "value": jobID},
			fmt.Errorf("job id must be decimal digits, got %q", jobID)))
		return
	}
	st, err := h.verifier.JobStatus(r.Context(), jobID, iteration)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *RunsHandler) iteration(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "iteration")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondWithError(w, r, apperrors.WithDetails(http.StatusBadRequest, apperrors.CodeBadRequest,
			map[string]any{"param": "iteration", "value": raw},
			fmt.Errorf("iteration must be a non-negative integer, got %q", raw)))
		return 0, false
	}
	return n, true
}

func (h *RunsHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case completeness.IsCorruption(err):
		h.logger.Warn("Corrupt run artifacts", zap.String("root", h.root), zap.Error(err))
		err = apperrors.WithDetails(http.StatusUnprocessableEntity, apperrors.CodeUnprocessable,
			map[string]any{"root": h.root}, err)
	case provider.IsAccessDenied(err):
		err = apperrors.WithStatus(http.StatusServiceUnavailable, apperrors.CodeServiceUnavailable, err)
	default:
		h.logger.Error("Run check failed", zap.String("root", h.root), zap.Error(err))
	}
	respondWithError(w, r, err)
}
