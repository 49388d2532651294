package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	gferrors "github.com/fulmenhq/gofulmen/errors"
)

// HTTP error codes.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeUnprocessable      = "UNPROCESSABLE_ENTITY"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// HTTPError is the body of an error response.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// HTTPErrorResponse is the envelope of every error response.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// StatusError attaches an HTTP status and code to an error.
type StatusError struct {
	Status  int
	Code    string
	Details map[string]any
	Err     error
}

func (e *StatusError) Error() string {
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// WithStatus wraps err so RespondWithError reports it with status and code.
func WithStatus(status int, code string, err error) error {
	return &StatusError{Status: status, Code: code, Err: err}
}

// NewEnvelope builds the error envelope for a request. The chi request id,
// when present, becomes the correlation id; details become the envelope
// context.
func NewEnvelope(r *http.Request, code, message string, details map[string]any) *gferrors.ErrorEnvelope {
	env := gferrors.NewErrorEnvelope(code, message)
	if r != nil {
		if id := middleware.GetReqID(r.Context()); id != "" {
			env = env.WithCorrelationID(id)
		}
	}
	if len(details) > 0 {
		if withCtx, err := env.WithContext(details); err == nil {
			env = withCtx
		}
	}
	return env
}

// WriteEnvelope writes env as {"error": {...}} with the given status.
func WriteEnvelope(w http.ResponseWriter, env *gferrors.ErrorEnvelope, status int) {
	body := HTTPErrorResponse{Error: HTTPError{
		Code:      env.Code,
		Message:   env.Message,
		Details:   env.Context,
		RequestID: env.CorrelationID,
	}}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError writes a JSON error envelope.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	WriteEnvelope(w, NewEnvelope(r, code, message, details), status)
}

// WithDetails wraps err like WithStatus and attaches response details.
func WithDetails(status int, code string, details map[string]any, err error) error {
	return &StatusError{Status: status, Code: code, Details: details, Err: err}
}

// RespondWithError writes err as a JSON envelope. A *StatusError supplies
// the status and code; anything else is a 500.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var se *StatusError
	if errors.As(err, &se) {
		WriteError(w, r, se.Status, se.Code, se.Err.Error(), se.Details)
		return
	}
	WriteError(w, r, http.StatusInternalServerError, CodeInternal, err.Error(), nil)
}

// NotFoundHandler answers unknown routes.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusNotFound, CodeNotFound, "resource not found", map[string]any{"path": r.URL.Path})
}

// MethodNotAllowedHandler answers known routes hit with the wrong method.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed", map[string]any{"method": r.Method})
}
