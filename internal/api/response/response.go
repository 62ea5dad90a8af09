// Package response writes JSON bodies and RFC 7807 Problem Details errors.
package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/formbricks/forms/internal/huberrors"
)

// ErrorDetail represents a single error detail in RFC 7807 Problem Details
type ErrorDetail struct {
	Location string `json:"location,omitempty"`
	Message  string `json:"message,omitempty"`
	Value    any    `json:"value,omitempty"`
}

// ProblemDetails represents an RFC 7807 Problem Details error response
type ProblemDetails struct {
	Type     string        `json:"type,omitempty"`
	Title    string        `json:"title"`
	Status   int           `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Instance string        `json:"instance,omitempty"`
	Errors   []ErrorDetail `json:"errors,omitempty"`
}

// RespondProblem writes problem as application/problem+json.
func RespondProblem(w http.ResponseWriter, problem ProblemDetails) {
	if problem.Type == "" {
		problem.Type = "about:blank"
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// RespondError writes an RFC 7807 Problem Details error response
func RespondError(w http.ResponseWriter, statusCode int, title string, detail string) {
	RespondProblem(w, ProblemDetails{Title: title, Status: statusCode, Detail: detail})
}

// RespondBadRequest writes a 400 Bad Request error response
func RespondBadRequest(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusBadRequest, "Bad Request", detail)
}

// RespondUnauthorized writes a 401 Unauthorized error response
func RespondUnauthorized(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// RespondNotFound writes a 404 Not Found error response
func RespondNotFound(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusNotFound, "Not Found", detail)
}

// RespondTooManyRequests writes a 429 Too Many Requests error response
func RespondTooManyRequests(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusTooManyRequests, "Too Many Requests", detail)
}

// RespondInternalServerError writes a 500 Internal Server Error response
func RespondInternalServerError(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusInternalServerError, "Internal Server Error", detail)
}

// RespondServiceError maps errors returned by the services to a status code.
// Unknown errors are logged and answered with 500 without leaking details.
func RespondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *huberrors.ValidationError
		nerr *huberrors.NavigationError
	)

	switch {
	case errors.As(err, &verr):
		RespondProblem(w, ProblemDetails{
			Title:  "Validation Error",
			Status: http.StatusUnprocessableEntity,
			Detail: verr.Error(),
			Errors: validationDetails(verr),
		})
	case errors.As(err, &nerr):
		RespondProblem(w, ProblemDetails{
			Title:  "Navigation Not Allowed",
			Status: http.StatusConflict,
			Detail: nerr.Error(),
		})
	case errors.Is(err, huberrors.ErrNotFound):
		RespondNotFound(w, err.Error())
	case errors.Is(err, huberrors.ErrAlreadySubmitted):
		RespondError(w, http.StatusConflict, "Already Submitted", err.Error())
	case errors.Is(err, huberrors.ErrConflict):
		RespondError(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, huberrors.ErrLimitExceeded):
		w.Header().Set("Retry-After", "30")
		RespondError(w, http.StatusServiceUnavailable, "Service Unavailable", err.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		RespondInternalServerError(w, "An unexpected error occurred")
	}
}

func validationDetails(err *huberrors.ValidationError) []ErrorDetail {
	if len(err.Fields) == 0 {
		if err.Field == "" {
			return nil
		}

		return []ErrorDetail{{Location: err.Field, Message: err.Error()}}
	}

	details := make([]ErrorDetail, 0, len(err.Fields))
	for _, f := range err.Fields {
		details = append(details, ErrorDetail{Location: f.FieldID, Message: f.Message})
	}

	return details
}

// RespondJSON writes a JSON response directly without wrapping
func RespondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}
