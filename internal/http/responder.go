package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/studio-reminders/internal/application"
)

var (
	errBadRequestBody   = errors.New("request body is not valid JSON")
	errMissingSecret    = errors.New("trigger secret is required")
	errRequestBodyLarge = errors.New("request body is too large")
)

const maxRequestBody = 1 << 16

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, code string, err error) {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", errors.New("unknown error"))
		return
	}

	status, body := serviceErrorResponse(err)
	if status == http.StatusInternalServerError {
		r.loggerFor(ctx).ErrorContext(ctx, "unhandled service error", "error", err)
	}
	r.writeJSON(ctx, w, status, body)
}

// serviceErrorResponse maps an application error to its status and body.
// The action pages render the same messages as HTML.
func serviceErrorResponse(err error) (int, errorResponse) {
	var vErr *application.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   statusMessage(http.StatusUnprocessableEntity),
			Errors:    vErr.FieldErrors,
		}
	case errors.Is(err, application.ErrUnknownCategory):
		return http.StatusBadRequest, errorResponse{ErrorCode: "UNKNOWN_CATEGORY", Message: err.Error()}
	case errors.Is(err, application.ErrInvalidTokenKind):
		return http.StatusBadRequest, errorResponse{ErrorCode: "INVALID_TOKEN_KIND", Message: "This link cannot be used for that action."}
	case errors.Is(err, application.ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{ErrorCode: "UNAUTHORIZED", Message: statusMessage(http.StatusUnauthorized)}
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound, errorResponse{ErrorCode: "NOT_FOUND", Message: "This link is not valid."}
	case errors.Is(err, application.ErrTokenExpired):
		return http.StatusGone, errorResponse{ErrorCode: "TOKEN_EXPIRED", Message: "This link has expired."}
	case errors.Is(err, application.ErrTokenConsumed):
		return http.StatusConflict, errorResponse{ErrorCode: "TOKEN_USED", Message: "This link has already been used."}
	case errors.Is(err, application.ErrInvalidTransition):
		return http.StatusConflict, errorResponse{ErrorCode: "INVALID_TRANSITION", Message: "The booking can no longer be changed."}
	case errors.Is(err, application.ErrConflict):
		return http.StatusConflict, errorResponse{ErrorCode: "CONFLICT", Message: statusMessage(http.StatusConflict)}
	default:
		return http.StatusInternalServerError, errorResponse{ErrorCode: "INTERNAL", Message: err.Error()}
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "The request is malformed."
	case http.StatusUnauthorized:
		return "Authentication is required."
	case http.StatusNotFound:
		return "The requested resource was not found."
	case http.StatusConflict:
		return "The request conflicts with the current state of the resource."
	case http.StatusUnprocessableEntity:
		return "The request contains invalid fields."
	case http.StatusServiceUnavailable:
		return "The service is unavailable."
	default:
		return "An internal error occurred."
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errRequestBodyLarge
		}
		return errBadRequestBody
	}
	return nil
}
