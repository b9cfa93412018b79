package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/diagnosis/ukrbe-market/internal/apperr"
	"github.com/diagnosis/ukrbe-market/pkg/logger"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string     `json:"error"`
	Code    string     `json:"code,omitempty"`
	Details string     `json:"details,omitempty"`
	ResetAt *time.Time `json:"reset_at,omitempty"`
}

// WriteJSON writes v with statusCode
func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// WriteErrorWithDetails writes a structured JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message, code, details string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code, Details: details})
}

// Common error codes
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "CONFLICT"
	CodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	CodeInternalError = "INTERNAL_ERROR"
	CodeExpiredToken  = "EXPIRED_TOKEN"
	CodeInvalidToken  = "INVALID_TOKEN"
	CodeNotConfigured = "BACKEND_NOT_CONFIGURED"
	CodeUnavailable   = "SERVICE_UNAVAILABLE"
	CodeStale         = "STALE_DATA"
)

// Status returns the HTTP status and error code for err's kind.
func Status(err error) (int, string) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest, CodeInvalidInput
	case apperr.KindRateLimit:
		return http.StatusTooManyRequests, CodeRateLimit
	case apperr.KindNotConfigured:
		return http.StatusNotImplemented, CodeNotConfigured
	case apperr.KindNotFound:
		return http.StatusNotFound, CodeNotFound
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized, CodeUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden, CodeForbidden
	case apperr.KindConflict:
		return http.StatusConflict, CodeConflict
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		return http.StatusBadGateway, CodeUnavailable
	}
	return http.StatusInternalServerError, CodeInternalError
}

// FromError writes err using its apperr kind. Unclassified errors are logged
// and reported without their text.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := Status(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		resp.Error = ae.Message
		if !ae.ResetAt.IsZero() {
			resetAt := ae.ResetAt
			resp.ResetAt = &resetAt
		}
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		if code == CodeInternalError {
			resp.Error = "internal error"
		}
	}
	WriteJSON(w, status, resp)
}

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}

func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeConflict)
}
