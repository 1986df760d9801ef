package api

import (
	"encoding/json"
	"net/http"

	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/common/logger"

	"github.com/go-chi/chi/v5/middleware"
)

type errorBody struct {
	Error     string              `json:"error"`
	Message   string              `json:"message"`
	Details   string              `json:"details,omitempty"`
	Fields    []errors.FieldError `json:"fields,omitempty"`
	Retryable bool                `json:"retryable,omitempty"`
	RequestID string              `json:"requestId,omitempty"`
}

// StatusFor maps an error code to the HTTP status the API answers with.
func StatusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeValidationFailed:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case errors.ErrCodeAccessDenied:
		return http.StatusForbidden
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict, errors.ErrCodeInvalidTransition, errors.ErrCodeDuplicateNumber:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, log logger.Logger, err error) {
	stdErr := errors.Normalize(err)
	status := StatusFor(stdErr.Code)

	body := errorBody{
		Error:     string(stdErr.Code),
		Message:   stdErr.Message,
		Fields:    stdErr.Fields,
		Retryable: stdErr.Retryable,
		RequestID: middleware.GetReqID(r.Context()),
	}
	if status < http.StatusInternalServerError {
		body.Details = stdErr.Details
	} else {
		// Internal details stay in the log.
		log.Error("request failed", map[string]interface{}{
			"requestId": body.RequestID,
			"method":    r.Method,
			"path":      r.URL.Path,
			"errorCode": string(stdErr.Code),
			"details":   stdErr.Details,
		})
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(field, message string) error {
	return errors.NewValidationError([]errors.FieldError{{Field: field, Code: "INVALID_VALUE", Message: message}})
}
