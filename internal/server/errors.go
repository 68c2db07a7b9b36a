package server

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponse is the JSON body of every failed API call.
//
//	{
//	  "error": "Not Found",
//	  "code": "RESOURCE_NOT_FOUND",
//	  "message": "scan not found: 0b5c..."
//	}
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// statusFor maps a core error to its HTTP status and machine-readable code.
// Anything that is not caller input is reported as an internal error without
// leaking its text.
func statusFor(err error) (status int, code, message string) {
	var (
		validation *schemas.ValidationError
		notFound   *schemas.NotFoundError
		invalid    *schemas.InvalidStateError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "INVALID_INPUT", validation.Error()
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "INVALID_STATE", invalid.Error()
	case errors.As(err, &notFound):
		return http.StatusNotFound, "RESOURCE_NOT_FOUND", notFound.Error()
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

// WriteError writes the JSON error response for err and logs it.
func WriteError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status, code, message := statusFor(err)

	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("error_code", code),
		zap.Error(err),
	}
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("Internal server error", fields...)
	case status == http.StatusNotFound:
		logger.Debug("Resource not found", fields...)
	default:
		logger.Info("Client error", fields...)
	}

	WriteJSONError(w, logger, status, code, message)
}

// WriteJSONError writes an error body with an explicit status and code.
func WriteJSONError(w http.ResponseWriter, logger *zap.Logger, status int, code, message string) {
	WriteJSON(w, logger, status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    code,
		Message: message,
	})
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, logger *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}
