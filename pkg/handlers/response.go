package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/apperrors"
)

// ApiResponse is the standard envelope for successful JSON responses.
type ApiResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// TenantMiddleware wraps a handler with a tenant-scoped database connection.
// Matches the signature of database.WithTenantContext.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// ServiceError maps a service-layer error onto an HTTP error response using
// the apperrors sentinels. Unknown errors become a 500 with the fallback
// message so internals never leak to clients.
func ServiceError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	statusCode := http.StatusInternalServerError
	errorCode := "internal_error"
	message := fallback

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		statusCode = http.StatusNotFound
		errorCode = "not_found"
		message = err.Error()
	case errors.Is(err, apperrors.ErrNotInstalled):
		statusCode = http.StatusNotFound
		errorCode = "not_installed"
		message = err.Error()
	case errors.Is(err, apperrors.ErrAlreadyInstalled):
		statusCode = http.StatusConflict
		errorCode = "already_installed"
		message = err.Error()
	case errors.Is(err, apperrors.ErrConflict):
		statusCode = http.StatusConflict
		errorCode = "conflict"
		message = err.Error()
	case errors.Is(err, apperrors.ErrInactiveDefinition):
		statusCode = http.StatusConflict
		errorCode = "inactive_definition"
		message = err.Error()
	case errors.Is(err, apperrors.ErrInstallNotActive):
		statusCode = http.StatusConflict
		errorCode = "install_not_active"
		message = err.Error()
	case errors.Is(err, apperrors.ErrUntrustedExtension):
		statusCode = http.StatusForbidden
		errorCode = "untrusted_extension"
		message = err.Error()
	}

	if writeErr := ErrorResponse(w, statusCode, errorCode, message); writeErr != nil {
		logger.Error("Failed to write error response", zap.Error(writeErr))
	}
}
