package transport

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/devaloi/courier/internal/domain"
)

// StatusOf maps a domain error to its HTTP status.
func StatusOf(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeValidation, domain.CodeInvalidEvent:
		return http.StatusBadRequest
	case domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DomainError writes err using its mapped status and code.
// Server-side failures are logged and their details withheld from the client.
func DomainError(w http.ResponseWriter, log *zap.Logger, err error) {
	status, code := StatusOf(err), domain.CodeOf(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("code", code), zap.Error(err))
		WriteError(w, status, code, "an unexpected error occurred")
		return
	}
	log.Debug("request rejected", zap.String("code", code), zap.Error(err))
	WriteError(w, status, code, err.Error())
}
