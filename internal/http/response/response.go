package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinichub/clinic-backend/internal/domain"
)

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// Error writes a plain error envelope.
func Error(w http.ResponseWriter, statusCode int, message string) {
	JSON(w, statusCode, map[string]string{"error": message})
}

// DomainError maps a typed failure onto its HTTP status. Unknown errors are
// reported as 500 without leaking internals.
func DomainError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	body := map[string]interface{}{
		"error": de.Message,
		"code":  string(de.Kind),
	}
	if len(de.Fields) > 0 {
		body["fields"] = de.Fields
	}
	JSON(w, statusFor(de.Kind), body)
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindDuplicateEmail, domain.KindInvalidState, domain.KindSchedulingConflict:
		return http.StatusConflict
	case domain.KindPasswordMismatch, domain.KindSelfAction, domain.KindValidationFailed:
		return http.StatusBadRequest
	case domain.KindInvalidCredentials:
		return http.StatusUnauthorized
	case domain.KindAccountLocked:
		return http.StatusLocked
	case domain.KindAccountInactive, domain.KindPermissionDenied:
		return http.StatusForbidden
	case domain.KindStorageUnavailable:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
