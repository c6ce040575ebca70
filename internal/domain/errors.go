package domain

import "errors"

// Kind classifies every failure a service operation can return to a caller.
// All kinds except KindStorageUnavailable are recoverable by the caller.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindDuplicateEmail     Kind = "duplicate_email"
	KindPasswordMismatch   Kind = "password_mismatch"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindAccountLocked      Kind = "account_locked"
	KindAccountInactive    Kind = "account_inactive"
	KindPermissionDenied   Kind = "permission_denied"
	KindInvalidState       Kind = "invalid_state"
	KindSchedulingConflict Kind = "scheduling_conflict"
	KindSelfAction         Kind = "self_action"
	KindValidationFailed   Kind = "validation_failed"
	KindStorageUnavailable Kind = "storage_unavailable"
)

// Error is the typed failure returned by the admin and appointment services.
// Fields carries per-field messages for KindValidationFailed.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Storage wraps an unexpected lower-layer failure.
func Storage(err error) *Error {
	return &Error{Kind: KindStorageUnavailable, Message: "storage unavailable", cause: err}
}

// IsKind reports whether err is a domain Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}

// KindOf extracts the kind of a domain Error, or KindStorageUnavailable for
// anything unrecognized coming out of a service.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindStorageUnavailable
}
