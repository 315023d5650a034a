package errors

import "fmt"

// ErrorCode represents a levelup error code.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"      // 400
	ErrNotFound            ErrorCode = "NOT_FOUND"            // 404
	ErrInvalidTransition   ErrorCode = "INVALID_TRANSITION"   // 409
	ErrInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE" // 409
	ErrPendingCredit       ErrorCode = "PENDING_CREDIT"       // 409
	ErrMalformedSnapshot   ErrorCode = "MALFORMED_SNAPSHOT"   // 422
	ErrMalformedHistory    ErrorCode = "MALFORMED_HISTORY"    // 422
	ErrStorageFailure      ErrorCode = "STORAGE_FAILURE"      // 500
	ErrCoachUnavailable    ErrorCode = "COACH_UNAVAILABLE"    // 502
	ErrInternal            ErrorCode = "INTERNAL"             // 500
)

// LevelError represents a structured error with code, status, and details.
type LevelError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *LevelError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *LevelError {
	return &LevelError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing record.
func NewNotFound(identifier string) *LevelError {
	return &LevelError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("record not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewInvalidTransition creates a 409 error for a state-machine transition
// that is not allowed from the current phase. The machine is unchanged.
func NewInvalidTransition(op, phase string) *LevelError {
	return &LevelError{
		Code:    ErrInvalidTransition,
		Status:  409,
		Message: fmt.Sprintf("cannot %s while %s", op, phase),
		Details: map[string]any{"operation": op, "phase": phase},
	}
}

// NewInsufficientBalance creates a 409 error for gaming attempts with no
// earned balance. A countdown can never be banked before the currency
// backing it exists.
func NewInsufficientBalance(balanceMinutes int) *LevelError {
	return &LevelError{
		Code:    ErrInsufficientBalance,
		Status:  409,
		Message: "game balance is empty; earn time with a focus session first",
		Details: map[string]any{"balance_minutes": balanceMinutes},
	}
}

// NewPendingCredit creates a 409 error for operations blocked by an
// unresolved focus credit (the session note has not been committed or
// discarded yet).
func NewPendingCredit(token string) *LevelError {
	return &LevelError{
		Code:    ErrPendingCredit,
		Status:  409,
		Message: "a completed focus session is awaiting its log entry; commit or discard it first",
		Details: map[string]any{"token": token},
	}
}

// NewMalformedSnapshot creates a 422 error for a durable timer snapshot that
// fails validation on load. Callers discard it and fall back to defaults.
func NewMalformedSnapshot(reason string) *LevelError {
	return &LevelError{
		Code:    ErrMalformedSnapshot,
		Status:  422,
		Message: fmt.Sprintf("stored timer snapshot is invalid: %s", reason),
		Details: map[string]any{"reason": reason},
	}
}

// NewMalformedHistory creates a 422 error for history records that fail
// validation during import.
func NewMalformedHistory(reason string) *LevelError {
	return &LevelError{
		Code:    ErrMalformedHistory,
		Status:  422,
		Message: fmt.Sprintf("history record is invalid: %s", reason),
		Details: map[string]any{"reason": reason},
	}
}

// NewStorageFailure creates a 500 error for a failed durable read/write.
// In-memory state is rolled back by the caller; persistence guarantees are
// lost until the next successful write.
func NewStorageFailure(err error) *LevelError {
	msg := "durable storage failure"
	if err != nil {
		msg = fmt.Sprintf("durable storage failure: %v", err)
	}
	return &LevelError{
		Code:    ErrStorageFailure,
		Status:  500,
		Message: msg,
	}
}

// NewCoachUnavailable creates a 502 error for coach endpoint failures.
func NewCoachUnavailable(err error) *LevelError {
	msg := "coach endpoint unavailable"
	if err != nil {
		msg = fmt.Sprintf("coach endpoint unavailable: %v", err)
	}
	return &LevelError{
		Code:    ErrCoachUnavailable,
		Status:  502,
		Message: msg,
	}
}

// NewFileNotFound creates a 404 error for a missing backup file.
func NewFileNotFound(path string) *LevelError {
	return &LevelError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *LevelError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &LevelError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a LevelError with the given code.
func Is(err error, code ErrorCode) bool {
	if lErr, ok := err.(*LevelError); ok {
		return lErr.Code == code
	}
	return false
}
