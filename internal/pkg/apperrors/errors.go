package apperrors

import "errors"

// Common errors
var (
	// Resource errors
	ErrResourceNotFound = errors.New("resource not found")
	ErrConflict         = errors.New("conflict")

	// Authentication errors
	ErrTokenExpired    = errors.New("token expired")
	ErrTokenInvalid    = errors.New("invalid token")
	ErrInvalidFormat   = errors.New("invalid token format")
	ErrIdentityMissing = errors.New("student identity missing")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrBadRequest       = errors.New("bad request")

	// Remote collaborator errors
	ErrRemote = errors.New("remote backend request failed")
)

// Course and registration errors
var (
	ErrCourseNotFound       = NewResourceNotFoundError("course not found")
	ErrRegistrationNotFound = NewResourceNotFoundError("registration not found")
)

// Registration rule violations. These are rejected locally before any remote call.
var (
	ErrMaxCoursesReached = NewConflictError("maximum number of registered courses reached")
	ErrAlreadyRegistered = NewConflictError("course already registered")
	ErrCourseFull        = NewConflictError("course is full")
	ErrNotRegistered     = NewConflictError("course is not registered")
	ErrActionInProgress  = NewConflictError("another registration action is in progress")
)

// NewResourceNotFoundError creates a new custom error for resource not found with a message
func NewResourceNotFoundError(message string) error {
	return &CustomError{
		Err:     ErrResourceNotFound,
		Message: message,
	}
}

// NewConflictError creates a new custom error for conflict situations with a message
func NewConflictError(message string) error {
	return &CustomError{
		Err:     ErrConflict,
		Message: message,
	}
}

// NewRemoteError marks err as a failure of the remote backend.
func NewRemoteError(op string, err error) error {
	return &CustomError{
		Err:     errors.Join(ErrRemote, err),
		Message: op + ": " + err.Error(),
	}
}

// IsRejection reports whether err is a local rule violation rather than a remote failure.
func IsRejection(err error) bool {
	return Is(err, ErrMaxCoursesReached, ErrAlreadyRegistered, ErrCourseFull, ErrNotRegistered, ErrActionInProgress)
}

// Is returns whether target matches any of the errors in errList
func Is(err, target error, errList ...error) bool {
	if errors.Is(err, target) {
		return true
	}

	for _, e := range errList {
		if errors.Is(err, e) {
			return true
		}
	}

	return false
}

// CustomError represents application-specific errors with additional context
type CustomError struct {
	Err     error
	Message string
}

// Error implements error interface
func (e *CustomError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap implements errors.Unwrap interface
func (e *CustomError) Unwrap() error {
	return e.Err
}
