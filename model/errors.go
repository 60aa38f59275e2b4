package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest           = "BAD_REQUEST"
	ErrNotFound             = "NOT_FOUND"
	ErrConflict             = "CONFLICT"
	ErrValidationError      = "VALIDATION_ERROR"
	ErrPayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	ErrUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	ErrFetchFailed          = "FETCH_FAILED"
	ErrInternalError        = "INTERNAL_ERROR"
	ErrBackendUnavailable   = "BACKEND_UNAVAILABLE"
	ErrBackendTimeout       = "BACKEND_TIMEOUT"
)

// Session-specific error codes.
const (
	ErrSessionNotFound  = "SESSION_NOT_FOUND"
	ErrSessionNotActive = "SESSION_NOT_ACTIVE"
)

// NonFieldErrorKey is the FieldError.Field value used for messages that are
// not attached to a specific form control.
const NonFieldErrorKey = "__all__"

// ErrorEnvelope is the standard error returned by the engine and serialized
// by the HTTP layer. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldMessages groups the details by field name, preserving message order.
func (e *ErrorEnvelope) FieldMessages() map[string][]string {
	if len(e.Details) == 0 {
		return nil
	}
	out := make(map[string][]string)
	for _, d := range e.Details {
		out[d.Field] = append(out[d.Field], d.Message)
	}
	return out
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewPayloadTooLargeError returns the fixed message for HTTP 413 responses.
func NewPayloadTooLargeError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrPayloadTooLarge,
		Message: "The uploaded file is too large.",
	}
}

// NewUnsupportedMediaTypeError returns the fixed message for HTTP 415 responses.
func NewUnsupportedMediaTypeError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrUnsupportedMediaType,
		Message: "The uploaded file type is not supported.",
	}
}

// NewFetchFailedError returns a FETCH_FAILED error for a failed record or
// list load.
func NewFetchFailedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrFetchFailed, Message: msg}
}

// NewSessionNotFoundError returns a SESSION_NOT_FOUND error.
func NewSessionNotFoundError(id string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrSessionNotFound,
		Message: fmt.Sprintf("edit session %q not found", id),
	}
}

// NewSessionNotActiveError returns a SESSION_NOT_ACTIVE error.
func NewSessionNotActiveError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrSessionNotActive,
		Message: "No edit session is active",
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewBackendUnavailableError returns a BACKEND_UNAVAILABLE error.
func NewBackendUnavailableError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendUnavailable,
		Message: "The backend service is temporarily unavailable",
	}
}

// NewBackendTimeoutError returns a BACKEND_TIMEOUT error.
func NewBackendTimeoutError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendTimeout,
		Message: "The backend service did not respond in time",
	}
}
