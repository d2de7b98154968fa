package acl

import "fmt"

// ErrorCode identifies a protocol-level failure carried in an ERROR payload.
type ErrorCode string

const (
	ErrValidation            ErrorCode = "VALIDATION_ERROR"
	ErrLanguageNotJSON       ErrorCode = "LANGUAGE_NOT_JSON"
	ErrPayloadTooLarge       ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrBodyTooLarge          ErrorCode = "BODY_TOO_LARGE"
	ErrIdle                  ErrorCode = "IDLE"
	ErrUnknownSlot           ErrorCode = "UNKNOWN_SLOT"
	ErrTimeout               ErrorCode = "TIMEOUT"
	ErrDownstreamUnavailable ErrorCode = "DOWNSTREAM_UNAVAILABLE"
	ErrUnsupportedMessage    ErrorCode = "UNSUPPORTED_MESSAGE"
	ErrUnknown               ErrorCode = "UNKNOWN"
)

// ErrorMessages maps error codes to their human-readable default text.
// Replies built from a bare code use these.
var ErrorMessages = map[ErrorCode]string{
	ErrValidation:            "Message validation failed",
	ErrLanguageNotJSON:       "ACL language must be JSON",
	ErrPayloadTooLarge:       "Payload too large",
	ErrBodyTooLarge:          "Body too large",
	ErrIdle:                  "No activity (idle)",
	ErrUnknownSlot:           "Unknown slot",
	ErrTimeout:               "Operation timed out",
	ErrDownstreamUnavailable: "Downstream service unavailable",
	ErrUnsupportedMessage:    "Unsupported payload type",
	ErrUnknown:               "Unknown error",
}

// ValidationError is returned by every constructor and decode path when an
// envelope violates a structural or semantic invariant. Details carry enough
// context (offending field, allowed values) for the sender to self-correct.
type ValidationError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewValidationError creates a ValidationError with code VALIDATION_ERROR.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Code: ErrValidation, Message: message}
}

// WithDetail attaches a context key/value pair.
func (e *ValidationError) WithDetail(key string, value any) *ValidationError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}
