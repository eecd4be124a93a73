package errors

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations
var (
	// Authentication & Authorization
	ErrForbidden    = errors.New("action forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// Ticket validation
	ErrTicketNotFound          = errors.New("ticket not found")
	ErrTitleRequired           = errors.New("title is required")
	ErrTitleTooLong            = errors.New("title exceeds maximum length of 255 characters")
	ErrDescriptionTooLong      = errors.New("description exceeds maximum length")
	ErrInvalidPriority         = errors.New("invalid ticket priority")
	ErrInvalidStatus           = errors.New("invalid ticket status")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrCannotAssignClosed      = errors.New("cannot assign a closed ticket")
	ErrTicketReadOnly          = errors.New("ticket is assigned to another agent")
	ErrTicketNotWorkable       = errors.New("ticket is resolved or closed")

	// Messages
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageContentEmpty  = errors.New("message content is required")
	ErrMessageTooLong       = errors.New("message content exceeds maximum length")
	ErrInvalidSenderType    = errors.New("invalid sender type")

	// Worklogs
	ErrWorklogAlreadyActive = errors.New("a worklog session is already active for this ticket")
	ErrNoActiveWorklog      = errors.New("no active worklog session for this ticket")
	ErrStopReasonRequired   = errors.New("a stop reason is required")
	ErrUnknownStopReason    = errors.New("unknown stop reason")
	ErrWorklogBusy          = errors.New("a worklog request is already in flight")

	// Channel
	ErrNotConnected = errors.New("channel is not connected")

	// Generic
	ErrNotFound    = errors.New("resource not found")
	ErrInternal    = errors.New("internal server error")
	ErrBadRequest  = errors.New("bad request")
	ErrConflict    = errors.New("resource conflict")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error constructors for common cases
func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		StatusCode: 401,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		StatusCode: 403,
	}
}

func NewNotFoundError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "NOT_FOUND",
		StatusCode: 404,
	}
}

func NewConflictError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "CONFLICT",
		StatusCode: 409,
	}
}

func NewRateLimitError() *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    "Too many requests. Please try again later.",
		Code:       "RATE_LIMITED",
		StatusCode: 429,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "An unexpected error occurred",
		Code:       "INTERNAL_ERROR",
		StatusCode: 500,
	}
}

// ValidationErrors holds multiple field validation errors
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d field(s) have errors", len(v.Errors))
}

// codeErrors maps machine-readable error codes to sentinels so that API
// clients can recover typed errors from a JSON error body.
var codeErrors = map[string]error{
	"UNAUTHORIZED":              ErrUnauthorized,
	"FORBIDDEN":                 ErrForbidden,
	"TICKET_NOT_FOUND":          ErrTicketNotFound,
	"CONVERSATION_NOT_FOUND":    ErrConversationNotFound,
	"INVALID_STATUS_TRANSITION": ErrInvalidStatusTransition,
	"CANNOT_ASSIGN_CLOSED":      ErrCannotAssignClosed,
	"TICKET_READ_ONLY":          ErrTicketReadOnly,
	"TICKET_NOT_WORKABLE":       ErrTicketNotWorkable,
	"WORKLOG_ALREADY_ACTIVE":    ErrWorklogAlreadyActive,
	"NO_ACTIVE_WORKLOG":         ErrNoActiveWorklog,
	"UNKNOWN_STOP_REASON":       ErrUnknownStopReason,
	"STOP_REASON_REQUIRED":      ErrStopReasonRequired,
	"RATE_LIMITED":              ErrRateLimited,
	"VALIDATION_ERROR":          ErrBadRequest,
	"BAD_REQUEST":               ErrBadRequest,
	"NOT_FOUND":                 ErrNotFound,
	"CONFLICT":                  ErrConflict,
}

// FromCode returns the sentinel error registered for an API error code,
// or ErrInternal when the code is unknown.
func FromCode(code string) error {
	if err, ok := codeErrors[code]; ok {
		return err
	}
	return ErrInternal
}
