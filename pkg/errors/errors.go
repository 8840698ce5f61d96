package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

const (
	// ErrCodeUnknown represents an unknown error
	ErrCodeUnknown ErrorCode = 1000

	// Transport errors (1100-1199)
	ErrCodeConnectionFailed ErrorCode = 1100
	ErrCodeNotConnected     ErrorCode = 1101
	ErrCodeHandshakeFailed  ErrorCode = 1102
	ErrCodeProtocolError    ErrorCode = 1103
	ErrCodeDisconnected     ErrorCode = 1104
	ErrCodeTimeout          ErrorCode = 1105

	// Dispatch and usage errors (2000-2999)
	ErrCodeInvalidEvent          ErrorCode = 2000
	ErrCodeMissingRoomID         ErrorCode = 2001
	ErrCodeDuplicateRegistration ErrorCode = 2002
	ErrCodeInvalidArgument       ErrorCode = 2003
	ErrCodeRateLimited           ErrorCode = 2004
	ErrCodeUnauthenticated       ErrorCode = 2005

	// Player errors (3000-3999)
	ErrCodeEngineInit       ErrorCode = 3000
	ErrCodeManifestLoad     ErrorCode = 3001
	ErrCodeUnknownQuality   ErrorCode = 3002
	ErrCodePlayerDestroyed  ErrorCode = 3003
	ErrCodeRetriesExhausted ErrorCode = 3004
	ErrCodeInvalidState     ErrorCode = 3005
	ErrCodeNoSurface        ErrorCode = 3006

	// Configuration errors (4000-4999)
	ErrCodeInvalidConfig ErrorCode = 4000
	ErrCodeMissingConfig ErrorCode = 4001

	// Backend API errors (5000-5999)
	ErrCodeRequestFailed ErrorCode = 5000
	ErrCodeUnauthorized  ErrorCode = 5001
	ErrCodeNotFound      ErrorCode = 5002
	ErrCodeBadResponse   ErrorCode = 5003
)

// Error represents a custom error with code and message
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a code and message
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Code returns the code of the first *Error in err's chain, or ErrCodeUnknown.
func Code(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeUnknown
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && stderrors.Is(err, &Error{Code: code})
}

// Common errors
var (
	ErrNotConnected    = New(ErrCodeNotConnected, "socket not connected")
	ErrMissingRoomID   = New(ErrCodeMissingRoomID, "room id is required")
	ErrUnknownQuality  = New(ErrCodeUnknownQuality, "unknown quality")
	ErrPlayerDestroyed = New(ErrCodePlayerDestroyed, "player destroyed")
	ErrUnauthenticated = New(ErrCodeUnauthenticated, "session is not authenticated")
)

// NewNotConnectedError reports an emit attempted while the channel is down.
func NewNotConnectedError(channel, event string) *Error {
	return &Error{
		Code:    ErrCodeNotConnected,
		Message: fmt.Sprintf("%s socket not connected, dropping %s", channel, event),
	}
}

// NewUnknownQualityError reports a quality name absent from the variant list.
func NewUnknownQualityError(name string) *Error {
	return &Error{
		Code:    ErrCodeUnknownQuality,
		Message: fmt.Sprintf("quality not found: %s", name),
	}
}

// NewInvalidArgumentError reports a usage error on a named argument.
func NewInvalidArgumentError(arg, reason string) *Error {
	return &Error{
		Code:    ErrCodeInvalidArgument,
		Message: fmt.Sprintf("invalid %s: %s", arg, reason),
	}
}
