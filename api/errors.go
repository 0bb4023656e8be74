// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by channels, selection keys and selectors.

package api

import (
	"errors"
	"fmt"
)

// Channel and selector errors. The closed-channel family nests:
// ErrClosedByInterrupt wraps ErrAsynchronousClose, which wraps ErrClosedChannel,
// so errors.Is(err, ErrClosedChannel) holds for all three.
var (
	ErrClosedChannel       = errors.New("channel is closed")
	ErrAsynchronousClose   = fmt.Errorf("asynchronous close: %w", ErrClosedChannel)
	ErrClosedByInterrupt   = fmt.Errorf("closed by interrupt: %w", ErrAsynchronousClose)
	ErrIllegalBlockingMode = errors.New("illegal blocking mode")
	ErrCancelledKey        = errors.New("selection key is cancelled")
	ErrClosedSelector      = errors.New("selector is closed")
	ErrIllegalSelector     = errors.New("illegal selector")
	ErrNestedBlockingOp    = errors.New("blocking operation already in progress on this goroutine")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotSupported        = errors.New("operation not supported")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeClosedChannel
	ErrCodeIllegalBlockingMode
	ErrCodeCancelledKey
	ErrCodeClosedSelector
	ErrCodeIllegalSelector
	ErrCodeNotSupported
	ErrCodeInternal
)

var codeSentinels = map[ErrorCode]error{
	ErrCodeInvalidArgument:     ErrInvalidArgument,
	ErrCodeClosedChannel:       ErrClosedChannel,
	ErrCodeIllegalBlockingMode: ErrIllegalBlockingMode,
	ErrCodeCancelledKey:        ErrCancelledKey,
	ErrCodeClosedSelector:      ErrClosedSelector,
	ErrCodeIllegalSelector:     ErrIllegalSelector,
	ErrCodeNotSupported:        ErrNotSupported,
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Unwrap returns the sentinel matching the error code, if any.
func (e *Error) Unwrap() error {
	return codeSentinels[e.Code]
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
