package rbridge

import (
	"errors"
	"fmt"
)

// Channel-level sentinels. These are returned by [Channel] operations and
// wrapped into Error-kinded results by the Dispatcher before they reach a
// submitting caller.
var (
	// ErrClosed is returned by Send after Close, and by Receive once the
	// channel is both closed and fully drained.
	ErrClosed = errors.New("rbridge: channel closed")

	// ErrWouldBlock is returned by a no-wait Receive on an empty channel.
	ErrWouldBlock = errors.New("rbridge: no request pending")

	// ErrTimedOut is returned by a bounded Receive that expired, and by a
	// producer whose completion wait exceeded the submit timeout.
	ErrTimedOut = errors.New("rbridge: wait timed out")

	// ErrNotInitialized is returned when Submit is called on a nil or
	// already-closed Dispatcher.
	ErrNotInitialized = errors.New("rbridge: dispatcher not initialized")
)

// ErrorCode classifies an [EvalError] for programmatic handling. The codes
// cover both dispatch failures (timeouts, shutdown, reentrance) and payload
// failures reported by the embedded runtime itself.
type ErrorCode string

const (
	CodeClosed               ErrorCode = "Closed"
	CodeTimedOut             ErrorCode = "TimedOut"
	CodeNotInitialized       ErrorCode = "NotInitialized"
	CodeReentrance           ErrorCode = "Reentrance"
	CodeProtectedCallAborted ErrorCode = "ProtectedCallAborted"
	CodeTypeMismatch         ErrorCode = "TypeMismatch"
	CodeParse                ErrorCode = "ParseError"
	CodeEvaluation           ErrorCode = "EvaluationError"
)

// ErrEval is a sentinel for use with errors.Is to check whether any error in
// a chain is an *EvalError.
var ErrEval = &EvalError{}

// EvalError is the error payload carried by an Error-kinded [TypedResult].
type EvalError struct {
	Code    ErrorCode
	Message string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is supports errors.Is by matching any *EvalError target, or one with the
// same code.
func (e *EvalError) Is(target error) bool {
	t, ok := target.(*EvalError)
	if !ok {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// evalErrorf builds an *EvalError with a formatted message.
func evalErrorf(code ErrorCode, format string, args ...any) *EvalError {
	return &EvalError{Code: code, Message: fmt.Sprintf(format, args...)}
}
