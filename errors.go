// Package bqlog is a high-throughput structured logging core: a
// multi-producer/single-consumer lock-free log buffer with optional
// crash-survivable memory-mapped recovery, a zero-copy argument
// encoding, and an in-process snapshot ring.
package bqlog

import (
	"errors"
	"fmt"
)

// Error represents a structured bqlog error with operation context.
type Error struct {
	Op      string  // Operation that failed (e.g., "AllocWriteChunk", "TakeSnapshot")
	LogName string  // Buffer this error concerns ("" if not applicable)
	Code    ErrCode // High-level error category
	Msg     string  // Human-readable message
	Inner   error   // Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.LogName != "" {
		return fmt.Sprintf("bqlog: %s: %s (log=%s)", e.Op, msg, e.LogName)
	}
	return fmt.Sprintf("bqlog: %s: %s", e.Op, msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support based on error code, so callers can
// compare against a sentinel *Error built via NewError without caring
// about Op or the wrapped Inner error.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ErrCode enumerates the error taxonomy from the core's result codes:
// allocation-transient, allocation-exhausted, size-invalid,
// buffer-uninitialized, corruption-detected, and recovery-invalid.
type ErrCode string

const (
	ErrCodeWaitAndRetry       ErrCode = "wait_and_retry"
	ErrCodeNotEnoughSpace     ErrCode = "not_enough_space"
	ErrCodeSizeInvalid        ErrCode = "size_invalid"
	ErrCodeBufferUninit       ErrCode = "buffer_uninitialized"
	ErrCodeCorruptionDetected ErrCode = "corruption_detected"
	ErrCodeRecoveryInvalid    ErrCode = "recovery_invalid"
	ErrCodeClosed             ErrCode = "closed"
	ErrCodeInvalidParams      ErrCode = "invalid_parameters"
)

// Legacy-style sentinel error values for simple == comparisons, carried
// over in shape from the teacher's UblkError even though bqlog's own
// code paths prefer the structured *Error / errors.Is(..., code).
type SentinelError string

func (e SentinelError) Error() string { return string(e) }

const (
	ErrEmpty             SentinelError = "log buffer is empty"
	ErrInvalidParameters SentinelError = "invalid parameters"
	ErrNotInitialized    SentinelError = "log buffer not initialized"
)

// NewError creates a structured error for operation op.
func NewError(op string, code ErrCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewBufferError creates a structured error scoped to a named buffer.
func NewBufferError(op, logName string, code ErrCode, msg string) *Error {
	return &Error{Op: op, LogName: logName, Code: code, Msg: msg}
}

// WrapError wraps inner with bqlog operation context, promoting the
// inner *Error's fields rather than nesting when inner is already
// structured.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if be, ok := inner.(*Error); ok {
		return &Error{Op: op, LogName: be.LogName, Code: be.Code, Msg: be.Msg, Inner: be.Inner}
	}
	return &Error{Op: op, Code: ErrCodeCorruptionDetected, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is (or wraps) a *Error carrying code.
func IsCode(err error, code ErrCode) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}
