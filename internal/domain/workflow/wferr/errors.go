// Package wferr declares the workflow error taxonomy. It lives below
// internal/domain/workflow so packages the workflow engine itself imports
// (such as domain/params) can raise these errors without creating an
// import cycle; package workflow re-exports every name via aliases.
package wferr

import (
	"errors"
	"fmt"
)

// ErrorKind classifies workflow failures. Every kind is fatal for the
// run that raised it; the engine never retries.
type ErrorKind string

const (
	// KindParameter marks invalid or conflicting run parameters.
	KindParameter ErrorKind = "parameter"
	// KindMode marks a mode whose preconditions do not hold.
	KindMode ErrorKind = "mode"
	// KindStage marks a failure inside a stage handler.
	KindStage ErrorKind = "stage"
	// KindNotFound marks a missing cache entry or historical record.
	KindNotFound ErrorKind = "not_found"
	// KindCacheIO marks a cache read, write, or lock failure.
	KindCacheIO ErrorKind = "cache_io"
)

// Error is the single error type crossing package boundaries in a run.
// Code is stable and machine-readable; Details carries the symbol, mode,
// and stage so the caller can report which run failed without parsing
// the message.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]interface{}
	cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetail attaches one detail entry and returns the error for chaining.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// Detail reads a detail entry, returning nil when absent.
func (e *Error) Detail(key string) interface{} {
	if e.Details == nil {
		return nil
	}
	return e.Details[key]
}

// NewParameterError reports an invalid or conflicting parameter.
func NewParameterError(message string) *Error {
	return &Error{Kind: KindParameter, Code: "PARAM_INVALID", Message: message}
}

// NewParameterTypeError reports a parameter whose override type does not
// match its default type.
func NewParameterTypeError(key, wantType, gotType string) *Error {
	e := &Error{
		Kind:    KindParameter,
		Code:    "PARAM_TYPE_MISMATCH",
		Message: fmt.Sprintf("parameter %q expects %s, got %s", key, wantType, gotType),
	}
	return e.WithDetail("key", key).WithDetail("want", wantType).WithDetail("got", gotType)
}

// NewModeError reports a mode whose preconditions are not met.
func NewModeError(mode, message string) *Error {
	e := &Error{Kind: KindMode, Code: "MODE_PRECONDITION", Message: message}
	return e.WithDetail("mode", mode)
}

// NewUnknownModeError reports a mode name outside the supported set.
func NewUnknownModeError(mode string) *Error {
	e := &Error{
		Kind:    KindMode,
		Code:    "MODE_UNKNOWN",
		Message: fmt.Sprintf("unknown mode %q", mode),
	}
	return e.WithDetail("mode", mode)
}

// NewStageError wraps a handler failure with the stage that raised it.
func NewStageError(stage string, cause error) *Error {
	e := &Error{
		Kind:    KindStage,
		Code:    "STAGE_FAILED",
		Message: fmt.Sprintf("stage %s failed", stage),
		cause:   cause,
	}
	return e.WithDetail("stage", stage)
}

// NewNotFoundError reports a missing cache entry or history record.
func NewNotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: message}
}

// NewCacheIOError wraps a cache read, write, or lock failure.
func NewCacheIOError(message string, cause error) *Error {
	return &Error{Kind: KindCacheIO, Code: "CACHE_IO", Message: message, cause: cause}
}

func kindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsParameterError checks if the error is a parameter error
func IsParameterError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindParameter
}

// IsModeError checks if the error is a mode precondition error
func IsModeError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindMode
}

// IsStageError checks if the error is a stage failure
func IsStageError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindStage
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

// IsCacheIOError checks if the error is a cache I/O error
func IsCacheIOError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindCacheIO
}

// FailedStage returns the stage name carried by a stage error, or "".
func FailedStage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindStage {
		if s, ok := e.Detail("stage").(string); ok {
			return s
		}
	}
	return ""
}
