package workflow

// The error taxonomy is declared in the wferr leaf package so that domain
// packages workflow itself imports (such as domain/params) can raise the
// same errors without an import cycle. The aliases and wrappers below keep
// workflow.Error and friends as the canonical names used across the
// codebase; type identity is unchanged.

import (
	"github.com/foreverwb/swing-workflow/internal/domain/workflow/wferr"
)

// ErrorKind classifies workflow failures. Every kind is fatal for the
// run that raised it; the engine never retries.
type ErrorKind = wferr.ErrorKind

const (
	// KindParameter marks invalid or conflicting run parameters.
	KindParameter = wferr.KindParameter
	// KindMode marks a mode whose preconditions do not hold.
	KindMode = wferr.KindMode
	// KindStage marks a failure inside a stage handler.
	KindStage = wferr.KindStage
	// KindNotFound marks a missing cache entry or historical record.
	KindNotFound = wferr.KindNotFound
	// KindCacheIO marks a cache read, write, or lock failure.
	KindCacheIO = wferr.KindCacheIO
)

// Error is the single error type crossing package boundaries in a run.
// Code is stable and machine-readable; Details carries the symbol, mode,
// and stage so the caller can report which run failed without parsing
// the message.
type Error = wferr.Error

// NewParameterError reports an invalid or conflicting parameter.
func NewParameterError(message string) *Error {
	return wferr.NewParameterError(message)
}

// NewParameterTypeError reports a parameter whose override type does not
// match its default type.
func NewParameterTypeError(key, wantType, gotType string) *Error {
	return wferr.NewParameterTypeError(key, wantType, gotType)
}

// NewModeError reports a mode whose preconditions are not met.
func NewModeError(mode, message string) *Error {
	return wferr.NewModeError(mode, message)
}

// NewUnknownModeError reports a mode name outside the supported set.
func NewUnknownModeError(mode string) *Error {
	return wferr.NewUnknownModeError(mode)
}

// NewStageError wraps a handler failure with the stage that raised it.
func NewStageError(stage string, cause error) *Error {
	return wferr.NewStageError(stage, cause)
}

// NewNotFoundError reports a missing cache entry or history record.
func NewNotFoundError(message string) *Error {
	return wferr.NewNotFoundError(message)
}

// NewCacheIOError wraps a cache read, write, or lock failure.
func NewCacheIOError(message string, cause error) *Error {
	return wferr.NewCacheIOError(message, cause)
}

// IsParameterError checks if the error is a parameter error
func IsParameterError(err error) bool {
	return wferr.IsParameterError(err)
}

// IsModeError checks if the error is a mode precondition error
func IsModeError(err error) bool {
	return wferr.IsModeError(err)
}

// IsStageError checks if the error is a stage failure
func IsStageError(err error) bool {
	return wferr.IsStageError(err)
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return wferr.IsNotFoundError(err)
}

// IsCacheIOError checks if the error is a cache I/O error
func IsCacheIOError(err error) bool {
	return wferr.IsCacheIOError(err)
}

// FailedStage returns the stage name carried by a stage error, or "".
func FailedStage(err error) string {
	return wferr.FailedStage(err)
}
