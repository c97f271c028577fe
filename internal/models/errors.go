package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// NotFoundf wraps ErrNotFound with a message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// ValidationError rejects input before any write happens.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// ConflictError reports a stale version or timestamp. Current is the stored row.
type ConflictError struct {
	TaskID          int64
	CurrentVersion  int64
	ProvidedVersion *int64
	Current         Task
}

func (e *ConflictError) Error() string {
	if e.ProvidedVersion == nil {
		return fmt.Sprintf("conflict on task %d: stored version %d is newer than the given timestamp", e.TaskID, e.CurrentVersion)
	}
	return fmt.Sprintf("conflict on task %d: version %d provided, current is %d", e.TaskID, *e.ProvidedVersion, e.CurrentVersion)
}

// BlockedError reports unresolved blocking dependencies.
type BlockedError struct {
	TaskID   int64
	Blockers []TaskSummary
}

func (e *BlockedError) Error() string {
	ids := make([]string, 0, len(e.Blockers))
	for _, b := range e.Blockers {
		ids = append(ids, fmt.Sprint(b.ID))
	}
	return fmt.Sprintf("task %d is blocked by %s", e.TaskID, strings.Join(ids, ", "))
}

// ActionExecutionError wraps a failed automation action.
type ActionExecutionError struct {
	AutomationID int64
	Action       ActionType
	Err          error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("automation %d (%s): %v", e.AutomationID, e.Action, e.Err)
}

func (e *ActionExecutionError) Unwrap() error { return e.Err }

// TransactionError reports a rolled back bulk write.
type TransactionError struct {
	Err error
}

func (e *TransactionError) Error() string {
	return "transaction rolled back: " + e.Err.Error()
}

func (e *TransactionError) Unwrap() error { return e.Err }

// ErrStaleVersion is returned by storage when a compare-and-swap write finds a different version.
var ErrStaleVersion = errors.New("stale version")
