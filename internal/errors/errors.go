// Package errors provides structured error types for scopesync.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for scopesync.
const (
	// Teamwork errors
	CodeAuthFailed            Code = "AUTH_FAILED"
	CodeProjectsFetchFailed   Code = "PROJECTS_FETCH_FAILED"
	CodeTaskListsFetchFailed  Code = "TASKLISTS_FETCH_FAILED"
	CodeTasksFetchFailed      Code = "TASKS_FETCH_FAILED"
	CodeTaskFetchFailed       Code = "TASK_FETCH_FAILED"
	CodeEstimationWriteFailed Code = "ESTIMATION_WRITE_FAILED"

	// Connection store errors
	CodeConnectionNotFound Code = "CONNECTION_NOT_FOUND"
	CodeStoreAnomaly       Code = "STORE_ANOMALY"
	CodeFeedClosed         Code = "FEED_CLOSED"

	// Orchestration errors
	CodeOrchestrator Code = "ORCHESTRATOR"

	// Input and config errors
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeConfigInvalid Code = "CONFIG_INVALID"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryUnauthorized
	CategoryInternal
	CategoryUnavailable
)

var codeCategories = map[Code]Category{
	CodeAuthFailed:            CategoryUnauthorized,
	CodeProjectsFetchFailed:   CategoryUnavailable,
	CodeTaskListsFetchFailed:  CategoryUnavailable,
	CodeTasksFetchFailed:      CategoryUnavailable,
	CodeTaskFetchFailed:       CategoryUnavailable,
	CodeEstimationWriteFailed: CategoryUnavailable,
	CodeConnectionNotFound:    CategoryNotFound,
	CodeStoreAnomaly:          CategoryInternal,
	CodeFeedClosed:            CategoryUnavailable,
	CodeOrchestrator:          CategoryInternal,
	CodeInvalidInput:          CategoryBadRequest,
	CodeConfigInvalid:         CategoryBadRequest,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryUnauthorized:
		return 401
	case CategoryUnavailable:
		return 502
	default:
		return 500
	}
}

// SyncError is the structured error type for scopesync.
//
// Errors returned across the Teamwork client boundary carry only What, so
// Error() yields the fixed user-facing message and nothing else.
type SyncError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *SyncError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category for HTTP status mapping.
func (e *SyncError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *SyncError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *SyncError) MarshalJSON() ([]byte, error) {
	type alias SyncError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a SyncError with the same code.
func (e *SyncError) Is(target error) bool {
	t, ok := target.(*SyncError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *SyncError) WithCause(err error) *SyncError {
	return &SyncError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Teamwork errors ---
//
// The What strings below are a contract: collaborator UIs match on them.

// MsgAuthFailed is the fixed message for token validation failures.
const MsgAuthFailed = "Unable to authenticate with Teamwork. Please verify your token and try again later."

// ErrAuth returns the error for a token Teamwork rejected or could not validate.
func ErrAuth() *SyncError {
	return &SyncError{
		Code: CodeAuthFailed,
		What: MsgAuthFailed,
		Fix:  "Generate a new API token from your Teamwork profile and reconnect",
	}
}

// ErrProjectsFetch returns the error for a failed project listing.
func ErrProjectsFetch() *SyncError {
	return &SyncError{
		Code: CodeProjectsFetchFailed,
		What: "Unable to get projects from Teamwork. Please verify your token and try again later.",
	}
}

// ErrTaskListsFetch returns the error for a failed task list page fetch.
func ErrTaskListsFetch() *SyncError {
	return &SyncError{
		Code: CodeTaskListsFetchFailed,
		What: "Unable to get task lists from Teamwork. Please verify your token and project id and try again later.",
	}
}

// ErrTasksFetch returns the error for a failed task list aggregation.
func ErrTasksFetch() *SyncError {
	return &SyncError{
		Code: CodeTasksFetchFailed,
		What: "Unable to get tasks from Teamwork. Please verify your token and task list id and try again later.",
	}
}

// ErrTaskFetch returns the error for a failed single task fetch.
func ErrTaskFetch() *SyncError {
	return &SyncError{
		Code: CodeTaskFetchFailed,
		What: "Unable to get task from Teamwork. Please verify your token and task id and try again later.",
	}
}

// ErrEstimationWrite returns the error for a failed estimation update.
func ErrEstimationWrite() *SyncError {
	return &SyncError{
		Code: CodeEstimationWriteFailed,
		What: "Unable to update task on Teamwork. Please verify your token and task id and try again later.",
	}
}

// --- Store errors ---

// ErrConnectionNotFound returns an error when a connection id is unknown.
func ErrConnectionNotFound(id string) *SyncError {
	return &SyncError{
		Code: CodeConnectionNotFound,
		What: fmt.Sprintf("connection %s not found", id),
		Fix:  "List connections with 'scopesync browse' or add one with 'scopesync connect'",
	}
}

// ErrStoreAnomaly returns an error for a change event that references an
// unknown connection. It is logged, never fatal.
func ErrStoreAnomaly(kind, id string) *SyncError {
	return &SyncError{
		Code: CodeStoreAnomaly,
		What: fmt.Sprintf("%s event for unknown connection %s", kind, id),
	}
}

// ErrFeedClosed returns an error when a change feed subscription ends unexpectedly.
func ErrFeedClosed() *SyncError {
	return &SyncError{
		Code: CodeFeedClosed,
		What: "Connection updates were interrupted. Please reload and try again.",
	}
}

// --- Orchestration errors ---

// ErrOrchestrator wraps a failure observed by the orchestrator for display.
// Only the user-facing message of the underlying error is kept.
func ErrOrchestrator(message string) *SyncError {
	return &SyncError{
		Code: CodeOrchestrator,
		What: message,
	}
}

// ErrInvalidInput returns an error for a malformed request.
func ErrInvalidInput(field, reason string) *SyncError {
	return &SyncError{
		Code: CodeInvalidInput,
		What: fmt.Sprintf("invalid %s", field),
		Why:  reason,
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *SyncError {
	return &SyncError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check the scopesync config file and SCOPESYNC_* environment variables",
	}
}

// AsSyncError attempts to convert an error to a SyncError.
// Returns nil if the error is not a SyncError.
func AsSyncError(err error) *SyncError {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr
	}
	return nil
}

// Message returns the user-facing message for err. SyncErrors yield What;
// anything else yields fallback so transport detail never reaches callers.
func Message(err error, fallback string) string {
	if syncErr := AsSyncError(err); syncErr != nil {
		return syncErr.What
	}
	return fallback
}
