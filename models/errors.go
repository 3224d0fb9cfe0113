package models

import (
	"fmt"
	"time"
)

// ValidationError reports bad caller input. It maps to HTTP 400 and is
// never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown document, session, or database. Maps to 404.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ProviderError reports a transient failure from an AI provider, database,
// or MCP server. StatusCode is zero for transport-level failures.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s request failed: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth retrying: transport
// errors, 5xx, and 429. Other 4xx responses are caller mistakes.
func (e *ProviderError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// SchemaError reports that generated SQL failed catalog validation for one
// database. Other databases still execute.
type SchemaError struct {
	DatabaseID string
	Problems   []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema validation failed for database %s: %v", e.DatabaseID, e.Problems)
}

// TimeoutError reports that one bounded operation exceeded its deadline.
type TimeoutError struct {
	Operation string
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s timed out", e.Operation)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// DocumentSkippedError marks a file as intentionally not indexable.
// Terminal for that file; the watcher does not retry it.
type DocumentSkippedError struct {
	FileName string
	Reason   string
}

func (e *DocumentSkippedError) Error() string {
	return fmt.Sprintf("document %s skipped: %s", e.FileName, e.Reason)
}
