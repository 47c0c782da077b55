package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow definition was not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates a workflow execution was not found.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrSubscriptionNotFound indicates a webhook subscription was not found.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrEventNotFound indicates a webhook event was not found.
	ErrEventNotFound = errors.New("webhook event not found")

	// ErrAttemptNotFound indicates a delivery attempt was not found.
	ErrAttemptNotFound = errors.New("delivery attempt not found")

	// ErrExecutionExists indicates an execution with the same ID already
	// exists. The scheduler relies on this to keep occurrence creation
	// idempotent across concurrent passes.
	ErrExecutionExists = errors.New("execution already exists")
)

// StoreError wraps persistence errors with operation context.
type StoreError struct {
	Op  string // Operation being performed (e.g., "ExecutionByID", "SaveSubscription")
	ID  string // Entity ID if applicable
	Err error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.ID, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new store error with context.
func NewStoreError(op, id string, err error) *StoreError {
	return &StoreError{Op: op, ID: id, Err: err}
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrAttemptNotFound)
}
