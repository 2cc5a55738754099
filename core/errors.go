package core

import (
	"errors"
	"fmt"
)

// The error taxonomy separates failures by how they are handled: transient
// failures are retried inside the loop, configuration failures reject the
// submission before the loop starts, storage failures abandon the task and
// escalate a health alert, and not-found conditions are typed results rather
// than crashes. No error of any category may terminate the process.

// TransientError wraps an external dependency failure (model call, tool
// execution) that may succeed on retry. The orchestrator's RETRY transition
// handles it locally, bounded by the iteration budget.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %s: %v", e.Op, e.Err) }

// Unwrap returns the underlying cause.
func (e *TransientError) Unwrap() error { return e.Err }

// ConfigurationError marks invalid input to the router or orchestrator. It is
// surfaced immediately to the caller as a rejected submission and never
// enters the execution loop.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// StorageError wraps a persistence layer read/write failure. Data must not be
// silently dropped: the orchestrator marks the current task abandoned and
// alerts via an event, while the store attempts recovery on next startup.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error { return e.Err }

// ErrNotFound is returned when a skill or memory entity referenced by id or
// name does not exist. Callers branch on it with errors.Is.
var ErrNotFound = errors.New("not found")

// NotFoundError decorates ErrNotFound with the entity kind and key.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Entity, e.Key) }

// Unwrap makes errors.Is(err, ErrNotFound) true for every NotFoundError.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// IsTransient reports whether err belongs to the transient category.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsStorage reports whether err belongs to the storage category.
func IsStorage(err error) bool {
	var s *StorageError
	return errors.As(err, &s)
}

// IsConfiguration reports whether err belongs to the configuration category.
func IsConfiguration(err error) bool {
	var c *ConfigurationError
	return errors.As(err, &c)
}
