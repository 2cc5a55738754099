package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCategories(t *testing.T) {
	transient := &TransientError{Op: "model.generate", Err: errors.New("timeout")}
	storage := &StorageError{Op: "save_skill", Err: errors.New("disk full")}
	config := &ConfigurationError{Field: "max_iterations", Reason: "must be at least 1"}

	assert.True(t, IsTransient(transient))
	assert.False(t, IsTransient(storage))

	assert.True(t, IsStorage(storage))
	assert.False(t, IsStorage(transient))

	assert.True(t, IsConfiguration(config))
	assert.False(t, IsConfiguration(storage))

	// Categories survive wrapping
	wrapped := fmt.Errorf("submit failed: %w", transient)
	assert.True(t, IsTransient(wrapped))
}

func TestNotFound(t *testing.T) {
	err := &NotFoundError{Entity: "skill", Key: "reporting-abc"}
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "reporting-abc")

	wrapped := fmt.Errorf("invoke: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "transient: op: boom", (&TransientError{Op: "op", Err: errors.New("boom")}).Error())
	assert.Equal(t, "storage: op: boom", (&StorageError{Op: "op", Err: errors.New("boom")}).Error())
	assert.Equal(t, "configuration: field: why", (&ConfigurationError{Field: "field", Reason: "why"}).Error())
}
