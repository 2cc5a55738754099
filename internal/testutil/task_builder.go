package testutil

import (
	"time"

	"github.com/prometheus-agent/prometheus/core"
)

// TaskBuilder provides a fluent helper for constructing tasks in tests.
// Example:
//
//	task := NewTaskBuilder("summarize the report").Tier(core.TierComplex).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type TaskBuilder struct {
	id          string
	description string
	constraints map[string]string
	priority    int
	tier        core.Tier
	createdAt   time.Time
}

// NewTaskBuilder creates a builder for a task with the given description.
func NewTaskBuilder(description string) *TaskBuilder {
	return &TaskBuilder{
		id:          core.NewID(),
		description: description,
		createdAt:   time.Now().UTC(),
	}
}

// ID overrides the auto-generated task ID (chainable). Use mainly in tests
// where determinism matters.
func (b *TaskBuilder) ID(id string) *TaskBuilder { b.id = id; return b }

// Constraint sets a single constraint key/value pair (chainable).
func (b *TaskBuilder) Constraint(key, value string) *TaskBuilder {
	if b.constraints == nil {
		b.constraints = map[string]string{}
	}
	b.constraints[key] = value
	return b
}

// Priority sets the task priority (chainable).
func (b *TaskBuilder) Priority(p int) *TaskBuilder { b.priority = p; return b }

// Tier sets the complexity tier (chainable).
func (b *TaskBuilder) Tier(t core.Tier) *TaskBuilder { b.tier = t; return b }

// Build produces the task.
func (b *TaskBuilder) Build() core.Task {
	return core.Task{
		ID:          b.id,
		Description: b.description,
		Constraints: b.constraints,
		Priority:    b.priority,
		Tier:        b.tier,
		CreatedAt:   b.createdAt,
	}
}

// NewTrace constructs a trace for the given category and steps. Success
// defaults to true with a score of 0.9.
func NewTrace(category string, steps ...string) core.Trace {
	return core.Trace{
		TaskID:     core.NewID(),
		Steps:      steps,
		Category:   category,
		Success:    true,
		Score:      0.9,
		RecordedAt: time.Now(),
	}
}

// NewMemoryEntry constructs an entry of the given kind with content. The
// timestamps are set to now.
func NewMemoryEntry(kind core.MemoryKind, content string) core.MemoryEntry {
	now := time.Now()
	return core.MemoryEntry{
		ID:             core.NewID(),
		Kind:           kind,
		Content:        content,
		CreatedAt:      now,
		LastAccessedAt: now,
		AccessCount:    0,
	}
}
