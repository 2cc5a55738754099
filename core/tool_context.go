package core

import (
	"context"

	"github.com/prometheus-agent/prometheus/logging"
)

// ToolContext is the scoped execution environment handed to a tool for a
// single call. It carries the owning task, the step being executed, a handle
// to working memory for scratch state, and a logger. Tools must treat it as
// read-only configuration; it is discarded after the call returns.
type ToolContext struct {
	*loggerAdapter

	ctx    context.Context
	task   Task
	step   string
	callID string
	memory Memory
}

// NewToolContext builds a tool context for one step of a task's plan.
func NewToolContext(ctx context.Context, task Task, step string, memory Memory, logger logging.Logger) *ToolContext {
	return &ToolContext{
		loggerAdapter: newLoggerAdapter(logger),
		ctx:           ctx,
		task:          task,
		step:          step,
		callID:        NewID(),
		memory:        memory,
	}
}

// Context returns the cancellation context of the owning task.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// Task returns the task this call executes under.
func (tc *ToolContext) Task() Task { return tc.task }

// Step returns the plan step text that triggered this call.
func (tc *ToolContext) Step() string { return tc.step }

// CallID returns the unique identifier of this tool call, used to correlate
// log entries with emitted trace events.
func (tc *ToolContext) CallID() string { return tc.callID }

// Scratch writes a working-memory note scoped to the owning task. It is a
// no-op when no memory system is attached (bare tool tests).
func (tc *ToolContext) Scratch(content string) (string, error) {
	if tc.memory == nil {
		return "", nil
	}
	return tc.memory.Remember(MemoryWorking, content, map[string]string{"task_id": tc.task.ID})
}

// RecallWorking searches the task's working memory.
func (tc *ToolContext) RecallWorking(query string, limit int) ([]MemoryEntry, error) {
	if tc.memory == nil {
		return nil, nil
	}
	return tc.memory.Recall(MemoryWorking, query, limit)
}
