package core

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the coarse complexity classification assigned exactly once by the
// task router. It decides whether the orchestrator or a lighter-weight
// collaborator handles a task.
type Tier int

const (
	// TierSimple tasks are routed away from the orchestrator entirely.
	TierSimple Tier = iota
	// TierMedium tasks need a short plan but little iteration.
	TierMedium
	// TierComplex tasks need the full plan/act/reflect loop.
	TierComplex
	// TierCritical tasks get the full loop plus maximum iteration budget.
	TierCritical
)

// String returns the canonical upper-case tier name.
func (t Tier) String() string {
	switch t {
	case TierSimple:
		return "SIMPLE"
	case TierMedium:
		return "MEDIUM"
	case TierComplex:
		return "COMPLEX"
	case TierCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Task is an immutable unit of work. Once accepted by the router its fields,
// including the tier, never change.
type Task struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Constraints map[string]string `json:"constraints,omitempty"`
	Priority    int               `json:"priority"`
	Tier        Tier              `json:"complexity_tier"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewTask constructs a task with a fresh ID and UTC creation timestamp. The
// tier is left at its zero value until the router classifies it.
func NewTask(description string, constraints map[string]string, priority int) Task {
	return Task{
		ID:          NewID(),
		Description: description,
		Constraints: constraints,
		Priority:    priority,
		CreatedAt:   time.Now().UTC(),
	}
}

// TaskResult is the terminal outcome of executing a task. It is always
// produced, even for abandoned tasks, so callers never hang on a failure.
type TaskResult struct {
	TaskID         string  `json:"task_id"`
	Output         string  `json:"output"`
	Confidence     float64 `json:"confidence"`
	TraceID        string  `json:"trace_id"`
	IterationsUsed int     `json:"iterations_used"`
	Abandoned      bool    `json:"abandoned"`
}

// TaskState names a position in the orchestrator's per-task state machine.
type TaskState int

const (
	// StatePlanning requests a plan candidate from the world model.
	StatePlanning TaskState = iota
	// StateExecuting carries out the plan's steps via tools and skills.
	StateExecuting
	// StateReflecting critiques the raw outcome against the goal.
	StateReflecting
	// StateRetrying loops back to planning within the iteration budget.
	StateRetrying
	// StateLearning hands the successful trace to the evolution engine.
	StateLearning
	// StateDone is the successful terminal state.
	StateDone
	// StateAbandoned is the unsuccessful terminal state.
	StateAbandoned
)

// String returns the canonical state name.
func (s TaskState) String() string {
	switch s {
	case StatePlanning:
		return "PLANNING"
	case StateExecuting:
		return "EXECUTING"
	case StateReflecting:
		return "REFLECTING"
	case StateRetrying:
		return "RETRYING"
	case StateLearning:
		return "LEARNING"
	case StateDone:
		return "DONE"
	case StateAbandoned:
		return "ABANDONED"
	default:
		return "UNKNOWN"
	}
}

// NewID generates a new unique identifier for tasks, entries and events.
func NewID() string { return uuid.NewString() }
