package core

import "time"

// Decision is the verdict of a reflection pass over one execution attempt.
type Decision int

const (
	// DecisionRetry means the outcome partially satisfies the goal and
	// iteration budget remains.
	DecisionRetry Decision = iota
	// DecisionAccept means the outcome satisfies the goal above the
	// confidence threshold.
	DecisionAccept
	// DecisionAbandon means the budget is exhausted or the outcome is
	// judged unrecoverable.
	DecisionAbandon
)

// String returns the canonical decision name.
func (d Decision) String() string {
	switch d {
	case DecisionRetry:
		return "RETRY"
	case DecisionAccept:
		return "ACCEPT"
	case DecisionAbandon:
		return "ABANDON"
	default:
		return "UNKNOWN"
	}
}

// ReflectionVerdict is produced once per execution attempt and persisted to
// episodic memory. Critique references concrete discrepancies between goal
// and outcome so it is useful as a training signal for the evolution engine.
type ReflectionVerdict struct {
	TaskID       string    `json:"task_id"`
	OutcomeScore float64   `json:"outcome_score"`
	Critique     string    `json:"critique_text"`
	Decision     Decision  `json:"decision"`
	CreatedAt    time.Time `json:"created_at"`
}

// Outcome is the raw result of carrying out a plan, passed to the critic
// together with the original task.
type Outcome struct {
	Output        string   `json:"output"`
	StepsExecuted int      `json:"steps_executed"`
	StepErrors    []string `json:"step_errors,omitempty"`
	Err           string   `json:"error,omitempty"`
}

// Critic scores an outcome against its task's goal. Implementations are pure
// with respect to shared state and safe to run fully in parallel across tasks.
type Critic interface {
	Critique(task Task, outcome Outcome, iterationsLeft int) ReflectionVerdict
}
