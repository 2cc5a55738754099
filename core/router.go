package core

import "context"

// Router classifies an inbound task by complexity. Classify is a pure
// function of the task's text features plus current orchestrator load; it is
// synchronous, non-blocking and safe to call from any caller concurrently.
type Router interface {
	Classify(task Task) Tier
}

// Delegate handles tasks the router steers away from the orchestrator
// (simple tier). It stands in for the lighter-weight agents of the broader
// ecosystem; the orchestrator is never invoked for delegated tasks.
type Delegate interface {
	Handle(ctx context.Context, task Task) (TaskResult, error)
}
