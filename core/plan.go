package core

import "context"

// PlanCandidate is an ephemeral plan produced by the world model. It is never
// persisted and lives only for one orchestrator iteration.
type PlanCandidate struct {
	Steps            []string `json:"steps"`
	PredictedOutcome string   `json:"predicted_outcome"`
	Confidence       float64  `json:"confidence"`
}

// Planner produces plan candidates from a goal and a memory snapshot. Simulate
// must return within its time budget even when no candidate clears the
// confidence threshold; in that case it returns the best available candidate
// tagged with low confidence rather than an error, so the orchestrator can
// proceed with explicit uncertainty.
type Planner interface {
	Simulate(ctx context.Context, goal string, memoryContext []MemoryEntry) (PlanCandidate, error)
}
