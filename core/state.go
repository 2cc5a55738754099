package core

import "time"

// OrchestratorState is the single process-wide orchestrator record. It is
// loaded from the persistence layer at startup, checkpointed after each task
// and torn down on graceful shutdown. One process-level handle owns it;
// nothing else mutates it.
type OrchestratorState struct {
	CurrentTaskID    string    `json:"current_task_id,omitempty"`
	IterationCount   int       `json:"iteration_count"`
	LastCheckpointAt time.Time `json:"last_checkpoint_at"`
}
