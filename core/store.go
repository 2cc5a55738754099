package core

import "time"

// SkillInvocation is one durable usage record for a skill. Success rates are
// always recomputed from the full set of these records, never from a single
// run.
type SkillInvocation struct {
	SkillName string    `json:"skill_name"`
	Success   bool      `json:"success"`
	At        time.Time `json:"at"`
}

// StoreStats is a health snapshot of the durable medium, used for size
// monitoring and process-level alerting.
type StoreStats struct {
	SizeBytes      int64 `json:"size_bytes"`
	MemoryEntries  int   `json:"memory_entries"`
	Skills         int   `json:"skills"`
	PendingEvents  int   `json:"pending_events"`
	Compactions    int   `json:"compactions"`
	RecoveredDirty bool  `json:"recovered_dirty"`
}

// Store is the crash-safe persistence contract. Three logical stores back it:
// memory records keyed by id and kind, skills keyed by unique name, and the
// event outbox keyed by event id with a delivered flag and retry count. Every
// write commits atomically per entity; after an unclean shutdown Recover must
// expose no partially written entities. Implementations own the durable
// medium and serialize all physical writes.
type Store interface {
	// Memory records.
	SaveMemory(entry MemoryEntry) error
	LoadMemory(id string) (MemoryEntry, error)
	DeleteMemory(id string) error
	ListMemory(kind MemoryKind) ([]MemoryEntry, error)

	// Skills and their durable usage history.
	SaveSkill(skill Skill) error
	LoadSkill(name string) (Skill, error)
	ListSkills() ([]Skill, error)
	SaveInvocation(inv SkillInvocation) error
	ListInvocations(skillName string) ([]SkillInvocation, error)

	// Execution traces feeding skill promotion.
	SaveTrace(trace Trace) error
	ListTraces(fingerprint string) ([]Trace, error)

	// Event outbox (write-ahead for the bus).
	SaveEvent(event Event) error
	MarkDelivered(eventID string, retryCount int) error
	UndeliveredEvents() ([]Event, error)

	// Orchestrator state singleton.
	SaveState(state OrchestratorState) error
	LoadState() (OrchestratorState, error)

	// Lifecycle.
	Checkpoint() error
	Recover() error
	Stats() (StoreStats, error)
	Close() error
}
