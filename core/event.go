package core

import (
	"encoding/json"
	"time"
)

// Event type names subscribed to by external collaborators.
const (
	EventTaskCompleted     = "task.completed"
	EventTaskFailed        = "task.failed"
	EventTaskAbandoned     = "task.abandoned"
	EventSkillPromoted     = "skill.promoted"
	EventSkillInvoked      = "skill.invoked"
	EventMemoryEvicted     = "memory.evicted"
	EventStorageAlert      = "storage.alert"
	EventPracticeGenerated = "practice.generated"
	EventTrace             = "trace"
)

// Event is a durable outbox record. It is written to the persistence layer
// before being dispatched (write-ahead); Delivered flips only after every
// live subscriber has accepted it. Undelivered events are replayed in their
// original order on restart, so subscribers must tolerate redelivery.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	TaskID     string          `json:"task_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EmittedAt  time.Time       `json:"emitted_at"`
	Seq        int64           `json:"seq"`
	Delivered  bool            `json:"delivered"`
	RetryCount int             `json:"retry_count"`
}

// NewEvent creates an event of the given type bound to a task. The payload
// map is marshalled immediately so the event is immutable after construction;
// a payload that fails to marshal is recorded as an empty object rather than
// dropped.
func NewEvent(eventType, taskID string, payload map[string]any) Event {
	raw := json.RawMessage("{}")
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	return Event{
		ID:        NewID(),
		Type:      eventType,
		TaskID:    taskID,
		Payload:   raw,
		EmittedAt: time.Now().UTC(),
	}
}

// NewTaskCompletedEvent records a successful terminal task result.
func NewTaskCompletedEvent(result TaskResult) Event {
	return NewEvent(EventTaskCompleted, result.TaskID, map[string]any{
		"output":     result.Output,
		"confidence": result.Confidence,
		"trace_id":   result.TraceID,
		"iterations": result.IterationsUsed,
	})
}

// NewTaskFailedEvent records a task that errored out before the execution
// loop could produce a terminal verdict.
func NewTaskFailedEvent(taskID, reason string) Event {
	return NewEvent(EventTaskFailed, taskID, map[string]any{
		"reason": reason,
	})
}

// NewTaskAbandonedEvent records an unsuccessful terminal task result with the
// reason the loop gave up.
func NewTaskAbandonedEvent(result TaskResult, reason string) Event {
	return NewEvent(EventTaskAbandoned, result.TaskID, map[string]any{
		"output":     result.Output,
		"confidence": result.Confidence,
		"trace_id":   result.TraceID,
		"iterations": result.IterationsUsed,
		"reason":     reason,
	})
}

// NewSkillPromotedEvent records the promotion of a procedure into a skill.
func NewSkillPromotedEvent(s Skill, samples int) Event {
	return NewEvent(EventSkillPromoted, "", map[string]any{
		"name":         s.Name,
		"category":     s.Category,
		"success_rate": s.SuccessRate,
		"samples":      samples,
	})
}

// NewMemoryEvictedEvent records eviction of an episodic entry into the vault.
func NewMemoryEvictedEvent(entryID string, kind MemoryKind, vaultID string) Event {
	return NewEvent(EventMemoryEvicted, "", map[string]any{
		"entry_id": entryID,
		"kind":     string(kind),
		"vault_id": vaultID,
	})
}

// NewStorageAlertEvent escalates a persistence-layer health condition. These
// are error-class events and are never sampled out by the bus.
func NewStorageAlertEvent(reason string, sizeBytes int64) Event {
	return NewEvent(EventStorageAlert, "", map[string]any{
		"reason":     reason,
		"size_bytes": sizeBytes,
	})
}

// NewTraceEvent records a routine diagnostic transition. Trace events may be
// sampled by the bus to bound overhead.
func NewTraceEvent(taskID, from, to string, iteration int) Event {
	return NewEvent(EventTrace, taskID, map[string]any{
		"from":      from,
		"to":        to,
		"iteration": iteration,
	})
}

// IsErrorClass reports whether the event must always be retained by sampling
// policies (failure visibility is never traded for overhead).
func (e Event) IsErrorClass() bool {
	switch e.Type {
	case EventTaskFailed, EventTaskAbandoned, EventStorageAlert:
		return true
	}
	return false
}

// Handler consumes delivered events. Handlers must be idempotent with respect
// to redelivery; the bus guarantees at-least-once, not exactly-once.
type Handler func(Event)

// Bus is the asynchronous, durable publish/subscribe channel decoupling the
// orchestrator from external observers.
type Bus interface {
	Publish(event Event) error
	Subscribe(eventType string, handler Handler) error
}
