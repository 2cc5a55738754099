package store

import (
	"sync"

	"github.com/prometheus-agent/prometheus/core"
)

// InMemoryStore is a volatile Store implementation keeping all three logical
// stores in process-local maps. It is safe for concurrent access and best
// suited for tests or ephemeral demos. Entities are copied on the way in and
// out to prevent external mutation of internal state.
type InMemoryStore struct {
	mu          sync.RWMutex
	memory      map[string]core.MemoryEntry
	memoryOrder []string
	skills      map[string]core.Skill
	invocations map[string][]core.SkillInvocation
	traces      map[string][]core.Trace
	outbox      []core.Event
	outboxIdx   map[string]int
	state       core.OrchestratorState
	checkpoints int
}

// Compile-time interface assertion.
var _ core.Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		memory:      make(map[string]core.MemoryEntry),
		skills:      make(map[string]core.Skill),
		invocations: make(map[string][]core.SkillInvocation),
		traces:      make(map[string][]core.Trace),
		outboxIdx:   make(map[string]int),
	}
}

func copyEntry(e core.MemoryEntry) core.MemoryEntry {
	cp := e
	if e.Metadata != nil {
		cp.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

func copySkill(s core.Skill) core.Skill {
	cp := s
	cp.ProcedureSteps = append([]string(nil), s.ProcedureSteps...)
	cp.Tags = append([]string(nil), s.Tags...)
	return cp
}

// SaveMemory stores a copy of the entry.
func (s *InMemoryStore) SaveMemory(entry core.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.memory[entry.ID]; !exists {
		s.memoryOrder = append(s.memoryOrder, entry.ID)
	}
	s.memory[entry.ID] = copyEntry(entry)
	return nil
}

// LoadMemory returns a copy of the entry with the given id.
func (s *InMemoryStore) LoadMemory(id string) (core.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.memory[id]
	if !ok {
		return core.MemoryEntry{}, &core.NotFoundError{Entity: "memory entry", Key: id}
	}
	return copyEntry(entry), nil
}

// DeleteMemory removes the entry with the given id.
func (s *InMemoryStore) DeleteMemory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memory[id]; !ok {
		return &core.NotFoundError{Entity: "memory entry", Key: id}
	}
	delete(s.memory, id)
	for i, mid := range s.memoryOrder {
		if mid == id {
			s.memoryOrder = append(s.memoryOrder[:i], s.memoryOrder[i+1:]...)
			break
		}
	}
	return nil
}

// ListMemory returns entries of a kind in insertion order.
func (s *InMemoryStore) ListMemory(kind core.MemoryKind) ([]core.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []core.MemoryEntry
	for _, id := range s.memoryOrder {
		if entry, ok := s.memory[id]; ok && entry.Kind == kind {
			entries = append(entries, copyEntry(entry))
		}
	}
	return entries, nil
}

// SaveSkill stores a copy of the skill keyed by name.
func (s *InMemoryStore) SaveSkill(skill core.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skills[skill.Name] = copySkill(skill)
	return nil
}

// LoadSkill returns the skill with the given name.
func (s *InMemoryStore) LoadSkill(name string) (core.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	skill, ok := s.skills[name]
	if !ok {
		return core.Skill{}, &core.NotFoundError{Entity: "skill", Key: name}
	}
	return copySkill(skill), nil
}

// ListSkills returns all skills.
func (s *InMemoryStore) ListSkills() ([]core.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	skills := make([]core.Skill, 0, len(s.skills))
	for _, skill := range s.skills {
		skills = append(skills, copySkill(skill))
	}
	return skills, nil
}

// SaveInvocation appends one usage record.
func (s *InMemoryStore) SaveInvocation(inv core.SkillInvocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invocations[inv.SkillName] = append(s.invocations[inv.SkillName], inv)
	return nil
}

// ListInvocations returns a skill's usage history in recording order.
func (s *InMemoryStore) ListInvocations(skillName string) ([]core.SkillInvocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.SkillInvocation(nil), s.invocations[skillName]...), nil
}

// SaveTrace appends one execution trace.
func (s *InMemoryStore) SaveTrace(trace core.Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp := trace.Fingerprint()
	trace.Steps = append([]string(nil), trace.Steps...)
	s.traces[fp] = append(s.traces[fp], trace)
	return nil
}

// ListTraces returns recorded traces for a procedure fingerprint.
func (s *InMemoryStore) ListTraces(fingerprint string) ([]core.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Trace(nil), s.traces[fingerprint]...), nil
}

// SaveEvent records an event in the outbox, preserving emission order.
func (s *InMemoryStore) SaveEvent(event core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.outboxIdx[event.ID]; ok {
		s.outbox[idx] = event
		return nil
	}
	s.outboxIdx[event.ID] = len(s.outbox)
	s.outbox = append(s.outbox, event)
	return nil
}

// MarkDelivered flips the delivered flag of an outbox record.
func (s *InMemoryStore) MarkDelivered(eventID string, retryCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.outboxIdx[eventID]
	if !ok {
		return &core.NotFoundError{Entity: "event", Key: eventID}
	}
	s.outbox[idx].Delivered = true
	s.outbox[idx].RetryCount = retryCount
	return nil
}

// UndeliveredEvents returns pending events in original order.
func (s *InMemoryStore) UndeliveredEvents() ([]core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []core.Event
	for _, ev := range s.outbox {
		if !ev.Delivered {
			pending = append(pending, ev)
		}
	}
	return pending, nil
}

// SaveState stores the orchestrator state singleton.
func (s *InMemoryStore) SaveState(state core.OrchestratorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// LoadState returns the orchestrator state singleton.
func (s *InMemoryStore) LoadState() (core.OrchestratorState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, nil
}

// Checkpoint is a no-op beyond bookkeeping for the volatile store.
func (s *InMemoryStore) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints++
	return nil
}

// Recover is a no-op for the volatile store.
func (s *InMemoryStore) Recover() error { return nil }

// Stats returns entity counts; size is always zero for the volatile store.
func (s *InMemoryStore) Stats() (core.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pending := 0
	for _, ev := range s.outbox {
		if !ev.Delivered {
			pending++
		}
	}
	return core.StoreStats{
		MemoryEntries: len(s.memory),
		Skills:        len(s.skills),
		PendingEvents: pending,
	}, nil
}

// Close is a no-op for the volatile store.
func (s *InMemoryStore) Close() error { return nil }
