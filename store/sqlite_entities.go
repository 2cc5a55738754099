package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/prometheus-agent/prometheus/core"
)

// Entity rows share one shape: key columns for lookup plus a JSON payload
// blob, gzip-compressed when compression is on. Each Save is a single-row
// statement, so SQLite's per-statement transaction gives the atomic
// per-entity commit the contract requires.

func (s *SQLiteStore) marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &core.StorageError{Op: "marshal entity", Err: err}
	}
	blob, err := encode(data, s.opts.Compress)
	if err != nil {
		return nil, &core.StorageError{Op: "encode entity", Err: err}
	}
	return blob, nil
}

func unmarshalPayload(blob []byte, v any) error {
	data, err := decode(blob)
	if err != nil {
		return &core.StorageError{Op: "decode entity", Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &core.StorageError{Op: "unmarshal entity", Err: err}
	}
	return nil
}

// SaveMemory commits one memory entry atomically.
func (s *SQLiteStore) SaveMemory(entry core.MemoryEntry) error {
	blob, err := s.marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		`INSERT OR REPLACE INTO memory_entries (id, kind, payload) VALUES (?, ?, ?)`,
		entry.ID, string(entry.Kind), blob); err != nil {
		return &core.StorageError{Op: "save memory entry", Err: err}
	}
	return nil
}

// LoadMemory returns the entry with the given id.
func (s *SQLiteStore) LoadMemory(id string) (core.MemoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var blob []byte
	err := s.db.QueryRow(`SELECT payload FROM memory_entries WHERE id = ?`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return core.MemoryEntry{}, &core.NotFoundError{Entity: "memory entry", Key: id}
	}
	if err != nil {
		return core.MemoryEntry{}, &core.StorageError{Op: "load memory entry", Err: err}
	}
	var entry core.MemoryEntry
	if err := unmarshalPayload(blob, &entry); err != nil {
		return core.MemoryEntry{}, err
	}
	return entry, nil
}

// DeleteMemory removes the entry with the given id.
func (s *SQLiteStore) DeleteMemory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM memory_entries WHERE id = ?`, id)
	if err != nil {
		return &core.StorageError{Op: "delete memory entry", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &core.NotFoundError{Entity: "memory entry", Key: id}
	}
	return nil
}

// ListMemory returns every entry of a kind in insertion order.
func (s *SQLiteStore) ListMemory(kind core.MemoryKind) ([]core.MemoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT payload FROM memory_entries WHERE kind = ? ORDER BY rowid`, string(kind))
	if err != nil {
		return nil, &core.StorageError{Op: "list memory entries", Err: err}
	}
	defer rows.Close()
	var entries []core.MemoryEntry
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, &core.StorageError{Op: "scan memory entry", Err: err}
		}
		var entry core.MemoryEntry
		if err := unmarshalPayload(blob, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StorageError{Op: "iterate memory entries", Err: err}
	}
	return entries, nil
}

// SaveSkill commits one skill atomically, keyed by its unique name.
func (s *SQLiteStore) SaveSkill(skill core.Skill) error {
	blob, err := s.marshal(skill)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		`INSERT OR REPLACE INTO skills (name, payload) VALUES (?, ?)`,
		skill.Name, blob); err != nil {
		return &core.StorageError{Op: "save skill", Err: err}
	}
	return nil
}

// LoadSkill returns the skill with the given name.
func (s *SQLiteStore) LoadSkill(name string) (core.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var blob []byte
	err := s.db.QueryRow(`SELECT payload FROM skills WHERE name = ?`, name).Scan(&blob)
	if err == sql.ErrNoRows {
		return core.Skill{}, &core.NotFoundError{Entity: "skill", Key: name}
	}
	if err != nil {
		return core.Skill{}, &core.StorageError{Op: "load skill", Err: err}
	}
	var skill core.Skill
	if err := unmarshalPayload(blob, &skill); err != nil {
		return core.Skill{}, err
	}
	return skill, nil
}

// ListSkills returns all skills ordered by name.
func (s *SQLiteStore) ListSkills() ([]core.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT payload FROM skills ORDER BY name`)
	if err != nil {
		return nil, &core.StorageError{Op: "list skills", Err: err}
	}
	defer rows.Close()
	var skills []core.Skill
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, &core.StorageError{Op: "scan skill", Err: err}
		}
		var skill core.Skill
		if err := unmarshalPayload(blob, &skill); err != nil {
			return nil, err
		}
		skills = append(skills, skill)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StorageError{Op: "iterate skills", Err: err}
	}
	return skills, nil
}

// SaveInvocation appends one usage record to a skill's durable history.
func (s *SQLiteStore) SaveInvocation(inv core.SkillInvocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	success := 0
	if inv.Success {
		success = 1
	}
	if _, err := s.db.Exec(
		`INSERT INTO skill_invocations (skill_name, success, at) VALUES (?, ?, ?)`,
		inv.SkillName, success, inv.At.UTC().Format(time.RFC3339Nano)); err != nil {
		return &core.StorageError{Op: "save invocation", Err: err}
	}
	return nil
}

// ListInvocations returns a skill's full usage history in recording order.
func (s *SQLiteStore) ListInvocations(skillName string) ([]core.SkillInvocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT success, at FROM skill_invocations WHERE skill_name = ? ORDER BY id`, skillName)
	if err != nil {
		return nil, &core.StorageError{Op: "list invocations", Err: err}
	}
	defer rows.Close()
	var invs []core.SkillInvocation
	for rows.Next() {
		var success int
		var at string
		if err := rows.Scan(&success, &at); err != nil {
			return nil, &core.StorageError{Op: "scan invocation", Err: err}
		}
		ts, _ := time.Parse(time.RFC3339Nano, at)
		invs = append(invs, core.SkillInvocation{SkillName: skillName, Success: success == 1, At: ts})
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StorageError{Op: "iterate invocations", Err: err}
	}
	return invs, nil
}

// SaveTrace appends one execution trace for promotion bookkeeping.
func (s *SQLiteStore) SaveTrace(trace core.Trace) error {
	blob, err := s.marshal(trace)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		`INSERT INTO traces (fingerprint, payload) VALUES (?, ?)`,
		trace.Fingerprint(), blob); err != nil {
		return &core.StorageError{Op: "save trace", Err: err}
	}
	return nil
}

// ListTraces returns every recorded trace for a procedure fingerprint.
func (s *SQLiteStore) ListTraces(fingerprint string) ([]core.Trace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT payload FROM traces WHERE fingerprint = ? ORDER BY id`, fingerprint)
	if err != nil {
		return nil, &core.StorageError{Op: "list traces", Err: err}
	}
	defer rows.Close()
	var traces []core.Trace
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, &core.StorageError{Op: "scan trace", Err: err}
		}
		var trace core.Trace
		if err := unmarshalPayload(blob, &trace); err != nil {
			return nil, err
		}
		traces = append(traces, trace)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StorageError{Op: "iterate traces", Err: err}
	}
	return traces, nil
}

// SaveEvent writes an event to the outbox ahead of dispatch.
func (s *SQLiteStore) SaveEvent(event core.Event) error {
	blob, err := s.marshal(event)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delivered := 0
	if event.Delivered {
		delivered = 1
	}
	if _, err := s.db.Exec(
		`INSERT OR REPLACE INTO outbox (id, task_id, delivered, retry_count, payload) VALUES (?, ?, ?, ?, ?)`,
		event.ID, event.TaskID, delivered, event.RetryCount, blob); err != nil {
		return &core.StorageError{Op: "save event", Err: err}
	}
	return nil
}

// MarkDelivered flips an outbox record's delivered flag after confirmed
// dispatch and records how many attempts it took.
func (s *SQLiteStore) MarkDelivered(eventID string, retryCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`UPDATE outbox SET delivered = 1, retry_count = ? WHERE id = ?`, retryCount, eventID)
	if err != nil {
		return &core.StorageError{Op: "mark delivered", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &core.NotFoundError{Entity: "event", Key: eventID}
	}
	return nil
}

// UndeliveredEvents returns pending outbox records in their original emission
// order, ready for replay.
func (s *SQLiteStore) UndeliveredEvents() ([]core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT payload, retry_count FROM outbox WHERE delivered = 0 ORDER BY rowid`)
	if err != nil {
		return nil, &core.StorageError{Op: "list undelivered events", Err: err}
	}
	defer rows.Close()
	var events []core.Event
	for rows.Next() {
		var blob []byte
		var retryCount int
		if err := rows.Scan(&blob, &retryCount); err != nil {
			return nil, &core.StorageError{Op: "scan event", Err: err}
		}
		var event core.Event
		if err := unmarshalPayload(blob, &event); err != nil {
			return nil, err
		}
		event.Delivered = false
		event.RetryCount = retryCount
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StorageError{Op: "iterate events", Err: err}
	}
	return events, nil
}

// SaveState checkpoints the orchestrator state singleton.
func (s *SQLiteStore) SaveState(state core.OrchestratorState) error {
	blob, err := s.marshal(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		`INSERT OR REPLACE INTO orchestrator_state (id, payload) VALUES (1, ?)`, blob); err != nil {
		return &core.StorageError{Op: "save state", Err: err}
	}
	return nil
}

// LoadState returns the orchestrator state singleton, or a zero state on a
// fresh database.
func (s *SQLiteStore) LoadState() (core.OrchestratorState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var blob []byte
	err := s.db.QueryRow(`SELECT payload FROM orchestrator_state WHERE id = 1`).Scan(&blob)
	if err == sql.ErrNoRows {
		return core.OrchestratorState{}, nil
	}
	if err != nil {
		return core.OrchestratorState{}, &core.StorageError{Op: "load state", Err: err}
	}
	var state core.OrchestratorState
	if err := unmarshalPayload(blob, &state); err != nil {
		return core.OrchestratorState{}, err
	}
	return state, nil
}
