package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus-agent/prometheus/core"
	"github.com/prometheus-agent/prometheus/internal/util"
	"github.com/prometheus-agent/prometheus/logging"
)

// Options configures a Manager.
type Options struct {
	// EpisodicMaxEntries bounds the raw experience log before LRU eviction.
	EpisodicMaxEntries int
	// RecencyHalfLife weights recall relevance toward recent entries.
	RecencyHalfLife time.Duration
	// OnEvict is called after an episodic entry has been compacted into the
	// vault. Wired to a memory.evicted event by the facade.
	OnEvict func(entryID string, kind core.MemoryKind, vaultID string)
	// Logger receives memory diagnostics.
	Logger logging.Logger
}

// Manager is the single tagged-variant memory store. One mutex per kind
// serializes writes (protecting eviction bookkeeping) while reads proceed
// concurrently; the durable medium below has its own writer queue.
type Manager struct {
	store    core.Store
	opts     Options
	policies map[core.MemoryKind]retentionPolicy
	locks    map[core.MemoryKind]*sync.RWMutex
}

// Compile-time interface assertion.
var _ core.Memory = (*Manager)(nil)

// NewManager wires the six kinds and their retention policies over a store.
func NewManager(store core.Store, optFns ...func(o *Options)) *Manager {
	opts := Options{
		EpisodicMaxEntries: 500,
		RecencyHalfLife:    6 * time.Hour,
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	m := &Manager{
		store: store,
		opts:  opts,
		locks: make(map[core.MemoryKind]*sync.RWMutex),
	}
	m.policies = map[core.MemoryKind]retentionPolicy{
		core.MemoryEpisodic:   &episodicPolicy{maxEntries: opts.EpisodicMaxEntries},
		core.MemorySemantic:   &semanticPolicy{},
		core.MemoryProcedural: &passthroughPolicy{},
		core.MemoryWorking:    &passthroughPolicy{},
		core.MemoryResource:   &resourcePolicy{},
		core.MemoryVault:      &vaultPolicy{},
	}
	for _, kind := range core.Kinds() {
		m.locks[kind] = &sync.RWMutex{}
	}
	return m
}

// Remember stores content under the given kind and returns the entry id.
// Semantic duplicates return the existing entry's id; vault writes are
// rejected because only eviction may fill it.
func (m *Manager) Remember(kind core.MemoryKind, content string, metadata map[string]string) (string, error) {
	if !kind.Valid() {
		return "", &core.ConfigurationError{Field: "kind", Reason: fmt.Sprintf("unknown memory kind %q", kind)}
	}

	lock := m.locks[kind]
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	entry := core.MemoryEntry{
		ID:             core.NewID(),
		Kind:           kind,
		Content:        content,
		Metadata:       metadata,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	policy := m.policies[kind]
	existingID, err := policy.beforeRemember(m, &entry)
	if err != nil {
		return "", err
	}
	if existingID != "" {
		return existingID, nil
	}

	if err := m.store.SaveMemory(entry); err != nil {
		return "", err
	}
	if err := policy.afterRemember(m, kind); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// Recall returns entries of a kind ranked by a recency-weighted relevance
// score against the query. It is safe to call concurrently with writers on
// other or the same kind; access statistics are bumped under the write lock
// after scoring.
func (m *Manager) Recall(kind core.MemoryKind, query string, limit int) ([]core.MemoryEntry, error) {
	if !kind.Valid() {
		return nil, &core.ConfigurationError{Field: "kind", Reason: fmt.Sprintf("unknown memory kind %q", kind)}
	}
	if limit <= 0 {
		limit = 10
	}

	lock := m.locks[kind]
	lock.RLock()
	entries, err := m.store.ListMemory(kind)
	lock.RUnlock()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	type scored struct {
		entry core.MemoryEntry
		score float64
	}
	ranked := make([]scored, 0, len(entries))
	for _, entry := range entries {
		score := util.Overlap(query, entry.Content) * util.RecencyWeight(entry.LastAccessedAt, now, m.opts.RecencyHalfLife)
		if query != "" && score == 0 {
			continue
		}
		ranked = append(ranked, scored{entry: entry, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	results := make([]core.MemoryEntry, len(ranked))
	for i, r := range ranked {
		results[i] = r.entry
	}

	m.bumpAccess(kind, results, now)

	return results, nil
}

// bumpAccess records that the returned entries were touched, feeding the LRU
// eviction bookkeeping. Failures here are diagnostic only.
func (m *Manager) bumpAccess(kind core.MemoryKind, entries []core.MemoryEntry, now time.Time) {
	lock := m.locks[kind]
	lock.Lock()
	defer lock.Unlock()
	for i := range entries {
		entries[i].LastAccessedAt = now
		entries[i].AccessCount++
		if err := m.store.SaveMemory(entries[i]); err != nil {
			m.opts.Logger.Warn("failed to bump access stats", "entry_id", entries[i].ID, "error", err)
		}
	}
}

// Forget removes an entry by id regardless of kind.
func (m *Manager) Forget(id string) error {
	entry, err := m.store.LoadMemory(id)
	if err != nil {
		return err
	}
	lock := m.locks[entry.Kind]
	lock.Lock()
	defer lock.Unlock()
	return m.store.DeleteMemory(id)
}

// ClearWorking drops every working-memory entry belonging to a task. Called
// at the end of the task's LEARNING phase.
func (m *Manager) ClearWorking(taskID string) error {
	lock := m.locks[core.MemoryWorking]
	lock.Lock()
	defer lock.Unlock()

	entries, err := m.store.ListMemory(core.MemoryWorking)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Metadata["task_id"] != taskID {
			continue
		}
		if err := m.store.DeleteMemory(entry.ID); err != nil {
			return err
		}
	}
	return nil
}

// evictToVault compacts an entry into the write-only vault and removes the
// original. Caller must hold the source kind's write lock.
func (m *Manager) evictToVault(entry core.MemoryEntry) (string, error) {
	vault := core.MemoryEntry{
		ID:      core.NewID(),
		Kind:    core.MemoryVault,
		Content: summarize(entry.Content),
		Metadata: map[string]string{
			"source_id":   entry.ID,
			"source_kind": string(entry.Kind),
		},
		CreatedAt:      time.Now().UTC(),
		LastAccessedAt: time.Now().UTC(),
	}
	if err := m.store.SaveMemory(vault); err != nil {
		return "", err
	}
	if err := m.store.DeleteMemory(entry.ID); err != nil {
		return "", err
	}
	logging.Eviction(m.opts.Logger, string(entry.Kind), entry.ID, vault.ID)
	if m.opts.OnEvict != nil {
		m.opts.OnEvict(entry.ID, entry.Kind, vault.ID)
	}
	return vault.ID, nil
}

// summarize produces the compacted vault form of an evicted entry. It keeps
// the head of the content, which for episodic records carries the task and
// outcome line.
func summarize(content string) string {
	const maxLen = 240
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "…"
}
