package core

import "time"

// MemoryKind tags an entry with one of the six memory stores. Each kind has a
// distinct retention policy owned by the memory system.
type MemoryKind string

const (
	// MemoryEpisodic is the raw experience log, LRU-evicted into the vault.
	MemoryEpisodic MemoryKind = "episodic"
	// MemorySemantic holds facts, deduplicated by content hash.
	MemorySemantic MemoryKind = "semantic"
	// MemoryProcedural holds references to skills owned by the evolution engine.
	MemoryProcedural MemoryKind = "procedural"
	// MemoryWorking is per-task scratch space, cleared after LEARNING.
	MemoryWorking MemoryKind = "working"
	// MemoryResource holds reference-counted handles to external artifacts.
	MemoryResource MemoryKind = "resource"
	// MemoryVault is curated long-term memory, written only by eviction.
	MemoryVault MemoryKind = "knowledge_vault"
)

// Kinds lists every memory kind in a stable order.
func Kinds() []MemoryKind {
	return []MemoryKind{
		MemoryEpisodic, MemorySemantic, MemoryProcedural,
		MemoryWorking, MemoryResource, MemoryVault,
	}
}

// Valid reports whether k names one of the six kinds.
func (k MemoryKind) Valid() bool {
	switch k {
	case MemoryEpisodic, MemorySemantic, MemoryProcedural,
		MemoryWorking, MemoryResource, MemoryVault:
		return true
	}
	return false
}

// MemoryEntry is a single tagged memory record. Entries are owned exclusively
// by the memory system; callers receive copies and never shared mutable state.
type MemoryEntry struct {
	ID             string            `json:"id"`
	Kind           MemoryKind        `json:"kind"`
	Content        string            `json:"content"`
	EmbeddingRef   string            `json:"embedding_ref,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	AccessCount    int               `json:"access_count"`
}

// Memory defines the typed read/write contract of the memory system.
// Remember and Forget serialize writes per kind; Recall is safe to call
// concurrently with writers and returns entries ranked by a recency-weighted
// relevance score, not insertion order.
type Memory interface {
	Remember(kind MemoryKind, content string, metadata map[string]string) (string, error)
	Recall(kind MemoryKind, query string, limit int) ([]MemoryEntry, error)
	Forget(id string) error
}
