// Package memory implements the six-kind memory system behind the
// core.Memory contract. All kinds live in a single tagged store keyed by
// core.MemoryKind; what differs per kind is its retention policy, modeled as
// a strategy object:
//
//   - episodic: bounded, LRU-evicted into a compacted vault summary
//   - semantic: unbounded, deduplicated by content hash
//   - procedural: references to skills owned by the evolution engine
//   - working: per-task scratch, cleared after the task's LEARNING phase
//   - resource: reference-counted handles to external artifacts
//   - knowledge_vault: written only by eviction, read-only otherwise
//
// Writes are serialized per kind while reads run concurrently; durable
// storage is delegated to a core.Store selected at wiring time.
package memory
