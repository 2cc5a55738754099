package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/prometheus-agent/prometheus/core"
)

// retentionPolicy is the per-kind strategy consulted around every write.
// beforeRemember may veto the write or redirect it to an existing entry
// (dedup); afterRemember enforces bounds once the write has landed. Both run
// under the kind's write lock.
type retentionPolicy interface {
	beforeRemember(m *Manager, entry *core.MemoryEntry) (existingID string, err error)
	afterRemember(m *Manager, kind core.MemoryKind) error
}

// passthroughPolicy accepts every write unchanged. Working memory is bounded
// by per-task clearing instead, and procedural entries are just references
// into the skill registry.
type passthroughPolicy struct{}

func (passthroughPolicy) beforeRemember(*Manager, *core.MemoryEntry) (string, error) {
	return "", nil
}

func (passthroughPolicy) afterRemember(*Manager, core.MemoryKind) error { return nil }

// episodicPolicy bounds the raw experience log. Past the bound, the least
// recently used entry is compacted into the vault rather than hard-deleted.
type episodicPolicy struct {
	maxEntries int
}

func (episodicPolicy) beforeRemember(*Manager, *core.MemoryEntry) (string, error) {
	return "", nil
}

func (p *episodicPolicy) afterRemember(m *Manager, kind core.MemoryKind) error {
	if p.maxEntries <= 0 {
		return nil
	}
	entries, err := m.store.ListMemory(kind)
	if err != nil {
		return err
	}
	for len(entries) > p.maxEntries {
		oldest := 0
		for i := range entries {
			if entries[i].LastAccessedAt.Before(entries[oldest].LastAccessedAt) {
				oldest = i
			}
		}
		if _, err := m.evictToVault(entries[oldest]); err != nil {
			return err
		}
		entries = append(entries[:oldest], entries[oldest+1:]...)
	}
	return nil
}

// semanticPolicy deduplicates facts by content hash; a repeated fact resolves
// to the already stored entry.
type semanticPolicy struct{}

func (semanticPolicy) beforeRemember(m *Manager, entry *core.MemoryEntry) (string, error) {
	hash := contentHash(entry.Content)
	entries, err := m.store.ListMemory(core.MemorySemantic)
	if err != nil {
		return "", err
	}
	for _, existing := range entries {
		if existing.Metadata["content_hash"] == hash {
			return existing.ID, nil
		}
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]string{}
	}
	entry.Metadata["content_hash"] = hash
	return "", nil
}

func (semanticPolicy) afterRemember(*Manager, core.MemoryKind) error { return nil }

// resourcePolicy seeds the reference bookkeeping for resource handles. The
// acquiring task becomes the first reference; see resource.go for the
// acquire/release lifecycle.
type resourcePolicy struct{}

func (resourcePolicy) beforeRemember(m *Manager, entry *core.MemoryEntry) (string, error) {
	if entry.Metadata == nil {
		entry.Metadata = map[string]string{}
	}
	if entry.Metadata["refs"] == "" {
		entry.Metadata["refs"] = entry.Metadata["task_id"]
	}
	return "", nil
}

func (resourcePolicy) afterRemember(*Manager, core.MemoryKind) error { return nil }

// vaultPolicy rejects direct writes; the vault is filled by eviction only.
type vaultPolicy struct{}

func (vaultPolicy) beforeRemember(*Manager, *core.MemoryEntry) (string, error) {
	return "", &core.ConfigurationError{
		Field:  "kind",
		Reason: fmt.Sprintf("%s is written only by eviction", core.MemoryVault),
	}
}

func (vaultPolicy) afterRemember(*Manager, core.MemoryKind) error { return nil }

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
