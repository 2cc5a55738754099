package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prometheus-agent/prometheus/core"
)

func TestInMemoryEntityIsolation(t *testing.T) {
	s := NewInMemoryStore()

	entry := core.MemoryEntry{
		ID:       "e1",
		Kind:     core.MemoryEpisodic,
		Content:  "original",
		Metadata: map[string]string{"task_id": "t1"},
	}
	require.NoError(t, s.SaveMemory(entry))

	// Mutating the caller's copy must not reach the store.
	entry.Metadata["task_id"] = "mutated"
	got, err := s.LoadMemory("e1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.Metadata["task_id"])

	// Mutating a loaded copy must not reach the store either.
	got.Metadata["task_id"] = "mutated again"
	again, err := s.LoadMemory("e1")
	require.NoError(t, err)
	assert.Equal(t, "t1", again.Metadata["task_id"])
}

func TestInMemoryListOrder(t *testing.T) {
	s := NewInMemoryStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveMemory(core.MemoryEntry{
			ID:      fmt.Sprintf("e%d", i),
			Kind:    core.MemoryWorking,
			Content: fmt.Sprintf("note %d", i),
		}))
	}
	require.NoError(t, s.DeleteMemory("e2"))

	entries, err := s.ListMemory(core.MemoryWorking)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "e0", entries[0].ID)
	assert.Equal(t, "e4", entries[3].ID)
}

func TestInMemoryOutboxOrdering(t *testing.T) {
	s := NewInMemoryStore()

	first := core.NewEvent(core.EventTrace, "t1", nil)
	second := core.NewEvent(core.EventTrace, "t1", nil)
	third := core.NewEvent(core.EventTaskCompleted, "t1", nil)
	for _, ev := range []core.Event{first, second, third} {
		require.NoError(t, s.SaveEvent(ev))
	}
	require.NoError(t, s.MarkDelivered(second.ID, 0))

	pending, err := s.UndeliveredEvents()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, third.ID, pending[1].ID)
}

func TestInMemoryConcurrentWrites(t *testing.T) {
	s := NewInMemoryStore()

	const writers = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			_ = s.SaveMemory(core.MemoryEntry{
				ID:      fmt.Sprintf("c%d", i),
				Kind:    core.MemoryEpisodic,
				Content: fmt.Sprintf("concurrent write %d", i),
			})
		}(i)
	}
	wg.Wait()

	entries, err := s.ListMemory(core.MemoryEpisodic)
	require.NoError(t, err)
	require.Len(t, entries, writers)

	// No lost or corrupted writes: every id maps to its own content.
	seen := map[string]bool{}
	for _, e := range entries {
		assert.Equal(t, "concurrent write "+e.ID[1:], e.Content)
		seen[e.ID] = true
	}
	assert.Len(t, seen, writers)
}

func TestInMemoryStats(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.SaveMemory(core.MemoryEntry{ID: "e1", Kind: core.MemoryEpisodic}))
	require.NoError(t, s.SaveSkill(core.Skill{Name: "s1"}))
	require.NoError(t, s.SaveEvent(core.NewEvent(core.EventTrace, "", nil)))

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MemoryEntries)
	assert.Equal(t, 1, stats.Skills)
	assert.Equal(t, 1, stats.PendingEvents)
}
