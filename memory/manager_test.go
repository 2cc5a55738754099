package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prometheus-agent/prometheus/core"
	"github.com/prometheus-agent/prometheus/store"
)

func newTestManager(optFns ...func(o *Options)) (*Manager, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	return NewManager(st, optFns...), st
}

func TestRememberAndRecall(t *testing.T) {
	m, _ := newTestManager()

	id, err := m.Remember(core.MemoryEpisodic, "the deployment to staging succeeded", map[string]string{"task_id": "t1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = m.Remember(core.MemoryEpisodic, "an unrelated note about lunch", nil)
	require.NoError(t, err)

	// Relevance ranking puts the matching entry first and drops zero-score
	// entries for a non-empty query.
	results, err := m.Recall(core.MemoryEpisodic, "deployment staging", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)

	// An empty query returns everything.
	all, err := m.Recall(core.MemoryEpisodic, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRememberRejectsUnknownKind(t *testing.T) {
	m, _ := newTestManager()
	_, err := m.Remember(core.MemoryKind("short_term"), "content", nil)
	require.Error(t, err)
	assert.True(t, core.IsConfiguration(err))

	_, err = m.Recall(core.MemoryKind("short_term"), "q", 1)
	assert.Error(t, err)
}

func TestVaultRejectsDirectWrites(t *testing.T) {
	m, _ := newTestManager()
	_, err := m.Remember(core.MemoryVault, "smuggled in", nil)
	require.Error(t, err)
	assert.True(t, core.IsConfiguration(err))
}

func TestSemanticDeduplication(t *testing.T) {
	m, st := newTestManager()

	first, err := m.Remember(core.MemorySemantic, "the api rate limit is 100 rps", nil)
	require.NoError(t, err)
	second, err := m.Remember(core.MemorySemantic, "the api rate limit is 100 rps", nil)
	require.NoError(t, err)

	// The duplicate returns the existing entry's id and stores nothing new.
	assert.Equal(t, first, second)
	entries, err := st.ListMemory(core.MemorySemantic)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEpisodicEvictionToVault(t *testing.T) {
	var evicted []string
	m, st := newTestManager(func(o *Options) {
		o.EpisodicMaxEntries = 3
		o.OnEvict = func(entryID string, kind core.MemoryKind, vaultID string) {
			assert.Equal(t, core.MemoryEpisodic, kind)
			assert.NotEmpty(t, vaultID)
			evicted = append(evicted, entryID)
		}
	})

	for i := 0; i < 5; i++ {
		_, err := m.Remember(core.MemoryEpisodic, fmt.Sprintf("experience %d", i), nil)
		require.NoError(t, err)
	}

	episodic, err := st.ListMemory(core.MemoryEpisodic)
	require.NoError(t, err)
	assert.Len(t, episodic, 3)

	// The two oldest were compacted into the vault, not dropped.
	vault, err := st.ListMemory(core.MemoryVault)
	require.NoError(t, err)
	require.Len(t, vault, 2)
	assert.Len(t, evicted, 2)
	assert.Equal(t, "experience 0", vault[0].Content)
	assert.Equal(t, string(core.MemoryEpisodic), vault[0].Metadata["source_kind"])
}

func TestClearWorkingScopedToTask(t *testing.T) {
	m, st := newTestManager()

	_, err := m.Remember(core.MemoryWorking, "scratch for t1", map[string]string{"task_id": "t1"})
	require.NoError(t, err)
	_, err = m.Remember(core.MemoryWorking, "scratch for t2", map[string]string{"task_id": "t2"})
	require.NoError(t, err)

	require.NoError(t, m.ClearWorking("t1"))

	remaining, err := st.ListMemory(core.MemoryWorking)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "t2", remaining[0].Metadata["task_id"])
}

func TestForget(t *testing.T) {
	m, _ := newTestManager()

	id, err := m.Remember(core.MemorySemantic, "forget me", nil)
	require.NoError(t, err)
	require.NoError(t, m.Forget(id))

	assert.ErrorIs(t, m.Forget(id), core.ErrNotFound)
}

func TestConcurrentRemembersSameKind(t *testing.T) {
	m, st := newTestManager(func(o *Options) {
		// High bound so no eviction interferes with the count.
		o.EpisodicMaxEntries = 1000
	})

	const writers = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	ids := make([]string, writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			id, err := m.Remember(core.MemoryEpisodic, fmt.Sprintf("concurrent experience %d", i), nil)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	// Exactly 50 distinct, non-corrupted entries.
	unique := map[string]bool{}
	for _, id := range ids {
		unique[id] = true
	}
	assert.Len(t, unique, writers)

	entries, err := st.ListMemory(core.MemoryEpisodic)
	require.NoError(t, err)
	assert.Len(t, entries, writers)
}

func TestRecallBumpsAccessStats(t *testing.T) {
	m, st := newTestManager()

	id, err := m.Remember(core.MemoryEpisodic, "frequently used fact", nil)
	require.NoError(t, err)

	_, err = m.Recall(core.MemoryEpisodic, "fact", 5)
	require.NoError(t, err)
	_, err = m.Recall(core.MemoryEpisodic, "fact", 5)
	require.NoError(t, err)

	entry, err := st.LoadMemory(id)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.AccessCount)
}
