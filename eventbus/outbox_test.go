package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/prometheus-agent/prometheus/core"
	"github.com/prometheus-agent/prometheus/store"
)

// collector accumulates delivered events behind a mutex so handler
// goroutines and test assertions do not race.
type collector struct {
	mu     sync.Mutex
	events []core.Event
}

func (c *collector) handle(e core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) snapshot() []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Event(nil), c.events...)
}

func TestPublishReachesSubscriber(t *testing.T) {
	bus := New(store.NewInMemoryStore())
	got := &collector{}
	require.NoError(t, bus.Subscribe(core.EventTaskCompleted, got.handle))
	require.NoError(t, bus.Start(context.Background()))

	event := core.NewEvent(core.EventTaskCompleted, "t1", map[string]any{"output": "done"})
	require.NoError(t, bus.Publish(event))
	require.NoError(t, bus.Close())

	events := got.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, event.ID, events[0].ID)
	assert.Equal(t, "done", gjson.GetBytes(events[0].Payload, "output").String())
}

func TestWildcardSubscriberSeesEveryType(t *testing.T) {
	bus := New(store.NewInMemoryStore())
	got := &collector{}
	require.NoError(t, bus.Subscribe(Wildcard, got.handle))
	require.NoError(t, bus.Start(context.Background()))

	require.NoError(t, bus.Publish(core.NewEvent(core.EventTaskCompleted, "t1", nil)))
	require.NoError(t, bus.Publish(core.NewEvent(core.EventSkillPromoted, "", nil)))
	require.NoError(t, bus.Publish(core.NewEvent(core.EventStorageAlert, "", nil)))
	require.NoError(t, bus.Close())

	assert.Len(t, got.snapshot(), 3)
}

func TestSubscriberOnlySeesItsType(t *testing.T) {
	bus := New(store.NewInMemoryStore())
	got := &collector{}
	require.NoError(t, bus.Subscribe(core.EventSkillPromoted, got.handle))
	require.NoError(t, bus.Start(context.Background()))

	require.NoError(t, bus.Publish(core.NewEvent(core.EventTaskCompleted, "t1", nil)))
	require.NoError(t, bus.Publish(core.NewEvent(core.EventSkillPromoted, "", nil)))
	require.NoError(t, bus.Close())

	events := got.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, core.EventSkillPromoted, events[0].Type)
}

func TestSubscribeNilHandler(t *testing.T) {
	bus := New(store.NewInMemoryStore())
	err := bus.Subscribe(core.EventTaskCompleted, nil)
	assert.True(t, core.IsConfiguration(err))
}

func TestPublishIsDurableWithoutSubscribers(t *testing.T) {
	s := store.NewInMemoryStore()
	bus := New(s)
	require.NoError(t, bus.Start(context.Background()))

	event := core.NewEvent(core.EventTaskCompleted, "t1", nil)
	require.NoError(t, bus.Publish(event))
	require.NoError(t, bus.Close())

	// The event is in the outbox and, with nobody to deliver to, already
	// confirmed.
	pending, err := s.UndeliveredEvents()
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.PendingEvents)
}

func TestReplayDeliversPendingInOrder(t *testing.T) {
	s := store.NewInMemoryStore()

	// A previous run wrote two events but crashed before confirming them.
	first := core.NewEvent(core.EventTaskCompleted, "t1", map[string]any{"n": 1})
	second := core.NewEvent(core.EventTaskCompleted, "t1", map[string]any{"n": 2})
	require.NoError(t, s.SaveEvent(first))
	require.NoError(t, s.SaveEvent(second))

	bus := New(s)
	got := &collector{}
	require.NoError(t, bus.Subscribe(core.EventTaskCompleted, got.handle))
	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Close())

	events := got.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, second.ID, events[1].ID)

	// Replayed payloads carry the redelivery marker so idempotent
	// consumers can tell them apart.
	for _, e := range events {
		assert.True(t, gjson.GetBytes(e.Payload, "redelivered").Bool())
	}

	pending, err := s.UndeliveredEvents()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReplayDeliversExactlyOncePerStart(t *testing.T) {
	s := store.NewInMemoryStore()
	require.NoError(t, s.SaveEvent(core.NewEvent(core.EventTaskCompleted, "t1", nil)))

	bus := New(s)
	got := &collector{}
	require.NoError(t, bus.Subscribe(core.EventTaskCompleted, got.handle))
	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Close())
	require.Len(t, got.snapshot(), 1)

	// A second process start finds a clean outbox and replays nothing.
	bus2 := New(s)
	got2 := &collector{}
	require.NoError(t, bus2.Subscribe(core.EventTaskCompleted, got2.handle))
	require.NoError(t, bus2.Start(context.Background()))
	require.NoError(t, bus2.Close())
	assert.Empty(t, got2.snapshot())
}

func TestReplayDeadLettersPastRetryBudget(t *testing.T) {
	s := store.NewInMemoryStore()
	exhausted := core.NewEvent(core.EventTaskCompleted, "t1", nil)
	exhausted.RetryCount = 2
	require.NoError(t, s.SaveEvent(exhausted))

	bus := New(s, func(o *Options) { o.MaxRetries = 2 })
	got := &collector{}
	require.NoError(t, bus.Subscribe(core.EventTaskCompleted, got.handle))
	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Close())

	// The event is dropped from replay but the outbox is cleaned up so it
	// is not retried forever.
	assert.Empty(t, got.snapshot())
	pending, err := s.UndeliveredEvents()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPerTaskSequenceIsMonotonic(t *testing.T) {
	bus := New(store.NewInMemoryStore())
	got := &collector{}
	require.NoError(t, bus.Subscribe(Wildcard, got.handle))
	require.NoError(t, bus.Start(context.Background()))

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(core.NewEvent(core.EventTaskCompleted, "t1", nil)))
	}
	require.NoError(t, bus.Publish(core.NewEvent(core.EventTaskCompleted, "t2", nil)))
	require.NoError(t, bus.Close())

	events := got.snapshot()
	require.Len(t, events, 4)
	var t1Seqs []int64
	for _, e := range events {
		if e.TaskID == "t1" {
			t1Seqs = append(t1Seqs, e.Seq)
		} else {
			// Another task's counter starts fresh.
			assert.Equal(t, int64(1), e.Seq)
		}
	}
	assert.Equal(t, []int64{1, 2, 3}, t1Seqs)
}

func TestTraceSamplingRateZeroDropsAll(t *testing.T) {
	s := store.NewInMemoryStore()
	bus := New(s, func(o *Options) { o.TraceSampleRate = 0 })
	got := &collector{}
	require.NoError(t, bus.Subscribe(core.EventTrace, got.handle))
	require.NoError(t, bus.Start(context.Background()))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(core.NewTraceEvent("t1", "PLANNING", "EXECUTING", i)))
	}
	require.NoError(t, bus.Close())

	assert.Empty(t, got.snapshot())
	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.PendingEvents)
}

func TestTraceSamplingRateOneKeepsAll(t *testing.T) {
	bus := New(store.NewInMemoryStore(), func(o *Options) { o.TraceSampleRate = 1 })
	got := &collector{}
	require.NoError(t, bus.Subscribe(core.EventTrace, got.handle))
	require.NoError(t, bus.Start(context.Background()))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(core.NewTraceEvent("t1", "PLANNING", "EXECUTING", i)))
	}
	require.NoError(t, bus.Close())

	assert.Len(t, got.snapshot(), 10)
}

func TestSamplingNeverDropsErrorClassEvents(t *testing.T) {
	bus := New(store.NewInMemoryStore(), func(o *Options) { o.TraceSampleRate = 0 })
	got := &collector{}
	require.NoError(t, bus.Subscribe(Wildcard, got.handle))
	require.NoError(t, bus.Start(context.Background()))

	require.NoError(t, bus.Publish(core.NewStorageAlertEvent("size threshold exceeded", 1<<20)))
	require.NoError(t, bus.Publish(core.NewEvent(core.EventTaskAbandoned, "t1", nil)))
	require.NoError(t, bus.Publish(core.NewEvent(core.EventTaskFailed, "t1", nil)))
	require.NoError(t, bus.Close())

	assert.Len(t, got.snapshot(), 3)
}

func TestSamplingDecisionIsDeterministic(t *testing.T) {
	decide := func() []bool {
		bus := New(store.NewInMemoryStore(), func(o *Options) { o.TraceSampleRate = 0.5 })
		var kept []bool
		for i := 0; i < 20; i++ {
			kept = append(kept, !bus.sampledOut(core.NewTraceEvent("t1", "PLANNING", "EXECUTING", i)))
		}
		return kept
	}

	first := decide()
	assert.Equal(t, first, decide())

	// A rate of 0.5 over 20 distinct transitions should keep some and
	// drop some.
	keptAny, droppedAny := false, false
	for _, k := range first {
		if k {
			keptAny = true
		} else {
			droppedAny = true
		}
	}
	assert.True(t, keptAny)
	assert.True(t, droppedAny)
}

func TestSubscribeAfterStart(t *testing.T) {
	bus := New(store.NewInMemoryStore())
	require.NoError(t, bus.Start(context.Background()))

	got := &collector{}
	require.NoError(t, bus.Subscribe(core.EventTaskCompleted, got.handle))
	require.NoError(t, bus.Publish(core.NewEvent(core.EventTaskCompleted, "t1", nil)))
	require.NoError(t, bus.Close())

	assert.Len(t, got.snapshot(), 1)
}

func TestPublishAfterClose(t *testing.T) {
	bus := New(store.NewInMemoryStore())
	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Close())

	err := bus.Publish(core.NewEvent(core.EventTaskCompleted, "t1", nil))
	assert.True(t, core.IsConfiguration(err))

	err = bus.Subscribe(core.EventTaskCompleted, func(core.Event) {})
	assert.True(t, core.IsConfiguration(err))
}

func TestStalledSubscriberDoesNotBlockPublish(t *testing.T) {
	s := store.NewInMemoryStore()
	bus := New(s, func(o *Options) { o.SubscriberBuffer = 1 })
	gate := make(chan struct{})
	got := &collector{}
	stuck := func(e core.Event) {
		<-gate
		got.handle(e)
	}
	require.NoError(t, bus.Subscribe(core.EventTaskCompleted, stuck))
	require.NoError(t, bus.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			assert.NoError(t, bus.Publish(core.NewEvent(core.EventTaskCompleted, "t1", nil)))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stalled subscriber")
	}

	// The overflow event was not confirmed, so a later start replays it.
	pending, err := s.UndeliveredEvents()
	require.NoError(t, err)
	assert.NotEmpty(t, pending)

	close(gate)
	require.NoError(t, bus.Close())
}

func TestCloseDuringPublishDoesNotPanic(t *testing.T) {
	bus := New(store.NewInMemoryStore())
	require.NoError(t, bus.Subscribe(Wildcard, func(core.Event) {}))
	require.NoError(t, bus.Start(context.Background()))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			// Publishes racing Close may be rejected, never panic.
			_ = bus.Publish(core.NewEvent(core.EventTaskCompleted, "t1", nil))
		}
	}()
	require.NoError(t, bus.Close())
	wg.Wait()
}

func TestCloseDrainsQueuedEvents(t *testing.T) {
	bus := New(store.NewInMemoryStore())
	got := &collector{}
	slow := func(e core.Event) {
		time.Sleep(time.Millisecond)
		got.handle(e)
	}
	require.NoError(t, bus.Subscribe(core.EventTaskCompleted, slow))
	require.NoError(t, bus.Start(context.Background()))

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(core.NewEvent(core.EventTaskCompleted, "t1", nil)))
	}
	require.NoError(t, bus.Close())

	// Close returns only after every queued event reached the handler.
	assert.Len(t, got.snapshot(), 20)
}
