package eventbus

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/errgroup"

	"github.com/prometheus-agent/prometheus/core"
	"github.com/prometheus-agent/prometheus/logging"
)

// Wildcard subscribes a handler to every event type.
const Wildcard = "*"

// Options configures the bus.
type Options struct {
	// SubscriberBuffer is the queue depth of each subscriber channel.
	// When a queue is full the event stays undelivered in the outbox for
	// replay instead of blocking the publisher.
	SubscriberBuffer int

	// TraceSampleRate is the fraction of trace events retained, in [0,1].
	// Sampling is deterministic per event so replay makes the same
	// decision. Error-class events bypass sampling entirely.
	TraceSampleRate float64

	// MaxRetries bounds redelivery attempts for a single event. Past the
	// bound the event is marked delivered and logged as dead-lettered.
	MaxRetries int

	Logger logging.Logger
}

type subscriber struct {
	eventType string
	ch        chan core.Event

	// pending holds the handler until Start attaches the drain goroutine,
	// for subscribers registered before the bus starts.
	pending core.Handler
}

// OutboxBus is the durable at-least-once bus over a core.Store outbox.
type OutboxBus struct {
	store core.Store
	opts  Options

	mu      sync.RWMutex
	subs    []*subscriber
	started bool
	closed  bool

	seqMu sync.Mutex
	seq   map[string]int64

	group  *errgroup.Group
	cancel context.CancelFunc
}

var _ core.Bus = (*OutboxBus)(nil)

// New creates a bus over the given store. Call Start before publishing so
// events left undelivered by a previous run are replayed first.
func New(store core.Store, optFns ...func(o *Options)) *OutboxBus {
	opts := Options{
		SubscriberBuffer: 64,
		TraceSampleRate:  0.1,
		MaxRetries:       5,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.SubscriberBuffer < 1 {
		opts.SubscriberBuffer = 1
	}
	return &OutboxBus{
		store: store,
		opts:  opts,
		seq:   make(map[string]int64),
	}
}

// Subscribe registers a handler for an event type (or Wildcard for all).
// Each subscriber gets its own bounded queue drained by its own goroutine, so
// one slow handler delays only its own queue. Subscribing after Start is
// allowed; the new subscriber sees only events published afterwards.
func (b *OutboxBus) Subscribe(eventType string, handler core.Handler) error {
	if handler == nil {
		return &core.ConfigurationError{Field: "handler", Reason: "must not be nil"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return &core.ConfigurationError{Field: "bus", Reason: "subscribe after close"}
	}
	sub := &subscriber{
		eventType: eventType,
		ch:        make(chan core.Event, b.opts.SubscriberBuffer),
	}
	b.subs = append(b.subs, sub)
	if b.group != nil {
		b.drain(sub, handler)
	} else {
		// Drain goroutines attach lazily at Start so replayed events reach
		// subscribers registered before Start.
		sub.pending = handler
	}
	return nil
}

// Start replays undelivered events from the outbox in original order, then
// accepts live publishes. Replays are annotated in the payload so idempotent
// consumers can distinguish them.
func (b *OutboxBus) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	b.group, _ = errgroup.WithContext(ctx)
	b.cancel = cancel
	for _, sub := range b.subs {
		if sub.pending != nil {
			h := sub.pending
			sub.pending = nil
			b.drain(sub, h)
		}
	}
	b.started = true
	b.mu.Unlock()

	pending, err := b.store.UndeliveredEvents()
	if err != nil {
		return &core.StorageError{Op: "eventbus.replay", Err: err}
	}
	for _, event := range pending {
		event.RetryCount++
		if event.RetryCount > b.opts.MaxRetries {
			b.opts.Logger.Warn("event dead-lettered after retry budget",
				"event_id", event.ID, "type", event.Type, "retries", event.RetryCount)
			if err := b.store.MarkDelivered(event.ID, event.RetryCount); err != nil {
				return &core.StorageError{Op: "eventbus.deadletter", Err: err}
			}
			continue
		}
		if annotated, err := sjson.SetBytes(event.Payload, "redelivered", true); err == nil {
			event.Payload = annotated
		}
		if err := b.dispatch(event); err != nil {
			return err
		}
	}
	if len(pending) > 0 {
		b.opts.Logger.Info("outbox replay complete", "events", len(pending))
	}
	return nil
}

// Publish durably records the event and hands it to every matching
// subscriber queue. It returns once the write is durable; a full queue
// leaves the event undelivered for replay rather than blocking the caller.
// Per-task sequence numbers are assigned here, so calls for the same task
// must come from one goroutine to preserve ordering.
func (b *OutboxBus) Publish(event core.Event) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return &core.ConfigurationError{Field: "bus", Reason: "publish after close"}
	}

	event.Seq = b.nextSeq(event.TaskID)

	if b.sampledOut(event) {
		return nil
	}

	if err := b.store.SaveEvent(event); err != nil {
		return &core.StorageError{Op: "eventbus.publish", Err: err}
	}
	return b.dispatch(event)
}

// dispatch enqueues to every matching subscriber, then flips the delivered
// flag. A crash between enqueue and flip causes redelivery, never loss.
// Sends never block: a queue that cannot accept the event leaves it
// undelivered so the next Start replays it. Sends stay under the read lock
// so Close cannot close a channel mid-send.
func (b *OutboxBus) dispatch(event core.Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	full := false
	for _, sub := range b.subs {
		if sub.eventType != Wildcard && sub.eventType != event.Type {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			full = true
		}
	}
	b.mu.RUnlock()

	if full {
		b.opts.Logger.Warn("subscriber queue full, event held for redelivery",
			"event_id", event.ID, "type", event.Type)
		return nil
	}
	if err := b.store.MarkDelivered(event.ID, event.RetryCount); err != nil {
		return &core.StorageError{Op: "eventbus.mark_delivered", Err: err}
	}
	return nil
}

func (b *OutboxBus) drain(sub *subscriber, handler core.Handler) {
	b.group.Go(func() error {
		for event := range sub.ch {
			handler(event)
		}
		return nil
	})
}

// nextSeq increments the per-task sequence counter. Events without a task
// share a single process-wide counter.
func (b *OutboxBus) nextSeq(taskID string) int64 {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	b.seq[taskID]++
	return b.seq[taskID]
}

// sampledOut decides whether a trace event is dropped. The decision hashes
// the event's stable identity (task, transition, iteration) so the same
// logical event is kept or dropped consistently, including across replay.
func (b *OutboxBus) sampledOut(event core.Event) bool {
	if event.Type != core.EventTrace || event.IsErrorClass() {
		return false
	}
	rate := b.opts.TraceSampleRate
	if rate >= 1 {
		return false
	}
	if rate <= 0 {
		return true
	}
	key := fmt.Sprintf("%s/%s->%s/%d",
		event.TaskID,
		gjson.GetBytes(event.Payload, "from").String(),
		gjson.GetBytes(event.Payload, "to").String(),
		gjson.GetBytes(event.Payload, "iteration").Int(),
	)
	h := fnv.New32a()
	h.Write([]byte(key))
	return float64(h.Sum32())/float64(^uint32(0)) >= rate
}

// Close stops accepting publishes, lets every queued event drain to its
// handler, and waits for the drain goroutines to exit.
func (b *OutboxBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	// Channels close under the same lock that guards dispatch sends, so a
	// racing publish can never hit a closed channel.
	for _, sub := range b.subs {
		close(sub.ch)
	}
	group := b.group
	cancel := b.cancel
	b.mu.Unlock()

	if group != nil {
		defer cancel()
		return group.Wait()
	}
	return nil
}
