package kernel

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wendao-project/wendao-kernel/log"
)

// WildcardTopic matches every event, dispatched after a topic's own
// handlers.
const WildcardTopic = "*"

const defaultQueueCapacity = 1000
const pollTimeout = 500 * time.Millisecond

// Event is the unit the reactor queues and dispatches.
type Event struct {
	Topic   string
	Payload map[string]any
}

// HandlerFunc receives a dispatched event. A panic inside a handler is
// recovered, counted, and never stops the reactor.
type HandlerFunc func(ctx context.Context, event Event)

// HandlerID identifies a registration for later removal. Go function
// values aren't comparable, so unlike the Python original (which
// compares callback identity), registration returns an explicit handle.
type HandlerID uint64

type handlerEntry struct {
	id       HandlerID
	priority int
	seq      uint64
	callback HandlerFunc
}

// Stats is the reactor's runtime statistics snapshot.
type Stats struct {
	EventsReceived     int64
	EventsProcessed    int64
	EventsFailed       int64
	HandlersRegistered int64
	StartTime          time.Time
	IsRunning          bool
}

// Reactor is a single-threaded cooperative dispatcher over a bounded
// event queue. There is no global singleton: callers construct and
// thread an explicit *Reactor.
type Reactor struct {
	mu       sync.Mutex
	handlers map[string][]handlerEntry
	wildcard []handlerEntry
	nextID   HandlerID
	nextSeq  uint64
	stats    Stats

	queue   chan Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	logger  log.Logger
}

// NewReactor builds a Reactor with the default 1000-event queue
// capacity.
func NewReactor(logger log.Logger) *Reactor {
	if logger == nil {
		logger = log.NewDefaultLogger(log.LogLevelInfo)
	}
	return &Reactor{
		handlers: make(map[string][]handlerEntry),
		queue:    make(chan Event, defaultQueueCapacity),
		logger:   logger,
	}
}

// RegisterHandler adds a per-topic (or WildcardTopic) handler, kept
// sorted by priority descending with registration order as the
// tie-break.
func (r *Reactor) RegisterHandler(topic string, priority int, cb HandlerFunc) HandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.nextSeq++
	entry := handlerEntry{id: r.nextID, priority: priority, seq: r.nextSeq, callback: cb}

	if topic == WildcardTopic {
		r.wildcard = insertSorted(r.wildcard, entry)
	} else {
		r.handlers[topic] = insertSorted(r.handlers[topic], entry)
	}
	r.stats.HandlersRegistered++
	return entry.id
}

func insertSorted(list []handlerEntry, entry handlerEntry) []handlerEntry {
	list = append(list, entry)
	sort.SliceStable(list, func(i, j int) bool { return list[i].priority > list[j].priority })
	return list
}

// UnregisterHandler removes a handler from the exact topic list it was
// registered under: a handler registered for WildcardTopic is only
// ever pruned from the wildcard list, and a handler registered for a
// named topic is only ever pruned from that topic's list. Idempotent:
// removing an unknown ID is a no-op reporting false.
func (r *Reactor) UnregisterHandler(topic string, id HandlerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed bool
	if topic == WildcardTopic {
		r.wildcard, removed = removeByID(r.wildcard, id)
	} else if list, ok := r.handlers[topic]; ok {
		r.handlers[topic], removed = removeByID(list, id)
		if len(r.handlers[topic]) == 0 {
			delete(r.handlers, topic)
		}
	}
	if removed && r.stats.HandlersRegistered > 0 {
		r.stats.HandlersRegistered--
	}
	return removed
}

func removeByID(list []handlerEntry, id HandlerID) ([]handlerEntry, bool) {
	for i, h := range list {
		if h.id == id {
			return append(append([]handlerEntry{}, list[:i]...), list[i+1:]...), true
		}
	}
	return list, false
}

// Publish enqueues an event for dispatch. Blocks if the queue is full;
// returns ctx.Err() if ctx is cancelled first.
func (r *Reactor) Publish(ctx context.Context, event Event) error {
	select {
	case r.queue <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the consumer loop as a background goroutine.
func (r *Reactor) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stats.StartTime = time.Now()
	r.stats.IsRunning = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.consumerLoop(ctx)
	r.logger.Info("reactor started")
}

// Stop signals the consumer loop to dispatch any events still queued
// and exit, then emits a final
// system/shutdown event to every handler registered under any topic,
// not only ones listening on "system/shutdown" or WildcardTopic.
func (r *Reactor) Stop(ctx context.Context) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	<-r.doneCh

	r.broadcastShutdown(ctx)
	r.mu.Lock()
	r.stats.IsRunning = false
	r.mu.Unlock()
	r.logger.Info("reactor stopped")
}

// broadcastShutdown delivers the synthetic shutdown event to every
// handler registered on the reactor, across every topic, plus the
// wildcard list. Unlike dispatch, it is not keyed to a single topic.
func (r *Reactor) broadcastShutdown(ctx context.Context) {
	event := Event{Topic: "system/shutdown", Payload: map[string]any{}}

	r.mu.Lock()
	r.stats.EventsReceived++
	all := make([]handlerEntry, 0, len(r.wildcard))
	for _, topic := range r.handlers {
		all = append(all, topic...)
	}
	all = append(all, r.wildcard...)
	r.mu.Unlock()

	for _, h := range all {
		r.safeCall(ctx, h.callback, event)
	}

	r.mu.Lock()
	r.stats.EventsProcessed++
	r.mu.Unlock()
}

func (r *Reactor) consumerLoop(ctx context.Context) {
	defer close(r.doneCh)
	ticker := time.NewTicker(pollTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			for {
				select {
				case event := <-r.queue:
					r.dispatch(ctx, event)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		case event := <-r.queue:
			r.dispatch(ctx, event)
		case <-ticker.C:
			continue
		}
	}
}

func (r *Reactor) dispatch(ctx context.Context, event Event) {
	r.mu.Lock()
	r.stats.EventsReceived++
	topicHandlers := append([]handlerEntry{}, r.handlers[event.Topic]...)
	wildcardHandlers := append([]handlerEntry{}, r.wildcard...)
	r.mu.Unlock()

	all := append(topicHandlers, wildcardHandlers...)
	if len(all) == 0 {
		return
	}

	for _, h := range all {
		r.safeCall(ctx, h.callback, event)
	}

	r.mu.Lock()
	r.stats.EventsProcessed++
	r.mu.Unlock()
}

func (r *Reactor) safeCall(ctx context.Context, cb HandlerFunc, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.mu.Lock()
			r.stats.EventsFailed++
			r.mu.Unlock()
			r.logger.Error("reactor handler panic for topic %s: %v", event.Topic, rec)
		}
	}()
	cb(ctx, event)
}

// GetStats returns a snapshot of the reactor's runtime counters.
func (r *Reactor) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// IsRunning reports whether the consumer loop is active.
func (r *Reactor) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// RegisteredTopics lists the non-wildcard topics with at least one
// handler.
func (r *Reactor) RegisteredTopics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}
