// Package bus provides the in-process publish/subscribe channel that fans
// out dashboard events to connected observer sessions.
package bus

import (
	"log/slog"
	"sync"

	"github.com/linkeLi0421/Epstein-Rag/internal/models"
)

// defaultQueueSize bounds each subscriber's pending-event ring. When a
// subscriber falls this far behind, the oldest pending events are dropped
// and the next delivered event is flagged with Gap.
const defaultQueueSize = 64

// Bus fans events out to subscribers. Publishing never blocks on a slow
// subscriber: each subscription owns a bounded drop-oldest queue drained by
// its own goroutine.
type Bus struct {
	mu        sync.RWMutex
	subs      map[*Subscription]struct{}
	queueSize int
	logger    *slog.Logger
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:      make(map[*Subscription]struct{}),
		queueSize: defaultQueueSize,
		logger:    logger,
	}
}

// Subscription is one subscriber's detachable handle on the bus.
type Subscription struct {
	bus   *Bus
	kinds map[models.EventKind]struct{} // nil means all kinds

	mu      sync.Mutex
	pending []models.Event
	gap     bool
	notify  chan struct{}

	out  chan models.Event
	done chan struct{}
	once sync.Once
}

// Subscribe registers a subscriber for the given event kinds. With no kinds
// the subscription is a wildcard and receives everything. Events arrive on
// Events(); call Detach when done.
func (b *Bus) Subscribe(kinds ...models.EventKind) *Subscription {
	sub := &Subscription{
		bus:    b,
		notify: make(chan struct{}, 1),
		out:    make(chan models.Event),
		done:   make(chan struct{}),
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[models.EventKind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.pump()
	return sub
}

// Publish delivers an event to every matching subscriber. Events published
// for the same entity are enqueued to each subscriber in publish order. The
// caller is never blocked by subscriber-side slowness.
func (b *Bus) Publish(ev models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if sub.wants(ev.Kind) {
			sub.enqueue(ev, b.queueSize)
		}
	}
}

// SubscriberCount reports currently attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Events returns the subscriber's delivery channel. It is closed after
// Detach once all pending deliveries stop.
func (s *Subscription) Events() <-chan models.Event {
	return s.out
}

// Detach removes the subscription. Safe to call multiple times and from
// within a handler draining Events().
func (s *Subscription) Detach() {
	s.once.Do(func() {
		close(s.done)
		s.bus.remove(s)
	})
}

func (s *Subscription) wants(kind models.EventKind) bool {
	if s.kinds == nil {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

func (s *Subscription) enqueue(ev models.Event, max int) {
	s.mu.Lock()
	if len(s.pending) >= max {
		// Drop the oldest and flag the gap; the observer re-fetches state.
		s.pending = s.pending[1:]
		s.gap = true
	}
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pump drains the pending ring into the delivery channel. A consumer that
// stalls only delays its own pump; publishers keep appending (and, past the
// bound, dropping) without ever blocking.
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			if len(s.pending) == 0 {
				s.mu.Unlock()
				break
			}
			ev := s.pending[0]
			s.pending = s.pending[1:]
			if s.gap {
				ev.Gap = true
				s.gap = false
			}
			s.mu.Unlock()

			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
	}
}
