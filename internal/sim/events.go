package sim

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/dantte-lp/ranping/internal/wire"
)

const (
	// historySize bounds the replayable event history.
	historySize = 256

	// subscriberBuffer is the per-subscriber channel size. Events are
	// dropped for subscribers that fall behind.
	subscriberBuffer = 64
)

// eventHub fans component events out to subscribers.
type eventHub struct {
	mu      sync.Mutex
	logger  *slog.Logger
	history []wire.Event
	subs    map[uint64]*subscriber
	nextID  uint64
	closed  bool
}

type subscriber struct {
	filter []string
	ch     chan wire.Event
}

func newEventHub(logger *slog.Logger) *eventHub {
	return &eventHub{
		logger: logger,
		subs:   make(map[uint64]*subscriber),
	}
}

func (s *subscriber) wants(ev wire.Event) bool {
	return len(s.filter) == 0 || slices.Contains(s.filter, ev.Component)
}

// publish records ev and delivers it to every interested subscriber
// without blocking.
func (h *eventHub) publish(ev wire.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.history = append(h.history, ev)
	if len(h.history) > historySize {
		h.history = h.history[len(h.history)-historySize:]
	}

	for id, sub := range h.subs {
		if !sub.wants(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("event subscriber channel full, dropping event",
				slog.Uint64("subscriber", id),
				slog.String("component", ev.Component),
				slog.String("kind", string(ev.Kind)),
			)
		}
	}
}

// subscribe registers a subscriber. The returned cancel function closes the
// channel and is safe to call more than once.
func (h *eventHub) subscribe(components []string, includeHistory bool) (<-chan wire.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscriber{
		filter: slices.Clone(components),
		ch:     make(chan wire.Event, subscriberBuffer+historySize),
	}
	if h.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}

	if includeHistory {
		for _, ev := range h.history {
			if sub.wants(ev) {
				sub.ch <- ev
			}
		}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub.ch)
			}
		})
	}
}

// close closes every subscriber channel.
func (h *eventHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}
