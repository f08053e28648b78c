package progress

import (
	"sync"
	"time"
)

// Hub fans events out to subscribers. Publishing never blocks: each
// subscriber has a bounded buffer and the oldest buffered event is dropped
// when it overflows.
type Hub struct {
	mu       sync.Mutex
	capacity int
	nextID   int
	subs     map[int]*subscriber
}

type subscriber struct {
	ch chan Event
}

// NewHub constructs a Hub with the given per-subscriber buffer capacity.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{capacity: capacity, subs: make(map[int]*subscriber)}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called when the consumer is done; it closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	sub := &subscriber{ch: make(chan Event, h.capacity)}
	h.subs[id] = sub

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if current, ok := h.subs[id]; ok && current == sub {
			delete(h.subs, id)
			close(sub.ch)
		}
	}
	return sub.ch, cancel
}

// Publish delivers evt to every subscriber.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		for {
			select {
			case sub.ch <- evt:
			default:
				// Buffer full: drop the oldest event and retry.
				select {
				case <-sub.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
