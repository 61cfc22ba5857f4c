package stream

import (
	"sync"
)

const (
	EventOrderCreated = "order_created"
	EventOrderUpdated = "order_updated"

	DefaultSubscriberBuffer = 16
)

// Notification is the minimal payload relayed to streaming observers after
// a transition commits.
type Notification struct {
	Event   string `json:"-"`
	OrderID string `json:"id"`
	Status  string `json:"status"`
}

// Hub fans committed order transitions out to connected observers. Delivery
// is best-effort and at-most-once per connection: there is no backlog and
// no replay, and an observer that falls behind its buffer is dropped
// (its channel closed) rather than ever blocking the publisher.
type Hub struct {
	mu               sync.Mutex
	subs             map[uint64]chan Notification
	nextID           uint64
	subscriberBuffer int

	dropped func()
}

type Subscription struct {
	hub  *Hub
	id   uint64
	ch   chan Notification
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{
		subs:             make(map[uint64]chan Notification),
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// OnDrop registers a callback invoked whenever a slow observer is removed.
// Must be called before the hub is shared.
func (h *Hub) OnDrop(fn func()) {
	h.dropped = fn
}

// Publish relays the notification to every current subscriber in
// registration order. Holding the lock through the sends keeps the
// per-subscriber delivery order equal to the publish order.
func (h *Hub) Publish(n Notification) {
	if h == nil {
		return
	}

	h.mu.Lock()
	var droppedCount int
	for id, ch := range h.subs {
		select {
		case ch <- n:
		default:
			delete(h.subs, id)
			close(ch)
			droppedCount++
		}
	}
	h.mu.Unlock()

	if h.dropped != nil {
		for i := 0; i < droppedCount; i++ {
			h.dropped()
		}
	}
}

// Subscribe registers a new observer. Only notifications published after
// registration are delivered.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan Notification, h.subscriberBuffer)
	h.subs[id] = ch
	h.mu.Unlock()

	return &Subscription{
		hub: h,
		id:  id,
		ch:  ch,
	}
}

// Len reports the current subscriber count.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Events yields notifications in publish order. The channel is closed when
// the hub drops the subscriber for falling behind.
func (s *Subscription) Events() <-chan Notification {
	if s == nil {
		return nil
	}
	return s.ch
}

// Close deregisters the observer. Safe to call more than once and after
// the hub has already dropped the subscription.
func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
	})
}
