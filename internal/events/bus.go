package events

import (
	"sync"
	"sync/atomic"
)

// Publisher is the side of the bus the gateway depends on.
type Publisher interface {
	Publish(topic string, event Event)
}

// EventBus fans events out to per-topic and catch-all subscribers.
// Publishing never blocks: a full subscriber misses the event and the
// drop is counted.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[string][]chan Event
	allSubs []chan Event
	closed  bool
	dropped atomic.Uint64
}

// NewEventBus creates an open bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[string][]chan Event),
	}
}

func newSubscriberChan(bufSize int) chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}
	return make(chan Event, bufSize)
}

// Subscribe returns a channel receiving events published to topic.
// bufSize <= 0 means 256. Subscribing to a closed bus yields a closed channel.
func (b *EventBus) Subscribe(topic string, bufSize int) <-chan Event {
	ch := newSubscriberChan(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// SubscribeAll returns a channel receiving events from every topic.
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	ch := newSubscriberChan(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.allSubs = append(b.allSubs, ch)
	return ch
}

// Publish delivers event to the topic's subscribers and to SubscribeAll
// channels. It is a no-op once the bus is closed.
func (b *EventBus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs[topic] {
		b.offer(ch, event)
	}
	for _, ch := range b.allSubs {
		b.offer(ch, event)
	}
}

func (b *EventBus) offer(ch chan Event, event Event) {
	select {
	case ch <- event:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Calling it again is a no-op.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subs {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.allSubs {
		close(ch)
	}
}
