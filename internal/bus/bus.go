// Package bus is the in-process publish/subscribe channel between stores and
// their consumers. Delivery is best-effort: a subscriber that falls behind
// loses events rather than blocking a store.
package bus

import (
	"strings"
	"sync"
)

// Bus fans events out to subscribers filtered by kind prefix.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Publish delivers the event to every subscriber whose prefix matches
// event.Kind. Full subscriber buffers drop the event.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !strings.HasPrefix(evt.Kind, s.prefix) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			// Subscriber buffer full; drop rather than block the publisher.
		}
	}
}

// Subscribe registers interest in all events whose kind starts with prefix.
// An empty prefix matches everything. The returned func removes the
// subscription; the channel is never closed.
func (b *Bus) Subscribe(prefix string, buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscriber{prefix: prefix, ch: ch}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
	return ch, cancel
}
