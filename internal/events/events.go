// Package events carries process-level notifications between components.
// The catalog publishes refresh events here and a supervision layer can
// subscribe for restart requests instead of watching side-channel files.
package events

import (
	"sync"
	"time"
)

// Type enumerates event kinds.
type Type string

const (
	// TypeProductsRefreshed fires after a forced catalog refresh persisted
	// a new snapshot.
	TypeProductsRefreshed Type = "products_refreshed"
	// TypeRestartRequested asks the process supervisor to restart the bot.
	TypeRestartRequested Type = "restart_requested"
)

// Event is a single notification.
type Event struct {
	Type      Type      `json:"type"`
	Venue     string    `json:"venue,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// Bus fans events out to all subscribers via buffered channels, dropping on
// slow consumers so publishers never block.
type Bus struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	buffer int
}

// NewBus creates a bus with the given per-subscriber buffer.
func NewBus(buffer int) *Bus {
	if buffer < 1 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[chan Event]struct{}),
		buffer: buffer,
	}
}

// Publish sends the event to all subscribers.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel receiving events until Unsubscribe is called.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes the channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
