// Package notify fans projected store mutations out to in-process
// subscribers. It is the trigger point for any downstream relay: the bus
// announces that a projection changed, never what a client should be told.
package notify

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Update describes one applied store mutation.
type Update struct {
	// Event is the chain event name that caused the mutation
	Event string
	// Entity is the projected collection that changed
	Entity string
	// Key is the business key of the changed document
	Key string
	// TxHash is the originating transaction
	TxHash string
}

// SubscriptionID is a unique identifier for a subscription
type SubscriptionID string

// subscription holds one subscriber's delivery channel.
type subscription struct {
	id SubscriptionID
	ch chan Update
}

// Bus is a non-blocking fan-out of store updates. Slow subscribers lose
// updates rather than stalling projection.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[SubscriptionID]*subscription
	bufferSize  int
	nextID      atomic.Uint64
	closed      bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus creates a bus whose subscribers each get a buffer of bufferSize
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Bus{
		subscribers: make(map[SubscriptionID]*subscription),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new subscriber and returns its id and channel. The
// channel is closed on Unsubscribe or Close.
func (b *Bus) Subscribe() (SubscriptionID, <-chan Update) {
	id := SubscriptionID(fmt.Sprintf("sub-%d", b.nextID.Add(1)))
	sub := &subscription{
		id: id,
		ch: make(chan Update, b.bufferSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return id, sub.ch
	}
	b.subscribers[id] = sub
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, exists := b.subscribers[id]; exists {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

// Publish delivers an update to every subscriber. Full subscriber buffers
// drop the update for that subscriber only.
func (b *Bus) Publish(update Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.published.Add(1)
	for _, sub := range b.subscribers {
		select {
		case sub.ch <- update:
		default:
			b.dropped.Add(1)
		}
	}
}

// Stats returns the published and dropped update counts
func (b *Bus) Stats() (published, dropped uint64) {
	return b.published.Load(), b.dropped.Load()
}

// Close closes every subscriber channel. Publish after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}
