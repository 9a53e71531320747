package eventstore

import (
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Subscriber receives newly-appended envelopes.
type Subscriber func(Envelope)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus fans out appended events to in-process listeners (projections caches,
// SSE streams, hooks). Delivery is a direct in-process call to each
// subscriber function; the watermill gochannel it holds is created with
// the bus and closed by Close, and carries no events.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[string][]subscriberEntry // keyed by session id, "" = all
	nextID      uint64
	closed      bool
}

// NewBus creates a new, independent bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 100},
			watermill.NopLogger{},
		),
		subscribers: make(map[string][]subscriberEntry),
	}
}

func (b *Bus) newID() uint64 { return atomic.AddUint64(&b.nextID, 1) }

// Subscribe registers fn for events on a single session. Pass "" to receive
// every session's events. Returns an unsubscribe function.
func (b *Bus) Subscribe(sessionID string, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.newID()
	b.subscribers[sessionID] = append(b.subscribers[sessionID], subscriberEntry{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[sessionID]
		for i, e := range subs {
			if e.id == id {
				b.subscribers[sessionID] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers env to subscribers of its session and to wildcard
// subscribers, synchronously, so that ordering is preserved relative to the
// append call that produced it.
func (b *Bus) Publish(env Envelope) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]Subscriber, 0, len(b.subscribers[env.SessionID])+len(b.subscribers[""]))
	for _, e := range b.subscribers[env.SessionID] {
		subs = append(subs, e.fn)
	}
	for _, e := range b.subscribers[""] {
		subs = append(subs, e.fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(env)
	}
}

// Close shuts the bus down; subsequent Publish/Subscribe calls are no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subscribers = nil
	b.mu.Unlock()
	return b.pubsub.Close()
}
