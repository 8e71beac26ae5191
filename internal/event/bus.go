// Package event provides the in-process pub/sub bus the editing session
// uses to fan out document transactions, selection changes, presence
// updates and collaboration status to interested components.
//
// Delivery is synchronous and ordered: Publish runs every active
// subscription's handler in subscription order before returning, which
// keeps the engine's single-logical-thread mutation model intact.
package event

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// Topic names an event stream.
type Topic string

// Topics published by the editing session.
const (
	// TopicTransaction carries document.Result payloads.
	TopicTransaction Topic = "doc.transaction"
	// TopicSelection carries document.Selection payloads.
	TopicSelection Topic = "doc.selection"
	// TopicCollabStatus carries collab.State payloads.
	TopicCollabStatus Topic = "collab.status"
	// TopicPresence carries presence entry snapshots.
	TopicPresence Topic = "presence.update"
	// TopicAIDialog carries ai dialog state changes.
	TopicAIDialog Topic = "ai.dialog"
)

// Handler processes a published event. The payload is type-erased;
// handlers type-assert to the topic's payload type.
type Handler interface {
	Handle(ctx context.Context, payload any)
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, payload any)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, payload any) { f(ctx, payload) }

// Subscription is a handle to an active subscription.
type Subscription struct {
	id        uint64
	topic     Topic
	handler   Handler
	cancelled atomic.Bool
	bus       *Bus
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() Topic { return s.topic }

// Cancel permanently stops delivery to this subscription.
func (s *Subscription) Cancel() {
	if s.cancelled.Swap(true) {
		return
	}
	s.bus.remove(s)
}

// Bus is a topic-keyed synchronous event bus. Safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic][]*Subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]*Subscription)}
}

// Subscribe registers a handler for a topic and returns its subscription.
func (b *Bus) Subscribe(topic Topic, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, topic: topic, handler: h, bus: b}
	b.subs[topic] = append(b.subs[topic], sub)
	return sub
}

// SubscribeFunc registers a handler function for a topic.
func (b *Bus) SubscribeFunc(topic Topic, fn func(ctx context.Context, payload any)) *Subscription {
	return b.Subscribe(topic, HandlerFunc(fn))
}

// Publish delivers a payload to every active subscription of the topic,
// synchronously, in subscription order.
func (b *Bus) Publish(ctx context.Context, topic Topic, payload any) {
	b.mu.RLock()
	subs := append([]*Subscription(nil), b.subs[topic]...)
	b.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
	for _, sub := range subs {
		if sub.cancelled.Load() {
			continue
		}
		sub.handler.Handle(ctx, payload)
	}
}

// SubscriberCount returns the number of active subscriptions for a topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.topic]
	for i, s := range list {
		if s.id == sub.id {
			b.subs[sub.topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
}
