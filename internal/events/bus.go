package events

import (
	"fmt"
	"sync"

	messagebus "github.com/vardius/message-bus"
)

// DefaultQueueSize is the per-subscriber buffer of a MessageBus.
const DefaultQueueSize = 64

// Bus delivers events published on a topic to every subscriber of that
// topic. Each subscriber receives events one at a time in publish order.
type Bus interface {
	Publish(topic string, e Event)
	Subscribe(topic string, fn func(Event)) (unsubscribe func(), err error)
	Close()
}

// MessageBus is a Bus backed by an in-process message bus.
type MessageBus struct {
	bus    messagebus.MessageBus
	mu     sync.Mutex
	topics map[string]int
}

// NewMessageBus creates a bus with queueSize buffered events per
// subscriber. Publish blocks while a subscriber's buffer is full.
func NewMessageBus(queueSize int) *MessageBus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &MessageBus{
		bus:    messagebus.New(queueSize),
		topics: make(map[string]int),
	}
}

// Publish implements Bus.
func (b *MessageBus) Publish(topic string, e Event) {
	b.bus.Publish(topic, e)
}

// Subscribe implements Bus. The returned func removes the subscription and
// may be called more than once.
func (b *MessageBus) Subscribe(topic string, fn func(Event)) (func(), error) {
	// The bus matches subscriptions by func identity, so keep the exact
	// value for Unsubscribe.
	handler := func(e Event) { fn(e) }
	if err := b.bus.Subscribe(topic, handler); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	b.mu.Lock()
	b.topics[topic]++
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.topics[topic] == 0 {
				return
			}
			if err := b.bus.Unsubscribe(topic, handler); err == nil {
				b.topics[topic]--
			}
		})
	}, nil
}

// Close removes every subscription.
func (b *MessageBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic := range b.topics {
		b.bus.Close(topic)
	}
	b.topics = make(map[string]int)
}

// Compile-time interface check.
var _ Bus = (*MessageBus)(nil)
