package events

import (
	"sync"
)

// GlobalTopic is the special topic for subscribing to all events.
const GlobalTopic = "*"

// Publisher defines the interface for event publishing.
type Publisher interface {
	// Publish sends an event to all subscribers of its topic.
	Publish(event Event)
	// Subscribe returns a channel that receives events for the given topic.
	// Use GlobalTopic ("*") to receive events for all topics.
	Subscribe(topic string) <-chan Event
	// Unsubscribe removes a subscription channel.
	Unsubscribe(topic string, ch <-chan Event)
	// Close shuts down the publisher and all subscriptions.
	Close()
}

// MemoryPublisher is an in-memory implementation of Publisher.
//
// Publish holds the write lock, so every subscriber sees events in the
// order they were published.
type MemoryPublisher struct {
	subscribers map[string][]chan Event
	mu          sync.Mutex
	bufferSize  int
	evictSlow   bool
	closed      bool
}

// PublisherOption configures a MemoryPublisher.
type PublisherOption func(*MemoryPublisher)

// WithBufferSize sets the channel buffer size for subscribers.
func WithBufferSize(size int) PublisherOption {
	return func(p *MemoryPublisher) {
		p.bufferSize = size
	}
}

// WithEvictSlowSubscribers closes the channel of a subscriber whose buffer
// is full instead of skipping the event. Consumers that need every event
// (change feeds) observe the close and resubscribe.
func WithEvictSlowSubscribers() PublisherOption {
	return func(p *MemoryPublisher) {
		p.evictSlow = true
	}
}

// NewMemoryPublisher creates a new in-memory publisher.
func NewMemoryPublisher(opts ...PublisherOption) *MemoryPublisher {
	p := &MemoryPublisher{
		subscribers: make(map[string][]chan Event),
		bufferSize:  100,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends an event to all subscribers of its topic and to global
// subscribers. Never blocks: a full subscriber either misses the event or,
// with WithEvictSlowSubscribers, is evicted.
func (p *MemoryPublisher) Publish(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.deliver(event.Topic, event)
	if event.Topic != GlobalTopic {
		p.deliver(GlobalTopic, event)
	}
}

func (p *MemoryPublisher) deliver(topic string, event Event) {
	subs := p.subscribers[topic]
	kept := subs[:0]
	for _, ch := range subs {
		select {
		case ch <- event:
			kept = append(kept, ch)
		default:
			if p.evictSlow {
				close(ch)
				continue
			}
			kept = append(kept, ch)
		}
	}
	if len(kept) == 0 {
		delete(p.subscribers, topic)
		return
	}
	p.subscribers[topic] = kept
}

// Subscribe returns a channel that receives events for the given topic.
func (p *MemoryPublisher) Subscribe(topic string) <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, p.bufferSize)
	p.subscribers[topic] = append(p.subscribers[topic], ch)
	return ch
}

// Unsubscribe removes a subscription channel and closes it.
// Unsubscribing an evicted channel is a no-op.
func (p *MemoryPublisher) Unsubscribe(topic string, ch <-chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.subscribers[topic]
	for i, sub := range subs {
		if sub == ch {
			p.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}

	if len(p.subscribers[topic]) == 0 {
		delete(p.subscribers, topic)
	}
}

// Close shuts down the publisher and closes all subscription channels.
func (p *MemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true

	for topic, subs := range p.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(p.subscribers, topic)
	}
}

// SubscriberCount returns the number of subscribers for a topic.
func (p *MemoryPublisher) SubscriberCount(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscribers[topic])
}

// NopPublisher is a no-op publisher for testing or when events are disabled.
type NopPublisher struct{}

// Publish does nothing.
func (p *NopPublisher) Publish(event Event) {}

// Subscribe returns a closed channel.
func (p *NopPublisher) Subscribe(topic string) <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}

// Unsubscribe does nothing.
func (p *NopPublisher) Unsubscribe(topic string, ch <-chan Event) {}

// Close does nothing.
func (p *NopPublisher) Close() {}

// NewNopPublisher creates a no-op publisher.
func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}
