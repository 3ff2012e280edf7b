package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	before := time.Now()
	event := NewEvent(EventNavigate, TopicOrchestrator, NavigateData{Path: "/dashboard"})
	after := time.Now()

	assert.Equal(t, EventNavigate, event.Type)
	assert.Equal(t, TopicOrchestrator, event.Topic)
	assert.False(t, event.Time.Before(before) || event.Time.After(after))
}

func TestMemoryPublisher_PublishAndSubscribe(t *testing.T) {
	pub := NewMemoryPublisher()
	defer pub.Close()

	ch := pub.Subscribe(TopicConnections)
	pub.Publish(NewEvent(EventConnectionChange, TopicConnections, "payload"))

	select {
	case received := <-ch:
		assert.Equal(t, EventConnectionChange, received.Type)
		assert.Equal(t, "payload", received.Data)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestMemoryPublisher_TopicIsolation(t *testing.T) {
	pub := NewMemoryPublisher()
	defer pub.Close()

	conns := pub.Subscribe(TopicConnections)
	orch := pub.Subscribe(TopicOrchestrator)

	pub.Publish(NewEvent(EventNoConnections, TopicOrchestrator, nil))

	select {
	case <-conns:
		t.Fatal("connections subscriber received orchestrator event")
	default:
	}
	select {
	case ev := <-orch:
		assert.Equal(t, EventNoConnections, ev.Type)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestMemoryPublisher_GlobalSubscriber(t *testing.T) {
	pub := NewMemoryPublisher()
	defer pub.Close()

	global := pub.Subscribe(GlobalTopic)
	pub.Publish(NewEvent(EventConnectionChange, TopicConnections, 1))
	pub.Publish(NewEvent(EventNavigate, TopicOrchestrator, 2))

	var got []any
	for i := 0; i < 2; i++ {
		select {
		case ev := <-global:
			got = append(got, ev.Data)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for event")
		}
	}
	assert.Equal(t, []any{1, 2}, got)
}

func TestMemoryPublisher_PreservesOrder(t *testing.T) {
	pub := NewMemoryPublisher(WithBufferSize(1000))
	defer pub.Close()

	ch := pub.Subscribe(TopicConnections)
	for i := 0; i < 500; i++ {
		pub.Publish(NewEvent(EventConnectionChange, TopicConnections, i))
	}
	for i := 0; i < 500; i++ {
		ev := <-ch
		require.Equal(t, i, ev.Data)
	}
}

func TestMemoryPublisher_SkipsFullSubscriber(t *testing.T) {
	pub := NewMemoryPublisher(WithBufferSize(1))
	defer pub.Close()

	ch := pub.Subscribe(TopicConnections)
	pub.Publish(NewEvent(EventConnectionChange, TopicConnections, 1))
	pub.Publish(NewEvent(EventConnectionChange, TopicConnections, 2))

	ev, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, 1, ev.Data)
	assert.Equal(t, 1, pub.SubscriberCount(TopicConnections))
}

func TestMemoryPublisher_EvictsSlowSubscriber(t *testing.T) {
	pub := NewMemoryPublisher(WithBufferSize(1), WithEvictSlowSubscribers())
	defer pub.Close()

	slow := pub.Subscribe(TopicConnections)
	pub.Publish(NewEvent(EventConnectionChange, TopicConnections, 1))
	pub.Publish(NewEvent(EventConnectionChange, TopicConnections, 2))

	ev, ok := <-slow
	require.True(t, ok)
	assert.Equal(t, 1, ev.Data)
	_, ok = <-slow
	assert.False(t, ok, "evicted subscriber channel must be closed")
	assert.Equal(t, 0, pub.SubscriberCount(TopicConnections))

	// Unsubscribing an evicted channel must not panic.
	pub.Unsubscribe(TopicConnections, slow)
}

func TestMemoryPublisher_Unsubscribe(t *testing.T) {
	pub := NewMemoryPublisher()
	defer pub.Close()

	ch := pub.Subscribe(TopicConnections)
	assert.Equal(t, 1, pub.SubscriberCount(TopicConnections))

	pub.Unsubscribe(TopicConnections, ch)
	assert.Equal(t, 0, pub.SubscriberCount(TopicConnections))

	_, ok := <-ch
	assert.False(t, ok)
}

func TestMemoryPublisher_Close(t *testing.T) {
	pub := NewMemoryPublisher()

	ch := pub.Subscribe(TopicConnections)
	pub.Close()
	pub.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late := pub.Subscribe(TopicConnections)
	_, ok = <-late
	assert.False(t, ok)

	pub.Publish(NewEvent(EventConnectionChange, TopicConnections, nil))
}

func TestMemoryPublisher_ConcurrentAccess(t *testing.T) {
	pub := NewMemoryPublisher(WithBufferSize(10))
	defer pub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch := pub.Subscribe(TopicConnections)
			pub.Unsubscribe(TopicConnections, ch)
		}()
		go func() {
			defer wg.Done()
			pub.Publish(NewEvent(EventConnectionChange, TopicConnections, nil))
		}()
	}
	wg.Wait()
}

func TestNopPublisher(t *testing.T) {
	pub := NewNopPublisher()
	pub.Publish(NewEvent(EventNavigate, TopicOrchestrator, nil))

	ch := pub.Subscribe(TopicOrchestrator)
	_, ok := <-ch
	assert.False(t, ok)

	pub.Unsubscribe(TopicOrchestrator, ch)
	pub.Close()
}
