// Package events provides in-memory topic pub/sub for scopesync.
// The connection store publishes change events on it and the orchestrator
// publishes its lifecycle signals on it.
package events

import (
	"time"
)

// EventType defines the type of event.
type EventType string

const (
	// EventConnectionChange carries a connection.ChangeEvent.
	EventConnectionChange EventType = "connection_change"

	// Orchestrator signals

	// EventConnectionsLoaded fires after a change batch has been applied.
	EventConnectionsLoaded EventType = "connections_loaded"
	// EventNoConnections fires when a subscription's first batch is empty.
	EventNoConnections EventType = "no_connections"
	// EventLoadFailed fires when the connection feed fails.
	EventLoadFailed EventType = "load_failed"
	// EventConnectionSelected fires when a connection selection is dispatched.
	EventConnectionSelected EventType = "connection_selected"
	// EventProjectSelected fires when a project selection is dispatched.
	EventProjectSelected EventType = "project_selected"
	// EventFetchFailed fires when a projects or task lists fetch fails.
	EventFetchFailed EventType = "fetch_failed"
	// EventConnectionAdded fires when a new connection has been created.
	EventConnectionAdded EventType = "connection_added"
	// EventAddFailed fires when creating or verifying a connection fails.
	EventAddFailed EventType = "add_failed"
	// EventNavigate fires when the orchestrator moves the user to another view.
	EventNavigate EventType = "navigate"
)

// Well-known topics.
const (
	TopicConnections  = "connections"
	TopicOrchestrator = "orchestrator"
)

// Event represents a published event.
type Event struct {
	Type  EventType `json:"type"`
	Topic string    `json:"topic"`
	Data  any       `json:"data"`
	Time  time.Time `json:"time"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, topic string, data any) Event {
	return Event{
		Type:  eventType,
		Topic: topic,
		Data:  data,
		Time:  time.Now(),
	}
}

// SelectionData is the payload of selection signals.
type SelectionData struct {
	ConnectionID string `json:"connection_id"`
	ProjectID    string `json:"project_id,omitempty"`
}

// LoadedData is the payload of EventConnectionsLoaded.
type LoadedData struct {
	Connections int  `json:"connections"`
	Initial     bool `json:"initial"`
}

// ErrorData is the payload of failure signals.
type ErrorData struct {
	Message string `json:"message"`
}

// NavigateData is the payload of EventNavigate.
type NavigateData struct {
	Path string `json:"path"`
}
