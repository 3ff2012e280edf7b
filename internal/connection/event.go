package connection

import "context"

// ChangeType is the kind of change a ChangeEvent describes.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Changes is a partial update of a connection. Nil fields are untouched;
// a non-nil Projects replaces the whole project map.
type Changes struct {
	Type       *string            `json:"type,omitempty"`
	ExternalID *string            `json:"externalId,omitempty"`
	BaseURL    *string            `json:"baseUrl,omitempty"`
	UserID     *string            `json:"userId,omitempty"`
	Name       *string            `json:"name,omitempty"`
	Company    *string            `json:"company,omitempty"`
	CompanyID  *string            `json:"companyId,omitempty"`
	Projects   map[string]Project `json:"projects,omitempty"`
}

// IsEmpty reports whether ch touches no field.
func (ch Changes) IsEmpty() bool {
	return ch.Type == nil && ch.ExternalID == nil && ch.BaseURL == nil &&
		ch.UserID == nil && ch.Name == nil && ch.Company == nil &&
		ch.CompanyID == nil && ch.Projects == nil
}

// ApplyTo writes the named fields into c.
func (ch Changes) ApplyTo(c *Connection) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&c.Type, ch.Type)
	set(&c.ExternalID, ch.ExternalID)
	set(&c.BaseURL, ch.BaseURL)
	set(&c.UserID, ch.UserID)
	set(&c.Name, ch.Name)
	set(&c.Company, ch.Company)
	set(&c.CompanyID, ch.CompanyID)
	if ch.Projects != nil {
		c.Projects = cloneProjects(ch.Projects)
	}
}

// ChangeEvent is one add / modify / remove notification from the
// connections collection.
type ChangeEvent struct {
	Type ChangeType `json:"type"`
	ID   string     `json:"id"`
	// Connection is the full document for Added and the last known
	// document for Removed.
	Connection *Connection `json:"connection,omitempty"`
	// Changes is set for Modified.
	Changes *Changes `json:"changes,omitempty"`
}

// Added returns an event inserting c.
func Added(c *Connection) ChangeEvent {
	return ChangeEvent{Type: ChangeAdded, ID: c.ID, Connection: c}
}

// Modified returns an event merging ch into the connection with the given id.
func Modified(id string, ch Changes) ChangeEvent {
	return ChangeEvent{Type: ChangeModified, ID: id, Changes: &ch}
}

// Removed returns an event deleting c.
func Removed(c *Connection) ChangeEvent {
	return ChangeEvent{Type: ChangeRemoved, ID: c.ID, Connection: c}
}

// Batch is one delivery from a change feed. Events are in source order.
// A batch with Err set is the last one of its subscription.
type Batch struct {
	Events []ChangeEvent `json:"events"`
	Err    error         `json:"-"`
}

// Feed is a realtime query over the connections collection.
//
// The first batch of every subscription is a snapshot: one Added event per
// existing connection, and an empty batch when there are none. Later
// batches carry changes in the order they happened. The channel is closed
// when ctx is done or after a batch carrying Err.
type Feed interface {
	Subscribe(ctx context.Context) (<-chan Batch, error)
}
