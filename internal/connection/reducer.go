package connection

import (
	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
)

// Action is a state transition of the store.
type Action interface {
	reduce(s *State) error
}

// QueryConnections starts a load.
type QueryConnections struct{}

func (QueryConnections) reduce(s *State) error {
	s.UiState = UiLoading
	s.Error = ""
	return nil
}

// ConnectionsLoaded marks the store as safe to read.
type ConnectionsLoaded struct{}

func (ConnectionsLoaded) reduce(s *State) error {
	s.UiState = UiLoaded
	s.Error = ""
	return nil
}

// NoConnections records an empty snapshot.
type NoConnections struct{}

func (NoConnections) reduce(s *State) error {
	s.Connections = map[string]*Connection{}
	s.UiState = UiLoaded
	s.Error = ""
	return nil
}

// LoadFailed records a failed load.
type LoadFailed struct {
	Message string
}

func (a LoadFailed) reduce(s *State) error {
	s.UiState = UiError
	s.Error = a.Message
	return nil
}

// ResetConnections drops every connection before a snapshot is applied.
type ResetConnections struct{}

func (ResetConnections) reduce(s *State) error {
	s.Connections = map[string]*Connection{}
	return nil
}

// DropStaleSelection clears a selection whose connection is gone.
type DropStaleSelection struct{}

func (DropStaleSelection) reduce(s *State) error {
	if s.SelectedConnectionID == "" {
		return nil
	}
	if _, ok := s.Connections[s.SelectedConnectionID]; !ok {
		s.SelectedConnectionID = ""
		s.SelectedProjectID = ""
	}
	return nil
}

// AddedConnection inserts a connection, replacing any with the same id.
type AddedConnection struct {
	Connection *Connection
}

func (a AddedConnection) reduce(s *State) error {
	s.Connections[a.Connection.ID] = a.Connection.Public()
	return nil
}

// ModifiedConnection merges changes into an existing connection.
type ModifiedConnection struct {
	ID      string
	Changes Changes
}

func (a ModifiedConnection) reduce(s *State) error {
	current, ok := s.Connections[a.ID]
	if !ok {
		return syncerrors.ErrStoreAnomaly(string(ChangeModified), a.ID)
	}
	next := current.Clone()
	a.Changes.ApplyTo(next)
	s.Connections[a.ID] = next
	return nil
}

// RemovedConnection deletes a connection.
type RemovedConnection struct {
	ID string
}

func (a RemovedConnection) reduce(s *State) error {
	if _, ok := s.Connections[a.ID]; !ok {
		return syncerrors.ErrStoreAnomaly(string(ChangeRemoved), a.ID)
	}
	delete(s.Connections, a.ID)
	if s.SelectedConnectionID == a.ID {
		s.SelectedConnectionID = ""
		s.SelectedProjectID = ""
	}
	return nil
}

// SelectedConnection selects a connection and clears the project selection.
type SelectedConnection struct {
	ConnectionID string
}

func (a SelectedConnection) reduce(s *State) error {
	s.SelectedConnectionID = a.ConnectionID
	s.SelectedProjectID = ""
	s.FetchError = ""
	return nil
}

// SelectedProject selects a project of the selected connection.
type SelectedProject struct {
	ProjectID string
}

func (a SelectedProject) reduce(s *State) error {
	s.SelectedProjectID = a.ProjectID
	return nil
}

// AddConnectionFailed records a failed add-connection attempt.
type AddConnectionFailed struct {
	Message string
}

func (a AddConnectionFailed) reduce(s *State) error {
	s.AddError = a.Message
	return nil
}

// AddConnectionSucceeded clears a previous add failure.
type AddConnectionSucceeded struct{}

func (AddConnectionSucceeded) reduce(s *State) error {
	s.AddError = ""
	return nil
}

// FetchFailed records a failed projects / task lists fetch. The list goes
// to ERROR so that the next selection reloads it.
type FetchFailed struct {
	Message string
}

func (a FetchFailed) reduce(s *State) error {
	s.UiState = UiError
	s.Error = a.Message
	s.FetchError = a.Message
	s.FetchErrors++
	return nil
}

// ActionFor converts a change event into the action that applies it.
func ActionFor(ev ChangeEvent) (Action, error) {
	switch ev.Type {
	case ChangeAdded:
		if ev.Connection == nil {
			return nil, syncerrors.ErrInvalidInput("change event", "added event without connection")
		}
		c := ev.Connection
		if c.ID == "" {
			c = c.Clone()
			c.ID = ev.ID
		}
		return AddedConnection{Connection: c}, nil
	case ChangeModified:
		if ev.Changes == nil {
			return ModifiedConnection{ID: ev.ID}, nil
		}
		return ModifiedConnection{ID: ev.ID, Changes: *ev.Changes}, nil
	case ChangeRemoved:
		return RemovedConnection{ID: ev.ID}, nil
	default:
		return nil, syncerrors.ErrInvalidInput("change event", "unknown type "+string(ev.Type))
	}
}
