package connection

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// UiState is the lifecycle of the connection list: whether the store is
// safe to read for selection purposes.
type UiState int

const (
	UiIdle UiState = iota
	UiLoading
	UiLoaded
	UiError
)

func (s UiState) String() string {
	switch s {
	case UiIdle:
		return "IDLE"
	case UiLoading:
		return "LOADING"
	case UiLoaded:
		return "LOADED"
	case UiError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// State is an immutable snapshot of the store. Never modify a State or the
// connections it points to; dispatch an Action instead.
type State struct {
	Version uint64
	UiState UiState
	// Error is the message of the failure that put the store in ERROR.
	Error string
	// AddError is the message of the last failed add-connection attempt.
	AddError string
	// FetchError is the message of the last failed projects / task lists
	// fetch and FetchErrors counts those failures.
	FetchError  string
	FetchErrors uint64

	Connections          map[string]*Connection
	SelectedConnectionID string
	SelectedProjectID    string
}

// Connection returns the connection with the given id.
func (s *State) Connection(id string) (*Connection, bool) {
	c, ok := s.Connections[id]
	return c, ok
}

// SelectedConnection returns the selected connection, or nil.
func (s *State) SelectedConnection() *Connection {
	return s.Connections[s.SelectedConnectionID]
}

// SelectedProject returns the selected project of the selected connection.
func (s *State) SelectedProject() (Project, bool) {
	if s.SelectedProjectID == "" {
		return Project{}, false
	}
	return s.SelectedConnection().Project(s.SelectedProjectID)
}

// List returns the connections ordered by company, name and id.
func (s *State) List() []*Connection {
	out := make([]*Connection, 0, len(s.Connections))
	for _, c := range s.Connections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Company != b.Company {
			return a.Company < b.Company
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out
}

func (s *State) clone() *State {
	cp := *s
	cp.Connections = make(map[string]*Connection, len(s.Connections))
	for id, c := range s.Connections {
		cp.Connections[id] = c
	}
	return &cp
}

// snapshot pairs a state with the channel closed when it is superseded.
type snapshot struct {
	state   *State
	changed chan struct{}
}

// Store is the single shared view of the connections collection.
//
// Writers are serialized and each Dispatch commits a new copy-on-write
// snapshot. Readers load the current snapshot atomically and never block.
type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[snapshot]
}

// NewStore returns an empty store in the IDLE state.
func NewStore() *Store {
	s := &Store{}
	s.cur.Store(&snapshot{
		state:   &State{UiState: UiIdle, Connections: map[string]*Connection{}},
		changed: make(chan struct{}),
	})
	return s
}

// State returns the last fully applied state.
func (s *Store) State() *State {
	return s.cur.Load().state
}

// Dispatch reduces a into the current state and commits the result.
// An action that fails (an anomaly) leaves the state untouched.
func (s *Store) Dispatch(a Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cur.Load()
	next := prev.state.clone()
	if err := a.reduce(next); err != nil {
		return err
	}
	next.Version = prev.state.Version + 1

	s.cur.Store(&snapshot{state: next, changed: make(chan struct{})})
	close(prev.changed)
	return nil
}

// WaitFor blocks until pred holds for the current state and returns that
// state. pred is evaluated against every committed state, starting with the
// current one.
func (s *Store) WaitFor(ctx context.Context, pred func(*State) bool) (*State, error) {
	for {
		snap := s.cur.Load()
		if pred(snap.state) {
			return snap.state, nil
		}
		select {
		case <-snap.changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
