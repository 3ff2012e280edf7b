package connection

import (
	"log/slog"
)

// Reconciler folds change events into a Store, one event per commit, in
// the order they are given.
type Reconciler struct {
	store  *Store
	logger *slog.Logger
}

// NewReconciler creates a reconciler writing to store.
func NewReconciler(store *Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, logger: logger}
}

// Apply applies a single event. Modified and Removed events for an unknown
// id are logged as anomalies and leave the store untouched.
func (r *Reconciler) Apply(ev ChangeEvent) error {
	action, err := ActionFor(ev)
	if err != nil {
		r.logger.Warn("ignoring malformed change event", "type", ev.Type, "id", ev.ID, "error", err)
		return err
	}
	if err := r.store.Dispatch(action); err != nil {
		r.logger.Warn("change event for unknown connection", "anomaly", true, "type", ev.Type, "id", ev.ID)
		return err
	}
	return nil
}

// Begin starts reconciling a new feed subscription.
func (r *Reconciler) Begin() *Session {
	return &Session{r: r}
}

// Session tracks one feed subscription so that its initial snapshot can
// be told apart from later change batches.
type Session struct {
	r       *Reconciler
	batches int
}

// Outcome describes what applying a batch did.
type Outcome struct {
	// Initial is set for the first batch of the subscription.
	Initial bool
	// NoConnections is set when the initial snapshot was empty.
	NoConnections bool
	Applied       int
	Anomalies     int
}

// Apply folds one feed batch into the store. The initial batch replaces
// whatever an earlier subscription left behind, except for projects already
// fetched for a connection the snapshot still holds.
func (s *Session) Apply(events []ChangeEvent) Outcome {
	out := Outcome{Initial: s.batches == 0}
	s.batches++

	if out.Initial {
		if len(events) == 0 {
			_ = s.r.store.Dispatch(NoConnections{})
			out.NoConnections = true
			return out
		}
		previous := s.r.store.State().Connections
		_ = s.r.store.Dispatch(ResetConnections{})
		events = withCachedProjects(events, previous)
		defer func() { _ = s.r.store.Dispatch(DropStaleSelection{}) }()
	}

	for _, ev := range events {
		if err := s.r.Apply(ev); err != nil {
			out.Anomalies++
			continue
		}
		out.Applied++
	}
	return out
}

// withCachedProjects fills the project map of snapshot Added events that
// carry none from the connection of the same id in previous.
func withCachedProjects(events []ChangeEvent, previous map[string]*Connection) []ChangeEvent {
	out := make([]ChangeEvent, len(events))
	for i, ev := range events {
		out[i] = ev
		if ev.Type != ChangeAdded || ev.Connection == nil || ev.Connection.Projects != nil {
			continue
		}
		id := ev.Connection.ID
		if id == "" {
			id = ev.ID
		}
		cached, ok := previous[id]
		if !ok || cached.Projects == nil {
			continue
		}
		c := ev.Connection.Clone()
		c.Projects = cloneProjects(cached.Projects)
		out[i].Connection = c
	}
	return out
}
