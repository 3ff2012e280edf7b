package orchestrator

import (
	"context"

	"github.com/randalmurphal/scopesync/internal/connection"
	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
	"github.com/randalmurphal/scopesync/internal/events"
)

const (
	msgProjectsFailed  = "Unable to get projects. Please try again later."
	msgTaskListsFailed = "Unable to get task lists. Please try again later."
)

func settled(s *connection.State) bool {
	return s.UiState == connection.UiLoaded || s.UiState == connection.UiError
}

// SelectConnection selects a connection once the list is LOADED and starts
// fetching its projects.
//
// In LOADED the selection is dispatched immediately. In LOADING it waits
// for the load to finish. In IDLE or ERROR it starts a load first. If the
// load it waits on fails, the selection is not dispatched and the load
// failure is returned.
func (o *Orchestrator) SelectConnection(ctx context.Context, connectionID string) error {
	for {
		switch o.store.State().UiState {
		case connection.UiLoaded:
			if o.dispatchConnectionSelection(connectionID) {
				o.signal(events.EventConnectionSelected, events.SelectionData{ConnectionID: connectionID})
				return nil
			}
			continue
		case connection.UiIdle, connection.UiError:
			o.ensureLoading()
		}

		st, err := o.store.WaitFor(ctx, func(s *connection.State) bool {
			return settled(s)
		})
		if err != nil {
			return err
		}
		if st.UiState == connection.UiError {
			return syncerrors.ErrOrchestrator(st.Error)
		}
	}
}

// dispatchConnectionSelection dispatches the selection if the list is
// still LOADED under the lock.
func (o *Orchestrator) dispatchConnectionSelection(connectionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.store.State().UiState != connection.UiLoaded {
		return false
	}

	o.dispatch(connection.SelectedConnection{ConnectionID: connectionID})
	o.logger.Debug("connection selected", "connection_id", connectionID)

	if o.cancelTaskLists != nil {
		o.cancelTaskLists()
	}
	o.goEffect(&o.cancelProjects, func(ctx context.Context) {
		o.fetchProjects(ctx, connectionID)
	})
	return true
}

// fetchProjects loads the projects of a selected connection and merges them
// into the store, keeping task lists already cached.
func (o *Orchestrator) fetchProjects(ctx context.Context, connectionID string) {
	projects, err := o.api.GetProjects(ctx, connectionID)

	o.mu.Lock()
	defer o.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		o.fetchFailedLocked("projects", err, msgProjectsFailed)
		return
	}

	var current map[string]connection.Project
	if c, ok := o.store.State().Connection(connectionID); ok {
		current = c.Projects
	}
	o.dispatch(connection.ModifiedConnection{
		ID:      connectionID,
		Changes: connection.Changes{Projects: connection.MergeProjects(current, connection.KeyProjects(projects))},
	})
}

// SelectProject selects a project of a connection. It selects the
// connection first if needed, then waits until the store holds that
// connection with the project in its project map, and dispatches the
// project selection exactly once.
//
// It returns the failure message if loading the list or the projects fails
// while it waits.
func (o *Orchestrator) SelectProject(ctx context.Context, connectionID, projectID string) error {
	st := o.store.State()
	baseline := st.FetchErrors
	if st.SelectedConnectionID != connectionID || st.UiState != connection.UiLoaded {
		if err := o.SelectConnection(ctx, connectionID); err != nil {
			return err
		}
	}

	ready := func(s *connection.State) bool {
		if s.SelectedConnectionID != connectionID {
			return false
		}
		c := s.SelectedConnection()
		if c == nil || c.Projects == nil {
			return false
		}
		_, ok := c.Projects[projectID]
		return ok
	}

	for {
		st, err := o.store.WaitFor(ctx, func(s *connection.State) bool {
			return ready(s) || s.FetchErrors > baseline || s.UiState == connection.UiError
		})
		if err != nil {
			return err
		}
		if !ready(st) {
			if st.FetchError != "" && st.FetchErrors > baseline {
				return syncerrors.ErrOrchestrator(st.FetchError)
			}
			return syncerrors.ErrOrchestrator(st.Error)
		}

		if o.dispatchProjectSelection(connectionID, projectID, ready) {
			o.signal(events.EventProjectSelected, events.SelectionData{
				ConnectionID: connectionID,
				ProjectID:    projectID,
			})
			return nil
		}
	}
}

// dispatchProjectSelection re-checks readiness under the lock, dispatches
// the selection and starts fetching the project's task lists.
func (o *Orchestrator) dispatchProjectSelection(connectionID, projectID string, ready func(*connection.State) bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !ready(o.store.State()) {
		return false
	}

	o.dispatch(connection.SelectedProject{ProjectID: projectID})
	o.logger.Debug("project selected", "connection_id", connectionID, "project_id", projectID)

	o.goEffect(&o.cancelTaskLists, func(ctx context.Context) {
		o.fetchTaskLists(ctx, connectionID, projectID)
	})
	return true
}

// fetchTaskLists loads every task list of a project and stores them on the
// project.
func (o *Orchestrator) fetchTaskLists(ctx context.Context, connectionID, projectID string) {
	lists, err := o.api.GetTaskLists(ctx, connectionID, projectID)

	o.mu.Lock()
	defer o.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		o.fetchFailedLocked("task lists", err, msgTaskListsFailed)
		return
	}

	c, ok := o.store.State().Connection(connectionID)
	if !ok {
		o.logger.Warn("task lists for unknown connection", "anomaly", true, "id", connectionID)
		return
	}
	project, ok := c.Project(projectID)
	if !ok {
		o.logger.Warn("task lists for unknown project", "anomaly", true, "id", connectionID, "project_id", projectID)
		return
	}
	o.dispatch(connection.ModifiedConnection{
		ID:      connectionID,
		Changes: connection.Changes{Projects: connection.WithTaskLists(c.Projects, project, connection.KeyTaskLists(lists))},
	})
}

func (o *Orchestrator) fetchFailedLocked(what string, err error, fallback string) {
	msg := syncerrors.Message(err, fallback)
	o.logger.Warn("fetch failed", "what", what, "error", err)
	o.dispatch(connection.FetchFailed{Message: msg})
	o.signal(events.EventFetchFailed, events.ErrorData{Message: msg})
}
