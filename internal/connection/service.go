package connection

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
	"github.com/randalmurphal/scopesync/internal/teamwork"
)

// maxConcurrentPages bounds the fan-out of GetTaskLists page fetches.
const maxConcurrentPages = 8

// TaskClient is the Teamwork API as the service uses it.
type TaskClient interface {
	ValidateToken(ctx context.Context, token string) (*teamwork.AccountInfo, error)
	GetProjects(ctx context.Context, token, baseURL string) ([]teamwork.Project, error)
	GetTaskLists(ctx context.Context, token, projectID string, page int) (*teamwork.TaskListPage, error)
	GetTasks(ctx context.Context, token, taskListID string) ([]*teamwork.Task, error)
	GetTask(ctx context.Context, token, taskID string) (*teamwork.Task, error)
	PutEstimation(ctx context.Context, token, taskID string, hours float64) error
}

// Repository persists connections. Implementations publish a change event
// for every successful mutation.
type Repository interface {
	Create(ctx context.Context, c *Connection) error
	Get(ctx context.Context, id string) (*Connection, error)
	List(ctx context.Context) ([]*Connection, error)
	Update(ctx context.Context, id string, ch Changes) error
	Delete(ctx context.Context, id string) error
}

// Service creates connections and reads through to Teamwork on behalf of
// a stored connection.
type Service struct {
	client TaskClient
	repo   Repository
	logger *slog.Logger
	// persistMu serializes read-modify-write of stored project maps.
	persistMu sync.Mutex
	now    func() time.Time
	newID  func() string
}

// NewService creates a connection service.
func NewService(client TaskClient, repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client: client,
		repo:   repo,
		logger: logger.With("component", "connection-service"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// AddConnection validates the token with Teamwork and stores a new
// connection for the account it belongs to.
func (s *Service) AddConnection(ctx context.Context, req NewConnection) (*Connection, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, syncerrors.ErrInvalidInput("token", "a Teamwork API token is required")
	}

	account, err := s.client.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	c := FromAccount(s.newID(), token, *account, s.now().UTC())
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("connection added", "connection_id", c.ID, "company", c.Company)
	return c.Public(), nil
}

// RemoveConnection deletes a connection.
func (s *Service) RemoveConnection(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("connection removed", "connection_id", id)
	return nil
}

// GetConnection returns a stored connection without its token.
func (s *Service) GetConnection(ctx context.Context, id string) (*Connection, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Public(), nil
}

// ListConnections returns every stored connection without tokens.
func (s *Service) ListConnections(ctx context.Context) ([]*Connection, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Connection, 0, len(all))
	for _, c := range all {
		out = append(out, c.Public())
	}
	return out, nil
}

// GetProjects lists the Teamwork projects of a connection and stores them
// on the connection, keeping task lists already stored.
func (s *Service) GetProjects(ctx context.Context, connectionID string) ([]teamwork.Project, error) {
	c, err := s.repo.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	projects, err := s.client.GetProjects(ctx, c.Token, c.BaseURL)
	if err != nil {
		return nil, err
	}

	fetched := KeyProjects(projects)
	s.storeProjects(ctx, connectionID, func(current map[string]Project) map[string]Project {
		return MergeProjects(current, fetched)
	})
	return projects, nil
}

// GetTaskLists returns every task list of a project. Page 1 reports the
// page count and the remaining pages are fetched concurrently.
func (s *Service) GetTaskLists(ctx context.Context, connectionID, projectID string) ([]TaskList, error) {
	c, err := s.repo.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	first, err := s.client.GetTaskLists(ctx, c.Token, projectID, 1)
	if err != nil {
		return nil, err
	}

	if first.TotalPages > teamwork.MaxPages {
		s.logger.Warn("task list page count out of range", "project_id", projectID, "pages", first.TotalPages)
		return nil, syncerrors.ErrTaskListsFetch()
	}

	pages := make([][]TaskList, max(first.TotalPages, 1))
	pages[0] = first.TaskLists
	if first.TotalPages > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrentPages)
		for i := 2; i <= first.TotalPages; i++ {
			g.Go(func() error {
				page, err := s.client.GetTaskLists(gctx, c.Token, projectID, i)
				if err != nil {
					return err
				}
				pages[i-1] = page.TaskLists
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool)
	var lists []TaskList
	for _, page := range pages {
		for _, tl := range page {
			if seen[tl.ID] {
				continue
			}
			seen[tl.ID] = true
			lists = append(lists, tl)
		}
	}
	if lists == nil {
		lists = []TaskList{}
	}

	keyed := KeyTaskLists(lists)
	s.storeProjects(ctx, connectionID, func(current map[string]Project) map[string]Project {
		project, ok := current[projectID]
		if !ok {
			return nil
		}
		return WithTaskLists(current, project, keyed)
	})
	return lists, nil
}

// storeProjects writes the project map returned by update to a stored
// connection, which publishes it as a Modified change. A nil map skips the
// write. Failures are logged; the fetched data is still returned.
func (s *Service) storeProjects(ctx context.Context, connectionID string, update func(map[string]Project) map[string]Project) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	c, err := s.repo.Get(ctx, connectionID)
	if err != nil {
		s.logger.Warn("store projects: reload connection", "connection_id", connectionID, "error", err)
		return
	}
	projects := update(c.Projects)
	if projects == nil {
		s.logger.Debug("store projects: nothing to write", "connection_id", connectionID)
		return
	}
	if err := s.repo.Update(ctx, connectionID, Changes{Projects: projects}); err != nil {
		s.logger.Warn("store projects", "connection_id", connectionID, "error", err)
	}
}

// GetTasks returns the task forest of a task list.
func (s *Service) GetTasks(ctx context.Context, connectionID, taskListID string) ([]*Task, error) {
	c, err := s.repo.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return s.client.GetTasks(ctx, c.Token, taskListID)
}

// GetTask returns a single task.
func (s *Service) GetTask(ctx context.Context, connectionID, taskID string) (*Task, error) {
	c, err := s.repo.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return s.client.GetTask(ctx, c.Token, taskID)
}

// PutEstimation writes an estimation in hours to a task.
func (s *Service) PutEstimation(ctx context.Context, connectionID, taskID string, hours float64) error {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours < 0 {
		return syncerrors.ErrInvalidInput("hours", "must be a non-negative number")
	}
	c, err := s.repo.Get(ctx, connectionID)
	if err != nil {
		return err
	}
	if err := s.client.PutEstimation(ctx, c.Token, taskID, hours); err != nil {
		return err
	}
	s.logger.Info("estimation updated", "connection_id", connectionID, "task_id", taskID, "hours", hours)
	return nil
}
