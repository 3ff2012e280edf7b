package api

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/scopesync/internal/connection"
	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
	"github.com/randalmurphal/scopesync/internal/storage"
	"github.com/randalmurphal/scopesync/internal/teamwork"
)

// fakeTeamwork is a connection.TaskClient with canned data for token "good".
type fakeTeamwork struct {
	mu          sync.Mutex
	failLists   bool
	estimations map[string]float64
}

func newFakeTeamwork() *fakeTeamwork {
	return &fakeTeamwork{estimations: map[string]float64{}}
}

var goodAccount = teamwork.AccountInfo{
	ID: "42", BaseURL: "https://acme.teamwork.com", UserID: "7",
	Name: "Ada Lovelace", Company: "Acme", CompanyID: "3",
}

func (f *fakeTeamwork) ValidateToken(_ context.Context, token string) (*teamwork.AccountInfo, error) {
	if token != "good" {
		return nil, syncerrors.ErrAuth()
	}
	account := goodAccount
	return &account, nil
}

func (f *fakeTeamwork) GetProjects(_ context.Context, token, _ string) ([]teamwork.Project, error) {
	return []teamwork.Project{{ID: "p1", Name: "Web"}, {ID: "p2", Name: "App"}}, nil
}

func (f *fakeTeamwork) GetTaskLists(_ context.Context, _, projectID string, page int) (*teamwork.TaskListPage, error) {
	f.mu.Lock()
	fail := f.failLists
	f.mu.Unlock()
	if fail {
		return nil, syncerrors.ErrTaskListsFetch()
	}
	lists := map[int][]teamwork.TaskList{
		1: {{ID: "t1", Name: "Backlog"}},
		2: {{ID: "t2", Name: "Sprint"}},
	}
	return &teamwork.TaskListPage{Page: page, TotalPages: 2, TaskLists: lists[page]}, nil
}

func (f *fakeTeamwork) GetTasks(_ context.Context, _, taskListID string) ([]*teamwork.Task, error) {
	if taskListID != "t1" {
		return nil, syncerrors.ErrTasksFetch()
	}
	return teamwork.BuildTaskTree([]teamwork.Task{
		{ID: "a", Name: "Parent", Estimation: 1},
		{ID: "b", Name: "Child", Parent: "a", Estimation: 0.5},
	}), nil
}

func (f *fakeTeamwork) GetTask(_ context.Context, _, taskID string) (*teamwork.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &teamwork.Task{ID: taskID, Name: "Task " + taskID, Estimation: f.estimations[taskID]}, nil
}

func (f *fakeTeamwork) PutEstimation(_ context.Context, _, taskID string, hours float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimations[taskID] = hours
	return nil
}

func (f *fakeTeamwork) setFailLists(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failLists = v
}

// testEnv is a running API server over in-memory storage and fake Teamwork.
type testEnv struct {
	server  *Server
	http    *httptest.Server
	tw      *fakeTeamwork
	backend *storage.Backend
	svc     *connection.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	backend, _ := storage.NewTestBackend(t)
	tw := newFakeTeamwork()
	svc := connection.NewService(tw, backend, nil)

	srv, err := New(Config{Service: svc, Feed: backend})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Feed().Close()
		ts.Close()
	})

	return &testEnv{server: srv, http: ts, tw: tw, backend: backend, svc: svc}
}

func (e *testEnv) client(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{BaseURL: e.http.URL, RetryMax: 1})
	require.NoError(t, err)
	return c
}

// addConnection stores a connection for token "good" and returns it.
func (e *testEnv) addConnection(t *testing.T) *connection.Connection {
	t.Helper()
	c, err := e.svc.AddConnection(context.Background(), connection.NewConnection{Token: "good"})
	require.NoError(t, err)
	return c
}
