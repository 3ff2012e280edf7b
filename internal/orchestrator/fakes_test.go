package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/scopesync/internal/connection"
	"github.com/randalmurphal/scopesync/internal/events"
	"github.com/randalmurphal/scopesync/internal/teamwork"
)

// fakeFeed hands out one test-controlled channel per subscription.
type fakeFeed struct {
	mu      sync.Mutex
	subs    []chan connection.Batch
	ctxs    []context.Context
	failErr error
}

func (f *fakeFeed) Subscribe(ctx context.Context) (<-chan connection.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		err := f.failErr
		f.failErr = nil
		return nil, err
	}
	ch := make(chan connection.Batch, 8)
	f.subs = append(f.subs, ch)
	f.ctxs = append(f.ctxs, ctx)
	return ch, nil
}

func (f *fakeFeed) failNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErr = err
}

// sub waits for the i-th subscription and returns its channel.
func (f *fakeFeed) sub(t *testing.T, i int) chan connection.Batch {
	t.Helper()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.subs) > i
	}, 2*time.Second, 5*time.Millisecond, "subscription %d never started", i)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i]
}

func (f *fakeFeed) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// fakeAPI serves canned projects and task lists. A non-nil gate makes
// GetProjects block until it is closed.
type fakeAPI struct {
	mu            sync.Mutex
	projects      map[string][]teamwork.Project
	taskLists     map[string][]connection.TaskList
	projectsErr   error
	taskListsErr  error
	projectsGate  chan struct{}
	projectCalls  int
	added         *connection.Connection
	addErr        error
	addedRequests []connection.NewConnection
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		projects: map[string][]teamwork.Project{
			"c1": {{ID: "p1", Name: "Web"}, {ID: "p2", Name: "App"}},
		},
		taskLists: map[string][]connection.TaskList{
			"p1": {{ID: "t1", Name: "Backlog"}, {ID: "t2", Name: "Sprint"}},
		},
	}
}

func (a *fakeAPI) AddConnection(_ context.Context, req connection.NewConnection) (*connection.Connection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addedRequests = append(a.addedRequests, req)
	if a.addErr != nil {
		return nil, a.addErr
	}
	return a.added, nil
}

func (a *fakeAPI) GetProjects(ctx context.Context, connectionID string) ([]teamwork.Project, error) {
	a.mu.Lock()
	a.projectCalls++
	gate := a.projectsGate
	a.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.projectsErr != nil {
		return nil, a.projectsErr
	}
	return a.projects[connectionID], nil
}

func (a *fakeAPI) GetTaskLists(_ context.Context, _, projectID string) ([]connection.TaskList, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.taskListsErr != nil {
		return nil, a.taskListsErr
	}
	return a.taskLists[projectID], nil
}

func (a *fakeAPI) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.projectCalls
}

type harness struct {
	o       *Orchestrator
	feed    *fakeFeed
	api     *fakeAPI
	signals <-chan events.Event
	kept    []events.EventType
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	pub := events.NewMemoryPublisher()
	feed := &fakeFeed{}
	api := newFakeAPI()
	signals := pub.Subscribe(events.TopicOrchestrator)

	o := New(feed, api, append([]Option{WithPublisher(pub)}, opts...)...)
	t.Cleanup(func() {
		o.Close()
		pub.Close()
	})
	return &harness{o: o, feed: feed, api: api, signals: signals}
}

// drainSignals returns the signal types published so far.
func (h *harness) drainSignals() []events.EventType {
	var out []events.EventType
	for {
		select {
		case ev := <-h.signals:
			out = append(out, ev.Type)
		default:
			return out
		}
	}
}

// drainSignalsKeep accumulates signals across calls.
func (h *harness) drainSignalsKeep() []events.EventType {
	h.kept = append(h.kept, h.drainSignals()...)
	return h.kept
}

func count(types []events.EventType, t events.EventType) int {
	n := 0
	for _, x := range types {
		if x == t {
			n++
		}
	}
	return n
}

func indexOf(types []events.EventType, t events.EventType) int {
	for i, x := range types {
		if x == t {
			return i
		}
	}
	return -1
}

func testConn(id, company string) *connection.Connection {
	return &connection.Connection{ID: id, Type: connection.TypeTeamwork, Name: "Ada", Company: company}
}

func waitState(t *testing.T, o *Orchestrator, pred func(*connection.State) bool) *connection.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := o.Store().WaitFor(ctx, pred)
	require.NoError(t, err)
	return st
}

func isLoaded(s *connection.State) bool { return s.UiState == connection.UiLoaded }
