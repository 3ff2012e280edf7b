// Package orchestrator drives the connection list lifecycle: it loads
// connections from a change feed, tracks the IDLE / LOADING / LOADED /
// ERROR state, and makes sure selections only run against a loaded store.
//
// Every write that changes the lifecycle state happens while holding the
// orchestrator lock, so a selection that observes LOADED under that lock is
// dispatched while the store is LOADED.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/randalmurphal/scopesync/internal/connection"
	"github.com/randalmurphal/scopesync/internal/events"
)

// DashboardPath is where a newly added connection takes the user.
const DashboardPath = "/dashboard"

// Orchestrator coordinates the change feed, the store and the connection API.
type Orchestrator struct {
	feed       connection.Feed
	api        ConnectionAPI
	store      *connection.Store
	reconciler *connection.Reconciler
	publisher  events.Publisher
	prompter   Prompter
	navigator  Navigator
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.Mutex
	closed          bool
	generation      uint64
	cancelLoad      context.CancelFunc
	cancelProjects  context.CancelFunc
	cancelTaskLists context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithPublisher sets where lifecycle signals are published.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithPrompter sets the verification prompt shown after adding a connection.
func WithPrompter(p Prompter) Option {
	return func(o *Orchestrator) { o.prompter = p }
}

// WithNavigator sets the navigator used after adding a connection.
func WithNavigator(n Navigator) Option {
	return func(o *Orchestrator) { o.navigator = n }
}

// WithStore uses an existing store instead of a new one.
func WithStore(s *connection.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// New creates an orchestrator in the IDLE state.
func New(feed connection.Feed, api ConnectionAPI, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		feed:      feed,
		api:       api,
		publisher: events.NewNopPublisher(),
		prompter:  acceptAll,
		navigator: stayInView,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = connection.NewStore()
	}
	o.logger = o.logger.With("component", "orchestrator")
	o.reconciler = connection.NewReconciler(o.store, o.logger)
	o.ctx, o.cancel = context.WithCancel(context.Background())
	return o
}

// Close stops the feed subscription and in-flight effects and waits for
// them to finish.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}

// Store returns the store the orchestrator writes to.
func (o *Orchestrator) Store() *connection.Store {
	return o.store
}

// State returns the last fully applied state.
func (o *Orchestrator) State() *connection.State {
	return o.store.State()
}

// UiState returns the lifecycle state of the connection list.
func (o *Orchestrator) UiState() connection.UiState {
	return o.store.State().UiState
}

// Connections returns the loaded connections in display order.
func (o *Orchestrator) Connections() []*connection.Connection {
	return o.store.State().List()
}

// SelectedConnection returns the selected connection, or nil.
func (o *Orchestrator) SelectedConnection() *connection.Connection {
	return o.store.State().SelectedConnection()
}

// SelectedProject returns the selected project of the selected connection.
func (o *Orchestrator) SelectedProject() (connection.Project, bool) {
	return o.store.State().SelectedProject()
}

// Error returns the message of the failure that put the list in ERROR.
func (o *Orchestrator) Error() string {
	return o.store.State().Error
}

// AddError returns the message of the last failed add-connection attempt.
func (o *Orchestrator) AddError() string {
	return o.store.State().AddError
}

func (o *Orchestrator) signal(t events.EventType, data any) {
	o.publisher.Publish(events.NewEvent(t, events.TopicOrchestrator, data))
}

// dispatch commits an action. Callers changing UiState hold o.mu.
func (o *Orchestrator) dispatch(a connection.Action) {
	if err := o.store.Dispatch(a); err != nil {
		o.logger.Warn("store rejected action", "anomaly", true, "error", err)
	}
}

// goEffect runs fn in a tracked goroutine with a context that is cancelled
// by the returned function, by a later effect of the same kind, or by Close.
// Callers hold o.mu.
func (o *Orchestrator) goEffect(slot *context.CancelFunc, fn func(ctx context.Context)) bool {
	if o.closed {
		return false
	}
	if *slot != nil {
		(*slot)()
	}
	ctx, cancel := context.WithCancel(o.ctx)
	*slot = cancel
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn(ctx)
	}()
	return true
}
