package orchestrator

import (
	"context"

	"github.com/randalmurphal/scopesync/internal/connection"
	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
	"github.com/randalmurphal/scopesync/internal/events"
)

const msgLoadFailed = "Unable to load connections. Please try again later."

// LoadConnections moves the list to LOADING and (re)subscribes to the
// change feed. A load already in flight is superseded: its subscription is
// cancelled and any result it still produces is dropped.
func (o *Orchestrator) LoadConnections() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startLoadLocked()
}

func (o *Orchestrator) startLoadLocked() {
	if o.closed {
		return
	}
	o.generation++
	gen := o.generation
	o.dispatch(connection.QueryConnections{})
	o.logger.Debug("loading connections", "generation", gen)
	o.goEffect(&o.cancelLoad, func(ctx context.Context) {
		o.runLoad(ctx, gen)
	})
}

// ensureLoading starts a load unless one is already in flight.
func (o *Orchestrator) ensureLoading() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.store.State().UiState == connection.UiLoading {
		return
	}
	o.startLoadLocked()
}

func (o *Orchestrator) runLoad(ctx context.Context, gen uint64) {
	batches, err := o.feed.Subscribe(ctx)
	if err != nil {
		if ctx.Err() == nil {
			o.loadFailed(gen, err)
		}
		return
	}

	session := o.reconciler.Begin()
	for {
		var (
			batch connection.Batch
			ok    bool
		)
		select {
		case batch, ok = <-batches:
		case <-ctx.Done():
			return
		}
		if !ok {
			if ctx.Err() == nil {
				o.loadFailed(gen, syncerrors.ErrFeedClosed())
			}
			return
		}
		if batch.Err != nil {
			o.loadFailed(gen, batch.Err)
			return
		}
		if !o.applyBatch(gen, session, batch.Events) {
			return
		}
	}
}

// applyBatch folds a batch into the store unless gen has been superseded.
func (o *Orchestrator) applyBatch(gen uint64, session *connection.Session, evs []connection.ChangeEvent) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		o.logger.Debug("dropping batch from superseded load", "generation", gen)
		return false
	}

	out := session.Apply(evs)
	if out.Initial && !out.NoConnections {
		o.dispatch(connection.ConnectionsLoaded{})
	}
	if out.Anomalies > 0 {
		o.logger.Warn("change batch had anomalies", "anomalies", out.Anomalies, "applied", out.Applied)
	}

	if out.NoConnections {
		o.signal(events.EventNoConnections, nil)
	}
	o.signal(events.EventConnectionsLoaded, events.LoadedData{
		Connections: len(o.store.State().Connections),
		Initial:     out.Initial,
	})
	return true
}

func (o *Orchestrator) loadFailed(gen uint64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return
	}
	msg := syncerrors.Message(err, msgLoadFailed)
	o.logger.Warn("connection load failed", "generation", gen, "error", err)
	o.dispatch(connection.LoadFailed{Message: msg})
	o.signal(events.EventLoadFailed, events.ErrorData{Message: msg})
}
