package storage

import (
	"context"

	"github.com/randalmurphal/scopesync/internal/connection"
	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
	"github.com/randalmurphal/scopesync/internal/events"
)

// maxBatch caps how many queued changes are folded into one batch.
const maxBatch = 64

// Subscribe starts a realtime query over all connections.
//
// The first batch holds one Added event per stored connection and is empty
// when there are none. Later batches carry changes in commit order, with
// changes that queued up while the consumer was busy delivered together.
// If the publisher drops the subscription the feed sends a FEED_CLOSED
// batch and closes. Tokens never appear on the feed.
func (b *Backend) Subscribe(ctx context.Context) (<-chan connection.Batch, error) {
	b.mu.Lock()
	sub := b.pub.Subscribe(events.TopicConnections)
	all, err := b.db.ListConnections(ctx)
	b.mu.Unlock()
	if err != nil {
		b.pub.Unsubscribe(events.TopicConnections, sub)
		return nil, err
	}

	snapshot := make([]connection.ChangeEvent, 0, len(all))
	for _, c := range all {
		snapshot = append(snapshot, connection.Added(c.Public()))
	}

	out := make(chan connection.Batch, 1)
	go b.forward(ctx, sub, out, connection.Batch{Events: snapshot})
	return out, nil
}

func (b *Backend) forward(ctx context.Context, sub <-chan events.Event, out chan<- connection.Batch, first connection.Batch) {
	defer close(out)
	defer b.pub.Unsubscribe(events.TopicConnections, sub)

	send := func(batch connection.Batch) bool {
		select {
		case out <- batch:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(first) {
		return
	}

	for {
		var ev events.Event
		var ok bool
		select {
		case ev, ok = <-sub:
		case <-ctx.Done():
			return
		}
		if !ok {
			b.logger.Warn("connection feed dropped by publisher")
			send(connection.Batch{Err: syncerrors.ErrFeedClosed()})
			return
		}

		batch := connection.Batch{}
		batch.Events = b.appendChange(batch.Events, ev)
		closed := false
	drain:
		for len(batch.Events) < maxBatch {
			select {
			case ev, ok = <-sub:
				if !ok {
					closed = true
					break drain
				}
				batch.Events = b.appendChange(batch.Events, ev)
			default:
				break drain
			}
		}

		if len(batch.Events) > 0 && !send(batch) {
			return
		}
		if closed {
			b.logger.Warn("connection feed dropped by publisher")
			send(connection.Batch{Err: syncerrors.ErrFeedClosed()})
			return
		}
	}
}

func (b *Backend) appendChange(evs []connection.ChangeEvent, ev events.Event) []connection.ChangeEvent {
	change, ok := ev.Data.(connection.ChangeEvent)
	if !ok {
		b.logger.Warn("unexpected payload on connections topic", "event_type", ev.Type)
		return evs
	}
	return append(evs, change)
}

var _ connection.Feed = (*Backend)(nil)
