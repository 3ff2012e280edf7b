// Package storage is the connections backend: database persistence plus a
// realtime change feed built on the event publisher.
package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/scopesync/internal/connection"
	"github.com/randalmurphal/scopesync/internal/db"
	"github.com/randalmurphal/scopesync/internal/db/driver"
	"github.com/randalmurphal/scopesync/internal/events"
)

// Backend stores connections and publishes a connection.ChangeEvent on
// events.TopicConnections for every committed mutation.
// All methods are safe for concurrent use.
type Backend struct {
	db     *db.DB
	pub    events.Publisher
	logger *slog.Logger
	now    func() time.Time

	// mu orders commits with feed subscriptions so a change is either in a
	// subscriber's snapshot or in its stream, never both or neither.
	mu sync.Mutex
}

// NewBackend wraps an open database. The publisher should evict slow
// subscribers (events.WithEvictSlowSubscribers) so a feed that falls
// behind ends with an error instead of silently missing changes.
func NewBackend(d *db.DB, pub events.Publisher, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		db:     d,
		pub:    pub,
		logger: logger.With("component", "storage"),
		now:    time.Now,
	}
}

// Open opens and migrates the database, then wraps it in a Backend.
func Open(ctx context.Context, dialect driver.Dialect, dsn string, pub events.Publisher, logger *slog.Logger) (*Backend, error) {
	d, err := db.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, err
	}
	return NewBackend(d, pub, logger), nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Create stores a new connection.
func (b *Backend) Create(ctx context.Context, c *connection.Connection) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.db.CreateConnection(ctx, c); err != nil {
		return err
	}
	b.publish(connection.Added(c.Public()))
	return nil
}

// Get loads a connection, token included.
func (b *Backend) Get(ctx context.Context, id string) (*connection.Connection, error) {
	return b.db.GetConnection(ctx, id)
}

// List loads every connection, tokens included.
func (b *Backend) List(ctx context.Context) ([]*connection.Connection, error) {
	return b.db.ListConnections(ctx)
}

// Update merges ch into a stored connection.
func (b *Backend) Update(ctx context.Context, id string, ch connection.Changes) error {
	if ch.IsEmpty() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.db.UpdateConnection(ctx, id, ch, b.now().UTC()); err != nil {
		return err
	}
	b.publish(connection.Modified(id, ch))
	return nil
}

// Delete removes a stored connection.
func (b *Backend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.db.DeleteConnection(ctx, id)
	if err != nil {
		return err
	}
	b.publish(connection.Removed(c.Public()))
	return nil
}

func (b *Backend) publish(ev connection.ChangeEvent) {
	b.logger.Debug("connection change", "type", ev.Type, "id", ev.ID)
	b.pub.Publish(events.NewEvent(events.EventConnectionChange, events.TopicConnections, ev))
}

var _ connection.Repository = (*Backend)(nil)
