package storage

import (
	"testing"

	"github.com/randalmurphal/scopesync/internal/db"
	"github.com/randalmurphal/scopesync/internal/events"
)

// NewTestBackend creates a Backend over an in-memory database and an
// evicting in-memory publisher. Both are closed when the test completes.
func NewTestBackend(t testing.TB) (*Backend, *events.MemoryPublisher) {
	t.Helper()

	pub := events.NewMemoryPublisher(events.WithEvictSlowSubscribers())
	backend := NewBackend(db.NewTestDB(t), pub, nil)

	t.Cleanup(pub.Close)

	return backend, pub
}
