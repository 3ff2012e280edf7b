package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/scopesync/internal/connection"
	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
	"github.com/randalmurphal/scopesync/internal/events"
)

func newConn(id, company string) *connection.Connection {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	return &connection.Connection{
		ID:        id,
		Type:      connection.TypeTeamwork,
		BaseURL:   "https://" + id + ".teamwork.com/",
		Name:      "Ada",
		Company:   company,
		Token:     "token-" + id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func recv(t *testing.T, ch <-chan connection.Batch) connection.Batch {
	t.Helper()
	select {
	case b, ok := <-ch:
		require.True(t, ok, "feed closed unexpectedly")
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
		return connection.Batch{}
	}
}

// recvEvents collects change events until n have arrived.
func recvEvents(t *testing.T, ch <-chan connection.Batch, n int) []connection.ChangeEvent {
	t.Helper()
	var out []connection.ChangeEvent
	for len(out) < n {
		b := recv(t, ch)
		require.NoError(t, b.Err)
		out = append(out, b.Events...)
	}
	return out
}

func TestBackend_CRUDPublishesChanges(t *testing.T) {
	ctx := context.Background()
	backend, pub := NewTestBackend(t)
	sub := pub.Subscribe(events.TopicConnections)

	require.NoError(t, backend.Create(ctx, newConn("a", "Acme")))
	name := "Grace"
	require.NoError(t, backend.Update(ctx, "a", connection.Changes{Name: &name}))
	require.NoError(t, backend.Update(ctx, "a", connection.Changes{}))
	require.NoError(t, backend.Delete(ctx, "a"))

	var got []connection.ChangeEvent
	for i := 0; i < 3; i++ {
		ev := <-sub
		assert.Equal(t, events.EventConnectionChange, ev.Type)
		got = append(got, ev.Data.(connection.ChangeEvent))
	}

	require.Len(t, got, 3)
	assert.Equal(t, connection.ChangeAdded, got[0].Type)
	assert.Empty(t, got[0].Connection.Token)
	assert.Equal(t, connection.ChangeModified, got[1].Type)
	assert.Equal(t, "Grace", *got[1].Changes.Name)
	assert.Equal(t, connection.ChangeRemoved, got[2].Type)
	assert.Empty(t, got[2].Connection.Token)

	select {
	case ev := <-sub:
		t.Fatalf("unexpected extra event %v", ev.Type)
	default:
	}
}

func TestBackend_FailedWritePublishesNothing(t *testing.T) {
	ctx := context.Background()
	backend, pub := NewTestBackend(t)
	sub := pub.Subscribe(events.TopicConnections)

	err := backend.Delete(ctx, "missing")
	assert.ErrorIs(t, err, syncerrors.ErrConnectionNotFound("missing"))

	select {
	case ev := <-sub:
		t.Fatalf("unexpected event %v", ev.Type)
	default:
	}
}

func TestBackend_GetKeepsToken(t *testing.T) {
	ctx := context.Background()
	backend, _ := NewTestBackend(t)
	require.NoError(t, backend.Create(ctx, newConn("a", "Acme")))

	c, err := backend.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "token-a", c.Token)
}
