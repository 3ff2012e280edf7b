package db

import (
	"context"
	"testing"
)

// NewTestDB creates a migrated in-memory database for testing.
// The database is closed when the test completes.
func NewTestDB(t testing.TB) *DB {
	t.Helper()

	d, err := OpenInMemory(context.Background())
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}

	t.Cleanup(func() {
		_ = d.Close()
	})

	return d
}
