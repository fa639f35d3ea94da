package testutil

import (
	"context"
	"testing"

	"claims-go/internal/database"
	"claims-go/internal/database/migrations"
)

// NewTestBackend creates an initialized in-memory SQLite backend.
// The backend is automatically closed when the test completes.
func NewTestBackend(t *testing.T) *database.RelationalBackend {
	t.Helper()
	return OpenTestBackend(t, ":memory:")
}

// OpenTestBackend opens and initializes a SQLite backend at path, so a test
// can reopen the same file to simulate a restart.
func OpenTestBackend(t *testing.T, path string) *database.RelationalBackend {
	t.Helper()

	b, err := database.NewRelationalBackend(migrations.SQLite, path, database.Options{})
	if err != nil {
		t.Fatalf("failed to open backend: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to initialize backend: %v", err)
	}
	return b
}
