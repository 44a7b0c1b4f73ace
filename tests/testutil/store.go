package testutil

import (
	"testing"

	"github.com/nhle/agriassist/internal/store"
)

// NewTestStore returns an in-memory cache with the schema applied. It is
// closed when the test ends.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory cache: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s
}
