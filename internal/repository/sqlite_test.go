package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newSQLiteTestStore(t *testing.T) ScoreStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "points.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))

	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, newSQLiteTestStore)
}

func TestSQLiteStore_MigrateIsIdempotent(t *testing.T) {
	store := newSQLiteTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}
