package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-points-bot/internal/config"
)

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "open.db")

	store, err := Open(ctx, &config.StoreConfig{URI: path})
	require.NoError(t, err)
	defer store.Close(ctx)

	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Migrate(ctx))
	assert.NoError(t, store.Ping(ctx))
}

func TestOpen_UnknownDriver(t *testing.T) {
	store, err := Open(context.Background(), &config.StoreConfig{URI: "redis://localhost:6379"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
	assert.Nil(t, store)

	_, err = Open(context.Background(), &config.StoreConfig{Driver: "cassandra", URI: "x"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
