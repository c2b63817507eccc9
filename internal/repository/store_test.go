package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-points-bot/internal/model"
)

// runStoreSuite exercises the ScoreStore contract against any backend.
// newStore must return a migrated, empty store.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) ScoreStore) {
	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), model.ScoreKey{Username: "ghost", GroupID: 1})
		assert.ErrorIs(t, err, ErrScoreNotFound)
	})

	t.Run("UpsertIncrementCreatesAndAdds", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		key := model.ScoreKey{Username: "alice", GroupID: -100}

		score, err := store.UpsertIncrement(ctx, Increment{Key: key, GroupName: "Old Name", Delta: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(10), score.Points)
		assert.Equal(t, "alice", score.Username)
		assert.Equal(t, int64(-100), score.GroupID)
		assert.Nil(t, score.LastClaim)

		score, err = store.UpsertIncrement(ctx, Increment{Key: key, GroupName: "New Name", Delta: 5})
		require.NoError(t, err)
		assert.Equal(t, int64(15), score.Points)
		assert.Equal(t, "New Name", score.GroupName)

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(15), got.Points)
		assert.Equal(t, "New Name", got.GroupName)
	})

	t.Run("NegativeDeltaGoesBelowZero", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		key := model.ScoreKey{Username: "bob", GroupID: 1}

		score, err := store.UpsertIncrement(ctx, Increment{Key: key, GroupName: "G", Delta: -5})
		require.NoError(t, err)
		assert.Equal(t, int64(-5), score.Points)
	})

	t.Run("ClaimedAtStampsAndPersists", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		key := model.ScoreKey{Username: "carol", GroupID: 1}
		claimed := time.Now().UTC().Truncate(time.Second)

		score, err := store.UpsertIncrement(ctx, Increment{Key: key, GroupName: "G", Delta: 20, ClaimedAt: &claimed})
		require.NoError(t, err)
		require.NotNil(t, score.LastClaim)
		assert.WithinDuration(t, claimed, *score.LastClaim, time.Millisecond)

		// A plain award leaves the claim time alone.
		score, err = store.UpsertIncrement(ctx, Increment{Key: key, GroupName: "G", Delta: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(21), score.Points)
		require.NotNil(t, score.LastClaim)
		assert.WithinDuration(t, claimed, *score.LastClaim, time.Millisecond)
	})

	t.Run("SetPointsUpdatesOnly", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		key := model.ScoreKey{Username: "dave", GroupID: 1}

		found, err := store.SetPoints(ctx, key, 0)
		require.NoError(t, err)
		assert.False(t, found)
		_, err = store.Get(ctx, key)
		assert.ErrorIs(t, err, ErrScoreNotFound)

		_, err = store.UpsertIncrement(ctx, Increment{Key: key, GroupName: "G", Delta: 42})
		require.NoError(t, err)

		found, err = store.SetPoints(ctx, key, 0)
		require.NoError(t, err)
		assert.True(t, found)

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(0), got.Points)
	})

	t.Run("TopNOrdering", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		seed := []struct {
			user   string
			group  int64
			points int64
		}{
			{"u1", 7, 30},
			{"u2", 7, 50},
			{"u3", 7, 30},
			{"u4", 7, -2},
			{"other", 8, 1000},
		}
		for _, s := range seed {
			_, err := store.UpsertIncrement(ctx, Increment{
				Key:       model.ScoreKey{Username: s.user, GroupID: s.group},
				GroupName: "G",
				Delta:     s.points,
			})
			require.NoError(t, err)
		}

		top, err := store.TopN(ctx, 7, 10)
		require.NoError(t, err)
		require.Len(t, top, 4)
		assert.Equal(t, "u2", top[0].Username)
		// Equal points keep insertion order.
		assert.Equal(t, "u1", top[1].Username)
		assert.Equal(t, "u3", top[2].Username)
		assert.Equal(t, "u4", top[3].Username)

		top, err = store.TopN(ctx, 7, 2)
		require.NoError(t, err)
		assert.Len(t, top, 2)

		top, err = store.TopN(ctx, 99, 10)
		require.NoError(t, err)
		assert.Empty(t, top)
	})

	t.Run("AppendLog", func(t *testing.T) {
		store := newStore(t)
		err := store.AppendLog(context.Background(), &model.AwardLogEntry{
			Giver:     "admin",
			Receiver:  "alice",
			Points:    10,
			GroupID:   1,
			GroupName: "G",
			Time:      time.Now(),
		})
		assert.NoError(t, err)
	})

	t.Run("ConcurrentIncrementsAreNotLost", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		key := model.ScoreKey{Username: "eve", GroupID: 1}

		const workers = 20
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.UpsertIncrement(ctx, Increment{Key: key, GroupName: "G", Delta: 1})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(workers), got.Points)
	})

	t.Run("Ping", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.Ping(context.Background()))
	})
}
