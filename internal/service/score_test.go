package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"telegram-points-bot/internal/config"
	"telegram-points-bot/internal/model"
	"telegram-points-bot/internal/repository"
)

// ============================================================================
// Test doubles
// ============================================================================

// memStore is an in-memory ScoreStore.
type memStore struct {
	mu   sync.Mutex
	seq  int64
	rows map[model.ScoreKey]*model.UserScore
	logs []model.AwardLogEntry
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[model.ScoreKey]*model.UserScore)}
}

func (m *memStore) Get(_ context.Context, key model.ScoreKey) (*model.UserScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok {
		return nil, repository.ErrScoreNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memStore) UpsertIncrement(_ context.Context, inc repository.Increment) (*model.UserScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[inc.Key]
	if !ok {
		m.seq++
		row = &model.UserScore{ID: m.seq, Username: inc.Key.Username, GroupID: inc.Key.GroupID}
		m.rows[inc.Key] = row
	}
	row.Points += inc.Delta
	row.GroupName = inc.GroupName
	if inc.ClaimedAt != nil {
		t := *inc.ClaimedAt
		row.LastClaim = &t
	}
	cp := *row
	return &cp, nil
}

func (m *memStore) SetPoints(_ context.Context, key model.ScoreKey, points int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok {
		return false, nil
	}
	row.Points = points
	return true, nil
}

func (m *memStore) TopN(_ context.Context, groupID int64, n int) ([]*model.UserScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.UserScore
	for _, row := range m.rows {
		if row.GroupID == groupID {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *memStore) AppendLog(_ context.Context, entry *model.AwardLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *entry)
	return nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Ping(context.Context) error    { return nil }
func (m *memStore) Close(context.Context) error   { return nil }

// mockStore is a testify mock of ScoreStore for failure paths.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, key model.ScoreKey) (*model.UserScore, error) {
	args := m.Called(ctx, key)
	score, _ := args.Get(0).(*model.UserScore)
	return score, args.Error(1)
}

func (m *mockStore) UpsertIncrement(ctx context.Context, inc repository.Increment) (*model.UserScore, error) {
	args := m.Called(ctx, inc)
	score, _ := args.Get(0).(*model.UserScore)
	return score, args.Error(1)
}

func (m *mockStore) SetPoints(ctx context.Context, key model.ScoreKey, points int64) (bool, error) {
	args := m.Called(ctx, key, points)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) TopN(ctx context.Context, groupID int64, n int) ([]*model.UserScore, error) {
	args := m.Called(ctx, groupID, n)
	scores, _ := args.Get(0).([]*model.UserScore)
	return scores, args.Error(1)
}

func (m *mockStore) AppendLog(ctx context.Context, entry *model.AwardLogEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockStore) Ping(ctx context.Context) error    { return m.Called(ctx).Error(0) }
func (m *mockStore) Close(ctx context.Context) error   { return m.Called(ctx).Error(0) }

var errStoreDown = errors.New("store down")

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func dailyOptions() ScoreOptions {
	return ScoreOptions{MinBonus: 10, MaxBonus: 50, Cooldown: 24 * time.Hour, LeaderboardSize: 10}
}

// ============================================================================
// Award
// ============================================================================

func TestScoreService_AwardCreatesAndAccumulates(t *testing.T) {
	store := newMemStore()
	svc := NewScoreService(store, ScoreOptions{})
	ctx := context.Background()

	score, err := svc.Award(ctx, AwardRequest{Giver: "admin", Username: "alice", ChatID: -1, GroupName: "Chat", Points: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(10), score.Points)

	score, err = svc.Award(ctx, AwardRequest{Giver: "admin", Username: "alice", ChatID: -1, GroupName: "Chat", Points: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(15), score.Points)

	require.Len(t, store.logs, 2)
	assert.Equal(t, "admin", store.logs[0].Giver)
	assert.Equal(t, "alice", store.logs[0].Receiver)
	assert.Equal(t, int64(10), store.logs[0].Points)
	assert.Equal(t, int64(-1), store.logs[0].GroupID)
	assert.Equal(t, time.UTC, store.logs[0].Time.Location())
}

func TestScoreService_AwardNegativeCreatesRow(t *testing.T) {
	store := newMemStore()
	svc := NewScoreService(store, ScoreOptions{})

	score, err := svc.Award(context.Background(), AwardRequest{Username: "bob", ChatID: 1, GroupName: "G", Points: -5})
	require.NoError(t, err)
	assert.Equal(t, int64(-5), score.Points)

	points, err := svc.Points(context.Background(), "bob", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-5), points)
}

func TestScoreService_AwardSurvivesLogFailure(t *testing.T) {
	store := new(mockStore)
	key := model.ScoreKey{Username: "alice", GroupID: 7}
	store.On("UpsertIncrement", mock.Anything, repository.Increment{Key: key, GroupName: "G", Delta: 3}).
		Return(&model.UserScore{Username: "alice", GroupID: 7, Points: 3}, nil)
	store.On("AppendLog", mock.Anything, mock.AnythingOfType("*model.AwardLogEntry")).
		Return(errStoreDown)

	svc := NewScoreService(store, ScoreOptions{})
	score, err := svc.Award(context.Background(), AwardRequest{Username: "alice", ChatID: 7, GroupName: "G", Points: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(3), score.Points)
	store.AssertExpectations(t)
}

func TestScoreService_AwardStoreError(t *testing.T) {
	store := new(mockStore)
	store.On("UpsertIncrement", mock.Anything, mock.Anything).Return(nil, errStoreDown)

	svc := NewScoreService(store, ScoreOptions{})
	_, err := svc.Award(context.Background(), AwardRequest{Username: "alice", ChatID: 7, Points: 3})
	assert.ErrorIs(t, err, errStoreDown)
	store.AssertNotCalled(t, "AppendLog", mock.Anything, mock.Anything)
}

func TestScoreService_EmptyUsername(t *testing.T) {
	svc := NewScoreService(newMemStore(), dailyOptions())
	ctx := context.Background()

	_, err := svc.Award(ctx, AwardRequest{ChatID: 1, Points: 1})
	assert.ErrorIs(t, err, ErrEmptyUsername)
	_, err = svc.Reset(ctx, "", 1)
	assert.ErrorIs(t, err, ErrEmptyUsername)
	_, err = svc.ClaimDaily(ctx, "", 1, "G")
	assert.ErrorIs(t, err, ErrEmptyUsername)
}

// ============================================================================
// Reset
// ============================================================================

func TestScoreService_ResetZeroesExisting(t *testing.T) {
	store := newMemStore()
	svc := NewScoreService(store, ScoreOptions{})
	ctx := context.Background()

	_, err := svc.Award(ctx, AwardRequest{Username: "alice", ChatID: 1, GroupName: "G", Points: 99})
	require.NoError(t, err)

	found, err := svc.Reset(ctx, "alice", 1)
	require.NoError(t, err)
	assert.True(t, found)

	points, err := svc.Points(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), points)
}

func TestScoreService_ResetNeverCreates(t *testing.T) {
	for _, scope := range []string{config.ScopeGroup, config.ScopeGlobal} {
		t.Run(scope, func(t *testing.T) {
			store := newMemStore()
			svc := NewScoreService(store, ScoreOptions{Scope: scope})

			found, err := svc.Reset(context.Background(), "ghost", 1)
			require.NoError(t, err)
			assert.False(t, found)
			assert.Empty(t, store.rows)
		})
	}
}

// ============================================================================
// Leaderboard and points
// ============================================================================

func TestScoreService_LeaderboardEmpty(t *testing.T) {
	svc := NewScoreService(newMemStore(), ScoreOptions{})
	scores, err := svc.Leaderboard(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestScoreService_LeaderboardUsesConfiguredSize(t *testing.T) {
	store := new(mockStore)
	store.On("TopN", mock.Anything, int64(42), 3).Return([]*model.UserScore{}, nil)

	svc := NewScoreService(store, ScoreOptions{LeaderboardSize: 3})
	_, err := svc.Leaderboard(context.Background(), 42)
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestScoreService_LeaderboardGlobalScope(t *testing.T) {
	store := newMemStore()
	svc := NewScoreService(store, ScoreOptions{Scope: config.ScopeGlobal})
	ctx := context.Background()

	_, err := svc.Award(ctx, AwardRequest{Username: "alice", ChatID: 1, GroupName: "A", Points: 5})
	require.NoError(t, err)
	_, err = svc.Award(ctx, AwardRequest{Username: "alice", ChatID: 2, GroupName: "B", Points: 5})
	require.NoError(t, err)

	scores, err := svc.Leaderboard(ctx, 3)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, int64(10), scores[0].Points)
	assert.Equal(t, int64(0), scores[0].GroupID)
}

func TestScoreService_PointsMissingIsZero(t *testing.T) {
	svc := NewScoreService(newMemStore(), ScoreOptions{})
	points, err := svc.Points(context.Background(), "nobody", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), points)
}

func TestScoreService_PointsStoreError(t *testing.T) {
	store := new(mockStore)
	store.On("Get", mock.Anything, mock.Anything).Return(nil, errStoreDown)

	svc := NewScoreService(store, ScoreOptions{})
	_, err := svc.Points(context.Background(), "alice", 1)
	assert.ErrorIs(t, err, errStoreDown)
}

// ============================================================================
// Daily
// ============================================================================

func TestScoreService_ClaimDailyCycle(t *testing.T) {
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewScoreService(store, dailyOptions(), WithClock(clock.Now))
	ctx := context.Background()

	first, err := svc.ClaimDaily(ctx, "alice", 1, "G")
	require.NoError(t, err)
	require.True(t, first.Granted)
	assert.GreaterOrEqual(t, first.Bonus, int64(10))
	assert.LessOrEqual(t, first.Bonus, int64(50))
	require.NotNil(t, first.Score.LastClaim)
	assert.True(t, first.Score.LastClaim.Equal(clock.Now()))

	clock.Advance(23*time.Hour + 59*time.Minute)
	again, err := svc.ClaimDaily(ctx, "alice", 1, "G")
	require.NoError(t, err)
	assert.False(t, again.Granted)
	assert.Equal(t, time.Minute, again.Remaining)

	points, err := svc.Points(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, first.Bonus, points, "refused claim must not change points")

	row, err := store.Get(ctx, model.ScoreKey{Username: "alice", GroupID: 1})
	require.NoError(t, err)
	require.NotNil(t, row.LastClaim)
	assert.True(t, row.LastClaim.Equal(*first.Score.LastClaim), "refused claim must not restamp last_claim")

	clock.Advance(time.Minute)
	third, err := svc.ClaimDaily(ctx, "alice", 1, "G")
	require.NoError(t, err)
	require.True(t, third.Granted)
	assert.Equal(t, first.Bonus+third.Bonus, third.Score.Points)
	assert.True(t, third.Score.LastClaim.Equal(clock.Now()))
}

func TestScoreService_ClaimDailyUsesBonusFunc(t *testing.T) {
	var gotMin, gotMax int64
	svc := NewScoreService(newMemStore(), dailyOptions(), WithBonusFunc(func(min, max int64) int64 {
		gotMin, gotMax = min, max
		return 33
	}))

	res, err := svc.ClaimDaily(context.Background(), "alice", 1, "G")
	require.NoError(t, err)
	assert.Equal(t, int64(33), res.Bonus)
	assert.Equal(t, int64(10), gotMin)
	assert.Equal(t, int64(50), gotMax)
}

func TestScoreService_ClaimDailyConcurrentGrantsOnce(t *testing.T) {
	store := newMemStore()
	svc := NewScoreService(store, dailyOptions())

	const workers = 10
	var granted atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			res, err := svc.ClaimDaily(context.Background(), "alice", 1, "G")
			if err == nil && res.Granted {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
}

func TestScoreService_ClaimDailyStoreError(t *testing.T) {
	store := new(mockStore)
	store.On("Get", mock.Anything, mock.Anything).Return(nil, errStoreDown)

	svc := NewScoreService(store, dailyOptions())
	_, err := svc.ClaimDaily(context.Background(), "alice", 1, "G")
	assert.ErrorIs(t, err, errStoreDown)
	store.AssertNotCalled(t, "UpsertIncrement", mock.Anything, mock.Anything)
}

func TestScoreService_KeyScope(t *testing.T) {
	group := NewScoreService(newMemStore(), ScoreOptions{Scope: config.ScopeGroup})
	global := NewScoreService(newMemStore(), ScoreOptions{Scope: config.ScopeGlobal})

	assert.Equal(t, model.ScoreKey{Username: "a", GroupID: -5}, group.Key("a", -5))
	assert.Equal(t, model.ScoreKey{Username: "a", GroupID: 0}, global.Key("a", -5))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Scores:      config.ScoresConfig{Scope: config.ScopeGlobal},
		Daily:       config.DailyConfig{MinBonus: 1, MaxBonus: 2, Cooldown: time.Hour},
		Leaderboard: config.LeaderboardConfig{Size: 5},
	}
	assert.Equal(t, ScoreOptions{
		Scope:           config.ScopeGlobal,
		MinBonus:        1,
		MaxBonus:        2,
		Cooldown:        time.Hour,
		LeaderboardSize: 5,
	}, OptionsFromConfig(cfg))
}
