// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-points-bot/internal/config"
	"telegram-points-bot/internal/model"
	"telegram-points-bot/internal/pkg/lock"
	"telegram-points-bot/internal/repository"
)

// Common errors for score operations.
var (
	ErrEmptyUsername = errors.New("username is empty")
)

// ScoreOptions configures a ScoreService.
type ScoreOptions struct {
	Scope           string
	MinBonus        int64
	MaxBonus        int64
	Cooldown        time.Duration
	LeaderboardSize int
}

// OptionsFromConfig extracts score options from the application config.
func OptionsFromConfig(cfg *config.Config) ScoreOptions {
	return ScoreOptions{
		Scope:           cfg.Scores.Scope,
		MinBonus:        cfg.Daily.MinBonus,
		MaxBonus:        cfg.Daily.MaxBonus,
		Cooldown:        cfg.Daily.Cooldown,
		LeaderboardSize: cfg.Leaderboard.Size,
	}
}

// Option customizes a ScoreService.
type Option func(*ScoreService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *ScoreService) { s.now = now }
}

// WithBonusFunc replaces the daily bonus draw.
func WithBonusFunc(fn func(min, max int64) int64) Option {
	return func(s *ScoreService) { s.bonus = fn }
}

// ScoreService handles awarding, resetting, ranking and daily bonuses.
type ScoreService struct {
	store repository.ScoreStore
	locks *lock.KeyLock
	opts  ScoreOptions
	now   func() time.Time
	bonus func(min, max int64) int64
}

// NewScoreService creates a new ScoreService instance.
func NewScoreService(store repository.ScoreStore, opts ScoreOptions, options ...Option) *ScoreService {
	if opts.Scope == "" {
		opts.Scope = config.ScopeGroup
	}
	if opts.LeaderboardSize <= 0 {
		opts.LeaderboardSize = 10
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 24 * time.Hour
	}

	s := &ScoreService{
		store: store,
		locks: lock.NewKeyLock(),
		opts:  opts,
		now:   time.Now,
		bonus: RandomBonus,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Key derives the score key for a username in a chat according to the scope.
func (s *ScoreService) Key(username string, chatID int64) model.ScoreKey {
	if s.opts.Scope == config.ScopeGlobal {
		return model.ScoreKey{Username: username, GroupID: 0}
	}
	return model.ScoreKey{Username: username, GroupID: chatID}
}

// AwardRequest describes one /award invocation.
type AwardRequest struct {
	Giver     string
	Username  string
	ChatID    int64
	GroupName string
	Points    int64
}

// Award adds points to a user, creating the row if needed, and records an
// audit entry. A failed audit write is logged and does not fail the award.
func (s *ScoreService) Award(ctx context.Context, req AwardRequest) (*model.UserScore, error) {
	if req.Username == "" {
		return nil, ErrEmptyUsername
	}

	key := s.Key(req.Username, req.ChatID)
	score, err := s.store.UpsertIncrement(ctx, repository.Increment{
		Key:       key,
		GroupName: req.GroupName,
		Delta:     req.Points,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to award points: %w", err)
	}

	entry := &model.AwardLogEntry{
		Giver:     req.Giver,
		Receiver:  req.Username,
		Points:    req.Points,
		GroupID:   req.ChatID,
		GroupName: req.GroupName,
		Time:      s.now().UTC(),
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("receiver", req.Username).
			Int64("chat_id", req.ChatID).
			Int64("points", req.Points).
			Msg("Failed to write award log")
	}

	log.Info().
		Str("giver", req.Giver).
		Str("receiver", req.Username).
		Int64("chat_id", req.ChatID).
		Int64("points", req.Points).
		Int64("total", score.Points).
		Msg("Points awarded")

	return score, nil
}

// Reset sets a user's points to zero. It never creates a row and reports
// whether one existed.
func (s *ScoreService) Reset(ctx context.Context, username string, chatID int64) (bool, error) {
	if username == "" {
		return false, ErrEmptyUsername
	}

	found, err := s.store.SetPoints(ctx, s.Key(username, chatID), 0)
	if err != nil {
		return false, fmt.Errorf("failed to reset points: %w", err)
	}
	if !found {
		log.Debug().Str("username", username).Int64("chat_id", chatID).Msg("Reset matched no score row")
	}
	return found, nil
}

// Leaderboard returns the top rows for a chat.
func (s *ScoreService) Leaderboard(ctx context.Context, chatID int64) ([]*model.UserScore, error) {
	groupID := s.Key("", chatID).GroupID
	scores, err := s.store.TopN(ctx, groupID, s.opts.LeaderboardSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return scores, nil
}

// Points returns a user's points in a chat. A missing row counts as zero.
func (s *ScoreService) Points(ctx context.Context, username string, chatID int64) (int64, error) {
	score, err := s.store.Get(ctx, s.Key(username, chatID))
	if err != nil {
		if errors.Is(err, repository.ErrScoreNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get points: %w", err)
	}
	return score.Points, nil
}

// DailyResult is the outcome of a daily claim.
type DailyResult struct {
	Granted   bool
	Bonus     int64
	Remaining time.Duration
	Score     *model.UserScore
}

// ClaimDaily grants a random bonus when the cooldown has elapsed since the
// previous claim. Claims for the same key are serialized within the process.
func (s *ScoreService) ClaimDaily(ctx context.Context, username string, chatID int64, groupName string) (*DailyResult, error) {
	if username == "" {
		return nil, ErrEmptyUsername
	}

	key := s.Key(username, chatID)
	var result *DailyResult

	err := s.locks.WithLock(ctx, lockKey(key), func() error {
		var last *time.Time
		current, err := s.store.Get(ctx, key)
		switch {
		case err == nil:
			last = current.LastClaim
		case errors.Is(err, repository.ErrScoreNotFound):
		default:
			return fmt.Errorf("failed to check daily claim eligibility: %w", err)
		}

		now := s.now().UTC()
		eligible, remaining := DailyEligibility(last, now, s.opts.Cooldown)
		if !eligible {
			result = &DailyResult{Remaining: remaining, Score: current}
			return nil
		}

		bonus := s.bonus(s.opts.MinBonus, s.opts.MaxBonus)
		score, err := s.store.UpsertIncrement(ctx, repository.Increment{
			Key:       key,
			GroupName: groupName,
			Delta:     bonus,
			ClaimedAt: &now,
		})
		if err != nil {
			return fmt.Errorf("failed to add daily bonus: %w", err)
		}

		result = &DailyResult{Granted: true, Bonus: bonus, Score: score}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Granted {
		log.Info().Str("username", username).Int64("chat_id", chatID).Int64("bonus", result.Bonus).Msg("Daily bonus claimed")
	}
	return result, nil
}

// DailyEligibility reports whether a claim is allowed at now given the
// previous claim time, and if not, how long remains.
func DailyEligibility(last *time.Time, now time.Time, cooldown time.Duration) (bool, time.Duration) {
	if last == nil {
		return true, 0
	}
	elapsed := now.Sub(*last)
	if elapsed < cooldown {
		return false, cooldown - elapsed
	}
	return true, 0
}

// RandomBonus draws uniformly from [min, max].
func RandomBonus(min, max int64) int64 {
	if max <= min {
		return min
	}
	return min + rand.Int63n(max-min+1)
}

func lockKey(key model.ScoreKey) string {
	return key.Username + "|" + strconv.FormatInt(key.GroupID, 10)
}
