// Package repository provides data access layer implementations.
//
// Three backends implement ScoreStore: PostgreSQL (pgx), MongoDB and SQLite
// (gorm). All of them keep two logical collections, "users" for score rows
// and "logs" for the award audit trail.
package repository

import (
	"context"
	"errors"
	"time"

	"telegram-points-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrScoreNotFound = errors.New("score not found")
	ErrUnknownDriver = errors.New("unknown store driver")
)

// Collection names shared by every backend.
const (
	UsersCollection = "users"
	LogsCollection  = "logs"
)

// Increment describes an atomic "add Delta to points" write.
// The row is created when absent. GroupName is always refreshed.
// When ClaimedAt is set, last_claim is stamped in the same write.
type Increment struct {
	Key       model.ScoreKey
	GroupName string
	Delta     int64
	ClaimedAt *time.Time
}

// ScoreStore is the persistence contract used by the score service.
type ScoreStore interface {
	// Get returns ErrScoreNotFound when no row exists for key.
	Get(ctx context.Context, key model.ScoreKey) (*model.UserScore, error)
	// UpsertIncrement applies inc atomically and returns the updated row.
	UpsertIncrement(ctx context.Context, inc Increment) (*model.UserScore, error)
	// SetPoints overwrites points on an existing row. It never creates one
	// and reports whether a row matched.
	SetPoints(ctx context.Context, key model.ScoreKey, points int64) (bool, error)
	// TopN returns up to n rows of a group ordered by points descending,
	// ties in insertion order.
	TopN(ctx context.Context, groupID int64, n int) ([]*model.UserScore, error)
	// AppendLog inserts one audit entry.
	AppendLog(ctx context.Context, entry *model.AwardLogEntry) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
