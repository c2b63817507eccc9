package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"telegram-points-bot/internal/model"
)

// SQLiteStore handles score persistence in an embedded SQLite database via gorm.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens the database at dsn. Accepts "sqlite://" prefixed
// paths, plain file paths, "file:" URIs and ":memory:".
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	dsn = strings.TrimPrefix(dsn, "sqlite://")

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	// One connection keeps ":memory:" databases shared and writes serialized.
	sqlDB.SetMaxOpenConns(1)

	log.Info().Str("dsn", dsn).Msg("Opened SQLite database")

	return &SQLiteStore{db: db}, nil
}

// Migrate creates or updates the users and logs tables.
func (r *SQLiteStore) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&model.UserScore{}, &model.AwardLogEntry{}); err != nil {
		return fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	return nil
}

// Get retrieves a score row by key.
// Returns ErrScoreNotFound if the row does not exist.
func (r *SQLiteStore) Get(ctx context.Context, key model.ScoreKey) (*model.UserScore, error) {
	var score model.UserScore
	err := r.db.WithContext(ctx).
		Where("username = ? AND group_id = ?", key.Username, key.GroupID).
		First(&score).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScoreNotFound
		}
		return nil, fmt.Errorf("failed to get score: %w", err)
	}
	return &score, nil
}

// UpsertIncrement inserts the row or adds to its points on conflict, then
// reads the result back within the same transaction.
func (r *SQLiteStore) UpsertIncrement(ctx context.Context, inc Increment) (*model.UserScore, error) {
	now := time.Now().UTC()

	row := model.UserScore{
		Username:  inc.Key.Username,
		GroupID:   inc.Key.GroupID,
		GroupName: inc.GroupName,
		Points:    inc.Delta,
		LastClaim: inc.ClaimedAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	updates := map[string]interface{}{
		"points":     gorm.Expr("points + ?", inc.Delta),
		"group_name": inc.GroupName,
		"updated_at": now,
	}
	if inc.ClaimedAt != nil {
		updates["last_claim"] = inc.ClaimedAt.UTC()
	}

	var out model.UserScore
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}, {Name: "group_id"}},
			DoUpdates: clause.Assignments(updates),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		return tx.Where("username = ? AND group_id = ?", inc.Key.Username, inc.Key.GroupID).
			First(&out).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to increment score: %w", err)
	}
	return &out, nil
}

// SetPoints sets a row's points to an exact value. Missing rows are left absent.
func (r *SQLiteStore) SetPoints(ctx context.Context, key model.ScoreKey, points int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.UserScore{}).
		Where("username = ? AND group_id = ?", key.Username, key.GroupID).
		Updates(map[string]interface{}{
			"points":     points,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to set points: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// TopN retrieves the top n rows of a group by points.
func (r *SQLiteStore) TopN(ctx context.Context, groupID int64, n int) ([]*model.UserScore, error) {
	var scores []*model.UserScore
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("points DESC").
		Order("id ASC").
		Limit(n).
		Find(&scores).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get top scores: %w", err)
	}
	return scores, nil
}

// AppendLog inserts an award audit entry.
func (r *SQLiteStore) AppendLog(ctx context.Context, entry *model.AwardLogEntry) error {
	entry.Time = entry.Time.UTC()
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append award log: %w", err)
	}
	return nil
}

// Ping checks the database handle.
func (r *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database handle.
func (r *SQLiteStore) Close(context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
