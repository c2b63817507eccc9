package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"telegram-points-bot/internal/model"
	"telegram-points-bot/internal/pkg/db"
)

const scoreColumns = `id, username, group_id, group_name, points, last_claim, created_at, updated_at`

// PostgresStore handles score persistence in PostgreSQL.
type PostgresStore struct {
	pool *db.Pool
}

// NewPostgresStore creates a new PostgresStore instance. The store takes
// ownership of pool and closes it in Close.
func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the users and logs tables.
func (r *PostgresStore) Migrate(ctx context.Context) error {
	log.Info().Msg("Running database migrations...")

	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			group_id BIGINT NOT NULL,
			group_name TEXT NOT NULL DEFAULT '',
			points BIGINT NOT NULL DEFAULT 0,
			last_claim TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (username, group_id)
		);
		CREATE INDEX IF NOT EXISTS idx_users_group_points ON users(group_id, points DESC, id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	log.Info().Msg("Migration 1: users table created")

	_, err = r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS logs (
			id BIGSERIAL PRIMARY KEY,
			giver VARCHAR(255) NOT NULL DEFAULT '',
			receiver VARCHAR(255) NOT NULL,
			points BIGINT NOT NULL,
			group_id BIGINT NOT NULL,
			group_name TEXT NOT NULL DEFAULT '',
			time TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_logs_group_time ON logs(group_id, time DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to create logs table: %w", err)
	}
	log.Info().Msg("Migration 2: logs table created")

	return nil
}

// Get retrieves a score row by key.
// Returns ErrScoreNotFound if the row does not exist.
func (r *PostgresStore) Get(ctx context.Context, key model.ScoreKey) (*model.UserScore, error) {
	const query = `SELECT ` + scoreColumns + ` FROM users WHERE username = $1 AND group_id = $2`

	score, err := scanScore(r.pool.QueryRow(ctx, query, key.Username, key.GroupID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScoreNotFound
		}
		return nil, fmt.Errorf("failed to get score: %w", err)
	}
	return score, nil
}

// UpsertIncrement adds inc.Delta to the row's points, creating the row if needed.
// The whole write is a single statement, so concurrent increments never lose updates.
func (r *PostgresStore) UpsertIncrement(ctx context.Context, inc Increment) (*model.UserScore, error) {
	const query = `
		INSERT INTO users (username, group_id, group_name, points, last_claim, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (username, group_id) DO UPDATE SET
			points = users.points + EXCLUDED.points,
			group_name = EXCLUDED.group_name,
			last_claim = COALESCE(EXCLUDED.last_claim, users.last_claim),
			updated_at = NOW()
		RETURNING ` + scoreColumns

	score, err := scanScore(r.pool.QueryRow(ctx, query,
		inc.Key.Username, inc.Key.GroupID, inc.GroupName, inc.Delta, inc.ClaimedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to increment score: %w", err)
	}
	return score, nil
}

// SetPoints sets a row's points to an exact value. Missing rows are left absent.
func (r *PostgresStore) SetPoints(ctx context.Context, key model.ScoreKey, points int64) (bool, error) {
	const query = `
		UPDATE users
		SET points = $3, updated_at = NOW()
		WHERE username = $1 AND group_id = $2
	`

	result, err := r.pool.Exec(ctx, query, key.Username, key.GroupID, points)
	if err != nil {
		return false, fmt.Errorf("failed to set points: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// TopN retrieves the top n rows of a group by points.
func (r *PostgresStore) TopN(ctx context.Context, groupID int64, n int) ([]*model.UserScore, error) {
	const query = `
		SELECT ` + scoreColumns + `
		FROM users
		WHERE group_id = $1
		ORDER BY points DESC, id ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, groupID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to get top scores: %w", err)
	}
	defer rows.Close()

	var scores []*model.UserScore
	for rows.Next() {
		score, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, score)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scores: %w", err)
	}

	return scores, nil
}

// AppendLog inserts an award audit entry.
func (r *PostgresStore) AppendLog(ctx context.Context, entry *model.AwardLogEntry) error {
	const query = `
		INSERT INTO logs (giver, receiver, points, group_id, group_name, time)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		entry.Giver, entry.Receiver, entry.Points, entry.GroupID, entry.GroupName, entry.Time.UTC(),
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to append award log: %w", err)
	}
	return nil
}

// Ping checks the connection and logs pool usage.
func (r *PostgresStore) Ping(ctx context.Context) error {
	return r.pool.HealthCheck(ctx)
}

// Close closes the underlying pool.
func (r *PostgresStore) Close(context.Context) error {
	r.pool.Close()
	return nil
}

func scanScore(row pgx.Row) (*model.UserScore, error) {
	var score model.UserScore
	err := row.Scan(
		&score.ID,
		&score.Username,
		&score.GroupID,
		&score.GroupName,
		&score.Points,
		&score.LastClaim,
		&score.CreatedAt,
		&score.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &score, nil
}
