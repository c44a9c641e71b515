package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TIROK547/telegram-study-bot/internal/engine"
	"github.com/TIROK547/telegram-study-bot/internal/models"
)

// SessionRepo is the Postgres session store: one row per user, written
// only through a version check so concurrent writers for the same user
// see exactly one winner.
type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) Get(ctx context.Context, userID string) (*models.Session, error) {
	s := &models.Session{UserID: userID, State: models.StateIdle}

	var startedAt, pausedAt *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT state, started_at, paused_at, paused_seconds, version
		FROM sessions
		WHERE user_id = $1
	`, userID).Scan(&s.State, &startedAt, &pausedAt, &s.PausedSeconds, &s.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		// No row yet: a fresh Idle session at version 0. Save inserts it.
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	if startedAt != nil {
		s.StartedAt = *startedAt
	}
	s.PausedAt = pausedAt
	return s, nil
}

func (r *SessionRepo) Save(ctx context.Context, s *models.Session) error {
	var startedAt *time.Time
	if !s.StartedAt.IsZero() {
		t := s.StartedAt
		startedAt = &t
	}

	if s.Version == 0 {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO sessions (user_id, state, started_at, paused_at, paused_seconds, version)
			VALUES ($1, $2, $3, $4, $5, 1)
			ON CONFLICT (user_id) DO NOTHING
		`, s.UserID, s.State, startedAt, s.PausedAt, s.PausedSeconds)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return engine.ErrVersionConflict
		}
		s.Version = 1
		return nil
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET state = $1,
			started_at = $2,
			paused_at = $3,
			paused_seconds = $4,
			version = version + 1,
			updated_at = NOW()
		WHERE user_id = $5
		  AND version = $6
	`, s.State, startedAt, s.PausedAt, s.PausedSeconds, s.UserID, s.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrVersionConflict
	}
	s.Version++
	return nil
}

func (r *SessionRepo) ListInFlight(ctx context.Context, afterUserID string, limit int) ([]*models.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, state, started_at, paused_at, paused_seconds, version
		FROM sessions
		WHERE state IN ('active', 'paused')
		  AND user_id > $1
		ORDER BY user_id
		LIMIT $2
	`, afterUserID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s := &models.Session{}
		var startedAt, pausedAt *time.Time
		if err := rows.Scan(&s.UserID, &s.State, &startedAt, &pausedAt, &s.PausedSeconds, &s.Version); err != nil {
			return nil, err
		}
		if startedAt != nil {
			s.StartedAt = *startedAt
		}
		s.PausedAt = pausedAt
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
