package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TIROK547/telegram-study-bot/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepo owns profiles. The engine consumes only DisplayName from it;
// everything else serves the HTTP facade and the bot layer.
type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// Upsert creates the user on first contact and refreshes the display
// name on every later one, mirroring how the chat layer re-reports
// names as users interact.
func (r *UserRepo) Upsert(ctx context.Context, userID, name string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (user_id, name)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			name = excluded.name,
			updated_at = NOW()
	`, userID, name)
	return err
}

func (r *UserRepo) GetByID(ctx context.Context, userID string) (*models.User, error) {
	u := &models.User{}
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, name, field, grade, profile_completed, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`, userID).Scan(&u.ID, &u.Name, &u.Field, &u.Grade, &u.ProfileCompleted, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetByUsername resolves a user by display name, case-insensitively,
// with or without the leading @.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if !strings.HasPrefix(username, "@") {
		username = "@" + username
	}

	u := &models.User{}
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, name, field, grade, profile_completed, created_at, updated_at
		FROM users
		WHERE LOWER(name) = LOWER($1)
	`, username).Scan(&u.ID, &u.Name, &u.Field, &u.Grade, &u.ProfileCompleted, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepo) List(ctx context.Context) ([]*models.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, name, field, grade, profile_completed, created_at, updated_at
		FROM users
		ORDER BY user_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanUsers(rows)
}

func (r *UserRepo) Search(ctx context.Context, query string) ([]*models.User, error) {
	query = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(query)), "@")

	rows, err := r.pool.Query(ctx, `
		SELECT user_id, name, field, grade, profile_completed, created_at, updated_at
		FROM users
		WHERE LOWER(name) LIKE '%' || $1 || '%'
		ORDER BY user_id
	`, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanUsers(rows)
}

func (r *UserRepo) UpdateProfile(ctx context.Context, userID, field string, grade int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET field = $1,
			grade = $2,
			profile_completed = TRUE,
			updated_at = NOW()
		WHERE user_id = $3
	`, field, grade, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DisplayName implements engine.NameResolver.
func (r *UserRepo) DisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM users WHERE user_id = $1`, userID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

func scanUsers(rows pgx.Rows) ([]*models.User, error) {
	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Field, &u.Grade, &u.ProfileCompleted, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
