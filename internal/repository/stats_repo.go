package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TIROK547/telegram-study-bot/internal/engine"
	"github.com/TIROK547/telegram-study-bot/internal/models"
)

// StatsRepo is the Postgres aggregate store: accumulated seconds keyed
// by (granularity, bucket key, user), plus the commit ledger that makes
// replayed commits detectable.
type StatsRepo struct {
	pool *pgxpool.Pool
}

func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

// CommitElapsed records the commit key and increments the daily,
// weekly, monthly, and all-time entries in one transaction. A key seen
// before means the commit already landed (a retry after a crash between
// aggregate write and session reset): nothing is incremented and the
// call reports applied=false.
func (r *StatsRepo) CommitElapsed(ctx context.Context, c engine.Commit) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO session_commits (commit_key, user_id, seconds)
		VALUES ($1, $2, $3)
		ON CONFLICT (commit_key) DO NOTHING
	`, c.Key, c.UserID, c.Seconds)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	increments := []struct {
		granularity models.Granularity
		bucketKey   string
	}{
		{models.GranularityDaily, c.Keys.Day},
		{models.GranularityWeekly, c.Keys.Week},
		{models.GranularityMonthly, c.Keys.Month},
		{models.GranularityTotal, models.TotalBucketKey},
	}

	for _, inc := range increments {
		_, err := tx.Exec(ctx, `
			INSERT INTO aggregate_stats (granularity, bucket_key, user_id, name, total_seconds)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (granularity, bucket_key, user_id) DO UPDATE SET
				total_seconds = aggregate_stats.total_seconds + excluded.total_seconds,
				name = excluded.name
		`, inc.granularity, inc.bucketKey, c.UserID, c.Name, c.Seconds)
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// TopN returns up to n entries for one bucket, ordered by accumulated
// seconds descending with user id as the deterministic tie-break.
// Zero-second rows never appear.
func (r *StatsRepo) TopN(ctx context.Context, g models.Granularity, bucketKey string, n int) ([]models.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, name, total_seconds
		FROM aggregate_stats
		WHERE granularity = $1
		  AND bucket_key = $2
		  AND total_seconds > 0
		ORDER BY total_seconds DESC, user_id ASC
		LIMIT $3
	`, g, bucketKey, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.TotalSeconds); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the accumulated seconds for one user in one bucket, 0
// when absent.
func (r *StatsRepo) Get(ctx context.Context, g models.Granularity, bucketKey, userID string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT total_seconds
		FROM aggregate_stats
		WHERE granularity = $1
		  AND bucket_key = $2
		  AND user_id = $3
	`, g, bucketKey, userID).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return total, nil
}

// TotalForUser reads the O(1) all-time counter.
func (r *StatsRepo) TotalForUser(ctx context.Context, userID string) (int64, error) {
	return r.Get(ctx, models.GranularityTotal, models.TotalBucketKey, userID)
}
