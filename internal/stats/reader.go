// Package stats serves the read side: ranked leaderboards over the
// aggregate store and per-user period totals, with open sessions
// reflected live without being committed.
package stats

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/TIROK547/telegram-study-bot/internal/calendar"
	"github.com/TIROK547/telegram-study-bot/internal/models"
)

const (
	// DefaultTopN matches the ten-row boards the group is shown.
	DefaultTopN = 10

	listBatchSize = 100
)

// AggregateReader is the ranked-read side of the aggregate store.
type AggregateReader interface {
	TopN(ctx context.Context, g models.Granularity, bucketKey string, n int) ([]models.LeaderboardEntry, error)
	Get(ctx context.Context, g models.Granularity, bucketKey, userID string) (int64, error)
	TotalForUser(ctx context.Context, userID string) (int64, error)
}

// SessionReader exposes the open sessions the live figures come from.
type SessionReader interface {
	Get(ctx context.Context, userID string) (*models.Session, error)
	ListInFlight(ctx context.Context, afterUserID string, limit int) ([]*models.Session, error)
}

// NameResolver supplies display names for live-only leaderboard rows
// that have no committed aggregate entry yet.
type NameResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// UserSweeper rolls one user's session across any overdue midnight
// boundaries, so a stats read never sees time parked on yesterday.
type UserSweeper interface {
	SweepUser(ctx context.Context, userID string) error
}

type Reader struct {
	aggs     AggregateReader
	sessions SessionReader
	names    NameResolver
	clock    calendar.Clock
	cal      calendar.Provider
	cache    *Cache      // optional
	sweeper  UserSweeper // optional
	topN     int
}

func NewReader(aggs AggregateReader, sessions SessionReader, names NameResolver, clock calendar.Clock, cal calendar.Provider, cache *Cache) *Reader {
	return &Reader{
		aggs:     aggs,
		sessions: sessions,
		names:    names,
		clock:    clock,
		cal:      cal,
		cache:    cache,
		topN:     DefaultTopN,
	}
}

// SetSweeper attaches the on-demand boundary sweep run when a daily
// board read encounters a session still straddling a past midnight.
func (r *Reader) SetSweeper(sw UserSweeper) {
	r.sweeper = sw
}

// Leaderboard returns the ranked board for the current bucket of the
// given granularity. The daily board folds in live elapsed time of open
// sessions started today, so in-progress study shows up before it is
// committed. Ordering is total seconds descending, user id ascending on
// ties.
func (r *Reader) Leaderboard(ctx context.Context, g models.Granularity) ([]models.LeaderboardEntry, error) {
	switch g {
	case models.GranularityDaily, models.GranularityWeekly, models.GranularityMonthly:
	default:
		return nil, fmt.Errorf("unknown granularity %q", g)
	}

	now := r.clock.Now()
	bucketKey := r.cal.Keys(now).Key(string(g))
	cacheKey := boardCacheKey(g, bucketKey)

	if r.cache != nil {
		if entries, ok := r.cache.GetBoard(ctx, cacheKey); ok {
			return entries, nil
		}
	}

	entries, err := r.aggs.TopN(ctx, g, bucketKey, r.topN)
	if err != nil {
		return nil, err
	}

	if g == models.GranularityDaily {
		entries, err = r.mergeLive(ctx, entries, now)
		if err != nil {
			return nil, err
		}
	}

	if r.cache != nil {
		r.cache.SetBoard(ctx, cacheKey, entries)
	}
	return entries, nil
}

// PersonalStats returns the user's committed totals for the current
// day, week, and month buckets plus the all-time counter. An open
// session started inside a bucket is added to that bucket's figure.
func (r *Reader) PersonalStats(ctx context.Context, userID string) (*models.PersonalStats, error) {
	now := r.clock.Now()
	keys := r.cal.Keys(now)

	ps := &models.PersonalStats{State: models.StateIdle}

	var err error
	if ps.Daily, err = r.aggs.Get(ctx, models.GranularityDaily, keys.Day, userID); err != nil {
		return nil, err
	}
	if ps.Weekly, err = r.aggs.Get(ctx, models.GranularityWeekly, keys.Week, userID); err != nil {
		return nil, err
	}
	if ps.Monthly, err = r.aggs.Get(ctx, models.GranularityMonthly, keys.Month, userID); err != nil {
		return nil, err
	}
	if ps.AllTime, err = r.aggs.TotalForUser(ctx, userID); err != nil {
		return nil, err
	}

	s, err := r.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.InFlight() {
		live, _ := s.Elapsed(now)
		sessionKeys := r.cal.Keys(s.StartedAt)

		ps.State = s.State
		ps.LiveSeconds = live
		if sessionKeys.Day == keys.Day {
			ps.Daily += live
		}
		if sessionKeys.Week == keys.Week {
			ps.Weekly += live
		}
		if sessionKeys.Month == keys.Month {
			ps.Monthly += live
		}
	}

	return ps, nil
}

// mergeLive folds open sessions started today into the committed daily
// board and re-ranks. A live user outside the committed top rows is
// added with their committed daily total plus live seconds, so ranking
// never loses the committed portion. A session still straddling a past
// midnight is swept first when a sweeper is attached, otherwise its
// time belongs to a previous day and is skipped.
func (r *Reader) mergeLive(ctx context.Context, entries []models.LeaderboardEntry, now time.Time) ([]models.LeaderboardEntry, error) {
	dayKey := r.cal.Keys(now).Day

	byUser := make(map[string]int, len(entries))
	for i, e := range entries {
		byUser[e.UserID] = i
	}

	after := ""
	for {
		sessions, err := r.sessions.ListInFlight(ctx, after, listBatchSize)
		if err != nil {
			return nil, err
		}
		if len(sessions) == 0 {
			break
		}

		for _, s := range sessions {
			after = s.UserID

			if !r.cal.SameDay(s.StartedAt, now) {
				if r.sweeper == nil {
					continue
				}
				if err := r.sweeper.SweepUser(ctx, s.UserID); err != nil {
					log.Printf("stats: sweep user %s: %v", s.UserID, err)
					continue
				}
				swept, err := r.sessions.Get(ctx, s.UserID)
				if err != nil {
					return nil, err
				}
				if !swept.InFlight() || !r.cal.SameDay(swept.StartedAt, now) {
					continue
				}
				s = swept
			}

			live, _ := s.Elapsed(now)
			if live <= 0 {
				continue
			}

			if i, ok := byUser[s.UserID]; ok {
				entries[i].TotalSeconds += live
				continue
			}

			committed, err := r.aggs.Get(ctx, models.GranularityDaily, dayKey, s.UserID)
			if err != nil {
				return nil, err
			}
			name, err := r.names.DisplayName(ctx, s.UserID)
			if err != nil {
				name = s.UserID
			}
			entries = append(entries, models.LeaderboardEntry{
				UserID:       s.UserID,
				Name:         name,
				TotalSeconds: committed + live,
			})
			byUser[s.UserID] = len(entries) - 1
		}

		if len(sessions) < listBatchSize {
			break
		}
	}

	sortBoard(entries)
	if len(entries) > r.topN {
		entries = entries[:r.topN]
	}
	return entries, nil
}

func boardCacheKey(g models.Granularity, bucketKey string) string {
	return fmt.Sprintf("leaderboard:%s:%s", g, bucketKey)
}

func sortBoard(entries []models.LeaderboardEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalSeconds != entries[j].TotalSeconds {
			return entries[i].TotalSeconds > entries[j].TotalSeconds
		}
		return entries[i].UserID < entries[j].UserID
	})
}
