// Package engine implements the study-session state machine: it decides
// when a session may start, pause, resume, or end, computes elapsed
// active time across pause cycles, and commits that time into the
// daily/weekly/monthly/all-time rollups. All per-user mutations are
// serialized by a per-user lock and a version check in the session
// store, so the engine can be driven concurrently by the bot layer, the
// HTTP facade, and the expiration sweeper.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/TIROK547/telegram-study-bot/internal/calendar"
	"github.com/TIROK547/telegram-study-bot/internal/models"
)

// ErrVersionConflict is returned by SessionStore.Save when the stored
// version no longer matches: another writer got there first.
var ErrVersionConflict = errors.New("session version conflict")

// SessionStore is the durable per-user session record. Get returns an
// Idle zero session (never nil) when the user has no row yet. Save
// compares s.Version against the stored row and fails with
// ErrVersionConflict on mismatch; on success it bumps s.Version.
type SessionStore interface {
	Get(ctx context.Context, userID string) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error

	// ListInFlight pages through Active/Paused sessions in user-id
	// order, returning at most limit rows with user id > afterUserID.
	ListInFlight(ctx context.Context, afterUserID string, limit int) ([]*models.Session, error)
}

// Commit is one crediting of elapsed seconds into every granularity's
// bucket. Key is an idempotency token unique per (user, session
// instance, boundary); replaying a Commit with a seen Key is a no-op.
type Commit struct {
	Key     string
	UserID  string
	Name    string
	Keys    calendar.Keys
	Seconds int64
}

// AggregateStore applies commits atomically: either every granularity's
// entry is incremented and the commit key recorded, or nothing is.
// Returns false when c.Key was already applied (a retried End or split
// after a crash) so elapsed time is never double-credited.
type AggregateStore interface {
	CommitElapsed(ctx context.Context, c Commit) (applied bool, err error)
}

// NameResolver supplies the display name stamped onto aggregate entries
// at commit time. The profile subsystem owns names; the engine only
// reads them here.
type NameResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Invalidator is notified after every successful commit so cached
// leaderboard reads for the touched buckets can be dropped.
type Invalidator interface {
	InvalidateBuckets(ctx context.Context, keys calendar.Keys)
}

type Engine struct {
	sessions SessionStore
	aggs     AggregateStore
	names    NameResolver
	clock    calendar.Clock
	cal      calendar.Provider
	locks    *userLocks

	// Sessions shorter than this are discarded uncredited so accidental
	// taps do not pollute leaderboards.
	minCreditSeconds int64

	invalidator Invalidator
}

func New(
	sessions SessionStore,
	aggs AggregateStore,
	names NameResolver,
	clock calendar.Clock,
	cal calendar.Provider,
	minCreditSeconds int64,
) *Engine {
	return &Engine{
		sessions:         sessions,
		aggs:             aggs,
		names:            names,
		clock:            clock,
		cal:              cal,
		locks:            newUserLocks(),
		minCreditSeconds: minCreditSeconds,
	}
}

// SetInvalidator attaches a cache invalidation hook. Optional.
func (e *Engine) SetInvalidator(inv Invalidator) {
	e.invalidator = inv
}

// Start begins a new session. Fails with ErrAlreadyInSession unless the
// user is Idle.
func (e *Engine) Start(ctx context.Context, userID string) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	s, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return storeErr("get session", err)
	}
	if s.State != models.StateIdle {
		return ErrAlreadyInSession
	}

	s.State = models.StateActive
	s.StartedAt = e.clock.Now()
	s.PausedAt = nil
	s.PausedSeconds = 0

	if err := e.sessions.Save(ctx, s); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			// Lost a cross-process race: the other writer's Start won.
			return ErrAlreadyInSession
		}
		return storeErr("save session", err)
	}
	return nil
}

// Pause suspends the running session. Fails with ErrNotActive unless
// the session is Active.
func (e *Engine) Pause(ctx context.Context, userID string) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	s, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return storeErr("get session", err)
	}
	if s.State != models.StateActive {
		return ErrNotActive
	}

	now := e.clock.Now()
	s.PausedAt = &now
	s.State = models.StatePaused

	if err := e.sessions.Save(ctx, s); err != nil {
		return storeErr("save session", err)
	}
	return nil
}

// Resume continues a paused session, folding the completed pause
// interval into the running total. Fails with ErrNotPaused unless the
// session is Paused.
func (e *Engine) Resume(ctx context.Context, userID string) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	s, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return storeErr("get session", err)
	}
	if s.State != models.StatePaused {
		return ErrNotPaused
	}

	now := e.clock.Now()
	pause := now.Sub(*s.PausedAt)
	if pause < 0 {
		log.Printf("engine: clock anomaly: negative pause interval for user %s, clamped to zero", userID)
		pause = 0
	}
	s.PausedSeconds += int64(pause.Seconds())
	s.PausedAt = nil
	s.State = models.StateActive

	if err := e.sessions.Save(ctx, s); err != nil {
		return storeErr("save session", err)
	}
	return nil
}

// End closes the session, credits its elapsed time to the buckets
// containing its start, and resets the user to Idle. Elapsed below the
// minimum threshold is reported but not credited. Fails with
// ErrNoSession when the user is Idle.
func (e *Engine) End(ctx context.Context, userID string) (*models.EndResult, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	s, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return nil, storeErr("get session", err)
	}
	if s.State == models.StateIdle {
		return nil, ErrNoSession
	}

	now := e.clock.Now()

	// Split any overdue midnight boundaries first so each day's portion
	// lands in its own bucket and the remainder is attributed to the
	// current day.
	if err := e.rollForwardLocked(ctx, s, now); err != nil {
		return nil, err
	}

	elapsed := e.elapsedAt(s, now)
	credited := false
	if elapsed >= e.minCreditSeconds {
		key := fmt.Sprintf("%s:%d:end", userID, s.StartedAt.Unix())
		if err := e.commitLocked(ctx, key, s, elapsed); err != nil {
			return nil, err
		}
		credited = true
	}

	s.Reset()
	if err := e.sessions.Save(ctx, s); err != nil {
		return nil, storeErr("save session", err)
	}

	return &models.EndResult{ElapsedSeconds: elapsed, Credited: credited}, nil
}

// GetLiveElapsed reports the open session's elapsed seconds without
// mutating anything. 0 when Idle.
func (e *Engine) GetLiveElapsed(ctx context.Context, userID string) (int64, error) {
	s, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return 0, storeErr("get session", err)
	}
	if !s.InFlight() {
		return 0, nil
	}
	return e.elapsedAt(s, e.clock.Now()), nil
}

// SweepUser splits any midnight boundaries the user's session has
// crossed. Called by the periodic sweeper and on demand before stats
// reads; a user with no in-flight session is a no-op.
func (e *Engine) SweepUser(ctx context.Context, userID string) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	s, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return storeErr("get session", err)
	}
	if !s.InFlight() {
		return nil
	}
	return e.rollForwardLocked(ctx, s, e.clock.Now())
}

// rollForwardLocked walks the session across every local midnight it
// has straddled, one boundary at a time: the portion before the
// boundary is committed as if the session ended there, then the session
// restarts at the boundary with its Active/Paused state preserved (a
// paused session restarts already paused at the boundary). A multi-day
// outage therefore credits each night to its own day rather than one
// multi-day span to a single bucket. Caller holds the user lock.
func (e *Engine) rollForwardLocked(ctx context.Context, s *models.Session, now time.Time) error {
	for s.InFlight() {
		boundary := e.cal.NextMidnight(s.StartedAt)
		if now.Before(boundary) {
			return nil
		}

		elapsed := e.elapsedAt(s, boundary)
		if elapsed >= e.minCreditSeconds {
			key := fmt.Sprintf("%s:%d:%d", s.UserID, s.StartedAt.Unix(), boundary.Unix())
			if err := e.commitLocked(ctx, key, s, elapsed); err != nil {
				return err
			}
		}

		s.StartedAt = boundary
		s.PausedSeconds = 0
		if s.State == models.StatePaused {
			b := boundary
			s.PausedAt = &b
		}
		if err := e.sessions.Save(ctx, s); err != nil {
			return storeErr("save session", err)
		}
	}
	return nil
}

// commitLocked credits seconds to the buckets containing the session's
// start. The commit key makes a crash between the aggregate write and
// the session reset detectable: replaying the operation finds the key
// already recorded and skips the increment.
func (e *Engine) commitLocked(ctx context.Context, key string, s *models.Session, seconds int64) error {
	name, err := e.names.DisplayName(ctx, s.UserID)
	if err != nil {
		return storeErr("resolve display name", err)
	}

	keys := e.cal.Keys(s.StartedAt)
	applied, err := e.aggs.CommitElapsed(ctx, Commit{
		Key:     key,
		UserID:  s.UserID,
		Name:    name,
		Keys:    keys,
		Seconds: seconds,
	})
	if err != nil {
		return storeErr("commit elapsed", err)
	}
	if !applied {
		log.Printf("engine: commit %s already applied, skipping duplicate credit", key)
	}

	if e.invalidator != nil {
		e.invalidator.InvalidateBuckets(ctx, keys)
	}
	return nil
}

func (e *Engine) elapsedAt(s *models.Session, at time.Time) int64 {
	elapsed, clamped := s.Elapsed(at)
	if clamped {
		log.Printf("engine: clock anomaly: negative elapsed for user %s, clamped to zero", s.UserID)
	}
	return elapsed
}
