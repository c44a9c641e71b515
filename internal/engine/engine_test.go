package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TIROK547/telegram-study-bot/internal/calendar"
	"github.com/TIROK547/telegram-study-bot/internal/engine"
	"github.com/TIROK547/telegram-study-bot/internal/models"
	"github.com/TIROK547/telegram-study-bot/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine   *engine.Engine
	clock    *fakeClock
	cal      calendar.Provider
	sessions *repository.MemSessionStore
	stats    *repository.MemStatsStore
	users    *repository.MemUserStore
	loc      *time.Location
}

func newTestEnv(t *testing.T, start time.Time) *testEnv {
	t.Helper()

	loc, err := time.LoadLocation("Asia/Tehran")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	clock := &fakeClock{now: start.In(loc)}
	cal := calendar.NewJalali(loc)
	sessions := repository.NewMemSessionStore()
	stats := repository.NewMemStatsStore()
	users := repository.NewMemUserStore()

	if err := users.Upsert(context.Background(), "u1", "Sara"); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	return &testEnv{
		engine:   engine.New(sessions, stats, users, clock, cal, 60),
		clock:    clock,
		cal:      cal,
		sessions: sessions,
		stats:    stats,
		users:    users,
		loc:      loc,
	}
}

func tehranTime(t *testing.T, year int, month time.Month, day, hour, min, sec int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tehran")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return time.Date(year, month, day, hour, min, sec, 0, loc)
}

func dailyTotal(t *testing.T, env *testEnv, day, userID string) int64 {
	t.Helper()
	total, err := env.stats.Get(context.Background(), models.GranularityDaily, day, userID)
	if err != nil {
		t.Fatalf("get daily total: %v", err)
	}
	return total
}

func TestEndCreditsElapsedMinusPauses(t *testing.T) {
	start := tehranTime(t, 2026, time.August, 28, 8, 0, 0)
	env := newTestEnv(t, start)
	ctx := context.Background()

	if err := env.engine.Start(ctx, "u1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.clock.Advance(10 * time.Minute)
	if err := env.engine.Pause(ctx, "u1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	env.clock.Advance(5 * time.Minute)
	if err := env.engine.Resume(ctx, "u1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	env.clock.Advance(5 * time.Minute)

	res, err := env.engine.End(ctx, "u1")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if res.ElapsedSeconds != 900 {
		t.Errorf("elapsed = %d, want 900", res.ElapsedSeconds)
	}
	if !res.Credited {
		t.Error("expected session to be credited")
	}

	keys := env.cal.Keys(start)
	if got := dailyTotal(t, env, keys.Day, "u1"); got != 900 {
		t.Errorf("daily total = %d, want 900", got)
	}
	weekly, _ := env.stats.Get(ctx, models.GranularityWeekly, keys.Week, "u1")
	if weekly != 900 {
		t.Errorf("weekly total = %d, want 900", weekly)
	}
	monthly, _ := env.stats.Get(ctx, models.GranularityMonthly, keys.Month, "u1")
	if monthly != 900 {
		t.Errorf("monthly total = %d, want 900", monthly)
	}
	allTime, _ := env.stats.TotalForUser(ctx, "u1")
	if allTime != 900 {
		t.Errorf("all-time total = %d, want 900", allTime)
	}

	s, err := env.sessions.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if s.State != models.StateIdle {
		t.Errorf("state after end = %s, want idle", s.State)
	}
}

func TestElapsedIndependentOfPauseCount(t *testing.T) {
	for _, cycles := range []int{0, 1, 3, 7} {
		start := tehranTime(t, 2026, time.August, 28, 8, 0, 0)
		env := newTestEnv(t, start)
		ctx := context.Background()

		if err := env.engine.Start(ctx, "u1"); err != nil {
			t.Fatalf("start: %v", err)
		}

		var active, paused time.Duration
		for i := 0; i < cycles; i++ {
			env.clock.Advance(2 * time.Minute)
			active += 2 * time.Minute
			if err := env.engine.Pause(ctx, "u1"); err != nil {
				t.Fatalf("pause %d: %v", i, err)
			}
			env.clock.Advance(90 * time.Second)
			paused += 90 * time.Second
			if err := env.engine.Resume(ctx, "u1"); err != nil {
				t.Fatalf("resume %d: %v", i, err)
			}
		}
		env.clock.Advance(3 * time.Minute)
		active += 3 * time.Minute

		res, err := env.engine.End(ctx, "u1")
		if err != nil {
			t.Fatalf("end: %v", err)
		}
		want := int64(active.Seconds())
		if res.ElapsedSeconds != want {
			t.Errorf("cycles=%d: elapsed = %d, want %d", cycles, res.ElapsedSeconds, want)
		}
	}
}

func TestIllegalTransitions(t *testing.T) {
	start := tehranTime(t, 2026, time.August, 28, 8, 0, 0)
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(t *testing.T, env *testEnv)
		op      func(env *testEnv) error
		wantErr error
	}{
		{
			name:    "pause while idle",
			setup:   func(t *testing.T, env *testEnv) {},
			op:      func(env *testEnv) error { return env.engine.Pause(ctx, "u1") },
			wantErr: engine.ErrNotActive,
		},
		{
			name:    "resume while idle",
			setup:   func(t *testing.T, env *testEnv) {},
			op:      func(env *testEnv) error { return env.engine.Resume(ctx, "u1") },
			wantErr: engine.ErrNotPaused,
		},
		{
			name:  "end while idle",
			setup: func(t *testing.T, env *testEnv) {},
			op: func(env *testEnv) error {
				_, err := env.engine.End(ctx, "u1")
				return err
			},
			wantErr: engine.ErrNoSession,
		},
		{
			name: "start while active",
			setup: func(t *testing.T, env *testEnv) {
				if err := env.engine.Start(ctx, "u1"); err != nil {
					t.Fatalf("start: %v", err)
				}
			},
			op:      func(env *testEnv) error { return env.engine.Start(ctx, "u1") },
			wantErr: engine.ErrAlreadyInSession,
		},
		{
			name: "resume while active",
			setup: func(t *testing.T, env *testEnv) {
				if err := env.engine.Start(ctx, "u1"); err != nil {
					t.Fatalf("start: %v", err)
				}
			},
			op:      func(env *testEnv) error { return env.engine.Resume(ctx, "u1") },
			wantErr: engine.ErrNotPaused,
		},
		{
			name: "start while paused",
			setup: func(t *testing.T, env *testEnv) {
				if err := env.engine.Start(ctx, "u1"); err != nil {
					t.Fatalf("start: %v", err)
				}
				env.clock.Advance(time.Minute)
				if err := env.engine.Pause(ctx, "u1"); err != nil {
					t.Fatalf("pause: %v", err)
				}
			},
			op:      func(env *testEnv) error { return env.engine.Start(ctx, "u1") },
			wantErr: engine.ErrAlreadyInSession,
		},
		{
			name: "pause while paused",
			setup: func(t *testing.T, env *testEnv) {
				if err := env.engine.Start(ctx, "u1"); err != nil {
					t.Fatalf("start: %v", err)
				}
				env.clock.Advance(time.Minute)
				if err := env.engine.Pause(ctx, "u1"); err != nil {
					t.Fatalf("pause: %v", err)
				}
			},
			op:      func(env *testEnv) error { return env.engine.Pause(ctx, "u1") },
			wantErr: engine.ErrNotActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, start)
			tt.setup(t, env)
			if err := tt.op(env); !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFailedTransitionLeavesStateUnchanged(t *testing.T) {
	start := tehranTime(t, 2026, time.August, 28, 8, 0, 0)
	env := newTestEnv(t, start)
	ctx := context.Background()

	if err := env.engine.Start(ctx, "u1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.clock.Advance(5 * time.Minute)

	if err := env.engine.Start(ctx, "u1"); !errors.Is(err, engine.ErrAlreadyInSession) {
		t.Fatalf("second start: got %v", err)
	}

	live, err := env.engine.GetLiveElapsed(ctx, "u1")
	if err != nil {
		t.Fatalf("live elapsed: %v", err)
	}
	if live != 300 {
		t.Errorf("live elapsed after failed start = %d, want 300", live)
	}
}

func TestShortSessionDiscardedUncredited(t *testing.T) {
	start := tehranTime(t, 2026, time.August, 28, 8, 0, 0)
	env := newTestEnv(t, start)
	ctx := context.Background()

	if err := env.engine.Start(ctx, "u1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.clock.Advance(45 * time.Second)

	res, err := env.engine.End(ctx, "u1")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if res.ElapsedSeconds != 45 {
		t.Errorf("elapsed = %d, want 45", res.ElapsedSeconds)
	}
	if res.Credited {
		t.Error("sub-minute session must not be credited")
	}

	allTime, _ := env.stats.TotalForUser(ctx, "u1")
	if allTime != 0 {
		t.Errorf("all-time total = %d, want 0", allTime)
	}

	s, _ := env.sessions.Get(ctx, "u1")
	if s.State != models.StateIdle {
		t.Errorf("state after end = %s, want idle", s.State)
	}
}

func TestConcurrentStartExactlyOneWins(t *testing.T) {
	start := tehranTime(t, 2026, time.August, 28, 8, 0, 0)
	env := newTestEnv(t, start)
	ctx := context.Background()

	const workers = 16
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.engine.Start(ctx, "u1")
		}(i)
	}
	wg.Wait()

	var ok, conflict int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, engine.ErrAlreadyInSession):
			conflict++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("successful starts = %d, want exactly 1", ok)
	}
	if conflict != workers-1 {
		t.Errorf("conflicts = %d, want %d", conflict, workers-1)
	}
}

func TestMidnightSplitOnEnd(t *testing.T) {
	start := tehranTime(t, 2026, time.August, 28, 23, 58, 0)
	env := newTestEnv(t, start)
	ctx := context.Background()

	if err := env.engine.Start(ctx, "u1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.clock.Set(tehranTime(t, 2026, time.August, 29, 0, 5, 0))

	res, err := env.engine.End(ctx, "u1")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	// The boundary split already credited the first 120s; End reports
	// only the remainder after the last boundary.
	if res.ElapsedSeconds != 300 {
		t.Errorf("remainder elapsed = %d, want 300", res.ElapsedSeconds)
	}

	if got := dailyTotal(t, env, "2026-08-28", "u1"); got != 120 {
		t.Errorf("prior day total = %d, want 120", got)
	}
	if got := dailyTotal(t, env, "2026-08-29", "u1"); got != 300 {
		t.Errorf("new day total = %d, want 300", got)
	}
	allTime, _ := env.stats.TotalForUser(ctx, "u1")
	if allTime != 420 {
		t.Errorf("all-time total = %d, want 420", allTime)
	}
}

func TestSweepSplitsMultipleMidnights(t *testing.T) {
	start := tehranTime(t, 2026, time.August, 26, 23, 0, 0)
	env := newTestEnv(t, start)
	ctx := context.Background()

	if err := env.engine.Start(ctx, "u1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.clock.Set(tehranTime(t, 2026, time.August, 29, 1, 0, 0))

	if err := env.engine.SweepUser(ctx, "u1"); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if got := dailyTotal(t, env, "2026-08-26", "u1"); got != 3600 {
		t.Errorf("2026-08-26 total = %d, want 3600", got)
	}
	if got := dailyTotal(t, env, "2026-08-27", "u1"); got != 86400 {
		t.Errorf("2026-08-27 total = %d, want 86400", got)
	}
	if got := dailyTotal(t, env, "2026-08-28", "u1"); got != 86400 {
		t.Errorf("2026-08-28 total = %d, want 86400", got)
	}

	// Remainder is still live, restarted at the last midnight.
	s, err := env.sessions.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if s.State != models.StateActive {
		t.Errorf("state after sweep = %s, want active", s.State)
	}
	want := tehranTime(t, 2026, time.August, 29, 0, 0, 0)
	if !s.StartedAt.Equal(want) {
		t.Errorf("restarted at %v, want %v", s.StartedAt, want)
	}
	live, _ := env.engine.GetLiveElapsed(ctx, "u1")
	if live != 3600 {
		t.Errorf("live elapsed = %d, want 3600", live)
	}
}

func TestPausedSessionSurvivesMidnightPaused(t *testing.T) {
	start := tehranTime(t, 2026, time.August, 28, 23, 0, 0)
	env := newTestEnv(t, start)
	ctx := context.Background()

	if err := env.engine.Start(ctx, "u1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.clock.Advance(30 * time.Minute)
	if err := env.engine.Pause(ctx, "u1"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	env.clock.Set(tehranTime(t, 2026, time.August, 29, 0, 10, 0))
	if err := env.engine.SweepUser(ctx, "u1"); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if got := dailyTotal(t, env, "2026-08-28", "u1"); got != 1800 {
		t.Errorf("prior day total = %d, want 1800", got)
	}

	s, err := env.sessions.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if s.State != models.StatePaused {
		t.Fatalf("state after sweep = %s, want paused", s.State)
	}
	midnight := tehranTime(t, 2026, time.August, 29, 0, 0, 0)
	if s.PausedAt == nil || !s.PausedAt.Equal(midnight) {
		t.Errorf("paused at %v, want %v", s.PausedAt, midnight)
	}

	// Resuming folds the post-midnight pause into the restarted session.
	if err := env.engine.Resume(ctx, "u1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	env.clock.Advance(10 * time.Minute)

	res, err := env.engine.End(ctx, "u1")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if res.ElapsedSeconds != 600 {
		t.Errorf("remainder elapsed = %d, want 600", res.ElapsedSeconds)
	}
	if got := dailyTotal(t, env, "2026-08-29", "u1"); got != 600 {
		t.Errorf("new day total = %d, want 600", got)
	}
}

func TestSweepIgnoresShortPreBoundaryPortion(t *testing.T) {
	start := tehranTime(t, 2026, time.August, 28, 23, 59, 30)
	env := newTestEnv(t, start)
	ctx := context.Background()

	if err := env.engine.Start(ctx, "u1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.clock.Set(tehranTime(t, 2026, time.August, 29, 0, 30, 0))

	if err := env.engine.SweepUser(ctx, "u1"); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// 30s before midnight is below the credit threshold and dropped.
	if got := dailyTotal(t, env, "2026-08-28", "u1"); got != 0 {
		t.Errorf("prior day total = %d, want 0", got)
	}
	live, _ := env.engine.GetLiveElapsed(ctx, "u1")
	if live != 1800 {
		t.Errorf("live elapsed = %d, want 1800", live)
	}
}

func TestClockRollbackClampsElapsed(t *testing.T) {
	start := tehranTime(t, 2026, time.August, 28, 8, 0, 0)
	env := newTestEnv(t, start)
	ctx := context.Background()

	if err := env.engine.Start(ctx, "u1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Clock jumps behind the session start. Elapsed clamps to zero
	// instead of going negative.
	env.clock.Set(start.Add(-5 * time.Minute))

	live, err := env.engine.GetLiveElapsed(ctx, "u1")
	if err != nil {
		t.Fatalf("live elapsed: %v", err)
	}
	if live != 0 {
		t.Errorf("live elapsed = %d, want 0", live)
	}

	res, err := env.engine.End(ctx, "u1")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if res.ElapsedSeconds != 0 {
		t.Errorf("elapsed = %d, want 0", res.ElapsedSeconds)
	}
	if res.Credited {
		t.Error("clamped session must not be credited")
	}

	s, _ := env.sessions.Get(ctx, "u1")
	if s.State != models.StateIdle {
		t.Errorf("state after end = %s, want idle", s.State)
	}
}

func TestClockRollbackClampsPauseInterval(t *testing.T) {
	start := tehranTime(t, 2026, time.August, 28, 8, 0, 0)
	env := newTestEnv(t, start)
	ctx := context.Background()

	if err := env.engine.Start(ctx, "u1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.clock.Advance(10 * time.Minute)
	if err := env.engine.Pause(ctx, "u1"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// Resume with the clock behind the pause timestamp: the negative
	// pause interval counts as zero, nothing fails.
	env.clock.Set(start.Add(5 * time.Minute))
	if err := env.engine.Resume(ctx, "u1"); err != nil {
		t.Fatalf("resume: %v", err)
	}

	env.clock.Set(start.Add(15 * time.Minute))
	res, err := env.engine.End(ctx, "u1")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if res.ElapsedSeconds != 900 {
		t.Errorf("elapsed = %d, want 900 (no pause deducted)", res.ElapsedSeconds)
	}
	if !res.Credited {
		t.Error("expected session to be credited")
	}
}

func TestCommitReplayIsNoOp(t *testing.T) {
	start := tehranTime(t, 2026, time.August, 28, 8, 0, 0)
	env := newTestEnv(t, start)
	ctx := context.Background()

	c := engine.Commit{
		Key:     "u1:100:end",
		UserID:  "u1",
		Name:    "Sara",
		Keys:    env.cal.Keys(start),
		Seconds: 600,
	}

	applied, err := env.stats.CommitElapsed(ctx, c)
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if !applied {
		t.Fatal("first commit not applied")
	}

	applied, err = env.stats.CommitElapsed(ctx, c)
	if err != nil {
		t.Fatalf("replayed commit: %v", err)
	}
	if applied {
		t.Error("replayed commit must not apply")
	}

	allTime, _ := env.stats.TotalForUser(ctx, "u1")
	if allTime != 600 {
		t.Errorf("all-time total = %d, want 600 (single credit)", allTime)
	}
}

func TestSessionStoreVersionConflict(t *testing.T) {
	start := tehranTime(t, 2026, time.August, 28, 8, 0, 0)
	env := newTestEnv(t, start)
	ctx := context.Background()

	a, err := env.sessions.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, err := env.sessions.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	a.State = models.StateActive
	a.StartedAt = env.clock.Now()
	if err := env.sessions.Save(ctx, a); err != nil {
		t.Fatalf("first save: %v", err)
	}

	b.State = models.StateActive
	b.StartedAt = env.clock.Now()
	if err := env.sessions.Save(ctx, b); !errors.Is(err, engine.ErrVersionConflict) {
		t.Errorf("stale save: got %v, want ErrVersionConflict", err)
	}
}

func TestSweepAllPagesAllUsers(t *testing.T) {
	start := tehranTime(t, 2026, time.August, 28, 22, 0, 0)
	env := newTestEnv(t, start)
	ctx := context.Background()

	userIDs := []string{"u1", "u2", "u3", "u4", "u5"}
	for _, id := range userIDs {
		if err := env.users.Upsert(ctx, id, "user "+id); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
		if err := env.engine.Start(ctx, id); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
	}

	env.clock.Set(tehranTime(t, 2026, time.August, 29, 0, 30, 0))

	sweeper := engine.NewSweeper(env.engine, time.Minute, 2)
	sweeper.SweepAll(ctx)

	for _, id := range userIDs {
		if got := dailyTotal(t, env, "2026-08-28", id); got != 7200 {
			t.Errorf("user %s prior day total = %d, want 7200", id, got)
		}
		s, _ := env.sessions.Get(ctx, id)
		if s.State != models.StateActive {
			t.Errorf("user %s state = %s, want active", id, s.State)
		}
	}
}
