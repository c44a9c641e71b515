package models

import "time"

type SessionState string

const (
	StateIdle   SessionState = "idle"
	StateActive SessionState = "active"
	StatePaused SessionState = "paused"
)

// Session is the single in-flight study session a user may hold.
// An Idle session carries no meaningful timestamps; exactly one of
// Active/Paused is live per user at any time.
type Session struct {
	UserID        string       `json:"user_id"`
	State         SessionState `json:"state"`
	StartedAt     time.Time    `json:"started_at"`
	PausedAt      *time.Time   `json:"paused_at"`
	PausedSeconds int64        `json:"paused_seconds"`

	// Version is the compare-and-swap field the session store checks on
	// every write. Two writers racing on the same user see exactly one
	// winner.
	Version int64 `json:"-"`
}

// InFlight reports whether the session is Active or Paused.
func (s *Session) InFlight() bool {
	return s.State == StateActive || s.State == StatePaused
}

// Elapsed returns the active study seconds accumulated up to `at`:
// wall-clock span minus all completed pause intervals. For a paused
// session the span ends at the pause timestamp. The second return is
// true when clock skew produced a negative value and it was clamped
// to zero; callers log that as an anomaly.
func (s *Session) Elapsed(at time.Time) (int64, bool) {
	var span time.Duration
	switch s.State {
	case StateActive:
		span = at.Sub(s.StartedAt)
	case StatePaused:
		if s.PausedAt == nil {
			return 0, false
		}
		span = s.PausedAt.Sub(s.StartedAt)
	default:
		return 0, false
	}

	seconds := int64(span.Seconds()) - s.PausedSeconds
	if seconds < 0 {
		return 0, true
	}
	return seconds, false
}

// Reset returns the session to Idle, clearing all timestamps.
func (s *Session) Reset() {
	s.State = StateIdle
	s.StartedAt = time.Time{}
	s.PausedAt = nil
	s.PausedSeconds = 0
}
