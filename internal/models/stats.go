package models

type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"

	// GranularityTotal is the all-time running counter; its only bucket
	// key is TotalBucketKey. Kept alongside the period rollups so the
	// all-time figure is an O(1) read instead of a sum over months.
	GranularityTotal Granularity = "total"
)

const TotalBucketKey = "all"

func (g Granularity) Valid() bool {
	switch g {
	case GranularityDaily, GranularityWeekly, GranularityMonthly, GranularityTotal:
		return true
	}
	return false
}

// LeaderboardEntry is one ranked row of a leaderboard: accumulated
// seconds for a user within a single bucket, with the display name
// denormalized at write time so ranked reads need no join.
type LeaderboardEntry struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	TotalSeconds int64  `json:"total_seconds"`
}

type PersonalStats struct {
	Daily   int64 `json:"daily"`
	Weekly  int64 `json:"weekly"`
	Monthly int64 `json:"monthly"`
	AllTime int64 `json:"all_time"`

	// State and LiveSeconds describe the open session, if any, already
	// reflected in the period figures above.
	State       SessionState `json:"state"`
	LiveSeconds int64        `json:"live_seconds"`
}

type EndResult struct {
	ElapsedSeconds int64 `json:"elapsed_seconds"`
	Credited       bool  `json:"credited"`
}
