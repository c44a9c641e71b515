package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/TIROK547/telegram-study-bot/internal/engine"
	"github.com/TIROK547/telegram-study-bot/internal/models"
)

// In-memory store implementations with the same semantics as the
// Postgres ones. The engine only cares about the store contracts, so
// these back the test suites and small single-process deployments.

type MemSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func NewMemSessionStore() *MemSessionStore {
	return &MemSessionStore{sessions: make(map[string]*models.Session)}
}

func (m *MemSessionStore) Get(ctx context.Context, userID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return &models.Session{UserID: userID, State: models.StateIdle}, nil
	}
	copied := *s
	return &copied, nil
}

func (m *MemSessionStore) Save(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sessions[s.UserID]
	if !ok {
		if s.Version != 0 {
			return engine.ErrVersionConflict
		}
	} else if current.Version != s.Version {
		return engine.ErrVersionConflict
	}

	s.Version++
	copied := *s
	m.sessions[s.UserID] = &copied
	return nil
}

func (m *MemSessionStore) ListInFlight(ctx context.Context, afterUserID string, limit int) ([]*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, s := range m.sessions {
		if s.InFlight() && id > afterUserID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	sessions := make([]*models.Session, 0, len(ids))
	for _, id := range ids {
		copied := *m.sessions[id]
		sessions = append(sessions, &copied)
	}
	return sessions, nil
}

type memAggregateKey struct {
	granularity models.Granularity
	bucketKey   string
	userID      string
}

type MemStatsStore struct {
	mu      sync.Mutex
	totals  map[memAggregateKey]int64
	names   map[string]string
	commits map[string]struct{}
}

func NewMemStatsStore() *MemStatsStore {
	return &MemStatsStore{
		totals:  make(map[memAggregateKey]int64),
		names:   make(map[string]string),
		commits: make(map[string]struct{}),
	}
}

func (m *MemStatsStore) CommitElapsed(ctx context.Context, c engine.Commit) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.commits[c.Key]; seen {
		return false, nil
	}
	m.commits[c.Key] = struct{}{}

	m.totals[memAggregateKey{models.GranularityDaily, c.Keys.Day, c.UserID}] += c.Seconds
	m.totals[memAggregateKey{models.GranularityWeekly, c.Keys.Week, c.UserID}] += c.Seconds
	m.totals[memAggregateKey{models.GranularityMonthly, c.Keys.Month, c.UserID}] += c.Seconds
	m.totals[memAggregateKey{models.GranularityTotal, models.TotalBucketKey, c.UserID}] += c.Seconds
	m.names[c.UserID] = c.Name
	return true, nil
}

func (m *MemStatsStore) TopN(ctx context.Context, g models.Granularity, bucketKey string, n int) ([]models.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []models.LeaderboardEntry
	for key, total := range m.totals {
		if key.granularity != g || key.bucketKey != bucketKey || total <= 0 {
			continue
		}
		entries = append(entries, models.LeaderboardEntry{
			UserID:       key.userID,
			Name:         m.names[key.userID],
			TotalSeconds: total,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalSeconds != entries[j].TotalSeconds {
			return entries[i].TotalSeconds > entries[j].TotalSeconds
		}
		return entries[i].UserID < entries[j].UserID
	})

	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (m *MemStatsStore) Get(ctx context.Context, g models.Granularity, bucketKey, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[memAggregateKey{g, bucketKey, userID}], nil
}

func (m *MemStatsStore) TotalForUser(ctx context.Context, userID string) (int64, error) {
	return m.Get(ctx, models.GranularityTotal, models.TotalBucketKey, userID)
}

type MemUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func NewMemUserStore() *MemUserStore {
	return &MemUserStore{users: make(map[string]*models.User)}
}

func (m *MemUserStore) Upsert(ctx context.Context, userID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[userID]; ok {
		u.Name = name
		return nil
	}
	m.users[userID] = &models.User{ID: userID, Name: name}
	return nil
}

func (m *MemUserStore) GetByID(ctx context.Context, userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *MemUserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if !strings.HasPrefix(username, "@") {
		username = "@" + username
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Name, username) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MemUserStore) List(ctx context.Context) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		copied := *m.users[id]
		users = append(users, &copied)
	}
	return users, nil
}

func (m *MemUserStore) Search(ctx context.Context, query string) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, u := range m.users {
		if strings.Contains(strings.ToLower(u.Name), strings.ToLower(query)) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		copied := *m.users[id]
		users = append(users, &copied)
	}
	return users, nil
}

func (m *MemUserStore) UpdateProfile(ctx context.Context, userID, field string, grade int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Field = field
	u.Grade = grade
	u.ProfileCompleted = true
	return nil
}

// DisplayName implements engine.NameResolver.
func (m *MemUserStore) DisplayName(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	return u.Name, nil
}
