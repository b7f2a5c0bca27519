package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/spec-kit/mythicmate/internal/domain"
	"github.com/spec-kit/mythicmate/internal/events"
	apperrors "github.com/spec-kit/mythicmate/pkg/util/errorutil"
)

type fakeRunRepository struct {
	mu           sync.Mutex
	saved        []domain.CompletedRun
	leaderboards int
	lastSince    *time.Time
	entries      []domain.LeaderboardEntry
	runs         []domain.CompletedRun
	err          error
}

func (r *fakeRunRepository) SaveRun(_ context.Context, run *domain.CompletedRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	run.ID = int64(len(r.saved) + 1)
	r.saved = append(r.saved, *run)
	return nil
}

func (r *fakeRunRepository) UserStats(_ context.Context, serverID string, userID domain.Identity) (domain.UserStats, error) {
	return domain.UserStats{ServerID: serverID, UserID: userID, TotalRuns: 3}, r.err
}

func (r *fakeRunRepository) Leaderboard(_ context.Context, _ string, _ domain.LeaderboardCategory, since *time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaderboards++
	r.lastSince = since
	if limit < len(r.entries) {
		return r.entries[:limit], r.err
	}
	return r.entries, r.err
}

func (r *fakeRunRepository) ListRuns(_ context.Context, _ string) ([]domain.CompletedRun, error) {
	return r.runs, r.err
}

type fakeLeaderboardCache struct {
	mu          sync.Mutex
	data        map[string][]domain.LeaderboardEntry
	invalidated []string
	failGet     bool
}

func newFakeLeaderboardCache() *fakeLeaderboardCache {
	return &fakeLeaderboardCache{data: map[string][]domain.LeaderboardEntry{}}
}

func (c *fakeLeaderboardCache) key(serverID string, category domain.LeaderboardCategory, timeframe domain.Timeframe) string {
	return serverID + "|" + string(category) + "|" + string(timeframe)
}

func (c *fakeLeaderboardCache) Get(_ context.Context, serverID string, category domain.LeaderboardCategory, timeframe domain.Timeframe) ([]domain.LeaderboardEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, errors.New("cache down")
	}
	entries, ok := c.data[c.key(serverID, category, timeframe)]
	return entries, ok, nil
}

func (c *fakeLeaderboardCache) Set(_ context.Context, serverID string, category domain.LeaderboardCategory, timeframe domain.Timeframe, entries []domain.LeaderboardEntry, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[c.key(serverID, category, timeframe)] = entries
	return nil
}

func (c *fakeLeaderboardCache) Invalidate(_ context.Context, serverID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, serverID)
	for k := range c.data {
		if len(k) > len(serverID) && k[:len(serverID)+1] == serverID+"|" {
			delete(c.data, k)
		}
	}
	return nil
}

func newStatsHarness(t *testing.T) (*StatsService, *fakeRunRepository, *fakeLeaderboardCache, events.Dispatcher) {
	t.Helper()
	repo := &fakeRunRepository{}
	cache := newFakeLeaderboardCache()
	dispatcher := events.NewInMemoryDispatcher(nil)
	svc := NewStatsService(StatsConfig{CacheTTL: time.Minute}, StatsDependencies{
		Runs:       repo,
		Cache:      cache,
		Dispatcher: dispatcher,
		Clock:      newFakeClock(testNow),
	})
	svc.RegisterHandlers()
	return svc, repo, cache, dispatcher
}

func closedEvent(reason string) events.Event {
	return events.Event{
		Type:      events.EventGroupClosed,
		GroupID:   "g1",
		Timestamp: testNow,
		Payload: events.GroupClosedPayload{
			Reason: reason,
			Snapshot: domain.Snapshot{
				ServerID:   "guild-1",
				ServerName: "Guild",
				Activity:   "Halls of Atonement",
				Difficulty: "+15",
				Capacities: domain.DefaultCapacities(),
				Primary: map[domain.Role][]domain.Identity{
					domain.RoleTank:   {"t"},
					domain.RoleHealer: {"h"},
					domain.RoleDPS:    {"d1", "d2", "d3"},
				},
				Backup: map[domain.Role][]domain.Identity{domain.RoleDPS: {"spare"}},
			},
		},
	}
}

func TestStatsRecordsAcknowledgedRuns(t *testing.T) {
	svc, repo, cache, dispatcher := newStatsHarness(t)

	_ = dispatcher.Publish(context.Background(), closedEvent(events.CloseReasonTeardown))
	_ = dispatcher.Publish(context.Background(), closedEvent(events.CloseReasonAcknowledged))
	svc.Wait()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.saved) != 1 {
		t.Fatalf("saved runs = %d, want 1", len(repo.saved))
	}
	run := repo.saved[0]
	if run.KeyLevel != 15 || run.ServerID != "guild-1" || !run.CompletedAt.Equal(testNow) {
		t.Errorf("run = %+v", run)
	}
	if len(run.Participants) != 5 {
		t.Errorf("participants = %+v, want the five primaries", run.Participants)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "guild-1" {
		t.Errorf("invalidated = %v", cache.invalidated)
	}
}

func TestStatsLeaderboardUsesCache(t *testing.T) {
	svc, repo, _, _ := newStatsHarness(t)
	repo.entries = []domain.LeaderboardEntry{{UserID: "a", Value: 4}, {UserID: "b", Value: 2}}

	for i := 0; i < 3; i++ {
		entries, err := svc.Leaderboard(context.Background(), "guild-1", domain.LeaderboardRuns, domain.TimeframeWeek)
		if err != nil {
			t.Fatalf("Leaderboard: %v", err)
		}
		if len(entries) != 2 || entries[0].UserID != "a" {
			t.Fatalf("entries = %+v", entries)
		}
	}
	if repo.leaderboards != 1 {
		t.Errorf("repository queried %d times, want 1", repo.leaderboards)
	}
	if want := time.Date(2024, time.February, 24, 0, 0, 0, 0, time.UTC); repo.lastSince == nil || !repo.lastSince.Equal(want) {
		t.Errorf("since = %v, want %v", repo.lastSince, want)
	}

	run := CompletedRunFromSnapshot(closedEvent(events.CloseReasonAcknowledged).Payload.(events.GroupClosedPayload).Snapshot, testNow)
	if err := svc.RecordCompletedRun(context.Background(), &run); err != nil {
		t.Fatalf("RecordCompletedRun: %v", err)
	}
	if _, err := svc.Leaderboard(context.Background(), "guild-1", domain.LeaderboardRuns, domain.TimeframeWeek); err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if repo.leaderboards != 2 {
		t.Errorf("a recorded run should invalidate the cache; queries = %d", repo.leaderboards)
	}
}

func TestStatsLeaderboardSurvivesCacheFailure(t *testing.T) {
	svc, repo, cache, _ := newStatsHarness(t)
	cache.failGet = true
	repo.entries = []domain.LeaderboardEntry{{UserID: "a", Value: 1}}

	entries, err := svc.Leaderboard(context.Background(), "guild-1", domain.LeaderboardKeys, domain.TimeframeAll)
	if err != nil || len(entries) != 1 {
		t.Fatalf("Leaderboard() = %+v, %v", entries, err)
	}
	if repo.lastSince != nil {
		t.Error("all-time leaderboard must not bound completion time")
	}
}

func TestParseLeaderboardQuery(t *testing.T) {
	tests := []struct {
		category, timeframe string
		wantCategory        domain.LeaderboardCategory
		wantTimeframe       domain.Timeframe
		wantErr             bool
	}{
		{"", "", domain.LeaderboardRuns, domain.TimeframeAll, false},
		{"KEYS", "month", domain.LeaderboardKeys, domain.TimeframeMonth, false},
		{"runs", "week", domain.LeaderboardRuns, domain.TimeframeWeek, false},
		{"dps", "", "", "", true},
		{"runs", "year", "", "", true},
	}
	for _, tt := range tests {
		c, tf, err := ParseLeaderboardQuery(tt.category, tt.timeframe)
		if tt.wantErr {
			var de *apperrors.DomainError
			if !errors.As(err, &de) || de.Code != apperrors.CodeValidation {
				t.Errorf("ParseLeaderboardQuery(%q, %q) error = %v, want validation", tt.category, tt.timeframe, err)
			}
			continue
		}
		if err != nil || c != tt.wantCategory || tf != tt.wantTimeframe {
			t.Errorf("ParseLeaderboardQuery(%q, %q) = %s, %s, %v", tt.category, tt.timeframe, c, tf, err)
		}
	}
}

func TestExportRunsWorkbook(t *testing.T) {
	svc, repo, _, _ := newStatsHarness(t)
	repo.runs = []domain.CompletedRun{{
		ID:          7,
		Activity:    "Priory of the Sacred Flame",
		Difficulty:  "+9",
		KeyLevel:    9,
		CompletedAt: testNow,
		Participants: []domain.Participant{
			{UserID: "t", Role: domain.RoleTank},
			{UserID: "d1", Role: domain.RoleDPS},
			{UserID: "d2", Role: domain.RoleDPS},
		},
	}}

	data, err := svc.ExportRuns(context.Background(), "guild-1")
	if err != nil {
		t.Fatalf("ExportRuns: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Runs")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[0][0] != "Run ID" || rows[1][2] != "Priory of the Sacred Flame" || rows[1][7] != "d1, d2" {
		t.Errorf("rows = %v", rows)
	}
}

func TestUserStatsRequiresIdentity(t *testing.T) {
	svc, _, _, _ := newStatsHarness(t)
	if _, err := svc.UserStats(context.Background(), "guild-1", ""); err == nil {
		t.Error("UserStats without a user should fail")
	}
	stats, err := svc.UserStats(context.Background(), "guild-1", "u1")
	if err != nil || stats.TotalRuns != 3 {
		t.Errorf("UserStats() = %+v, %v", stats, err)
	}
}
