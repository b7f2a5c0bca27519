package dto

import "github.com/spec-kit/mythicmate/internal/domain"

// UserStatsResponse summarizes a user's runs.
type UserStatsResponse struct {
	ServerID        string           `json:"server_id"`
	UserID          string           `json:"user_id"`
	TotalRuns       int64            `json:"total_runs"`
	RunsByRole      map[string]int64 `json:"runs_by_role"`
	AverageKeyLevel float64          `json:"average_key_level"`
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Value  int64  `json:"value"`
}

// LeaderboardResponse lists the top users.
type LeaderboardResponse struct {
	ServerID  string             `json:"server_id"`
	Category  string             `json:"category"`
	Timeframe string             `json:"timeframe"`
	Entries   []LeaderboardEntry `json:"entries"`
}

// NewUserStatsResponse converts stats.
func NewUserStatsResponse(stats domain.UserStats) UserStatsResponse {
	byRole := make(map[string]int64, len(stats.Roles))
	for _, rc := range stats.Roles {
		byRole[string(rc.Role)] = rc.Count
	}
	return UserStatsResponse{
		ServerID:        stats.ServerID,
		UserID:          string(stats.UserID),
		TotalRuns:       stats.TotalRuns,
		RunsByRole:      byRole,
		AverageKeyLevel: stats.AverageKeyLevel,
	}
}

// NewLeaderboardResponse ranks entries in order.
func NewLeaderboardResponse(serverID string, category domain.LeaderboardCategory, timeframe domain.Timeframe, entries []domain.LeaderboardEntry) LeaderboardResponse {
	items := make([]LeaderboardEntry, 0, len(entries))
	for i, e := range entries {
		items = append(items, LeaderboardEntry{Rank: i + 1, UserID: string(e.UserID), Value: e.Value})
	}
	return LeaderboardResponse{
		ServerID:  serverID,
		Category:  string(category),
		Timeframe: string(timeframe),
		Entries:   items,
	}
}
