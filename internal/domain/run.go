package domain

import (
	"strconv"
	"strings"
	"time"
)

// CompletedRun is the statistics record written when a group is acknowledged.
type CompletedRun struct {
	ID           int64
	ServerID     string
	ServerName   string
	Activity     string
	Difficulty   string
	KeyLevel     int
	CompletedAt  time.Time
	Participants []Participant
}

// Participant is one primary occupant of a completed run.
type Participant struct {
	UserID Identity
	Role   Role
}

// RoleCount is the number of runs a user completed in a role.
type RoleCount struct {
	Role  Role
	Count int64
}

// UserStats summarizes a user's completed runs on one server.
type UserStats struct {
	ServerID        string
	UserID          Identity
	TotalRuns       int64
	Roles           []RoleCount
	AverageKeyLevel float64
}

// LeaderboardCategory selects how the leaderboard ranks users.
type LeaderboardCategory string

const (
	LeaderboardRuns LeaderboardCategory = "runs"
	LeaderboardKeys LeaderboardCategory = "keys"
)

// Timeframe restricts leaderboard queries.
type Timeframe string

const (
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
	TimeframeAll   Timeframe = "all"
)

// Since returns the lower completion bound for the timeframe, nil for all time.
// Week covers today and the six days before it; month starts on the first.
func (t Timeframe) Since(now time.Time) *time.Time {
	now = now.UTC()
	var since time.Time
	switch t {
	case TimeframeWeek:
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		since = day.AddDate(0, 0, -6)
	case TimeframeMonth:
		since = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return nil
	}
	return &since
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	UserID Identity
	Value  int64
}

// ParseKeyLevel extracts the numeric level from labels like "+10"; non-numeric
// labels yield 0.
func ParseKeyLevel(difficulty string) int {
	trimmed := strings.Trim(strings.TrimSpace(difficulty), "+")
	level, err := strconv.Atoi(trimmed)
	if err != nil || level < 0 {
		return 0
	}
	return level
}
