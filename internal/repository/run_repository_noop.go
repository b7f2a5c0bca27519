package repository

import (
	"context"
	"time"

	"github.com/spec-kit/mythicmate/internal/domain"
)

// NoopRunRepository discards runs; installed when STATS_DRIVER=none.
type NoopRunRepository struct{}

func (NoopRunRepository) SaveRun(context.Context, *domain.CompletedRun) error { return nil }

func (NoopRunRepository) UserStats(_ context.Context, serverID string, userID domain.Identity) (domain.UserStats, error) {
	return domain.UserStats{ServerID: serverID, UserID: userID}, nil
}

func (NoopRunRepository) Leaderboard(context.Context, string, domain.LeaderboardCategory, *time.Time, int) ([]domain.LeaderboardEntry, error) {
	return nil, nil
}

func (NoopRunRepository) ListRuns(context.Context, string) ([]domain.CompletedRun, error) {
	return nil, nil
}
