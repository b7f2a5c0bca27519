package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/mythicmate/internal/domain"
	"github.com/spec-kit/mythicmate/internal/events"
	"github.com/spec-kit/mythicmate/internal/repository"
	apperrors "github.com/spec-kit/mythicmate/pkg/util/errorutil"
)

const leaderboardSize = 10

// StatsConfig tunes statistics.
type StatsConfig struct {
	CacheTTL      time.Duration
	RecordTimeout time.Duration
}

// StatsDependencies bundles collaborators.
type StatsDependencies struct {
	Runs       repository.RunRepository
	Cache      repository.LeaderboardCache
	Dispatcher events.Dispatcher
	Clock      Clock
	Logger     *zap.Logger
}

// StatsService records completed runs and serves per-user and per-server
// statistics.
type StatsService struct {
	cfg        StatsConfig
	runs       repository.RunRepository
	cache      repository.LeaderboardCache
	dispatcher events.Dispatcher
	clock      Clock
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewStatsService creates the service.
func NewStatsService(cfg StatsConfig, deps StatsDependencies) *StatsService {
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 10 * time.Second
	}
	if deps.Runs == nil {
		deps.Runs = repository.NoopRunRepository{}
	}
	if deps.Cache == nil {
		deps.Cache = repository.NewRedisLeaderboardCache(nil)
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &StatsService{
		cfg:        cfg,
		runs:       deps.Runs,
		cache:      deps.Cache,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
}

// RegisterHandlers subscribes to group closures.
func (s *StatsService) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(events.EventGroupClosed, s.handleGroupClosed)
}

// handleGroupClosed persists acknowledged runs in the background so the
// closing transition never waits on storage.
func (s *StatsService) handleGroupClosed(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.GroupClosedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if payload.Reason != events.CloseReasonAcknowledged {
		return nil
	}

	run := CompletedRunFromSnapshot(payload.Snapshot, event.Timestamp)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RecordTimeout)
		defer cancel()
		if err := s.RecordCompletedRun(ctx, &run); err != nil {
			s.logger.Error("record completed run failed",
				zap.String("group_id", event.GroupID),
				zap.String("server_id", run.ServerID),
				zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until pending background recordings finished.
func (s *StatsService) Wait() {
	s.wg.Wait()
}

// CompletedRunFromSnapshot builds the statistics record for a finished group.
func CompletedRunFromSnapshot(snap domain.Snapshot, completedAt time.Time) domain.CompletedRun {
	run := domain.CompletedRun{
		ServerID:    snap.ServerID,
		ServerName:  snap.ServerName,
		Activity:    snap.Activity,
		Difficulty:  snap.Difficulty,
		KeyLevel:    domain.ParseKeyLevel(snap.Difficulty),
		CompletedAt: completedAt.UTC(),
	}
	for _, member := range snap.Members() {
		run.Participants = append(run.Participants, domain.Participant{UserID: member.Identity, Role: member.Role})
	}
	return run
}

// RecordCompletedRun stores run and drops the server's cached leaderboards.
func (s *StatsService) RecordCompletedRun(ctx context.Context, run *domain.CompletedRun) error {
	if err := s.runs.SaveRun(ctx, run); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, run.ServerID); err != nil {
		s.logger.Warn("invalidate leaderboard cache", zap.String("server_id", run.ServerID), zap.Error(err))
	}
	s.logger.Info("recorded completed run",
		zap.Int64("run_id", run.ID),
		zap.String("server_id", run.ServerID),
		zap.String("activity", run.Activity),
		zap.Int("participants", len(run.Participants)))
	return nil
}

// UserStats summarizes a user's runs on a server.
func (s *StatsService) UserStats(ctx context.Context, serverID string, userID domain.Identity) (domain.UserStats, error) {
	if serverID == "" || userID == "" {
		return domain.UserStats{}, apperrors.NewValidationError("server and user are required", nil)
	}
	stats, err := s.runs.UserStats(ctx, serverID, userID)
	if err != nil {
		return domain.UserStats{}, apperrors.MapError(err)
	}
	return stats, nil
}

// ParseLeaderboardQuery validates category and timeframe. Empty values default
// to runs over all time.
func ParseLeaderboardQuery(category, timeframe string) (domain.LeaderboardCategory, domain.Timeframe, error) {
	c := domain.LeaderboardCategory(strings.ToLower(strings.TrimSpace(category)))
	if c == "" {
		c = domain.LeaderboardRuns
	}
	if c != domain.LeaderboardRuns && c != domain.LeaderboardKeys {
		return "", "", apperrors.NewValidationError("category must be 'runs' or 'keys'", map[string]any{"category": category})
	}
	t := domain.Timeframe(strings.ToLower(strings.TrimSpace(timeframe)))
	if t == "" {
		t = domain.TimeframeAll
	}
	switch t {
	case domain.TimeframeWeek, domain.TimeframeMonth, domain.TimeframeAll:
	default:
		return "", "", apperrors.NewValidationError("timeframe must be 'week', 'month' or 'all'", map[string]any{"timeframe": timeframe})
	}
	return c, t, nil
}

// Leaderboard returns the top users of a server. Cache failures fall back to
// the repository.
func (s *StatsService) Leaderboard(ctx context.Context, serverID string, category domain.LeaderboardCategory, timeframe domain.Timeframe) ([]domain.LeaderboardEntry, error) {
	if serverID == "" {
		return nil, apperrors.NewValidationError("server is required", nil)
	}

	if entries, hit, err := s.cache.Get(ctx, serverID, category, timeframe); err != nil {
		s.logger.Warn("leaderboard cache read", zap.String("server_id", serverID), zap.Error(err))
	} else if hit {
		return entries, nil
	}

	entries, err := s.runs.Leaderboard(ctx, serverID, category, timeframe.Since(s.clock.Now()), leaderboardSize)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.cache.Set(ctx, serverID, category, timeframe, entries, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("leaderboard cache write", zap.String("server_id", serverID), zap.Error(err))
	}
	return entries, nil
}

var exportColumns = []string{"Run ID", "Completed At", "Dungeon", "Difficulty", "Key Level", "Tank", "Healer", "DPS"}

// ExportRuns renders a server's run history as an xlsx workbook.
func (s *StatsService) ExportRuns(ctx context.Context, serverID string) ([]byte, error) {
	if serverID == "" {
		return nil, apperrors.NewValidationError("server is required", nil)
	}
	runs, err := s.runs.ListRuns(ctx, serverID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Runs"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	for i, col := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, col)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for rowIdx, run := range runs {
		byRole := map[domain.Role][]string{}
		for _, p := range run.Participants {
			byRole[p.Role] = append(byRole[p.Role], string(p.UserID))
		}
		values := []any{
			run.ID,
			run.CompletedAt.UTC().Format("2006-01-02 15:04:05"),
			run.Activity,
			run.Difficulty,
			run.KeyLevel,
			strings.Join(byRole[domain.RoleTank], ", "),
			strings.Join(byRole[domain.RoleHealer], ", "),
			strings.Join(byRole[domain.RoleDPS], ", "),
		}
		for colIdx, v := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, v)
		}
	}

	for i := range exportColumns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, col, col, 18)
	}

	buffer, err := f.WriteToBuffer()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return buffer.Bytes(), nil
}
