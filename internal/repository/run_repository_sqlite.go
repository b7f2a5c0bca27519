package repository

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/spec-kit/mythicmate/internal/domain"
)

type serverRecord struct {
	ServerID   string `gorm:"primaryKey"`
	ServerName string `gorm:"not null"`
	UpdatedAt  time.Time
}

func (serverRecord) TableName() string { return "servers" }

type runRecord struct {
	RunID          int64  `gorm:"primaryKey;autoIncrement"`
	ServerID       string `gorm:"not null;index:idx_runs_server_completion"`
	DungeonName    string `gorm:"not null"`
	Difficulty     string
	KeyLevel       int
	CompletionTime time.Time           `gorm:"not null;index:idx_runs_server_completion"`
	Participants   []participantRecord `gorm:"foreignKey:RunID;references:RunID"`
}

func (runRecord) TableName() string { return "runs" }

type participantRecord struct {
	RunID    int64  `gorm:"primaryKey"`
	UserID   string `gorm:"primaryKey;index:idx_participants_server_user"`
	ServerID string `gorm:"not null;index:idx_participants_server_user"`
	Role     string `gorm:"not null"`
}

func (participantRecord) TableName() string { return "participants" }

type sqliteRunRepository struct {
	db *gorm.DB
}

// NewSQLiteRunRepository migrates the stats tables and returns a repository
// backed by db.
func NewSQLiteRunRepository(db *gorm.DB) (RunRepository, error) {
	if err := db.AutoMigrate(&serverRecord{}, &runRecord{}, &participantRecord{}); err != nil {
		return nil, err
	}
	return &sqliteRunRepository{db: db}, nil
}

func (r *sqliteRunRepository) SaveRun(ctx context.Context, run *domain.CompletedRun) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		server := serverRecord{ServerID: run.ServerID, ServerName: run.ServerName}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "server_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"server_name", "updated_at"}),
		}).Create(&server).Error; err != nil {
			return err
		}

		record := runRecord{
			ServerID:       run.ServerID,
			DungeonName:    run.Activity,
			Difficulty:     run.Difficulty,
			KeyLevel:       run.KeyLevel,
			CompletionTime: run.CompletedAt.UTC(),
		}
		for _, p := range run.Participants {
			record.Participants = append(record.Participants, participantRecord{
				ServerID: run.ServerID,
				UserID:   string(p.UserID),
				Role:     string(p.Role),
			})
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		run.ID = record.RunID
		return nil
	})
}

func (r *sqliteRunRepository) UserStats(ctx context.Context, serverID string, userID domain.Identity) (domain.UserStats, error) {
	stats := domain.UserStats{ServerID: serverID, UserID: userID}

	var counts []struct {
		Role  string
		Count int64
	}
	if err := r.db.WithContext(ctx).
		Model(&participantRecord{}).
		Select("role, COUNT(*) AS count").
		Where("user_id = ? AND server_id = ?", string(userID), serverID).
		Group("role").
		Order("role").
		Scan(&counts).Error; err != nil {
		return stats, err
	}
	for _, c := range counts {
		stats.Roles = append(stats.Roles, domain.RoleCount{Role: domain.Role(c.Role), Count: c.Count})
		stats.TotalRuns += c.Count
	}

	var avg sql.NullFloat64
	if err := r.db.WithContext(ctx).
		Table("runs r").
		Joins("JOIN participants p ON r.run_id = p.run_id").
		Where("p.user_id = ? AND p.server_id = ?", string(userID), serverID).
		Select("AVG(r.key_level)").
		Row().Scan(&avg); err != nil {
		return stats, err
	}
	if avg.Valid {
		stats.AverageKeyLevel = avg.Float64
	}
	return stats, nil
}

func (r *sqliteRunRepository) Leaderboard(ctx context.Context, serverID string, category domain.LeaderboardCategory, since *time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	expr := "COUNT(*)"
	if category == domain.LeaderboardKeys {
		expr = "MAX(r.key_level)"
	}

	q := r.db.WithContext(ctx).
		Table("participants p").
		Joins("JOIN runs r ON p.run_id = r.run_id").
		Where("p.server_id = ?", serverID)
	if since != nil {
		q = q.Where("r.completion_time >= ?", since.UTC())
	}

	var rows []struct {
		UserID string
		Value  int64
	}
	if err := q.Select("p.user_id AS user_id, " + expr + " AS value").
		Group("p.user_id").
		Order("value DESC, p.user_id ASC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]domain.LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, domain.LeaderboardEntry{UserID: domain.Identity(row.UserID), Value: row.Value})
	}
	return entries, nil
}

func (r *sqliteRunRepository) ListRuns(ctx context.Context, serverID string) ([]domain.CompletedRun, error) {
	var server serverRecord
	err := r.db.WithContext(ctx).Where("server_id = ?", serverID).Limit(1).Find(&server).Error
	if err != nil {
		return nil, err
	}

	var records []runRecord
	if err := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("role, user_id") }).
		Where("server_id = ?", serverID).
		Order("completion_time DESC, run_id DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	runs := make([]domain.CompletedRun, 0, len(records))
	for _, rec := range records {
		run := domain.CompletedRun{
			ID:          rec.RunID,
			ServerID:    rec.ServerID,
			ServerName:  server.ServerName,
			Activity:    rec.DungeonName,
			Difficulty:  rec.Difficulty,
			KeyLevel:    rec.KeyLevel,
			CompletedAt: rec.CompletionTime,
		}
		for _, p := range rec.Participants {
			run.Participants = append(run.Participants, domain.Participant{UserID: domain.Identity(p.UserID), Role: domain.Role(p.Role)})
		}
		runs = append(runs, run)
	}
	return runs, nil
}
