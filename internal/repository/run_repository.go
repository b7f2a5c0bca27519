package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/mythicmate/internal/domain"
)

// RunRepository persists completed runs and answers statistics queries.
type RunRepository interface {
	SaveRun(ctx context.Context, run *domain.CompletedRun) error
	UserStats(ctx context.Context, serverID string, userID domain.Identity) (domain.UserStats, error)
	Leaderboard(ctx context.Context, serverID string, category domain.LeaderboardCategory, since *time.Time, limit int) ([]domain.LeaderboardEntry, error)
	ListRuns(ctx context.Context, serverID string) ([]domain.CompletedRun, error)
}

type runRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository instantiates the Postgres repository.
func NewRunRepository(pool *pgxpool.Pool) RunRepository {
	return &runRepository{pool: pool}
}

func (r *runRepository) SaveRun(ctx context.Context, run *domain.CompletedRun) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const upsertServer = `
        INSERT INTO servers (server_id, server_name)
        VALUES ($1, $2)
        ON CONFLICT (server_id) DO UPDATE SET server_name = EXCLUDED.server_name, updated_at = NOW()`
	if _, err := tx.Exec(ctx, upsertServer, run.ServerID, run.ServerName); err != nil {
		return err
	}

	const insertRun = `
        INSERT INTO runs (server_id, dungeon_name, difficulty, key_level, completion_time)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING run_id`
	if err := tx.QueryRow(ctx, insertRun,
		run.ServerID,
		run.Activity,
		run.Difficulty,
		run.KeyLevel,
		run.CompletedAt,
	).Scan(&run.ID); err != nil {
		return err
	}

	const insertParticipant = `
        INSERT INTO participants (run_id, server_id, user_id, role)
        VALUES ($1,$2,$3,$4)`
	batch := &pgx.Batch{}
	for _, p := range run.Participants {
		batch.Queue(insertParticipant, run.ID, run.ServerID, string(p.UserID), string(p.Role))
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *runRepository) UserStats(ctx context.Context, serverID string, userID domain.Identity) (domain.UserStats, error) {
	stats := domain.UserStats{ServerID: serverID, UserID: userID}

	const byRole = `
        SELECT role, COUNT(*)
        FROM participants
        WHERE user_id=$1 AND server_id=$2
        GROUP BY role
        ORDER BY role`
	rows, err := r.pool.Query(ctx, byRole, string(userID), serverID)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var rc domain.RoleCount
		var role string
		if err := rows.Scan(&role, &rc.Count); err != nil {
			return stats, err
		}
		rc.Role = domain.Role(role)
		stats.Roles = append(stats.Roles, rc)
		stats.TotalRuns += rc.Count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	const avgKey = `
        SELECT COALESCE(AVG(r.key_level), 0)::float8
        FROM runs r
        JOIN participants p ON r.run_id = p.run_id
        WHERE p.user_id=$1 AND p.server_id=$2`
	if err := r.pool.QueryRow(ctx, avgKey, string(userID), serverID).Scan(&stats.AverageKeyLevel); err != nil {
		return stats, err
	}
	return stats, nil
}

func (r *runRepository) Leaderboard(ctx context.Context, serverID string, category domain.LeaderboardCategory, since *time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	query := `
        SELECT p.user_id, ` + leaderboardExpr(category) + ` AS value
        FROM participants p
        JOIN runs r ON p.run_id = r.run_id
        WHERE p.server_id=$1 AND ($2::timestamptz IS NULL OR r.completion_time >= $2)
        GROUP BY p.user_id
        ORDER BY value DESC, p.user_id ASC
        LIMIT $3`
	rows, err := r.pool.Query(ctx, query, serverID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var entry domain.LeaderboardEntry
		var userID string
		if err := rows.Scan(&userID, &entry.Value); err != nil {
			return nil, err
		}
		entry.UserID = domain.Identity(userID)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *runRepository) ListRuns(ctx context.Context, serverID string) ([]domain.CompletedRun, error) {
	const query = `
        SELECT r.run_id, r.server_id, COALESCE(s.server_name, ''), r.dungeon_name, r.difficulty,
               r.key_level, r.completion_time, p.user_id, p.role
        FROM runs r
        LEFT JOIN servers s ON s.server_id = r.server_id
        LEFT JOIN participants p ON p.run_id = r.run_id
        WHERE r.server_id=$1
        ORDER BY r.completion_time DESC, r.run_id DESC, p.role, p.user_id`
	rows, err := r.pool.Query(ctx, query, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.CompletedRun
	index := map[int64]int{}
	for rows.Next() {
		var run domain.CompletedRun
		var userID, role *string
		if err := rows.Scan(
			&run.ID,
			&run.ServerID,
			&run.ServerName,
			&run.Activity,
			&run.Difficulty,
			&run.KeyLevel,
			&run.CompletedAt,
			&userID,
			&role,
		); err != nil {
			return nil, err
		}
		i, seen := index[run.ID]
		if !seen {
			runs = append(runs, run)
			i = len(runs) - 1
			index[run.ID] = i
		}
		if userID != nil && role != nil {
			runs[i].Participants = append(runs[i].Participants, domain.Participant{
				UserID: domain.Identity(*userID),
				Role:   domain.Role(*role),
			})
		}
	}
	return runs, rows.Err()
}

func leaderboardExpr(category domain.LeaderboardCategory) string {
	if category == domain.LeaderboardKeys {
		return "MAX(r.key_level)::bigint"
	}
	return "COUNT(*)"
}
