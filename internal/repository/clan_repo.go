package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"focusflow-backend/internal/models"
)

// ClanRepo covers only what the scoring and leaderboard paths need; clan
// administration lives in another service.
type ClanRepo struct {
	pool *pgxpool.Pool
}

func NewClanRepo(pool *pgxpool.Pool) *ClanRepo {
	return &ClanRepo{pool: pool}
}

func (r *ClanRepo) GetByID(ctx context.Context, clanID uuid.UUID) (*models.Clan, error) {
	c := &models.Clan{}
	err := r.pool.QueryRow(ctx,
		"SELECT id, name, total_points, total_sessions, total_study_time FROM clans WHERE id = $1",
		clanID).Scan(&c.ID, &c.Name, &c.TotalPoints, &c.TotalSessions, &c.TotalStudyTime)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ClanRepo) MemberIDs(ctx context.Context, clanID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT user_id FROM clan_members WHERE clan_id = $1", clanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddSessionContribution folds a completed session into the clan totals and
// the member's contribution counter.
func (r *ClanRepo) AddSessionContribution(ctx context.Context, clanID, userID uuid.UUID, netPoints, durationSeconds int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE clans
		SET total_points = total_points + $2,
			total_sessions = total_sessions + 1,
			total_study_time = total_study_time + $3
		WHERE id = $1
	`, clanID, netPoints, durationSeconds)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE clan_members
		SET contribution_points = contribution_points + $3
		WHERE clan_id = $1 AND user_id = $2
	`, clanID, userID, netPoints)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}
