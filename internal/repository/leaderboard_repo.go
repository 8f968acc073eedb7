package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"focusflow-backend/internal/models"
)

type LeaderboardRepo struct {
	pool *pgxpool.Pool
}

func NewLeaderboardRepo(pool *pgxpool.Pool) *LeaderboardRepo {
	return &LeaderboardRepo{pool: pool}
}

// Aggregate groups completed sessions created at or after the period start by
// user, top 100 by summed net points. memberIDs narrows the result to a clan's
// member set when non-nil. Ranks are assigned by the caller.
func (r *LeaderboardRepo) Aggregate(ctx context.Context, periodStart time.Time, memberIDs []uuid.UUID) ([]models.LeaderboardEntry, error) {
	query := `
		SELECT s.user_id, u.username, u.avatar_url, c.name,
			COALESCE(SUM(s.net_points), 0)::int,
			COUNT(*)::int,
			COALESCE(SUM(s.duration_seconds), 0)::int
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		LEFT JOIN clans c ON c.id = u.clan_id
		WHERE s.status = 'completed' AND s.created_at >= $1
	`
	args := []interface{}{periodStart}
	if memberIDs != nil {
		query += " AND s.user_id = ANY($2)"
		args = append(args, memberIDs)
	}
	query += `
		GROUP BY s.user_id, u.username, u.avatar_url, c.name
		ORDER BY COALESCE(SUM(s.net_points), 0) DESC
		LIMIT 100
	`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.Avatar, &e.ClanName, &e.Points, &e.Sessions, &e.StudyTime); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertSnapshot stores or replaces the durable snapshot for its
// (scope, period, clan) key.
func (r *LeaderboardRepo) UpsertSnapshot(ctx context.Context, lb *models.Leaderboard) error {
	entries, err := json.Marshal(lb.Entries)
	if err != nil {
		return fmt.Errorf("failed to encode leaderboard entries: %w", err)
	}

	query := `
		INSERT INTO leaderboard_snapshots (scope, period_start, clan_id, entries, generated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (scope, period_start, COALESCE(clan_id, '00000000-0000-0000-0000-000000000000'::uuid))
		DO UPDATE SET entries = EXCLUDED.entries,
			generated_at = EXCLUDED.generated_at,
			expires_at = EXCLUDED.expires_at
	`

	_, err = r.pool.Exec(ctx, query,
		lb.Scope, lb.PeriodStart, lb.ClanID, entries, lb.GeneratedAt, lb.ExpiresAt)
	return err
}

func (r *LeaderboardRepo) GetSnapshot(ctx context.Context, scope string, periodStart time.Time, clanID *uuid.UUID) (*models.Leaderboard, error) {
	query := `
		SELECT scope, period_start, clan_id, entries, generated_at, expires_at
		FROM leaderboard_snapshots
		WHERE scope = $1 AND period_start = $2
		  AND COALESCE(clan_id, '00000000-0000-0000-0000-000000000000'::uuid) =
		      COALESCE($3, '00000000-0000-0000-0000-000000000000'::uuid)
	`

	lb := &models.Leaderboard{}
	var entries []byte
	err := r.pool.QueryRow(ctx, query, scope, periodStart, clanID).Scan(
		&lb.Scope, &lb.PeriodStart, &lb.ClanID, &entries, &lb.GeneratedAt, &lb.ExpiresAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(entries, &lb.Entries); err != nil {
		return nil, fmt.Errorf("failed to decode leaderboard entries: %w", err)
	}
	return lb, nil
}

// PruneExpired deletes snapshots past their expiry. Called opportunistically
// by the background worker; reads never depend on it.
func (r *LeaderboardRepo) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		"DELETE FROM leaderboard_snapshots WHERE expires_at < $1", now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
