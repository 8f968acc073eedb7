package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"focusflow-backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, username, email, avatar_url, clan_id, is_active, created_at,
			total_points, current_hearts, max_hearts, level, streak,
			last_heart_regen, last_session_date
		FROM users
		WHERE id = $1
	`

	u := &models.User{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&u.ID, &u.Username, &u.Email, &u.AvatarURL, &u.ClanID, &u.IsActive, &u.CreatedAt,
		&u.Gamification.TotalPoints, &u.Gamification.CurrentHearts, &u.Gamification.MaxHearts,
		&u.Gamification.Level, &u.Gamification.Streak,
		&u.Gamification.LastHeartRegen, &u.Gamification.LastSessionDate,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateGamification writes the user's full game state in one statement.
func (r *UserRepo) UpdateGamification(ctx context.Context, userID uuid.UUID, g models.Gamification) error {
	query := `
		UPDATE users
		SET total_points = $2,
			current_hearts = $3,
			level = $4,
			streak = $5,
			last_heart_regen = $6,
			last_session_date = $7
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query,
		userID, g.TotalPoints, g.CurrentHearts, g.Level, g.Streak,
		g.LastHeartRegen, g.LastSessionDate,
	)
	return err
}

// UpdateHearts persists only the heart counter and regeneration timestamp,
// used by the read-time regeneration path.
func (r *UserRepo) UpdateHearts(ctx context.Context, userID uuid.UUID, hearts int, lastRegen time.Time) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE users SET current_hearts = $2, last_heart_regen = $3 WHERE id = $1",
		userID, hearts, lastRegen)
	return err
}
