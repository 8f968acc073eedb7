package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"focusflow-backend/internal/models"
	"focusflow-backend/internal/repository"
)

// GamificationService exposes the user's game state: hearts (with read-time
// regeneration), cumulative stats, and derived achievements.
type GamificationService struct {
	users    UserStore
	sessions SessionStore
	points   *PointsService
	logger   *zap.Logger

	now func() time.Time
}

func NewGamificationService(users UserStore, sessions SessionStore, points *PointsService, logger *zap.Logger) *GamificationService {
	return &GamificationService{
		users:    users,
		sessions: sessions,
		points:   points,
		logger:   logger,
		now:      time.Now,
	}
}

// Hearts returns the user's current heart count, applying any regeneration
// that accrued since the last read.
func (g *GamificationService) Hearts(ctx context.Context, userID uuid.UUID) (*models.HeartsStatus, error) {
	user, err := g.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	if g.points.ApplyHeartRegen(&user.Gamification, now) {
		if err := g.users.UpdateHearts(ctx, userID, user.Gamification.CurrentHearts, user.Gamification.LastHeartRegen); err != nil {
			g.logger.Warn("heart regen persist failed",
				zap.String("user_id", userID.String()), zap.Error(err))
		}
	}

	status := g.points.HeartsStatus(&user.Gamification, now)
	return &status, nil
}

// Stats returns the user's game profile.
func (g *GamificationService) Stats(ctx context.Context, userID uuid.UUID) (*models.Gamification, error) {
	user, err := g.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user.Gamification, nil
}

// achievementRule derives one achievement from the user's record.
type achievementRule struct {
	id          string
	name        string
	description string
	unlocked    func(g models.Gamification, completedSessions int) bool
}

var achievementRules = []achievementRule{
	{
		id: "first_session", name: "First Focus",
		description: "Complete your first session",
		unlocked:    func(g models.Gamification, n int) bool { return n >= 1 },
	},
	{
		id: "ten_sessions", name: "Regular",
		description: "Complete 10 sessions",
		unlocked:    func(g models.Gamification, n int) bool { return n >= 10 },
	},
	{
		id: "hundred_sessions", name: "Centurion",
		description: "Complete 100 sessions",
		unlocked:    func(g models.Gamification, n int) bool { return n >= 100 },
	},
	{
		id: "week_streak", name: "On Fire",
		description: "Reach a 7-day streak",
		unlocked:    func(g models.Gamification, n int) bool { return g.Streak >= 7 },
	},
	{
		id: "month_streak", name: "Unstoppable",
		description: "Reach a 30-day streak",
		unlocked:    func(g models.Gamification, n int) bool { return g.Streak >= 30 },
	},
	{
		id: "level_five", name: "Focused Mind",
		description: "Reach level 5",
		unlocked:    func(g models.Gamification, n int) bool { return g.Level >= 5 },
	},
	{
		id: "level_ten", name: "Deep Worker",
		description: "Reach level 10",
		unlocked:    func(g models.Gamification, n int) bool { return g.Level >= 10 },
	},
	{
		id: "thousand_points", name: "Point Collector",
		description: "Earn 1,000 total points",
		unlocked:    func(g models.Gamification, n int) bool { return g.TotalPoints >= 1000 },
	},
}

// Achievements evaluates every achievement rule against the user's record.
// Achievements are derived, never stored, so they can't drift from the
// underlying counters.
func (g *GamificationService) Achievements(ctx context.Context, userID uuid.UUID) ([]models.Achievement, error) {
	user, err := g.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	completed, err := g.sessions.CountCompleted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count completed sessions: %w", err)
	}

	achievements := make([]models.Achievement, 0, len(achievementRules))
	for _, rule := range achievementRules {
		achievements = append(achievements, models.Achievement{
			ID:          rule.id,
			Name:        rule.name,
			Description: rule.description,
			Unlocked:    rule.unlocked(user.Gamification, completed),
		})
	}
	return achievements, nil
}

func (g *GamificationService) getUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, err
	}
	return user, nil
}
