package services

import (
	"math"
	"time"

	"go.uber.org/zap"

	"focusflow-backend/internal/config"
	"focusflow-backend/internal/models"
)

// PointsService computes session scores and folds them into the user's game
// state. All arithmetic is deterministic over the stored analytics so a score
// can be recomputed byte-for-byte after the fact.
type PointsService struct {
	cfg    *config.Config
	logger *zap.Logger
}

func NewPointsService(cfg *config.Config, logger *zap.Logger) *PointsService {
	return &PointsService{cfg: cfg, logger: logger}
}

// SessionScore is the outcome of scoring one finalized session.
type SessionScore struct {
	PointsEarned int
	PointsLost   int
	NetPoints    int
	HeartLost    bool
}

// CalculateSessionPoints scores a finalized session from its duration and
// analytics. Earned and lost are floored independently; net never goes
// negative.
func (p *PointsService) CalculateSessionPoints(s *models.Session) SessionScore {
	basePoints := float64(s.DurationSeconds) * p.cfg.PointsPerSecond
	concentrationBonus := s.Analytics.AvgConcentrationScore * p.cfg.ConcentrationBonus

	penalty := s.Analytics.TotalDistractions*p.cfg.DistractionPenalty +
		float64(s.Analytics.TotalPauses)*p.cfg.PausePenalty +
		float64(s.Analytics.BlockedSiteAttempts)*p.cfg.BlockedSitePenalty

	earned := int(math.Floor(basePoints + concentrationBonus))
	lost := int(math.Floor(penalty))
	net := earned - lost
	if net < 0 {
		net = 0
	}

	return SessionScore{
		PointsEarned: earned,
		PointsLost:   lost,
		NetPoints:    net,
		HeartLost:    p.shouldLoseHeart(s),
	}
}

// shouldLoseHeart applies the heart-loss rule: at most one heart per session.
func (p *PointsService) shouldLoseHeart(s *models.Session) bool {
	return s.Analytics.TotalDistractions > 10 ||
		s.Analytics.BlockedSiteAttempts > 5 ||
		s.Analytics.AvgConcentrationScore < 0.3
}

// LevelFromPoints derives the level from cumulative points. Levels are never
// stored independently of points.
func LevelFromPoints(totalPoints int) int {
	if totalPoints < 0 {
		totalPoints = 0
	}
	return int(math.Floor(math.Sqrt(float64(totalPoints)/100))) + 1
}

// ApplySessionOutcome folds a score into the user's game state: points,
// level, streak, and heart loss. The streak compares calendar days in the
// configured reference timezone, not wall-clock deltas.
func (p *PointsService) ApplySessionOutcome(g *models.Gamification, score SessionScore, now time.Time) {
	g.TotalPoints += score.NetPoints
	g.Level = LevelFromPoints(g.TotalPoints)

	g.Streak = p.nextStreak(g, now)
	t := now
	g.LastSessionDate = &t

	if score.HeartLost && g.CurrentHearts > 0 {
		g.CurrentHearts--
	}
}

func (p *PointsService) nextStreak(g *models.Gamification, now time.Time) int {
	loc := p.streakLocation()
	today := startOfDay(now.In(loc))

	if g.LastSessionDate == nil {
		return 1
	}
	last := startOfDay(g.LastSessionDate.In(loc))

	switch {
	case last.Equal(today):
		return g.Streak
	case last.Equal(today.AddDate(0, 0, -1)):
		return g.Streak + 1
	default:
		return 1
	}
}

func (p *PointsService) streakLocation() *time.Location {
	loc, err := time.LoadLocation(p.cfg.StreakTimezone)
	if err != nil {
		p.logger.Warn("invalid streak timezone, falling back to UTC",
			zap.String("timezone", p.cfg.StreakTimezone))
		return time.UTC
	}
	return loc
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ApplyHeartRegen adds elapsed whole regeneration periods to the user's
// hearts, capped at max. The regen timestamp only advances when hearts
// actually change, so partial periods carry over. Returns true when the
// state was mutated and needs persisting.
func (p *PointsService) ApplyHeartRegen(g *models.Gamification, now time.Time) bool {
	maxHearts := p.maxHearts(g)
	if g.CurrentHearts >= maxHearts {
		return false
	}

	elapsed := now.Sub(g.LastHeartRegen)
	periods := int(elapsed / p.cfg.HeartRegenPeriod)
	if periods <= 0 {
		return false
	}

	regained := periods
	if g.CurrentHearts+regained > maxHearts {
		regained = maxHearts - g.CurrentHearts
	}
	g.CurrentHearts += regained
	g.LastHeartRegen = g.LastHeartRegen.Add(time.Duration(periods) * p.cfg.HeartRegenPeriod)
	return true
}

// HeartsStatus reports the current heart count and the time of the next
// regeneration tick.
func (p *PointsService) HeartsStatus(g *models.Gamification, now time.Time) models.HeartsStatus {
	next := g.LastHeartRegen.Add(p.cfg.HeartRegenPeriod)
	for !next.After(now) {
		next = next.Add(p.cfg.HeartRegenPeriod)
	}

	maxHearts := p.maxHearts(g)
	ms := int64(0)
	if g.CurrentHearts < maxHearts {
		ms = next.Sub(now).Milliseconds()
	}
	return models.HeartsStatus{
		Current:       g.CurrentHearts,
		Max:           maxHearts,
		NextRegenAt:   next,
		MsToNextRegen: ms,
	}
}

// maxHearts prefers the user's own cap; rows without one get the configured
// default.
func (p *PointsService) maxHearts(g *models.Gamification) int {
	if g.MaxHearts > 0 {
		return g.MaxHearts
	}
	return p.cfg.MaxHearts
}
