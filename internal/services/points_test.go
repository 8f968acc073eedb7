package services

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"focusflow-backend/internal/config"
	"focusflow-backend/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		VisibilityThreshold:      0.3,
		VisibilityFraction:       0.3,
		AutoPauseDelay:           12 * time.Second,
		DistractionWindow:        5 * time.Second,
		DistractionHighFraction:  0.8,
		DistractionClearFraction: 0.5,
		DistractionPauseDelay:    5 * time.Second,
		LowConcentration:         0.4,
		NoFrameTimeout:           12 * time.Second,
		SweepInterval:            15 * time.Second,

		PointsPerSecond:    0.1,
		ConcentrationBonus: 50,
		DistractionPenalty: 10,
		PausePenalty:       5,
		BlockedSitePenalty: 15,
		MaxHearts:          5,
		HeartRegenPeriod:   3 * time.Hour,
		StreakTimezone:     "UTC",
	}
}

func newTestPoints(t *testing.T) *PointsService {
	t.Helper()
	return NewPointsService(testConfig(), zap.NewNop())
}

func TestCalculateSessionPoints(t *testing.T) {
	svc := newTestPoints(t)

	tests := []struct {
		name       string
		session    models.Session
		wantEarned int
		wantLost   int
		wantNet    int
	}{
		{
			name: "typical focused session",
			session: models.Session{
				DurationSeconds: 3000,
				Analytics: models.SessionAnalytics{
					AvgConcentrationScore: 0.85,
					TotalDistractions:     2,
					TotalPauses:           1,
				},
			},
			wantEarned: 342, // floor(300 + 42.5)
			wantLost:   25,  // 2*10 + 1*5
			wantNet:    317,
		},
		{
			name: "penalties exceed earnings",
			session: models.Session{
				DurationSeconds: 60,
				Analytics: models.SessionAnalytics{
					AvgConcentrationScore: 0.1,
					TotalDistractions:     20,
					BlockedSiteAttempts:   10,
				},
			},
			wantEarned: 11,  // floor(6 + 5)
			wantLost:   350, // 200 + 150
			wantNet:    0,
		},
		{
			name: "zero snapshots means zero bonus",
			session: models.Session{
				DurationSeconds: 100,
			},
			wantEarned: 10,
			wantLost:   0,
			wantNet:    10,
		},
		{
			name: "fractional distractions from manual pauses",
			session: models.Session{
				DurationSeconds: 600,
				Analytics: models.SessionAnalytics{
					AvgConcentrationScore: 0.5,
					TotalDistractions:     1.5,
					TotalPauses:           3,
				},
			},
			wantEarned: 85, // floor(60 + 25)
			wantLost:   30, // floor(15 + 15)
			wantNet:    55,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := svc.CalculateSessionPoints(&tt.session)
			if score.PointsEarned != tt.wantEarned {
				t.Errorf("PointsEarned = %d, want %d", score.PointsEarned, tt.wantEarned)
			}
			if score.PointsLost != tt.wantLost {
				t.Errorf("PointsLost = %d, want %d", score.PointsLost, tt.wantLost)
			}
			if score.NetPoints != tt.wantNet {
				t.Errorf("NetPoints = %d, want %d", score.NetPoints, tt.wantNet)
			}
		})
	}
}

func TestShouldLoseHeart(t *testing.T) {
	svc := newTestPoints(t)

	tests := []struct {
		name      string
		analytics models.SessionAnalytics
		want      bool
	}{
		{"clean session", models.SessionAnalytics{AvgConcentrationScore: 0.8}, false},
		{"too many distractions", models.SessionAnalytics{TotalDistractions: 11, AvgConcentrationScore: 0.8}, true},
		{"exactly ten distractions is fine", models.SessionAnalytics{TotalDistractions: 10, AvgConcentrationScore: 0.8}, false},
		{"too many blocked sites", models.SessionAnalytics{BlockedSiteAttempts: 6, AvgConcentrationScore: 0.8}, true},
		{"low concentration", models.SessionAnalytics{AvgConcentrationScore: 0.29}, true},
		{"boundary concentration keeps heart", models.SessionAnalytics{AvgConcentrationScore: 0.3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &models.Session{Analytics: tt.analytics}
			if got := svc.shouldLoseHeart(s); got != tt.want {
				t.Errorf("shouldLoseHeart() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevelFromPoints(t *testing.T) {
	tests := []struct {
		points int
		want   int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{399, 2},
		{400, 3},
		{1500, 4}, // floor(sqrt(15)) + 1
		{10000, 11},
		{-5, 1},
	}

	for _, tt := range tests {
		if got := LevelFromPoints(tt.points); got != tt.want {
			t.Errorf("LevelFromPoints(%d) = %d, want %d", tt.points, got, tt.want)
		}
	}
}

func TestApplySessionOutcomeStreak(t *testing.T) {
	svc := newTestPoints(t)
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	day := func(t time.Time) *time.Time { return &t }

	tests := []struct {
		name       string
		last       *time.Time
		streak     int
		wantStreak int
	}{
		{"first ever session", nil, 0, 1},
		{"same day keeps streak", day(now.Add(-2 * time.Hour)), 4, 4},
		{"yesterday extends streak", day(now.AddDate(0, 0, -1)), 4, 5},
		{"yesterday late night still extends", day(time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC)), 2, 3},
		{"two days ago resets", day(now.AddDate(0, 0, -2)), 9, 1},
		{"long gap resets", day(now.AddDate(0, -1, 0)), 30, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := models.Gamification{Streak: tt.streak, LastSessionDate: tt.last, CurrentHearts: 3, MaxHearts: 5}
			svc.ApplySessionOutcome(&g, SessionScore{NetPoints: 50}, now)
			if g.Streak != tt.wantStreak {
				t.Errorf("Streak = %d, want %d", g.Streak, tt.wantStreak)
			}
			if g.LastSessionDate == nil || !g.LastSessionDate.Equal(now) {
				t.Errorf("LastSessionDate not advanced to now")
			}
		})
	}
}

func TestApplySessionOutcomePointsAndHearts(t *testing.T) {
	svc := newTestPoints(t)
	now := time.Now()

	g := models.Gamification{TotalPoints: 350, CurrentHearts: 3, MaxHearts: 5}
	svc.ApplySessionOutcome(&g, SessionScore{NetPoints: 50, HeartLost: true}, now)

	if g.TotalPoints != 400 {
		t.Errorf("TotalPoints = %d, want 400", g.TotalPoints)
	}
	if g.Level != 3 {
		t.Errorf("Level = %d, want 3", g.Level)
	}
	if g.CurrentHearts != 2 {
		t.Errorf("CurrentHearts = %d, want 2", g.CurrentHearts)
	}

	// Hearts floor at zero.
	g = models.Gamification{CurrentHearts: 0, MaxHearts: 5}
	svc.ApplySessionOutcome(&g, SessionScore{HeartLost: true}, now)
	if g.CurrentHearts != 0 {
		t.Errorf("CurrentHearts = %d, want 0", g.CurrentHearts)
	}
}

func TestApplyHeartRegen(t *testing.T) {
	svc := newTestPoints(t)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		hearts        int
		lastRegen     time.Time
		now           time.Time
		wantHearts    int
		wantChanged   bool
		wantLastRegen time.Time
	}{
		{
			name:   "no full period elapsed",
			hearts: 2, lastRegen: base, now: base.Add(2 * time.Hour),
			wantHearts: 2, wantChanged: false, wantLastRegen: base,
		},
		{
			name:   "one period regains one heart",
			hearts: 2, lastRegen: base, now: base.Add(3 * time.Hour),
			wantHearts: 3, wantChanged: true, wantLastRegen: base.Add(3 * time.Hour),
		},
		{
			name:   "partial period carries over",
			hearts: 2, lastRegen: base, now: base.Add(7 * time.Hour),
			wantHearts: 4, wantChanged: true, wantLastRegen: base.Add(6 * time.Hour),
		},
		{
			name:   "capped at max",
			hearts: 4, lastRegen: base, now: base.Add(30 * time.Hour),
			wantHearts: 5, wantChanged: true, wantLastRegen: base.Add(30 * time.Hour),
		},
		{
			name:   "already full is a no-op",
			hearts: 5, lastRegen: base, now: base.Add(30 * time.Hour),
			wantHearts: 5, wantChanged: false, wantLastRegen: base,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := models.Gamification{CurrentHearts: tt.hearts, MaxHearts: 5, LastHeartRegen: tt.lastRegen}
			changed := svc.ApplyHeartRegen(&g, tt.now)
			if changed != tt.wantChanged {
				t.Errorf("changed = %v, want %v", changed, tt.wantChanged)
			}
			if g.CurrentHearts != tt.wantHearts {
				t.Errorf("CurrentHearts = %d, want %d", g.CurrentHearts, tt.wantHearts)
			}
			if !g.LastHeartRegen.Equal(tt.wantLastRegen) {
				t.Errorf("LastHeartRegen = %v, want %v", g.LastHeartRegen, tt.wantLastRegen)
			}
		})
	}
}

func TestHeartCapFallsBackToConfiguredMax(t *testing.T) {
	svc := newTestPoints(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// A row with no per-user cap regenerates up to the configured default.
	g := models.Gamification{CurrentHearts: 1, LastHeartRegen: now.Add(-20 * time.Hour)}
	if !svc.ApplyHeartRegen(&g, now) {
		t.Fatal("expected regen to apply")
	}
	if g.CurrentHearts != 5 {
		t.Errorf("CurrentHearts = %d, want 5 (configured max)", g.CurrentHearts)
	}

	status := svc.HeartsStatus(&g, now)
	if status.Max != 5 {
		t.Errorf("Max = %d, want 5", status.Max)
	}
	if status.MsToNextRegen != 0 {
		t.Errorf("MsToNextRegen = %d, want 0 at the cap", status.MsToNextRegen)
	}
}
