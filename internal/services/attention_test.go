package services

import (
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"focusflow-backend/internal/models"
)

func newTestProcessor(t *testing.T) *AttentionProcessor {
	t.Helper()
	return NewAttentionProcessor(testConfig(), zap.NewNop())
}

func activeSession() *models.Session {
	return &models.Session{
		Status:    models.SessionActive,
		Attention: &models.AttentionState{},
	}
}

func presentResult() *models.ClassifierResult {
	return &models.ClassifierResult{
		EyeTracking: &models.ClassifierEyeTracking{LookingAway: false, Confidence: 0},
		Posture:     &models.ClassifierPosture{InterestScore: 1.0, VisibilityScore: 1.0},
	}
}

func distractedResult() *models.ClassifierResult {
	return &models.ClassifierResult{
		EyeTracking: &models.ClassifierEyeTracking{LookingAway: true, Confidence: 0.5},
		Posture:     &models.ClassifierPosture{InterestScore: 1.0, VisibilityScore: 1.0},
	}
}

func TestConcentrationScore(t *testing.T) {
	p := newTestProcessor(t)

	tests := []struct {
		name   string
		result *models.ClassifierResult
		want   float64
	}{
		{"fully focused", presentResult(), 1.0},
		{
			"looking away with confidence",
			&models.ClassifierResult{
				EyeTracking: &models.ClassifierEyeTracking{LookingAway: true, Confidence: 0.5},
				Posture:     &models.ClassifierPosture{InterestScore: 0.6, Slouch: true, VisibilityScore: 0.9},
			},
			// (1 - 0.3 - 0.05 - 0.2 - 0.12) * 0.9
			0.297,
		},
		{"no subject forces zero", &models.ClassifierResult{}, 0},
		{
			"zero visibility forces zero",
			&models.ClassifierResult{
				Posture: &models.ClassifierPosture{InterestScore: 1.0, VisibilityScore: 0},
			},
			0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := p.analyze(tt.result)
			if math.Abs(analysis.ConcentrationScore-tt.want) > 1e-9 {
				t.Errorf("ConcentrationScore = %v, want %v", analysis.ConcentrationScore, tt.want)
			}
		})
	}
}

func TestAnalyzeAbsence(t *testing.T) {
	p := newTestProcessor(t)

	if !p.analyze(&models.ClassifierResult{}).IsAbsent {
		t.Error("nil posture should read as absent")
	}
	low := &models.ClassifierResult{Posture: &models.ClassifierPosture{VisibilityScore: 0.2, InterestScore: 1}}
	if !p.analyze(low).IsAbsent {
		t.Error("visibility at or below threshold should read as absent")
	}
	if p.analyze(presentResult()).IsAbsent {
		t.Error("visible subject should not read as absent")
	}
}

func TestProcessFrameNilResultFailsClosed(t *testing.T) {
	p := newTestProcessor(t)
	s := activeSession()

	analysis, _ := p.ProcessFrame(s, nil, time.Now())
	if !analysis.IsAbsent {
		t.Error("missing payload must be treated as absence")
	}
	if analysis.ConcentrationScore != 0 {
		t.Errorf("ConcentrationScore = %v, want 0", analysis.ConcentrationScore)
	}
}

func TestAbsenceDebounceTriggersAutoPause(t *testing.T) {
	p := newTestProcessor(t)
	s := activeSession()
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	var reason string
	for i := 0; i <= 13; i++ {
		_, reason = p.ProcessFrame(s, &models.ClassifierResult{}, start.Add(time.Duration(i)*time.Second))
		if reason != "" {
			break
		}
	}

	if reason != models.PauseAuto {
		t.Fatalf("reason = %q, want %q", reason, models.PauseAuto)
	}
	// Window and timer cleared on trigger.
	if s.Attention.MissingSince != nil {
		t.Error("MissingSince should be cleared after trigger")
	}
	if len(s.Attention.Visibility) != 0 {
		t.Error("visibility window should be cleared after trigger")
	}
}

func TestAbsentFramesDoNotCountAsDistraction(t *testing.T) {
	p := newTestProcessor(t)
	s := activeSession()
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	// Sustained absence rides the longer absence debounce; the distraction
	// window must stay quiet the whole way.
	for i := 0; i <= 13; i++ {
		analysis, reason := p.ProcessFrame(s, &models.ClassifierResult{}, start.Add(time.Duration(i)*time.Second))
		if analysis.IsDistracted {
			t.Fatalf("absent frame at %ds read as distracted", i)
		}
		if reason == models.PauseDistraction {
			t.Fatalf("distraction pause fired at %ds during pure absence", i)
		}
		if reason == models.PauseAuto {
			if s.Analytics.TotalDistractions != 0 {
				t.Errorf("TotalDistractions = %v, want 0 for pure absence", s.Analytics.TotalDistractions)
			}
			return
		}
	}
	t.Fatal("expected the absence debounce to fire")
}

func TestAbsenceRecoveryClearsTimer(t *testing.T) {
	p := newTestProcessor(t)
	s := activeSession()
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	// 6s of absence starts the timer but stays under the delay.
	for i := 0; i < 6; i++ {
		_, reason := p.ProcessFrame(s, &models.ClassifierResult{}, start.Add(time.Duration(i)*time.Second))
		if reason != "" {
			t.Fatalf("unexpected trigger at %ds", i)
		}
	}
	if s.Attention.MissingSince == nil {
		t.Fatal("MissingSince should be set during sustained absence")
	}

	// Recovery: enough present frames to lift the fraction back above the
	// threshold clears the timer without penalty.
	for i := 6; i < 12; i++ {
		p.ProcessFrame(s, presentResult(), start.Add(time.Duration(i)*time.Second))
	}
	if s.Attention.MissingSince != nil {
		t.Error("MissingSince should be cleared after recovery")
	}
	if s.Status != models.SessionActive {
		t.Errorf("status = %q, want active", s.Status)
	}
}

func TestAbsenceNoTriggerWhenNotActive(t *testing.T) {
	p := newTestProcessor(t)
	s := activeSession()
	s.Status = models.SessionPaused
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	for i := 0; i <= 20; i++ {
		_, reason := p.ProcessFrame(s, &models.ClassifierResult{}, start.Add(time.Duration(i)*time.Second))
		if reason != "" {
			t.Fatalf("auto-pause must not fire on a %s session", s.Status)
		}
	}
}

func TestDistractionDebounceTriggersAutoPause(t *testing.T) {
	p := newTestProcessor(t)
	s := activeSession()
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	var reason string
	for i := 0; i <= 7; i++ {
		_, reason = p.ProcessFrame(s, distractedResult(), start.Add(time.Duration(i)*time.Second))
		if reason != "" {
			break
		}
	}

	if reason != models.PauseDistraction {
		t.Fatalf("reason = %q, want %q", reason, models.PauseDistraction)
	}
	if s.Attention.DistractedSince != nil {
		t.Error("DistractedSince should be cleared after trigger")
	}
}

func TestDistractionClearFractionResetsTimer(t *testing.T) {
	p := newTestProcessor(t)
	s := activeSession()
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	// Two distracted frames start the streak.
	p.ProcessFrame(s, distractedResult(), start)
	p.ProcessFrame(s, distractedResult(), start.Add(1*time.Second))
	if s.Attention.DistractedSince == nil {
		t.Fatal("DistractedSince should be set")
	}

	// Focused frames pull the fraction under the clear threshold.
	for i := 2; i < 6; i++ {
		p.ProcessFrame(s, presentResult(), start.Add(time.Duration(i)*time.Second))
	}
	if s.Attention.DistractedSince != nil {
		t.Error("DistractedSince should be cleared once the fraction drops")
	}
}

func TestProcessFrameRecordsSnapshotAndAnalytics(t *testing.T) {
	p := newTestProcessor(t)
	s := activeSession()
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	p.ProcessFrame(s, distractedResult(), now)

	if len(s.Snapshots) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(s.Snapshots))
	}
	if s.Analytics.TotalDistractions != 1 {
		t.Errorf("TotalDistractions = %v, want 1", s.Analytics.TotalDistractions)
	}
	if s.Analytics.EyeTrackingAlerts != 1 {
		t.Errorf("EyeTrackingAlerts = %d, want 1", s.Analytics.EyeTrackingAlerts)
	}
	if s.Attention.LastFrameAt == nil || !s.Attention.LastFrameAt.Equal(now) {
		t.Error("LastFrameAt not updated")
	}
}

func TestWindowTrimming(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	var window []models.WindowSample
	for i := 0; i < 30; i++ {
		window = appendTrimmed(window, models.WindowSample{At: now.Add(time.Duration(i) * time.Second)}, now.Add(time.Duration(i)*time.Second), 5*time.Second)
	}

	if len(window) > 6 {
		t.Errorf("window length = %d, want <= 6", len(window))
	}
	cutoff := now.Add(29 * time.Second).Add(-5 * time.Second)
	for _, sample := range window {
		if sample.At.Before(cutoff) {
			t.Errorf("sample at %v is older than horizon", sample.At)
		}
	}
}
