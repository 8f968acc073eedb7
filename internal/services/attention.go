package services

import (
	"time"

	"go.uber.org/zap"

	"focusflow-backend/internal/config"
	"focusflow-backend/internal/models"
)

// AttentionProcessor turns a stream of per-frame classifier results into
// debounced auto-pause decisions. It owns the session's transient attention
// state (rolling windows, timers) and mutates nothing else; the caller applies
// any returned trigger through the session state machine.
//
// The processor is stateless itself, so one instance serves all sessions.
// Serialization of frames for a single session is the caller's job.
type AttentionProcessor struct {
	cfg    *config.Config
	logger *zap.Logger
}

func NewAttentionProcessor(cfg *config.Config, logger *zap.Logger) *AttentionProcessor {
	return &AttentionProcessor{cfg: cfg, logger: logger}
}

// ProcessFrame folds one classifier result into the session's attention state,
// appends a snapshot, and updates analytics counters. The returned reason is
// non-empty when the frame tripped an auto-pause (models.PauseAuto or
// models.PauseDistraction); it never fires unless the session is active.
//
// A nil result is treated as absence: missing data must not read as
// "present and focused".
func (p *AttentionProcessor) ProcessFrame(s *models.Session, result *models.ClassifierResult, now time.Time) (*models.FrameAnalysis, string) {
	if result == nil {
		result = &models.ClassifierResult{}
	}
	if s.Attention == nil {
		s.Attention = &models.AttentionState{}
	}
	st := s.Attention

	analysis := p.analyze(result)

	// Visibility window: fraction of present samples over the auto-pause
	// horizon. Low presence starts the missing timer; recovery clears it
	// without penalty.
	st.Visibility = appendTrimmed(st.Visibility, models.WindowSample{At: now, Flag: analysis.IsAbsent}, now, p.cfg.AutoPauseDelay)
	presentFraction := fractionWhere(st.Visibility, false)

	var reason string
	if presentFraction < p.cfg.VisibilityFraction {
		if st.MissingSince == nil {
			t := now
			st.MissingSince = &t
		} else if now.Sub(*st.MissingSince) >= p.cfg.AutoPauseDelay && s.Status == models.SessionActive {
			reason = models.PauseAuto
			st.Visibility = nil
			st.MissingSince = nil
		}
	} else {
		st.MissingSince = nil
	}

	// Distraction window: shorter horizon, with hysteresis between the
	// high-water and clear fractions so a single focused frame doesn't
	// reset a sustained distraction streak.
	st.Distraction = appendTrimmed(st.Distraction, models.WindowSample{At: now, Flag: analysis.IsDistracted}, now, p.cfg.DistractionWindow)
	distractedFraction := fractionWhere(st.Distraction, true)

	if distractedFraction > p.cfg.DistractionHighFraction {
		if st.DistractedSince == nil {
			t := now
			st.DistractedSince = &t
		} else if reason == "" && now.Sub(*st.DistractedSince) >= p.cfg.DistractionPauseDelay && s.Status == models.SessionActive {
			reason = models.PauseDistraction
			st.Distraction = nil
			st.DistractedSince = nil
		}
	} else if distractedFraction < p.cfg.DistractionClearFraction {
		st.DistractedSince = nil
	}

	s.Snapshots = append(s.Snapshots, models.Snapshot{
		Timestamp:          now,
		EyeTracking:        analysis.EyeTracking,
		Posture:            analysis.Posture,
		ConcentrationScore: analysis.ConcentrationScore,
	})

	if analysis.IsDistracted {
		s.Analytics.TotalDistractions++
	}
	if analysis.EyeTracking != nil && analysis.EyeTracking.LookingAway {
		s.Analytics.EyeTrackingAlerts++
	}
	if analysis.Posture != nil && analysis.Posture.Slouch {
		s.Analytics.PostureAlerts++
	}

	t := now
	st.LastFrameAt = &t

	if reason != "" {
		p.logger.Info("attention auto-pause triggered",
			zap.String("session_id", s.ID.String()),
			zap.String("reason", reason),
			zap.Float64("present_fraction", presentFraction),
			zap.Float64("distracted_fraction", distractedFraction),
		)
	}

	return analysis, reason
}

// analyze derives the per-frame signals from a raw classifier result.
func (p *AttentionProcessor) analyze(result *models.ClassifierResult) *models.FrameAnalysis {
	analysis := &models.FrameAnalysis{}

	// Absence: no subject detected, or the subject is barely visible.
	analysis.IsAbsent = result.Posture == nil ||
		result.Posture.VisibilityScore <= p.cfg.VisibilityThreshold

	score := 1.0
	if result.EyeTracking != nil {
		et := result.EyeTracking
		if et.LookingAway {
			score -= 0.3
		}
		score -= 0.1 * et.Confidence
		analysis.EyeTracking = &models.EyeTrackingMetrics{
			LookingAway:    et.LookingAway,
			Confidence:     et.Confidence,
			HeadYaw:        et.HeadYaw,
			HeadPitch:      et.HeadPitch,
			EyeAspectRatio: et.EyeAspectRatio,
		}
	}
	if result.Posture != nil {
		ps := result.Posture
		if ps.Slouch {
			score -= 0.2
		}
		score -= 0.3 * (1 - ps.InterestScore)
		analysis.Posture = &models.PostureMetrics{
			InterestScore:   ps.InterestScore,
			InterestLevel:   ps.InterestLevel,
			SpineAngle:      ps.SpineAngle,
			Slouch:          ps.Slouch,
			VisibilityScore: ps.VisibilityScore,
		}
		score *= ps.VisibilityScore
	} else {
		score = 0
	}
	analysis.ConcentrationScore = clamp01(score)

	// Distraction is a present-but-unfocused signal; an absent frame feeds
	// the visibility window only, never both.
	analysis.IsDistracted = !analysis.IsAbsent &&
		((result.EyeTracking != nil && result.EyeTracking.LookingAway) ||
			(result.Posture != nil && result.Posture.Slouch) ||
			analysis.ConcentrationScore < p.cfg.LowConcentration)

	analysis.ShouldAlert = result.Alert != nil && result.Alert.Triggered

	return analysis
}

// appendTrimmed appends a sample and drops entries older than the horizon.
// Samples arrive in time order, so one scan from the front suffices.
func appendTrimmed(window []models.WindowSample, sample models.WindowSample, now time.Time, horizon time.Duration) []models.WindowSample {
	window = append(window, sample)
	cutoff := now.Add(-horizon)
	start := 0
	for start < len(window) && window[start].At.Before(cutoff) {
		start++
	}
	return window[start:]
}

func fractionWhere(window []models.WindowSample, flag bool) float64 {
	if len(window) == 0 {
		return 0
	}
	n := 0
	for _, s := range window {
		if s.Flag == flag {
			n++
		}
	}
	return float64(n) / float64(len(window))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
