package models

import (
	"time"

	"github.com/google/uuid"
)

// Session statuses. Active is the only entry state; completed and abandoned
// are terminal.
const (
	SessionActive     = "active"
	SessionPaused     = "paused"
	SessionAutoPaused = "auto_paused"
	SessionCompleted  = "completed"
	SessionAbandoned  = "abandoned"
)

// Pause reasons.
const (
	PauseManual      = "manual"
	PauseAuto        = "auto"
	PauseDistraction = "distraction"
	PauseNoFrames    = "no_frames"
)

// OpenStatuses are the statuses in which a session still owns the user's
// "one open session" slot.
var OpenStatuses = []string{SessionActive, SessionPaused, SessionAutoPaused}

func IsOpenStatus(status string) bool {
	return status == SessionActive || status == SessionPaused || status == SessionAutoPaused
}

func IsTerminalStatus(status string) bool {
	return status == SessionCompleted || status == SessionAbandoned
}

type PauseEntry struct {
	PausedAt  time.Time  `json:"paused_at"`
	ResumedAt *time.Time `json:"resumed_at,omitempty"`
	Reason    string     `json:"reason"`
}

type SessionAnalytics struct {
	TotalDistractions     float64 `json:"total_distractions"`
	TotalPauses           int     `json:"total_pauses"`
	BlockedSiteAttempts   int     `json:"blocked_site_attempts"`
	AvgConcentrationScore float64 `json:"avg_concentration_score"`
	PostureAlerts         int     `json:"posture_alerts"`
	EyeTrackingAlerts     int     `json:"eye_tracking_alerts"`
	TotalProductiveTime   float64 `json:"total_productive_time"`
}

type EyeTrackingMetrics struct {
	LookingAway    bool    `json:"looking_away"`
	Confidence     float64 `json:"confidence"`
	HeadYaw        float64 `json:"head_yaw,omitempty"`
	HeadPitch      float64 `json:"head_pitch,omitempty"`
	EyeAspectRatio float64 `json:"eye_aspect_ratio,omitempty"`
}

type PostureMetrics struct {
	InterestScore   float64 `json:"interest_score"`
	InterestLevel   string  `json:"interest_level,omitempty"`
	SpineAngle      float64 `json:"spine_angle,omitempty"`
	Slouch          bool    `json:"slouch"`
	VisibilityScore float64 `json:"visibility_score"`
}

// Snapshot records one processed frame. Append-only.
type Snapshot struct {
	Timestamp          time.Time           `json:"timestamp"`
	EyeTracking        *EyeTrackingMetrics `json:"eye_tracking"`
	Posture            *PostureMetrics     `json:"posture"`
	ConcentrationScore float64             `json:"concentration_score"`
}

// WindowSample is one entry in a rolling attention window.
type WindowSample struct {
	At   time.Time `json:"at"`
	Flag bool      `json:"flag"`
}

// AttentionState holds the transient frame-processing state for a session.
// It is owned and mutated only by the attention processor, persisted alongside
// the session, and never exposed to API consumers.
type AttentionState struct {
	LastFrameAt     *time.Time     `json:"last_frame_at,omitempty"`
	Visibility      []WindowSample `json:"visibility,omitempty"`
	Distraction     []WindowSample `json:"distraction,omitempty"`
	MissingSince    *time.Time     `json:"missing_since,omitempty"`
	DistractedSince *time.Time     `json:"distracted_since,omitempty"`
}

type Session struct {
	ID              uuid.UUID        `json:"id"`
	UserID          uuid.UUID        `json:"user_id"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         *time.Time       `json:"end_time,omitempty"`
	DurationSeconds int              `json:"duration_seconds"`
	Status          string           `json:"status"`
	PauseLog        []PauseEntry     `json:"pause_log"`
	Analytics       SessionAnalytics `json:"analytics"`
	Snapshots       []Snapshot       `json:"snapshots,omitempty"`
	Attention       *AttentionState  `json:"-"`
	PointsEarned    int              `json:"points_earned"`
	PointsLost      int              `json:"points_lost"`
	NetPoints       int              `json:"net_points"`
	Notes           string           `json:"notes,omitempty"`
	Tags            []string         `json:"tags,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// OpenPause returns the most recent pause-log entry that has not been resumed,
// or nil when every interval is closed.
func (s *Session) OpenPause() *PauseEntry {
	for i := len(s.PauseLog) - 1; i >= 0; i-- {
		if s.PauseLog[i].ResumedAt == nil {
			return &s.PauseLog[i]
		}
	}
	return nil
}

// ClosedPauseSeconds sums the lengths of all closed pause intervals.
func (s *Session) ClosedPauseSeconds() float64 {
	var total float64
	for _, p := range s.PauseLog {
		if p.ResumedAt != nil {
			total += p.ResumedAt.Sub(p.PausedAt).Seconds()
		}
	}
	return total
}

type SessionStats struct {
	TotalSessions       int     `json:"total_sessions"`
	TotalTime           int     `json:"total_time"`
	TotalProductiveTime float64 `json:"total_productive_time"`
	TotalPoints         int     `json:"total_points"`
	AvgConcentration    float64 `json:"avg_concentration"`
	TotalDistractions   float64 `json:"total_distractions"`
	TotalPauses         int     `json:"total_pauses"`
	Efficiency          float64 `json:"efficiency"`
}
