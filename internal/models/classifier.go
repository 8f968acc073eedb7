package models

// ClassifierResult is the payload returned by the external attention
// classifier for one frame. A nil Posture means no subject was detected.
type ClassifierResult struct {
	EyeTracking *ClassifierEyeTracking `json:"eye_tracking"`
	Posture     *ClassifierPosture     `json:"posture"`
	Alert       *ClassifierAlert       `json:"alert,omitempty"`
}

type ClassifierEyeTracking struct {
	LookingAway    bool    `json:"looking_away"`
	Confidence     float64 `json:"confidence"`
	HeadYaw        float64 `json:"head_yaw,omitempty"`
	HeadPitch      float64 `json:"head_pitch,omitempty"`
	EyeAspectRatio float64 `json:"eye_aspect_ratio,omitempty"`
}

type ClassifierPosture struct {
	Slouch          bool    `json:"slouch"`
	InterestScore   float64 `json:"interest_score"`
	InterestLevel   string  `json:"interest_level,omitempty"`
	SpineAngle      float64 `json:"spine_angle,omitempty"`
	VisibilityScore float64 `json:"visibility_score"`
}

type ClassifierAlert struct {
	Triggered bool   `json:"triggered"`
	Message   string `json:"message,omitempty"`
}

// FrameAnalysis is the processed result handed back to the frame-submission
// caller alongside the (possibly auto-paused) session status.
type FrameAnalysis struct {
	ConcentrationScore float64             `json:"concentration_score"`
	IsDistracted       bool                `json:"is_distracted"`
	IsAbsent           bool                `json:"is_absent"`
	ShouldAlert        bool                `json:"should_alert"`
	EyeTracking        *EyeTrackingMetrics `json:"eye_tracking"`
	Posture            *PostureMetrics     `json:"posture"`
}
