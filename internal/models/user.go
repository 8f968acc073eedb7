package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID  `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	AvatarURL *string    `json:"avatar_url"`
	ClanID    *uuid.UUID `json:"clan_id,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`

	Gamification Gamification `json:"gamification"`
}

// Gamification is the per-user game state. Level is derived from TotalPoints
// and recomputed on every write, never trusted independently.
type Gamification struct {
	TotalPoints     int        `json:"total_points"`
	CurrentHearts   int        `json:"current_hearts"`
	MaxHearts       int        `json:"max_hearts"`
	Level           int        `json:"level"`
	Streak          int        `json:"streak"`
	LastHeartRegen  time.Time  `json:"last_heart_regen"`
	LastSessionDate *time.Time `json:"last_session_date,omitempty"`
}

type Clan struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	TotalPoints    int       `json:"total_points"`
	TotalSessions  int       `json:"total_sessions"`
	TotalStudyTime int       `json:"total_study_time"`
}

type HeartsStatus struct {
	Current       int       `json:"current"`
	Max           int       `json:"max"`
	NextRegenAt   time.Time `json:"next_regen_at"`
	MsToNextRegen int64     `json:"ms_to_next_regen"`
}

type Achievement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Unlocked    bool   `json:"unlocked"`
}
