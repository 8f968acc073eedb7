package models

import (
	"time"

	"github.com/google/uuid"
)

// Leaderboard scopes.
const (
	LeaderboardDaily   = "daily"
	LeaderboardWeekly  = "weekly"
	LeaderboardMonthly = "monthly"
	LeaderboardAllTime = "alltime"
	LeaderboardClan    = "clan"
)

func IsLeaderboardScope(scope string) bool {
	switch scope {
	case LeaderboardDaily, LeaderboardWeekly, LeaderboardMonthly, LeaderboardAllTime, LeaderboardClan:
		return true
	}
	return false
}

type LeaderboardEntry struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Avatar    *string   `json:"avatar,omitempty"`
	Points    int       `json:"points"`
	Rank      int       `json:"rank"`
	Sessions  int       `json:"sessions"`
	StudyTime int       `json:"study_time"`
	ClanName  *string   `json:"clan_name,omitempty"`
}

type Leaderboard struct {
	Scope       string             `json:"scope"`
	PeriodStart time.Time          `json:"period_start"`
	ClanID      *uuid.UUID         `json:"clan_id,omitempty"`
	Entries     []LeaderboardEntry `json:"entries"`
	GeneratedAt time.Time          `json:"generated_at"`
	ExpiresAt   time.Time          `json:"expires_at"`
}

type UserRank struct {
	Rank       *int              `json:"rank"`
	Total      int               `json:"total"`
	Entry      *LeaderboardEntry `json:"entry,omitempty"`
	Percentile *float64          `json:"percentile,omitempty"`
}
