package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"focusflow-backend/internal/models"
	"focusflow-backend/internal/repository"
)

type LeaderboardStore interface {
	Aggregate(ctx context.Context, periodStart time.Time, memberIDs []uuid.UUID) ([]models.LeaderboardEntry, error)
	UpsertSnapshot(ctx context.Context, lb *models.Leaderboard) error
	GetSnapshot(ctx context.Context, scope string, periodStart time.Time, clanID *uuid.UUID) (*models.Leaderboard, error)
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

type ClanMemberStore interface {
	MemberIDs(ctx context.Context, clanID uuid.UUID) ([]uuid.UUID, error)
}

// LeaderboardService serves ranked boards through a three-tier read path:
// fast cache, durable snapshot, regenerate. The fast cache is refreshed after
// every read that misses it.
type LeaderboardService struct {
	boards LeaderboardStore
	clans  ClanMemberStore
	cache  *CacheService
	logger *zap.Logger

	now func() time.Time
}

func NewLeaderboardService(boards LeaderboardStore, clans ClanMemberStore, cache *CacheService, logger *zap.Logger) *LeaderboardService {
	return &LeaderboardService{
		boards: boards,
		clans:  clans,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// PeriodStart returns the aggregation window's lower bound for a scope:
// daily from midnight, weekly from the most recent Monday, monthly from the
// first of the month, everything else from the epoch. Clan boards are
// all-time.
func PeriodStart(scope string, now time.Time) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch scope {
	case models.LeaderboardDaily:
		return day
	case models.LeaderboardWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case models.LeaderboardMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Unix(0, 0).UTC()
	}
}

// snapshotExpiry matches each scope's natural staleness horizon.
func snapshotExpiry(scope string, periodStart, generatedAt time.Time) time.Time {
	switch scope {
	case models.LeaderboardDaily:
		return generatedAt.Add(24 * time.Hour)
	case models.LeaderboardWeekly:
		return generatedAt.Add(7 * 24 * time.Hour)
	case models.LeaderboardMonthly:
		return periodStart.AddDate(0, 1, 0)
	default:
		return time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC)
	}
}

// Get returns the board for a scope, serving the freshest tier available.
// clanID is required for (and only for) the clan scope.
func (l *LeaderboardService) Get(ctx context.Context, scope string, clanID *uuid.UUID) (*models.Leaderboard, error) {
	if !models.IsLeaderboardScope(scope) {
		return nil, &ValidationError{Fields: map[string]string{"scope": "must be daily, weekly, monthly, alltime, or clan"}}
	}
	if scope == models.LeaderboardClan && clanID == nil {
		return nil, &ValidationError{Fields: map[string]string{"clan_id": "clan_id is required for the clan scope"}}
	}
	if scope != models.LeaderboardClan {
		clanID = nil
	}

	if cached := l.cache.GetLeaderboard(ctx, scope, clanID); cached != nil {
		return cached, nil
	}

	now := l.now()
	periodStart := PeriodStart(scope, now)

	snapshot, err := l.boards.GetSnapshot(ctx, scope, periodStart, clanID)
	if err != nil && !repository.IsNoRows(err) {
		return nil, err
	}
	if snapshot != nil && snapshot.ExpiresAt.After(now) {
		l.cache.SetLeaderboard(ctx, snapshot)
		return snapshot, nil
	}

	fresh, err := l.Generate(ctx, scope, clanID)
	if err != nil {
		// Serve the stale snapshot over nothing.
		if snapshot != nil {
			l.logger.Warn("leaderboard regeneration failed, serving stale snapshot",
				zap.String("scope", scope), zap.Error(err))
			return snapshot, nil
		}
		return nil, err
	}
	return fresh, nil
}

// Generate aggregates the board from the store, assigns contiguous 1-based
// ranks, persists the snapshot, and refreshes the fast cache.
func (l *LeaderboardService) Generate(ctx context.Context, scope string, clanID *uuid.UUID) (*models.Leaderboard, error) {
	now := l.now()
	periodStart := PeriodStart(scope, now)

	var memberIDs []uuid.UUID
	if scope == models.LeaderboardClan {
		if clanID == nil {
			return nil, &ValidationError{Fields: map[string]string{"clan_id": "clan_id is required for the clan scope"}}
		}
		ids, err := l.clans.MemberIDs(ctx, *clanID)
		if err != nil {
			return nil, err
		}
		if ids == nil {
			ids = []uuid.UUID{}
		}
		memberIDs = ids
	}

	entries, err := l.boards.Aggregate(ctx, periodStart, memberIDs)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}

	lb := &models.Leaderboard{
		Scope:       scope,
		PeriodStart: periodStart,
		ClanID:      clanID,
		Entries:     entries,
		GeneratedAt: now,
		ExpiresAt:   snapshotExpiry(scope, periodStart, now),
	}

	if err := l.boards.UpsertSnapshot(ctx, lb); err != nil {
		return nil, err
	}
	l.cache.SetLeaderboard(ctx, lb)
	return lb, nil
}

// UserRank locates a user on a board. Users outside the top 100 get a nil
// rank with the board's entry count for context.
func (l *LeaderboardService) UserRank(ctx context.Context, scope string, clanID *uuid.UUID, userID uuid.UUID) (*models.UserRank, error) {
	lb, err := l.Get(ctx, scope, clanID)
	if err != nil {
		return nil, err
	}

	rank := &models.UserRank{Total: len(lb.Entries)}
	for i := range lb.Entries {
		if lb.Entries[i].UserID == userID {
			e := lb.Entries[i]
			rank.Rank = &e.Rank
			rank.Entry = &e
			if len(lb.Entries) > 0 {
				pct := float64(len(lb.Entries)-e.Rank+1) / float64(len(lb.Entries)) * 100
				rank.Percentile = &pct
			}
			break
		}
	}
	return rank, nil
}
