package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"focusflow-backend/internal/models"
)

type stubLeaderboardStore struct {
	entries        []models.LeaderboardEntry
	snapshot       *models.Leaderboard
	aggregateErr   error
	aggregateCalls int
	upsertCalls    int
	lastMemberIDs  []uuid.UUID
}

func (s *stubLeaderboardStore) Aggregate(ctx context.Context, periodStart time.Time, memberIDs []uuid.UUID) ([]models.LeaderboardEntry, error) {
	s.aggregateCalls++
	s.lastMemberIDs = memberIDs
	if s.aggregateErr != nil {
		return nil, s.aggregateErr
	}
	out := make([]models.LeaderboardEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *stubLeaderboardStore) UpsertSnapshot(ctx context.Context, lb *models.Leaderboard) error {
	s.upsertCalls++
	cp := *lb
	s.snapshot = &cp
	return nil
}

func (s *stubLeaderboardStore) GetSnapshot(ctx context.Context, scope string, periodStart time.Time, clanID *uuid.UUID) (*models.Leaderboard, error) {
	if s.snapshot == nil || s.snapshot.Scope != scope {
		return nil, pgx.ErrNoRows
	}
	cp := *s.snapshot
	return &cp, nil
}

func (s *stubLeaderboardStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type stubMemberStore struct {
	members map[uuid.UUID][]uuid.UUID
}

func (s *stubMemberStore) MemberIDs(ctx context.Context, clanID uuid.UUID) ([]uuid.UUID, error) {
	return s.members[clanID], nil
}

func newLeaderboardFixture(t *testing.T, boards *stubLeaderboardStore) *LeaderboardService {
	t.Helper()
	logger := zap.NewNop()
	svc := NewLeaderboardService(boards, &stubMemberStore{members: map[uuid.UUID][]uuid.UUID{}}, NewCacheService(nil, logger), logger)
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) } // a Tuesday
	return svc
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2026, 9, 1, 15, 30, 0, 0, time.UTC) // Tuesday

	tests := []struct {
		scope string
		want  time.Time
	}{
		{models.LeaderboardDaily, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
		{models.LeaderboardWeekly, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)}, // most recent Monday
		{models.LeaderboardMonthly, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
		{models.LeaderboardAllTime, time.Unix(0, 0).UTC()},
		{models.LeaderboardClan, time.Unix(0, 0).UTC()},
	}

	for _, tt := range tests {
		t.Run(tt.scope, func(t *testing.T) {
			if got := PeriodStart(tt.scope, now); !got.Equal(tt.want) {
				t.Errorf("PeriodStart(%s) = %v, want %v", tt.scope, got, tt.want)
			}
		})
	}

	// A Monday is its own week start.
	monday := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	if got := PeriodStart(models.LeaderboardWeekly, monday); !got.Equal(time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("weekly PeriodStart on a Monday = %v", got)
	}
}

func TestGenerateAssignsContiguousRanks(t *testing.T) {
	boards := &stubLeaderboardStore{
		entries: []models.LeaderboardEntry{
			{UserID: uuid.New(), Username: "first", Points: 500},
			{UserID: uuid.New(), Username: "second", Points: 300},
			{UserID: uuid.New(), Username: "third", Points: 300},
			{UserID: uuid.New(), Username: "fourth", Points: 10},
		},
	}
	svc := newLeaderboardFixture(t, boards)

	lb, err := svc.Generate(context.Background(), models.LeaderboardDaily, nil)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	for i, e := range lb.Entries {
		if e.Rank != i+1 {
			t.Errorf("entry %d rank = %d, want %d", i, e.Rank, i+1)
		}
	}
	if boards.upsertCalls != 1 {
		t.Errorf("upsertCalls = %d, want 1", boards.upsertCalls)
	}
	if !lb.ExpiresAt.Equal(lb.GeneratedAt.Add(24 * time.Hour)) {
		t.Errorf("daily expiry = %v, want generated+24h", lb.ExpiresAt)
	}
}

func TestSnapshotExpiry(t *testing.T) {
	generated := time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC)
	monthStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		scope string
		want  time.Time
	}{
		{models.LeaderboardDaily, generated.Add(24 * time.Hour)},
		{models.LeaderboardWeekly, generated.Add(7 * 24 * time.Hour)},
		{models.LeaderboardMonthly, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)},
		{models.LeaderboardAllTime, time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.scope, func(t *testing.T) {
			if got := snapshotExpiry(tt.scope, monthStart, generated); !got.Equal(tt.want) {
				t.Errorf("snapshotExpiry(%s) = %v, want %v", tt.scope, got, tt.want)
			}
		})
	}
}

func TestGetServesFreshSnapshot(t *testing.T) {
	boards := &stubLeaderboardStore{}
	svc := newLeaderboardFixture(t, boards)

	now := svc.now()
	boards.snapshot = &models.Leaderboard{
		Scope:       models.LeaderboardDaily,
		PeriodStart: PeriodStart(models.LeaderboardDaily, now),
		Entries:     []models.LeaderboardEntry{{Username: "cached", Rank: 1}},
		GeneratedAt: now.Add(-time.Minute),
		ExpiresAt:   now.Add(time.Hour),
	}

	lb, err := svc.Get(context.Background(), models.LeaderboardDaily, nil)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if boards.aggregateCalls != 0 {
		t.Error("fresh snapshot must not trigger regeneration")
	}
	if len(lb.Entries) != 1 || lb.Entries[0].Username != "cached" {
		t.Errorf("unexpected entries: %+v", lb.Entries)
	}
}

func TestGetRegeneratesExpiredSnapshot(t *testing.T) {
	boards := &stubLeaderboardStore{
		entries: []models.LeaderboardEntry{{Username: "fresh", Points: 10}},
	}
	svc := newLeaderboardFixture(t, boards)

	now := svc.now()
	boards.snapshot = &models.Leaderboard{
		Scope:     models.LeaderboardDaily,
		Entries:   []models.LeaderboardEntry{{Username: "stale"}},
		ExpiresAt: now.Add(-time.Minute),
	}

	lb, err := svc.Get(context.Background(), models.LeaderboardDaily, nil)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if boards.aggregateCalls != 1 {
		t.Errorf("aggregateCalls = %d, want 1", boards.aggregateCalls)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].Username != "fresh" {
		t.Errorf("unexpected entries: %+v", lb.Entries)
	}
}

func TestGetFallsBackToStaleSnapshotOnError(t *testing.T) {
	boards := &stubLeaderboardStore{aggregateErr: errors.New("db down")}
	svc := newLeaderboardFixture(t, boards)

	boards.snapshot = &models.Leaderboard{
		Scope:     models.LeaderboardDaily,
		Entries:   []models.LeaderboardEntry{{Username: "stale"}},
		ExpiresAt: svc.now().Add(-time.Minute),
	}

	lb, err := svc.Get(context.Background(), models.LeaderboardDaily, nil)
	if err != nil {
		t.Fatalf("Get() should serve stale over failing, got error: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].Username != "stale" {
		t.Errorf("unexpected entries: %+v", lb.Entries)
	}
}

func TestGetClanScopeRequiresClanID(t *testing.T) {
	svc := newLeaderboardFixture(t, &stubLeaderboardStore{})

	_, err := svc.Get(context.Background(), models.LeaderboardClan, nil)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	_, err = svc.Get(context.Background(), "bogus", nil)
	if !errors.As(err, &validation) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestGenerateClanScopeFiltersMembers(t *testing.T) {
	boards := &stubLeaderboardStore{}
	logger := zap.NewNop()
	clanID := uuid.New()
	members := []uuid.UUID{uuid.New(), uuid.New()}
	svc := NewLeaderboardService(boards, &stubMemberStore{members: map[uuid.UUID][]uuid.UUID{clanID: members}}, NewCacheService(nil, logger), logger)

	_, err := svc.Generate(context.Background(), models.LeaderboardClan, &clanID)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if len(boards.lastMemberIDs) != 2 {
		t.Errorf("memberIDs = %v, want the clan's 2 members", boards.lastMemberIDs)
	}
}

func TestUserRank(t *testing.T) {
	target := uuid.New()
	boards := &stubLeaderboardStore{
		entries: []models.LeaderboardEntry{
			{UserID: uuid.New(), Points: 500},
			{UserID: target, Points: 300},
			{UserID: uuid.New(), Points: 100},
			{UserID: uuid.New(), Points: 50},
		},
	}
	svc := newLeaderboardFixture(t, boards)

	rank, err := svc.UserRank(context.Background(), models.LeaderboardDaily, nil, target)
	if err != nil {
		t.Fatalf("UserRank() error: %v", err)
	}
	if rank.Rank == nil || *rank.Rank != 2 {
		t.Fatalf("rank = %v, want 2", rank.Rank)
	}
	if rank.Percentile == nil || *rank.Percentile != 75 {
		t.Errorf("percentile = %v, want 75", rank.Percentile)
	}

	// Unranked user gets nil rank but the board size.
	rank, err = svc.UserRank(context.Background(), models.LeaderboardDaily, nil, uuid.New())
	if err != nil {
		t.Fatalf("UserRank() error: %v", err)
	}
	if rank.Rank != nil {
		t.Errorf("rank = %v, want nil for unranked user", rank.Rank)
	}
	if rank.Total != 4 {
		t.Errorf("total = %d, want 4", rank.Total)
	}
}
