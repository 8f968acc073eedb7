package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"focusflow-backend/internal/config"
	"focusflow-backend/internal/models"
	"focusflow-backend/internal/repository"
)

// Store interfaces narrow the repositories to what this service touches;
// tests substitute in-memory fakes.

type SessionStore interface {
	Insert(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, error)
	FindOpenByUser(ctx context.Context, userID uuid.UUID) (*models.Session, error)
	UpdateIfOpen(ctx context.Context, s *models.Session) (bool, error)
	FinalizeIfOpen(ctx context.Context, s *models.Session) (bool, error)
	ListStaleActive(ctx context.Context, cutoff time.Time) ([]*models.Session, error)
	List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.Session, int, error)
	Delete(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)
	StatsSince(ctx context.Context, userID uuid.UUID, since time.Time) (*models.SessionStats, error)
	CountCompleted(ctx context.Context, userID uuid.UUID) (int, error)
}

type UserStore interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UpdateGamification(ctx context.Context, userID uuid.UUID, g models.Gamification) error
	UpdateHearts(ctx context.Context, userID uuid.UUID, hearts int, lastRegen time.Time) error
}

type ClanStore interface {
	AddSessionContribution(ctx context.Context, clanID, userID uuid.UUID, netPoints, durationSeconds int) error
}

// Event types pushed over the realtime channel.
const (
	EventSessionStarted    = "session_started"
	EventSessionPaused     = "session_paused"
	EventSessionResumed    = "session_resumed"
	EventSessionAutoPaused = "session_auto_paused"
	EventSessionCompleted  = "session_completed"
	EventHeartLost         = "heart_lost"
)

// Client-reported in-session events.
const (
	SessionEventBlockedSite = "blocked_site_attempt"
	SessionEventDistraction = "distraction"
)

const frameLockStripes = 64

// SessionService owns the session lifecycle state machine and the frame
// ingestion path. Frames for one session are serialized through a striped
// lock; different sessions proceed in parallel.
type SessionService struct {
	sessions   SessionStore
	users      UserStore
	clans      ClanStore
	cache      *CacheService
	points     *PointsService
	attention  *AttentionProcessor
	classifier Classifier
	queue      *JobQueue
	publisher  Publisher
	cfg        *config.Config
	logger     *zap.Logger

	frameLocks [frameLockStripes]sync.Mutex

	now func() time.Time
}

func NewSessionService(
	sessions SessionStore,
	users UserStore,
	clans ClanStore,
	cache *CacheService,
	points *PointsService,
	attention *AttentionProcessor,
	classifier Classifier,
	queue *JobQueue,
	publisher Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		sessions:   sessions,
		users:      users,
		clans:      clans,
		cache:      cache,
		points:     points,
		attention:  attention,
		classifier: classifier,
		queue:      queue,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Start opens a new active session. The cache check is advisory only; the
// database's partial unique index is what actually enforces one open session
// per user, so a concurrent duplicate start loses regardless of cache state.
func (s *SessionService) Start(ctx context.Context, userID uuid.UUID, tags []string, notes string) (*models.Session, error) {
	// The cache hit is only a hint: confirm against the store so a stale
	// entry can't block a legitimate start.
	if cached := s.cache.GetActiveSession(ctx, userID); cached != nil && models.IsOpenStatus(cached.Status) {
		open, err := s.sessions.FindOpenByUser(ctx, userID)
		if err != nil && !repository.IsNoRows(err) {
			return nil, err
		}
		if open != nil {
			return nil, &ConflictError{Message: "You already have an active session. End it before starting a new one."}
		}
		s.cache.ClearActiveSession(ctx, userID)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, err
	}

	now := s.now()
	if s.points.ApplyHeartRegen(&user.Gamification, now) {
		if err := s.users.UpdateHearts(ctx, userID, user.Gamification.CurrentHearts, user.Gamification.LastHeartRegen); err != nil {
			s.logger.Warn("heart regen persist failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
	if user.Gamification.CurrentHearts <= 0 {
		return nil, &ForbiddenError{Message: "No hearts remaining. Wait for hearts to regenerate before starting a session."}
	}

	session := &models.Session{
		UserID:    userID,
		StartTime: now,
		Status:    models.SessionActive,
		PauseLog:  []models.PauseEntry{},
		Notes:     notes,
		Tags:      tags,
		Attention: &models.AttentionState{},
	}

	if err := s.sessions.Insert(ctx, session); err != nil {
		if err == repository.ErrDuplicateOpenSession {
			return nil, &ConflictError{Message: "You already have an active session. End it before starting a new one."}
		}
		return nil, err
	}

	s.cache.SetActiveSession(ctx, session)
	s.publisher.PublishUserEvent(ctx, userID, models.WSMessage{
		Type:    EventSessionStarted,
		Payload: models.SessionEvent{SessionID: session.ID, Status: session.Status},
	})

	s.logger.Info("session started",
		zap.String("session_id", session.ID.String()),
		zap.String("user_id", userID.String()),
	)
	return session, nil
}

// Pause suspends an active session at the user's request. Pausing an
// already-paused session reports the current state rather than appending a
// second open pause entry.
func (s *SessionService) Pause(ctx context.Context, userID, sessionID uuid.UUID) (*models.Session, error) {
	session, err := s.getOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case models.SessionPaused, models.SessionAutoPaused:
		return session, nil
	case models.SessionActive:
	default:
		return nil, &ConflictError{Message: "Session has already ended"}
	}

	now := s.now()
	session.PauseLog = append(session.PauseLog, models.PauseEntry{PausedAt: now, Reason: models.PauseManual})
	session.Status = models.SessionPaused
	session.Analytics.TotalPauses++
	// A manual pause counts as half a distraction.
	session.Analytics.TotalDistractions += 0.5

	updated, err := s.sessions.UpdateIfOpen(ctx, session)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, &ConflictError{Message: "Session has already ended"}
	}
	s.cache.SetActiveSession(ctx, session)
	s.publisher.PublishUserEvent(ctx, userID, models.WSMessage{
		Type:    EventSessionPaused,
		Payload: models.SessionEvent{SessionID: session.ID, Status: session.Status},
	})
	return session, nil
}

// Resume reopens a paused or auto-paused session. Resuming an active session
// is a no-op report of the current state.
func (s *SessionService) Resume(ctx context.Context, userID, sessionID uuid.UUID) (*models.Session, error) {
	session, err := s.getOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case models.SessionActive:
		return session, nil
	case models.SessionPaused, models.SessionAutoPaused:
	default:
		return nil, &NotFoundError{Message: "No paused session to resume"}
	}

	now := s.now()
	if open := session.OpenPause(); open != nil {
		open.ResumedAt = &now
	}
	session.Status = models.SessionActive
	// Fresh windows on resume so the pause gap can't trip an instant
	// re-pause.
	if session.Attention != nil {
		session.Attention.Visibility = nil
		session.Attention.Distraction = nil
		session.Attention.MissingSince = nil
		session.Attention.DistractedSince = nil
	}

	updated, err := s.sessions.UpdateIfOpen(ctx, session)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, &NotFoundError{Message: "No paused session to resume"}
	}
	s.cache.SetActiveSession(ctx, session)
	s.publisher.PublishUserEvent(ctx, userID, models.WSMessage{
		Type:    EventSessionResumed,
		Payload: models.SessionEvent{SessionID: session.ID, Status: session.Status},
	})
	return session, nil
}

// SystemAutoPause suspends an active session on behalf of the attention
// processor or the stale-session sweep. Any other status is a no-op: the
// trigger raced with a user action and the user wins.
func (s *SessionService) SystemAutoPause(ctx context.Context, session *models.Session, reason string) error {
	if session.Status != models.SessionActive {
		return nil
	}

	s.applyAutoPause(session, reason, s.now())
	updated, err := s.sessions.UpdateIfOpen(ctx, session)
	if err != nil {
		return err
	}
	if !updated {
		// The session went terminal between the trigger and the write;
		// the user's action wins and the trigger evaporates.
		return nil
	}
	s.cache.SetActiveSession(ctx, session)
	s.publishAutoPause(ctx, session, reason)
	return nil
}

func (s *SessionService) applyAutoPause(session *models.Session, reason string, now time.Time) {
	session.PauseLog = append(session.PauseLog, models.PauseEntry{PausedAt: now, Reason: reason})
	session.Status = models.SessionAutoPaused
	session.Analytics.TotalPauses++
}

func (s *SessionService) publishAutoPause(ctx context.Context, session *models.Session, reason string) {
	s.publisher.PublishUserEvent(ctx, session.UserID, models.WSMessage{
		Type:    EventSessionAutoPaused,
		Payload: models.SessionEvent{SessionID: session.ID, Status: session.Status, Reason: reason},
	})
	s.logger.Info("session auto-paused",
		zap.String("session_id", session.ID.String()),
		zap.String("reason", reason),
	)
}

// End finalizes a session exactly once. If another writer finalized first the
// conditional update affects no rows and the fresh terminal state is returned
// as a success. Ending an already-ended session likewise just reports it.
func (s *SessionService) End(ctx context.Context, userID, sessionID uuid.UUID, notes, status string) (*models.Session, error) {
	if status == "" {
		status = models.SessionCompleted
	}
	if !models.IsTerminalStatus(status) {
		return nil, &ValidationError{Fields: map[string]string{"status": "must be completed or abandoned"}}
	}

	session, err := s.getOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalStatus(session.Status) {
		return session, nil
	}

	now := s.now()
	if open := session.OpenPause(); open != nil {
		open.ResumedAt = &now
	}

	session.EndTime = &now
	session.DurationSeconds = int(now.Sub(session.StartTime).Seconds())
	session.Status = status
	if notes != "" {
		session.Notes = notes
	}

	session.Analytics.AvgConcentrationScore = avgConcentration(session.Snapshots)
	productive := float64(session.DurationSeconds) - session.ClosedPauseSeconds()
	if productive < 0 {
		productive = 0
	}
	session.Analytics.TotalProductiveTime = productive

	score := s.points.CalculateSessionPoints(session)
	session.PointsEarned = score.PointsEarned
	session.PointsLost = score.PointsLost
	session.NetPoints = score.NetPoints

	finalized, err := s.sessions.FinalizeIfOpen(ctx, session)
	if err != nil {
		return nil, err
	}
	if !finalized {
		// Lost the finalize race; surface whatever won.
		fresh, err := s.sessions.GetByID(ctx, sessionID, userID)
		if err != nil {
			return nil, err
		}
		return fresh, nil
	}

	s.settleOutcome(ctx, session, score, now)
	return session, nil
}

// settleOutcome applies the score to the user and fans out the side effects
// of a completed session. Failures here are logged, not returned: the session
// itself is already durably finalized.
func (s *SessionService) settleOutcome(ctx context.Context, session *models.Session, score SessionScore, now time.Time) {
	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		s.logger.Error("user load failed after finalize",
			zap.String("user_id", session.UserID.String()), zap.Error(err))
		return
	}

	s.points.ApplySessionOutcome(&user.Gamification, score, now)
	if err := s.users.UpdateGamification(ctx, session.UserID, user.Gamification); err != nil {
		s.logger.Error("gamification persist failed",
			zap.String("user_id", session.UserID.String()), zap.Error(err))
	}

	if user.ClanID != nil && session.Status == models.SessionCompleted {
		if err := s.clans.AddSessionContribution(ctx, *user.ClanID, session.UserID, score.NetPoints, session.DurationSeconds); err != nil {
			s.logger.Error("clan contribution failed",
				zap.String("clan_id", user.ClanID.String()), zap.Error(err))
		}
		s.cache.InvalidateClan(ctx, *user.ClanID)
	}

	s.cache.ClearActiveSession(ctx, session.UserID)
	s.cache.InvalidateLeaderboards(ctx)

	for _, scope := range []string{models.LeaderboardDaily, models.LeaderboardWeekly, models.LeaderboardMonthly, models.LeaderboardAllTime} {
		s.queue.EnqueueRefresh(ctx, scope, nil)
	}
	if user.ClanID != nil {
		s.queue.EnqueueRefresh(ctx, models.LeaderboardClan, user.ClanID)
	}

	s.publisher.PublishUserEvent(ctx, session.UserID, models.WSMessage{
		Type: EventSessionCompleted,
		Payload: models.SessionEvent{
			SessionID: session.ID,
			Status:    session.Status,
			Points:    score.NetPoints,
			Level:     user.Gamification.Level,
		},
	})
	if score.HeartLost {
		s.publisher.PublishUserEvent(ctx, session.UserID, models.WSMessage{
			Type:    EventHeartLost,
			Payload: models.SessionEvent{SessionID: session.ID},
		})
	}

	s.logger.Info("session finalized",
		zap.String("session_id", session.ID.String()),
		zap.String("status", session.Status),
		zap.Int("net_points", score.NetPoints),
	)
}

// FrameResult pairs a frame's analysis with the session status after any
// auto-pause side effect of this call.
type FrameResult struct {
	Analysis      *models.FrameAnalysis `json:"analysis"`
	SessionStatus string                `json:"session_status"`
}

// SubmitFrame runs one camera frame through the classifier and the attention
// processor. Frames for the same session are serialized; a classifier failure
// drops the frame without touching the windows.
func (s *SessionService) SubmitFrame(ctx context.Context, userID, sessionID uuid.UUID, image string) (*FrameResult, error) {
	if image == "" {
		return nil, &ValidationError{Fields: map[string]string{"image": "image data is required"}}
	}

	lock := &s.frameLocks[frameStripe(sessionID)]
	lock.Lock()
	defer lock.Unlock()

	session, err := s.getOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !models.IsOpenStatus(session.Status) {
		return nil, &ConflictError{Message: "Session has already ended"}
	}

	result, err := s.classifier.Classify(ctx, image)
	if err != nil {
		// Transport failure, not an absence signal. Drop the frame.
		s.logger.Warn("frame dropped, classifier unavailable",
			zap.String("session_id", sessionID.String()), zap.Error(err))
		return &FrameResult{SessionStatus: session.Status}, nil
	}

	now := s.now()
	analysis, reason := s.attention.ProcessFrame(session, result, now)
	if reason != "" {
		s.applyAutoPause(session, reason, now)
	}

	updated, err := s.sessions.UpdateIfOpen(ctx, session)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, &ConflictError{Message: "Session has already ended"}
	}
	s.cache.SetActiveSession(ctx, session)
	if reason != "" {
		s.publishAutoPause(ctx, session, reason)
	}

	return &FrameResult{Analysis: analysis, SessionStatus: session.Status}, nil
}

// RecordEvent folds a client-reported event (blocked site attempt,
// self-reported distraction) into the open session's analytics.
func (s *SessionService) RecordEvent(ctx context.Context, userID, sessionID uuid.UUID, eventType string) (*models.Session, error) {
	session, err := s.getOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !models.IsOpenStatus(session.Status) {
		return nil, &ConflictError{Message: "Session has already ended"}
	}

	switch eventType {
	case SessionEventBlockedSite:
		session.Analytics.BlockedSiteAttempts++
	case SessionEventDistraction:
		session.Analytics.TotalDistractions++
	default:
		return nil, &ValidationError{Fields: map[string]string{"type": "unknown event type"}}
	}

	updated, err := s.sessions.UpdateIfOpen(ctx, session)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, &ConflictError{Message: "Session has already ended"}
	}
	s.cache.SetActiveSession(ctx, session)
	return session, nil
}

// Active returns the user's open session along with its elapsed focused time.
func (s *SessionService) Active(ctx context.Context, userID uuid.UUID) (*models.Session, int, error) {
	session, err := s.sessions.FindOpenByUser(ctx, userID)
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, 0, &NotFoundError{Message: "No active session"}
		}
		return nil, 0, err
	}

	elapsed := int(s.now().Sub(session.StartTime).Seconds() - session.ClosedPauseSeconds())
	if open := session.OpenPause(); open != nil {
		elapsed = int(open.PausedAt.Sub(session.StartTime).Seconds() - session.ClosedPauseSeconds())
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return session, elapsed, nil
}

func (s *SessionService) History(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.Session, int, error) {
	if status != "" && status != models.SessionCompleted && status != models.SessionAbandoned && !models.IsOpenStatus(status) {
		return nil, 0, &ValidationError{Fields: map[string]string{"status": "unknown status filter"}}
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.sessions.List(ctx, userID, status, limit, offset)
}

func (s *SessionService) Get(ctx context.Context, userID, sessionID uuid.UUID) (*models.Session, error) {
	return s.getOwned(ctx, sessionID, userID)
}

// Delete removes a finished session from the user's history. Open sessions
// must be ended first.
func (s *SessionService) Delete(ctx context.Context, userID, sessionID uuid.UUID) error {
	session, err := s.getOwned(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if models.IsOpenStatus(session.Status) {
		return &ConflictError{Message: "End the session before deleting it"}
	}

	deleted, err := s.sessions.Delete(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return &NotFoundError{Message: "Session not found"}
	}
	return nil
}

// Stats aggregates the user's completed sessions over a leaderboard-style
// period.
func (s *SessionService) Stats(ctx context.Context, userID uuid.UUID, period string) (*models.SessionStats, error) {
	if period == "" {
		period = models.LeaderboardAllTime
	}
	if !models.IsLeaderboardScope(period) || period == models.LeaderboardClan {
		return nil, &ValidationError{Fields: map[string]string{"period": "must be daily, weekly, monthly, or alltime"}}
	}
	return s.sessions.StatsSince(ctx, userID, PeriodStart(period, s.now()))
}

func (s *SessionService) getOwned(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID, userID)
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, err
	}
	return session, nil
}

func avgConcentration(snapshots []models.Snapshot) float64 {
	if len(snapshots) == 0 {
		return 0
	}
	var sum float64
	for _, snap := range snapshots {
		sum += snap.ConcentrationScore
	}
	return sum / float64(len(snapshots))
}

func frameStripe(id uuid.UUID) int {
	// FNV-1a over the raw uuid bytes.
	h := uint32(2166136261)
	for _, b := range id {
		h ^= uint32(b)
		h *= 16777619
	}
	return int(h % frameLockStripes)
}
