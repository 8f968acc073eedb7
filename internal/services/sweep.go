package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"focusflow-backend/internal/config"
	"focusflow-backend/internal/models"
)

// StaleSweep auto-pauses active sessions whose frame stream has gone silent.
// The frame-driven absence detection can't fire when no frames arrive at all
// (tab hidden, network loss), so a fixed-interval sweep covers that gap.
type StaleSweep struct {
	sessions SessionStore
	svc      *SessionService
	cfg      *config.Config
	logger   *zap.Logger
	stopChan chan struct{}
}

func NewStaleSweep(sessions SessionStore, svc *SessionService, cfg *config.Config, logger *zap.Logger) *StaleSweep {
	return &StaleSweep{
		sessions: sessions,
		svc:      svc,
		cfg:      cfg,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

func (s *StaleSweep) Start() {
	go s.loop()
	s.logger.Info("stale-session sweep started",
		zap.Duration("interval", s.cfg.SweepInterval),
		zap.Duration("no_frame_timeout", s.cfg.NoFrameTimeout),
	)
}

func (s *StaleSweep) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
}

func (s *StaleSweep) loop() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunOnce(context.Background(), time.Now())
		}
	}
}

// RunOnce pauses every active session without a frame since the no-frame
// timeout. A session that raced to a different status between the query and
// the pause is skipped by SystemAutoPause's status guard.
func (s *StaleSweep) RunOnce(ctx context.Context, now time.Time) {
	cutoff := now.Add(-s.cfg.NoFrameTimeout)

	stale, err := s.sessions.ListStaleActive(ctx, cutoff)
	if err != nil {
		s.logger.Error("stale-session scan failed", zap.Error(err))
		return
	}

	for _, session := range stale {
		if err := s.svc.SystemAutoPause(ctx, session, models.PauseNoFrames); err != nil {
			s.logger.Error("sweep auto-pause failed",
				zap.String("session_id", session.ID.String()), zap.Error(err))
			continue
		}
		s.logger.Info("stale session auto-paused",
			zap.String("session_id", session.ID.String()),
			zap.String("user_id", session.UserID.String()),
		)
	}
}
