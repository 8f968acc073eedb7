package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"focusflow-backend/internal/models"
)

// ErrDuplicateOpenSession is returned when the partial unique index rejects a
// second open session for the same user.
var ErrDuplicateOpenSession = errors.New("user already has an open session")

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `
	id, user_id, start_time, end_time, duration_seconds, status,
	pause_log, analytics, snapshots, attention_state, last_frame_at,
	points_earned, points_lost, net_points, notes, tags, created_at, updated_at
`

// Insert creates a session in active status. The one-open-session-per-user
// invariant is enforced by the database, not by a read-then-write check.
func (r *SessionRepo) Insert(ctx context.Context, s *models.Session) error {
	pauseLog, analytics, snapshots, attention, err := marshalSessionJSON(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (user_id, start_time, status, pause_log, analytics, snapshots, attention_state, notes, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		s.UserID, s.StartTime, s.Status, pauseLog, analytics, snapshots, attention, s.Notes, s.Tags,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateOpenSession
	}
	return err
}

func (r *SessionRepo) GetByID(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 AND user_id = $2`
	return r.scanSession(r.pool.QueryRow(ctx, query, sessionID, userID))
}

// FindOpenByUser returns the user's session in an open status, if any.
func (r *SessionRepo) FindOpenByUser(ctx context.Context, userID uuid.UUID) (*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND status IN ('active', 'paused', 'auto_paused')
	`
	return r.scanSession(r.pool.QueryRow(ctx, query, userID))
}

// UpdateIfOpen persists every mutable field of the session, guarded on the
// row still being in an open status. A false return means another writer
// finalized the session in the meantime; the terminal row is left untouched.
func (r *SessionRepo) UpdateIfOpen(ctx context.Context, s *models.Session) (bool, error) {
	pauseLog, analytics, snapshots, attention, err := marshalSessionJSON(s)
	if err != nil {
		return false, err
	}

	var lastFrameAt *time.Time
	if s.Attention != nil {
		lastFrameAt = s.Attention.LastFrameAt
	}

	query := `
		UPDATE sessions
		SET end_time = $2,
			duration_seconds = $3,
			status = $4,
			pause_log = $5,
			analytics = $6,
			snapshots = $7,
			attention_state = $8,
			last_frame_at = $9,
			points_earned = $10,
			points_lost = $11,
			net_points = $12,
			notes = $13,
			updated_at = NOW()
		WHERE id = $1 AND status IN ('active', 'paused', 'auto_paused')
	`

	tag, err := r.pool.Exec(ctx, query,
		s.ID, s.EndTime, s.DurationSeconds, s.Status,
		pauseLog, analytics, snapshots, attention, lastFrameAt,
		s.PointsEarned, s.PointsLost, s.NetPoints, s.Notes,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FinalizeIfOpen writes the terminal state only if the session is still open.
// A false return means another writer finalized first (last-writer contract).
func (r *SessionRepo) FinalizeIfOpen(ctx context.Context, s *models.Session) (bool, error) {
	pauseLog, analytics, snapshots, _, err := marshalSessionJSON(s)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE sessions
		SET end_time = $2,
			duration_seconds = $3,
			status = $4,
			pause_log = $5,
			analytics = $6,
			snapshots = $7,
			attention_state = NULL,
			points_earned = $8,
			points_lost = $9,
			net_points = $10,
			notes = $11,
			updated_at = NOW()
		WHERE id = $1 AND status IN ('active', 'paused', 'auto_paused')
	`

	tag, err := r.pool.Exec(ctx, query,
		s.ID, s.EndTime, s.DurationSeconds, s.Status,
		pauseLog, analytics, snapshots,
		s.PointsEarned, s.PointsLost, s.NetPoints, s.Notes,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListStaleActive returns active sessions whose frame stream has gone silent:
// no frame since the cutoff, or no frame at all and started before the cutoff.
func (r *SessionRepo) ListStaleActive(ctx context.Context, cutoff time.Time) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE status = 'active'
		  AND COALESCE(last_frame_at, start_time) < $1
	`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// List returns the user's sessions newest first, without snapshots (they can
// be large), optionally filtered by status.
func (r *SessionRepo) List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.Session, int, error) {
	where := "WHERE user_id = $1"
	args := []interface{}{userID}
	if status != "" {
		where += " AND status = $2"
		args = append(args, status)
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM sessions "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, start_time, end_time, duration_seconds, status,
			pause_log, analytics, '[]'::jsonb, NULL::jsonb, last_frame_at,
			points_earned, points_lost, net_points, notes, tags, created_at, updated_at
		FROM sessions %s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d
	`, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, s)
	}
	return sessions, total, rows.Err()
}

func (r *SessionRepo) Delete(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		"DELETE FROM sessions WHERE id = $1 AND user_id = $2", sessionID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// StatsSince aggregates the user's completed sessions created at or after the
// given time.
func (r *SessionRepo) StatsSince(ctx context.Context, userID uuid.UUID, since time.Time) (*models.SessionStats, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(duration_seconds), 0),
			COALESCE(SUM((analytics->>'total_productive_time')::float), 0),
			COALESCE(SUM(net_points), 0),
			COALESCE(AVG((analytics->>'avg_concentration_score')::float), 0),
			COALESCE(SUM((analytics->>'total_distractions')::float), 0),
			COALESCE(SUM((analytics->>'total_pauses')::int), 0)
		FROM sessions
		WHERE user_id = $1 AND status = 'completed' AND created_at >= $2
	`

	stats := &models.SessionStats{}
	err := r.pool.QueryRow(ctx, query, userID, since).Scan(
		&stats.TotalSessions,
		&stats.TotalTime,
		&stats.TotalProductiveTime,
		&stats.TotalPoints,
		&stats.AvgConcentration,
		&stats.TotalDistractions,
		&stats.TotalPauses,
	)
	if err != nil {
		return nil, err
	}

	if stats.TotalTime > 0 {
		stats.Efficiency = stats.TotalProductiveTime / float64(stats.TotalTime) * 100
	}
	return stats, nil
}

// CountCompleted returns the user's completed-session count.
func (r *SessionRepo) CountCompleted(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM sessions WHERE user_id = $1 AND status = 'completed'", userID).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SessionRepo) scanSession(row rowScanner) (*models.Session, error) {
	s := &models.Session{}
	var pauseLog, analytics, snapshots, attention []byte
	var lastFrameAt *time.Time

	err := row.Scan(
		&s.ID, &s.UserID, &s.StartTime, &s.EndTime, &s.DurationSeconds, &s.Status,
		&pauseLog, &analytics, &snapshots, &attention, &lastFrameAt,
		&s.PointsEarned, &s.PointsLost, &s.NetPoints, &s.Notes, &s.Tags, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(pauseLog) > 0 {
		if err := json.Unmarshal(pauseLog, &s.PauseLog); err != nil {
			return nil, fmt.Errorf("failed to decode pause log: %w", err)
		}
	}
	if len(analytics) > 0 {
		if err := json.Unmarshal(analytics, &s.Analytics); err != nil {
			return nil, fmt.Errorf("failed to decode analytics: %w", err)
		}
	}
	if len(snapshots) > 0 {
		if err := json.Unmarshal(snapshots, &s.Snapshots); err != nil {
			return nil, fmt.Errorf("failed to decode snapshots: %w", err)
		}
	}
	if len(attention) > 0 {
		s.Attention = &models.AttentionState{}
		if err := json.Unmarshal(attention, s.Attention); err != nil {
			return nil, fmt.Errorf("failed to decode attention state: %w", err)
		}
	}
	if lastFrameAt != nil {
		if s.Attention == nil {
			s.Attention = &models.AttentionState{}
		}
		s.Attention.LastFrameAt = lastFrameAt
	}
	return s, nil
}

func marshalSessionJSON(s *models.Session) (pauseLog, analytics, snapshots, attention []byte, err error) {
	if s.PauseLog == nil {
		s.PauseLog = []models.PauseEntry{}
	}
	if s.Snapshots == nil {
		s.Snapshots = []models.Snapshot{}
	}

	pauseLog, err = json.Marshal(s.PauseLog)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode pause log: %w", err)
	}
	analytics, err = json.Marshal(s.Analytics)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode analytics: %w", err)
	}
	snapshots, err = json.Marshal(s.Snapshots)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode snapshots: %w", err)
	}
	if s.Attention != nil {
		attention, err = json.Marshal(s.Attention)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to encode attention state: %w", err)
		}
	}
	return pauseLog, analytics, snapshots, attention, nil
}

// IsNoRows reports whether err is the pgx "no rows" sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
