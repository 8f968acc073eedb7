package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"focusflow-backend/internal/models"
)

// Publisher pushes realtime events toward a user's connected clients. It is
// injected so services never depend on the websocket layer directly; tests
// substitute a recording fake.
type Publisher interface {
	PublishUserEvent(ctx context.Context, userID uuid.UUID, msg models.WSMessage)
}

// RedisPublisher fans events out through redis pub/sub; the websocket hub on
// each instance subscribes and forwards to its local connections.
type RedisPublisher struct {
	redis  *redis.Client
	logger *zap.Logger
}

func NewRedisPublisher(redisClient *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{redis: redisClient, logger: logger}
}

// UserChannel is the pub/sub channel carrying one user's realtime events.
func UserChannel(userID uuid.UUID) string {
	return "user_updates:" + userID.String()
}

func (p *RedisPublisher) PublishUserEvent(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	if p.redis == nil {
		return
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := p.redis.Publish(ctx, UserChannel(userID), raw).Err(); err != nil {
		p.logger.Warn("event publish failed",
			zap.String("user_id", userID.String()),
			zap.String("type", msg.Type),
			zap.Error(err),
		)
	}
}

// LeaderboardQueueKey is the redis list drained by the refresh worker.
const LeaderboardQueueKey = "queue:leaderboard-refresh"

// JobQueue enqueues background work onto a redis list. Best-effort: a failed
// enqueue is logged, not surfaced, because the durable snapshot regenerates
// on the next stale read anyway.
type JobQueue struct {
	redis  *redis.Client
	logger *zap.Logger
}

func NewJobQueue(redisClient *redis.Client, logger *zap.Logger) *JobQueue {
	return &JobQueue{redis: redisClient, logger: logger}
}

func (q *JobQueue) EnqueueRefresh(ctx context.Context, scope string, clanID *uuid.UUID) {
	if q.redis == nil {
		return
	}

	job := models.RefreshJob{ID: uuid.New(), Scope: scope, ClanID: clanID}
	raw, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := q.redis.LPush(ctx, LeaderboardQueueKey, raw).Err(); err != nil {
		q.logger.Warn("refresh enqueue failed", zap.String("scope", scope), zap.Error(err))
	}
}
