package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"focusflow-backend/internal/models"
)

// Cache TTLs.
const (
	activeSessionTTL  = time.Hour
	leaderboardTTL    = 5 * time.Minute
	leaderboardKeyPre = "leaderboard:"
)

// CacheService is a best-effort layer over redis. Every method degrades to a
// miss (or a no-op) on error; authoritative state always lives in postgres.
type CacheService struct {
	redis  *redis.Client
	logger *zap.Logger
}

func NewCacheService(redisClient *redis.Client, logger *zap.Logger) *CacheService {
	return &CacheService{redis: redisClient, logger: logger}
}

func activeSessionKey(userID uuid.UUID) string {
	return "user:" + userID.String() + ":session:active"
}

func (c *CacheService) GetActiveSession(ctx context.Context, userID uuid.UUID) *models.Session {
	if c.redis == nil {
		return nil
	}

	raw, err := c.redis.Get(ctx, activeSessionKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get failed", zap.String("key", activeSessionKey(userID)), zap.Error(err))
		}
		return nil
	}

	var s models.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		c.logger.Warn("cache entry corrupt, dropping", zap.String("key", activeSessionKey(userID)), zap.Error(err))
		c.redis.Del(ctx, activeSessionKey(userID))
		return nil
	}
	return &s
}

func (c *CacheService) SetActiveSession(ctx context.Context, s *models.Session) {
	if c.redis == nil {
		return
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, activeSessionKey(s.UserID), raw, activeSessionTTL).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", activeSessionKey(s.UserID)), zap.Error(err))
	}
}

func (c *CacheService) ClearActiveSession(ctx context.Context, userID uuid.UUID) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, activeSessionKey(userID)).Err(); err != nil {
		c.logger.Warn("cache delete failed", zap.String("key", activeSessionKey(userID)), zap.Error(err))
	}
}

func leaderboardKey(scope string, clanID *uuid.UUID) string {
	key := leaderboardKeyPre + scope
	if clanID != nil {
		key += ":" + clanID.String()
	}
	return key
}

func (c *CacheService) GetLeaderboard(ctx context.Context, scope string, clanID *uuid.UUID) *models.Leaderboard {
	if c.redis == nil {
		return nil
	}

	raw, err := c.redis.Get(ctx, leaderboardKey(scope, clanID)).Bytes()
	if err != nil {
		return nil
	}

	var lb models.Leaderboard
	if err := json.Unmarshal(raw, &lb); err != nil {
		return nil
	}
	return &lb
}

func (c *CacheService) SetLeaderboard(ctx context.Context, lb *models.Leaderboard) {
	if c.redis == nil {
		return
	}

	raw, err := json.Marshal(lb)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, leaderboardKey(lb.Scope, lb.ClanID), raw, leaderboardTTL).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("scope", lb.Scope), zap.Error(err))
	}
}

// InvalidateLeaderboards drops every fast-cache leaderboard entry. The
// durable snapshots stay; they regenerate on the next stale read.
func (c *CacheService) InvalidateLeaderboards(ctx context.Context) {
	if c.redis == nil {
		return
	}

	iter := c.redis.Scan(ctx, 0, leaderboardKeyPre+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("leaderboard cache scan failed", zap.Error(err))
		return
	}
	if len(keys) > 0 {
		c.redis.Del(ctx, keys...)
	}
}

// InvalidateClan drops cached state keyed to a clan.
func (c *CacheService) InvalidateClan(ctx context.Context, clanID uuid.UUID) {
	if c.redis == nil {
		return
	}

	iter := c.redis.Scan(ctx, 0, "clan:"+clanID.String()+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if iter.Err() == nil && len(keys) > 0 {
		c.redis.Del(ctx, keys...)
	}
}
