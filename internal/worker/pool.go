package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"focusflow-backend/internal/models"
	"focusflow-backend/internal/services"
)

// Pool drains the leaderboard-refresh queue. Session completion enqueues one
// job per affected scope; workers regenerate the snapshots off the request
// path so reads stay cheap. A SetNX lock keyed by job ID deduplicates work
// when multiple instances pop the same job after a redelivery.
type Pool struct {
	redis        *redis.Client
	leaderboards *services.LeaderboardService
	boards       services.LeaderboardStore
	workerCount  int
	logger       *zap.Logger
	stopChan     chan struct{}
}

func NewPool(
	redisClient *redis.Client,
	leaderboards *services.LeaderboardService,
	boards services.LeaderboardStore,
	workerCount int,
	logger *zap.Logger,
) *Pool {
	return &Pool{
		redis:        redisClient,
		leaderboards: leaderboards,
		boards:       boards,
		workerCount:  workerCount,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	go p.pruneLoop()

	p.logger.Info("leaderboard refresh workers started", zap.Int("count", p.workerCount))
}

func (p *Pool) Stop() {
	select {
	case <-p.stopChan:
		return
	default:
		close(p.stopChan)
	}
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			p.logger.Debug("worker shutting down", zap.Int("worker", id))
			return
		default:
		}

		ctx := context.Background()

		result, err := p.redis.BLPop(ctx, 30*time.Second, services.LeaderboardQueueKey).Result()
		if err != nil {
			// Timeout or transient error; poll again.
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job models.RefreshJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			p.logger.Warn("discarding malformed refresh job", zap.Int("worker", id), zap.Error(err))
			continue
		}

		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 5*time.Minute).Result()
		if err != nil || !locked {
			continue
		}

		if err := p.process(ctx, &job); err != nil {
			p.logger.Error("leaderboard refresh failed",
				zap.Int("worker", id),
				zap.String("scope", job.Scope),
				zap.Error(err),
			)
		} else {
			p.logger.Info("leaderboard refreshed",
				zap.Int("worker", id),
				zap.String("scope", job.Scope),
			)
		}

		p.redis.Del(ctx, lockKey)
	}
}

func (p *Pool) process(ctx context.Context, job *models.RefreshJob) error {
	if !models.IsLeaderboardScope(job.Scope) {
		return fmt.Errorf("unknown scope: %s", job.Scope)
	}
	_, err := p.leaderboards.Generate(ctx, job.Scope, job.ClanID)
	return err
}

// pruneLoop deletes expired snapshots hourly. Reads never depend on pruning;
// this only keeps the table from accumulating dead periods.
func (p *Pool) pruneLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			n, err := p.boards.PruneExpired(context.Background(), time.Now())
			if err != nil {
				p.logger.Warn("snapshot prune failed", zap.Error(err))
				continue
			}
			if n > 0 {
				p.logger.Info("pruned expired leaderboard snapshots", zap.Int64("count", n))
			}
		}
	}
}
