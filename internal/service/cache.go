package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"cartflow/internal/config"
	"cartflow/internal/metrics"
	"cartflow/internal/repository"
	"cartflow/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
	"go.uber.org/zap"
)

const (
	popularProductsKey  = "products:popular:top5"
	popularProductsSize = 5

	lockKeyCacheRefresh = "cartflow:cache:popular:lock"
)

// PopularProductsCache keeps a pre-rendered top-5 snapshot of the weekly
// leaderboard in Redis so the hot read path never touches MySQL. The snapshot
// TTL deliberately exceeds the refresh interval: a missed refresh serves a
// stale list instead of an empty one.
type PopularProductsCache struct {
	rdb      *redis.Client
	ranking  *RankingService
	locker   Locker
	observer metrics.CacheObserver
	cfg      config.CacheConfig
}

func NewPopularProductsCache(rdb *redis.Client, ranking *RankingService, locker Locker, observer metrics.CacheObserver, cfg config.CacheConfig) *PopularProductsCache {
	return &PopularProductsCache{
		rdb:      rdb,
		ranking:  ranking,
		locker:   locker,
		observer: observer,
		cfg:      cfg,
	}
}

func (p *PopularProductsCache) Run(ctx context.Context) {
	p.EnsureInitialized(ctx)

	c := cron.New()
	if err := c.AddFunc(p.cfg.RefreshCron, func() {
		release, ok := p.locker.TryLock(ctx, lockKeyCacheRefresh)
		if !ok {
			return
		}
		defer release()
		p.Refresh(ctx)
	}); err != nil {
		logger.Error("invalid cache refresh cron expression",
			zap.String("cron", p.cfg.RefreshCron), zap.Error(err))
	} else {
		c.Start()
	}

	<-ctx.Done()
	c.Stop()
	logger.Info("popular products cache stopped")
}

// EnsureInitialized warms the cache on startup if the key is missing, so the
// first reader after a cold deploy does not wait for the nightly cron.
func (p *PopularProductsCache) EnsureInitialized(ctx context.Context) {
	err := p.rdb.Get(ctx, popularProductsKey).Err()
	if err == nil {
		return
	}
	if !errors.Is(err, redis.Nil) {
		logger.Error("failed to check popular products cache", zap.Error(err))
		return
	}

	release, ok := p.locker.TryLock(ctx, lockKeyCacheRefresh)
	if !ok {
		return
	}
	defer release()
	p.Refresh(ctx)
}

func (p *PopularProductsCache) Refresh(ctx context.Context) {
	start := time.Now()

	snapshot, err := p.ranking.GetTopRanking(ctx, repository.RankingWeekly, popularProductsSize)
	if err != nil {
		logger.Error("popular products refresh failed", zap.Error(err))
		p.observer.IncRefreshFailure()
		return
	}

	body, err := json.Marshal(snapshot.Rankings)
	if err != nil {
		logger.Error("failed to serialize popular products", zap.Error(err))
		p.observer.IncRefreshFailure()
		return
	}

	if err := p.rdb.Set(ctx, popularProductsKey, body, p.cfg.TTL).Err(); err != nil {
		logger.Error("failed to write popular products cache", zap.Error(err))
		p.observer.IncRefreshFailure()
		return
	}

	p.observer.IncRefreshSuccess()
	p.observer.ObserveRefresh(time.Since(start).Seconds())
	p.observer.SetLastRefreshSuccess(float64(time.Now().Unix()))
	logger.Info("popular products cache refreshed",
		zap.Int("count", len(snapshot.Rankings)),
		zap.Duration("took", time.Since(start)))
}

// Get returns the cached snapshot. A miss returns an empty slice, not an
// error; callers fall back to the live ranking endpoint.
func (p *PopularProductsCache) Get(ctx context.Context) ([]json.RawMessage, error) {
	body, err := p.rdb.Get(ctx, popularProductsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, err
	}
	return items, nil
}
