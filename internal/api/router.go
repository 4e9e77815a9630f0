package api

import (
	"cartflow/internal/metrics"
	"cartflow/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func RegisterRoutes(rankingHandler *RankingHandler, opsHandler *OpsHandler, rdb *redis.Client, requestsPerSecond int) *gin.Engine {
	r := gin.New()

	r.Use(
		middleware.CorsMiddleware(),
		middleware.RequestID(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
		middleware.TraceMiddleware(),
	)
	r.SetTrustedProxies(nil)

	r.GET("/health", opsHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// The ranking read path is the public hot path; it carries the limiter.
	readLimiter := middleware.RateLimitMiddleware(rdb, requestsPerSecond)

	v1 := r.Group("/v1")
	{
		v1.GET("/rankings", readLimiter, rankingHandler.GetRanking)
		v1.GET("/products/popular", readLimiter, rankingHandler.GetPopularProducts)
	}

	ops := r.Group("/v1/ops")
	{
		ops.GET("/rejected-tasks", opsHandler.ListRejectedTasks)
		ops.GET("/outbox/failed", opsHandler.ListFailedOutbox)
	}

	return r
}
