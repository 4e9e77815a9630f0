package api

import (
	"net/http"
	"strconv"

	"cartflow/internal/dto/resp"
	"cartflow/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// OpsHandler exposes the dead-letter and outbox backlogs to operators. Terminal
// FAILED rows never leave the system on their own, so this is where they
// surface.
type OpsHandler struct {
	outbox   repository.OutboxInterface
	rejected repository.RejectedTaskInterface
	db       *gorm.DB
	rdb      *redis.Client
}

func NewOpsHandler(outbox repository.OutboxInterface, rejected repository.RejectedTaskInterface, db *gorm.DB, rdb *redis.Client) *OpsHandler {
	return &OpsHandler{
		outbox:   outbox,
		rejected: rejected,
		db:       db,
		rdb:      rdb,
	}
}

func (h *OpsHandler) ListRejectedTasks(c *gin.Context) {
	status := c.DefaultQuery("status", "")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	tasks, err := h.rejected.List(c.Request.Context(), status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp.RejectedTaskList{Tasks: tasks, TotalCount: len(tasks)})
}

func (h *OpsHandler) ListFailedOutbox(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	events, err := h.outbox.FindFailed(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp.FailedOutboxList{Events: events, TotalCount: len(events)})
}

func (h *OpsHandler) HealthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}

	if err := h.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
