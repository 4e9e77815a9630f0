package api

import (
	"context"
	"net/http"

	"cartflow/internal/dto/req"
	"cartflow/internal/dto/resp"
	"cartflow/internal/repository"
	"cartflow/internal/service"

	"github.com/gin-gonic/gin"
)

type RankingProvider interface {
	GetTopRanking(ctx context.Context, typ repository.RankingType, limit int) (*resp.RealtimeRankingResponse, error)
}

type RankingHandler struct {
	service RankingProvider
	cache   *service.PopularProductsCache
}

func NewRankingHandler(service RankingProvider, cache *service.PopularProductsCache) *RankingHandler {
	return &RankingHandler{
		service: service,
		cache:   cache,
	}
}

func (h *RankingHandler) GetRanking(c *gin.Context) {
	r := req.GetRankingRequest{Type: string(repository.RankingDaily)}
	if err := c.ShouldBindQuery(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid params"})
		return
	}

	typ := repository.RankingType(r.Type)
	if typ != repository.RankingDaily && typ != repository.RankingWeekly {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be DAILY or WEEKLY"})
		return
	}

	ranking, err := h.service.GetTopRanking(c.Request.Context(), typ, r.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ranking)
}

func (h *RankingHandler) GetPopularProducts(c *gin.Context) {
	items, err := h.cache.Get(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": items, "totalCount": len(items)})
}
