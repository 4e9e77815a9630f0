package service

import (
	"context"
	"fmt"

	"cartflow/internal/dto/resp"
	"cartflow/internal/model"
	"cartflow/internal/repository"
	"cartflow/pkg/logger"

	"go.uber.org/zap"
)

// RankingService owns both sides of the leaderboard: turning order-completed
// signal into score increments and turning a ranking snapshot into a
// product-enriched response.
type RankingService struct {
	store        repository.RankingStoreInterface
	products     repository.ProductInterface
	defaultLimit int
	maxLimit     int
}

func NewRankingService(store repository.RankingStoreInterface, products repository.ProductInterface, defaultLimit, maxLimit int) *RankingService {
	return &RankingService{
		store:        store,
		products:     products,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// UpdateRanking increments both the daily and the weekly scope. Partial
// failure propagates to the caller; retry policy belongs to the consumption
// path, which relies on at-least-once redelivery.
func (s *RankingService) UpdateRanking(ctx context.Context, productID int64, quantity int) error {
	if productID <= 0 || quantity <= 0 {
		logger.Warn("ignoring invalid ranking update",
			zap.Int64("product_id", productID), zap.Int("quantity", quantity))
		return nil
	}

	if err := s.store.IncrementScore(ctx, repository.RankingDaily, productID, float64(quantity)); err != nil {
		return fmt.Errorf("daily ranking update: %w", err)
	}
	if err := s.store.IncrementScore(ctx, repository.RankingWeekly, productID, float64(quantity)); err != nil {
		return fmt.Errorf("weekly ranking update: %w", err)
	}

	logger.Info("ranking updated",
		zap.Int64("product_id", productID), zap.Int("quantity", quantity))
	return nil
}

// GetTopRanking fetches the leaderboard and joins it against the product
// catalog. Entries whose product no longer exists are dropped with a warning;
// the survivors keep their already-computed rank numbers.
func (s *RankingService) GetTopRanking(ctx context.Context, typ repository.RankingType, limit int) (*resp.RealtimeRankingResponse, error) {
	actual := s.resolveLimit(limit)

	entries, err := s.store.GetTopRanking(ctx, typ, actual)
	if err != nil {
		return nil, fmt.Errorf("fetch ranking: %w", err)
	}
	if len(entries) == 0 {
		return &resp.RealtimeRankingResponse{
			Rankings:    []resp.RankingProduct{},
			RankingType: string(typ),
		}, nil
	}

	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ProductID
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load ranked products: %w", err)
	}
	byID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	rankings := make([]resp.RankingProduct, 0, len(entries))
	for _, entry := range entries {
		product, ok := byID[entry.ProductID]
		if !ok {
			logger.Warn("ranked product no longer in catalog",
				zap.Int64("product_id", entry.ProductID))
			continue
		}
		rankings = append(rankings, resp.RankingProduct{
			Rank:        entry.Rank,
			ProductID:   product.ID,
			ProductName: product.Name,
			Category:    product.Category,
			Status:      product.Status,
			SalesCount:  int(entry.Score),
		})
	}

	logger.Debug("realtime ranking fetched",
		zap.String("type", string(typ)), zap.Int("count", len(rankings)))
	return &resp.RealtimeRankingResponse{
		Rankings:    rankings,
		RankingType: string(typ),
		TotalCount:  len(rankings),
	}, nil
}

func (s *RankingService) resolveLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}
