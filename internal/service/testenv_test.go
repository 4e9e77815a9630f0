package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cartflow/internal/config"
	"cartflow/internal/event"
	"cartflow/internal/model"
	"cartflow/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.OutboxEvent{},
		&model.ProcessedEvent{},
		&model.RejectedTask{},
		&model.FailedPlatformEvent{},
		&model.Product{},
	))
	return db
}

func testOutboxConfig() config.OutboxConfig {
	return config.OutboxConfig{
		BatchSize:         100,
		MaxRetry:          3,
		RetentionDays:     7,
		ProcessingTimeout: 10 * time.Minute,
		RelayInterval:     5 * time.Second,
		RetryInterval:     time.Minute,
		StuckInterval:     5 * time.Minute,
		CleanupCron:       "0 0 4 * * *",
		PublishTimeout:    time.Second,
	}
}

// fakePublisher records envelopes and fails on demand.
type fakePublisher struct {
	mu        sync.Mutex
	published []event.Envelope
	failures  int
}

func (p *fakePublisher) Publish(ctx context.Context, env event.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("transport unavailable")
	}
	p.published = append(p.published, env)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

// fakeRankingStore keeps scores in memory; used where the Redis behavior
// itself is not under test.
type fakeRankingStore struct {
	mu     sync.Mutex
	scores map[repository.RankingType]map[int64]float64
	err    error
}

func newFakeRankingStore() *fakeRankingStore {
	return &fakeRankingStore{
		scores: map[repository.RankingType]map[int64]float64{
			repository.RankingDaily:  {},
			repository.RankingWeekly: {},
		},
	}
}

func (s *fakeRankingStore) IncrementScore(ctx context.Context, typ repository.RankingType, productID int64, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.scores[typ][productID] += delta
	return nil
}

func (s *fakeRankingStore) GetTopRanking(ctx context.Context, typ repository.RankingType, limit int) ([]repository.RankingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	entries := make([]repository.RankingEntry, 0, len(s.scores[typ]))
	for id, score := range s.scores[typ] {
		entries = append(entries, repository.RankingEntry{ProductID: id, Score: score})
	}
	for i := range entries {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].Score > entries[i].Score {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

func (s *fakeRankingStore) GetRank(ctx context.Context, typ repository.RankingType, productID int64) (*int64, error) {
	return nil, nil
}

func (s *fakeRankingStore) GetScore(ctx context.Context, typ repository.RankingType, productID int64) (*float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.scores[typ][productID]
	if !ok {
		return nil, nil
	}
	return &score, nil
}

func (s *fakeRankingStore) score(typ repository.RankingType, productID int64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores[typ][productID]
}

// fakeProductRepo serves a fixed catalog.
type fakeProductRepo struct {
	products map[int64]model.Product
}

func (r *fakeProductRepo) FindByID(ctx context.Context, id int64) (*model.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r *fakeProductRepo) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	var out []model.Product
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// fakePlatformClient implements both downstream client interfaces.
type fakePlatformClient struct {
	mu        sync.Mutex
	orderData int
	notified  int
	err       error
}

func (c *fakePlatformClient) SendOrderData(ctx context.Context, ev event.PaymentCompletedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.orderData++
	return nil
}

func (c *fakePlatformClient) SendOrderConfirmation(ctx context.Context, ev event.PaymentCompletedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.notified++
	return nil
}
