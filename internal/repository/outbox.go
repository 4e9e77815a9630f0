package repository

import (
	"context"
	"time"

	"cartflow/internal/model"

	"gorm.io/gorm"
)

type OutboxInterface interface {
	Save(ctx context.Context, ev *model.OutboxEvent) error
	FindByID(ctx context.Context, id int64) (*model.OutboxEvent, error)
	FindPending(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	FindFailedForRetry(ctx context.Context, maxRetry, limit int) ([]model.OutboxEvent, error)
	FindStuckProcessing(ctx context.Context, threshold time.Time, limit int) ([]model.OutboxEvent, error)
	FindFailed(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	ClaimProcessing(ctx context.Context, id int64) (bool, error)
	DeletePublishedBefore(ctx context.Context, before time.Time) (int64, error)
	WithTx(tx *gorm.DB) OutboxInterface
}

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Save(ctx context.Context, ev *model.OutboxEvent) error {
	return r.db.WithContext(ctx).Save(ev).Error
}

func (r *OutboxRepository) FindByID(ctx context.Context, id int64) (*model.OutboxEvent, error) {
	var ev model.OutboxEvent
	if err := r.db.WithContext(ctx).First(&ev, id).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

// FindPending returns PENDING rows in commit order so per-aggregate ordering
// is preserved downstream.
func (r *OutboxRepository) FindPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var events []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *OutboxRepository) FindFailedForRetry(ctx context.Context, maxRetry, limit int) ([]model.OutboxEvent, error) {
	var events []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("status = ? AND retry_count < ?", model.OutboxFailed, maxRetry).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// FindStuckProcessing returns rows abandoned mid-publish: still PROCESSING but
// not touched since the threshold.
func (r *OutboxRepository) FindStuckProcessing(ctx context.Context, threshold time.Time, limit int) ([]model.OutboxEvent, error) {
	var events []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.OutboxProcessing, threshold).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *OutboxRepository) FindFailed(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var events []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxFailed).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// ClaimProcessing flips one row PENDING -> PROCESSING with a compare-and-swap
// on the status column. The returned bool reports whether this caller won the
// row; a relay replica that loses the race skips it.
func (r *OutboxRepository) ClaimProcessing(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("id = ? AND status = ?", id, model.OutboxPending).
		Updates(map[string]any{
			"status":     model.OutboxProcessing,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *OutboxRepository) DeletePublishedBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND published_at < ?", model.OutboxPublished, before).
		Delete(&model.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func (r *OutboxRepository) WithTx(tx *gorm.DB) OutboxInterface {
	return &OutboxRepository{db: tx}
}
