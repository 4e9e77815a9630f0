package repository

import (
	"context"
	"time"

	"cartflow/internal/model"

	"gorm.io/gorm"
)

type RejectedTaskInterface interface {
	Save(ctx context.Context, task *model.RejectedTask) error
	FindPendingForRetry(ctx context.Context, maxRetry, limit int) ([]model.RejectedTask, error)
	List(ctx context.Context, status string, limit int) ([]model.RejectedTask, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

type RejectedTaskRepository struct {
	db *gorm.DB
}

func NewRejectedTaskRepository(db *gorm.DB) *RejectedTaskRepository {
	return &RejectedTaskRepository{db: db}
}

func (r *RejectedTaskRepository) Save(ctx context.Context, task *model.RejectedTask) error {
	return r.db.WithContext(ctx).Save(task).Error
}

func (r *RejectedTaskRepository) FindPendingForRetry(ctx context.Context, maxRetry, limit int) ([]model.RejectedTask, error) {
	var tasks []model.RejectedTask
	err := r.db.WithContext(ctx).
		Where("status = ? AND retry_count < ?", model.RetryPending, maxRetry).
		Order("created_at ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

func (r *RejectedTaskRepository) List(ctx context.Context, status string, limit int) ([]model.RejectedTask, error) {
	var tasks []model.RejectedTask
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Find(&tasks).Error
	return tasks, err
}

func (r *RejectedTaskRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.RejectedTask{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

// DeleteFinishedBefore reclaims COMPLETED and FAILED rows past the retention
// horizon. PENDING rows are never touched.
func (r *RejectedTaskRepository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []string{model.RetryCompleted, model.RetryFailed}, before).
		Delete(&model.RejectedTask{})
	return res.RowsAffected, res.Error
}

type FailedPlatformEventInterface interface {
	Save(ctx context.Context, ev *model.FailedPlatformEvent) error
	FindPendingForRetry(ctx context.Context, maxRetry, limit int) ([]model.FailedPlatformEvent, error)
	ExistsByOrderID(ctx context.Context, orderID int64, status string) (bool, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

type FailedPlatformEventRepository struct {
	db *gorm.DB
}

func NewFailedPlatformEventRepository(db *gorm.DB) *FailedPlatformEventRepository {
	return &FailedPlatformEventRepository{db: db}
}

func (r *FailedPlatformEventRepository) Save(ctx context.Context, ev *model.FailedPlatformEvent) error {
	return r.db.WithContext(ctx).Save(ev).Error
}

func (r *FailedPlatformEventRepository) FindPendingForRetry(ctx context.Context, maxRetry, limit int) ([]model.FailedPlatformEvent, error) {
	var events []model.FailedPlatformEvent
	err := r.db.WithContext(ctx).
		Where("status = ? AND retry_count < ?", model.RetryPending, maxRetry).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *FailedPlatformEventRepository) ExistsByOrderID(ctx context.Context, orderID int64, status string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.FailedPlatformEvent{}).
		Where("order_id = ? AND status = ?", orderID, status).
		Count(&count).Error
	return count > 0, err
}

func (r *FailedPlatformEventRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.FailedPlatformEvent{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

func (r *FailedPlatformEventRepository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []string{model.RetryCompleted, model.RetryFailed}, before).
		Delete(&model.FailedPlatformEvent{})
	return res.RowsAffected, res.Error
}
