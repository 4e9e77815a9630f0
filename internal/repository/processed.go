package repository

import (
	"context"
	"errors"

	"cartflow/internal/model"

	"gorm.io/gorm"
)

// ErrAlreadyProcessed reports that the ledger already holds this event id.
// A racing consumer treats it as "someone else finished first", not a failure.
var ErrAlreadyProcessed = errors.New("event already processed")

type ProcessedEventInterface interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	Save(ctx context.Context, ev *model.ProcessedEvent) error
	WithTx(tx *gorm.DB) ProcessedEventInterface
}

type ProcessedEventRepository struct {
	db *gorm.DB
}

func NewProcessedEventRepository(db *gorm.DB) *ProcessedEventRepository {
	return &ProcessedEventRepository{db: db}
}

func (r *ProcessedEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return count > 0, err
}

// Save inserts the ledger row. The unique index on event_id is the actual
// idempotency guard; a duplicate-key conflict surfaces as ErrAlreadyProcessed.
func (r *ProcessedEventRepository) Save(ctx context.Context, ev *model.ProcessedEvent) error {
	err := r.db.WithContext(ctx).Create(ev).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyProcessed
	}
	return err
}

func (r *ProcessedEventRepository) WithTx(tx *gorm.DB) ProcessedEventInterface {
	return &ProcessedEventRepository{db: tx}
}
