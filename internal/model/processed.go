package model

import (
	"fmt"
	"time"
)

// ProcessedEvent is a write-once fact used for idempotent consumption.
// The unique index on EventID is the real guard; existence checks are only
// an optimization.
type ProcessedEvent struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	EventID     string    `json:"event_id" gorm:"size:128;uniqueIndex:idx_processed_event_id"`
	EventType   string    `json:"event_type" gorm:"size:50"`
	ProcessedAt time.Time `json:"processed_at"`
}

func NewProcessedEvent(eventID, eventType string) *ProcessedEvent {
	return &ProcessedEvent{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: time.Now(),
	}
}

// EventID derives the ledger identifier deterministically so redelivery of the
// same logical event always collides on the same row.
func EventID(aggregateType string, aggregateID int64, eventType string) string {
	return fmt.Sprintf("%s:%d:%s", aggregateType, aggregateID, eventType)
}
