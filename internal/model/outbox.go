package model

import "time"

// Outbox status values. Transitions are monotonic except Retry (FAILED -> PENDING)
// and stuck recovery (PROCESSING -> PENDING).
const (
	OutboxPending    = "PENDING"
	OutboxProcessing = "PROCESSING"
	OutboxPublished  = "PUBLISHED"
	OutboxFailed     = "FAILED"
)

const maxErrorMessageLen = 500

type OutboxEvent struct {
	ID            int64      `json:"id" gorm:"primaryKey"`
	AggregateType string     `json:"aggregate_type" gorm:"size:50;index:idx_outbox_aggregate"`
	AggregateID   int64      `json:"aggregate_id" gorm:"index:idx_outbox_aggregate"`
	EventType     string     `json:"event_type" gorm:"size:50"`
	Payload       string     `json:"payload" gorm:"type:text"`
	Status        string     `json:"status" gorm:"size:20;index:idx_outbox_status_created"`
	RetryCount    int        `json:"retry_count" gorm:"default:0"`
	PublishedAt   *time.Time `json:"published_at"`
	ErrorMessage  string     `json:"error_message" gorm:"size:500"`
	CreatedAt     time.Time  `json:"created_at" gorm:"index:idx_outbox_status_created"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func NewOutboxEvent(aggregateType string, aggregateID int64, eventType, payload string) *OutboxEvent {
	return &OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        OutboxPending,
	}
}

func (e *OutboxEvent) MarkPublished(now time.Time) {
	e.Status = OutboxPublished
	e.PublishedAt = &now
}

// MarkFailed records a transient publish failure and consumes one retry.
func (e *OutboxEvent) MarkFailed(errMsg string) {
	e.RetryCount++
	e.ErrorMessage = truncate(errMsg, maxErrorMessageLen)
	e.Status = OutboxFailed
}

// MarkUnprocessable is the terminal path for permanent failures such as an
// unknown event type. The row lands in FAILED with its retry budget spent so
// the retry sweep never picks it up.
func (e *OutboxEvent) MarkUnprocessable(errMsg string, maxRetry int) {
	e.RetryCount = maxRetry
	e.ErrorMessage = truncate(errMsg, maxErrorMessageLen)
	e.Status = OutboxFailed
}

func (e *OutboxEvent) Retry() {
	e.Status = OutboxPending
}

func (e *OutboxEvent) CanRetry(maxRetry int) bool {
	return e.RetryCount < maxRetry
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
