package model

import "time"

// Retry status shared by both dead-letter shapes.
const (
	RetryPending    = "PENDING"
	RetryInProgress = "RETRY_IN_PROGRESS"
	RetryCompleted  = "COMPLETED"
	RetryFailed     = "FAILED"
)

// Task type tags for RejectedTask rows.
const (
	TaskRankingUpdateFailed = "RANKING_UPDATE_FAILED"
	TaskOrderCompleted      = "ORDER_COMPLETED"
	TaskDataPlatform        = "DATA_PLATFORM_TRANSFER"
	TaskNotification        = "NOTIFICATION"
)

// RejectedTask records an async handler invocation that failed after the
// event was already delivered. Kept for bounded retry and operator visibility.
type RejectedTask struct {
	ID           int64      `json:"id" gorm:"primaryKey"`
	TaskType     string     `json:"task_type" gorm:"size:50;index:idx_rejected_type_status"`
	EventPayload string     `json:"event_payload" gorm:"type:text"`
	Status       string     `json:"status" gorm:"size:20;index:idx_rejected_type_status;index:idx_rejected_status_created"`
	ErrorMessage string     `json:"error_message" gorm:"size:500"`
	RetryCount   int        `json:"retry_count" gorm:"default:0"`
	LastRetryAt  *time.Time `json:"last_retry_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index:idx_rejected_status_created"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func NewRejectedTask(taskType, eventPayload, errMsg string) *RejectedTask {
	return &RejectedTask{
		TaskType:     taskType,
		EventPayload: eventPayload,
		ErrorMessage: truncate(errMsg, maxErrorMessageLen),
		Status:       RetryPending,
	}
}

func (t *RejectedTask) StartRetry(now time.Time) {
	t.Status = RetryInProgress
	t.LastRetryAt = &now
}

func (t *RejectedTask) Complete(now time.Time) {
	t.Status = RetryCompleted
	t.CompletedAt = &now
}

func (t *RejectedTask) Fail(errMsg string) {
	t.RetryCount++
	t.ErrorMessage = truncate(errMsg, maxErrorMessageLen)
	t.Status = RetryPending
}

// MarkExhausted flags the row for manual intervention. It is never auto-deleted.
func (t *RejectedTask) MarkExhausted() {
	t.Status = RetryFailed
}

func (t *RejectedTask) CanRetry(maxRetry int) bool {
	return t.Status == RetryPending && t.RetryCount < maxRetry
}

// FailedPlatformEvent is the domain-specific dead letter for order data that
// could not be forwarded to the external data platform.
type FailedPlatformEvent struct {
	ID           int64      `json:"id" gorm:"primaryKey"`
	OrderID      int64      `json:"order_id" gorm:"index:idx_fpe_order_id"`
	UserID       int64      `json:"user_id"`
	EventPayload string     `json:"event_payload" gorm:"type:text"`
	Status       string     `json:"status" gorm:"size:20;index:idx_fpe_status_created"`
	ErrorMessage string     `json:"error_message" gorm:"size:500"`
	RetryCount   int        `json:"retry_count" gorm:"default:0"`
	LastRetryAt  *time.Time `json:"last_retry_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index:idx_fpe_status_created"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func NewFailedPlatformEvent(orderID, userID int64, eventPayload, errMsg string) *FailedPlatformEvent {
	return &FailedPlatformEvent{
		OrderID:      orderID,
		UserID:       userID,
		EventPayload: eventPayload,
		ErrorMessage: truncate(errMsg, maxErrorMessageLen),
		Status:       RetryPending,
	}
}

func (e *FailedPlatformEvent) StartRetry(now time.Time) {
	e.Status = RetryInProgress
	e.LastRetryAt = &now
}

func (e *FailedPlatformEvent) Complete(now time.Time) {
	e.Status = RetryCompleted
	e.CompletedAt = &now
}

func (e *FailedPlatformEvent) Fail(errMsg string) {
	e.RetryCount++
	e.ErrorMessage = truncate(errMsg, maxErrorMessageLen)
	e.Status = RetryPending
}

func (e *FailedPlatformEvent) MarkExhausted() {
	e.Status = RetryFailed
}

func (e *FailedPlatformEvent) CanRetry(maxRetry int) bool {
	return e.Status == RetryPending && e.RetryCount < maxRetry
}
