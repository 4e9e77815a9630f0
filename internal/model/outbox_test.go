package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOutboxEventTransitions(t *testing.T) {
	e := NewOutboxEvent("Order", 42, "OrderCompletedEvent", `{"orderId":42}`)
	assert.Equal(t, OutboxPending, e.Status)
	assert.Equal(t, 0, e.RetryCount)
	assert.Nil(t, e.PublishedAt)

	now := time.Now()
	e.MarkPublished(now)
	assert.Equal(t, OutboxPublished, e.Status)
	assert.Equal(t, now, *e.PublishedAt)
}

func TestOutboxEventFailureAndRetry(t *testing.T) {
	e := NewOutboxEvent("Order", 1, "OrderCompletedEvent", "{}")

	e.MarkFailed("broker unreachable")
	assert.Equal(t, OutboxFailed, e.Status)
	assert.Equal(t, 1, e.RetryCount)
	assert.Equal(t, "broker unreachable", e.ErrorMessage)
	assert.True(t, e.CanRetry(3))

	e.Retry()
	assert.Equal(t, OutboxPending, e.Status)
	assert.Equal(t, 1, e.RetryCount, "retry must not reset the count")

	e.MarkFailed("timeout")
	e.MarkFailed("timeout")
	assert.Equal(t, 3, e.RetryCount)
	assert.False(t, e.CanRetry(3))
}

func TestOutboxEventUnprocessableSpendsRetryBudget(t *testing.T) {
	e := NewOutboxEvent("Order", 1, "BogusEvent", "{}")
	e.MarkUnprocessable("unknown event type: BogusEvent", 3)

	assert.Equal(t, OutboxFailed, e.Status)
	assert.False(t, e.CanRetry(3))
}

func TestOutboxEventErrorMessageTruncated(t *testing.T) {
	e := NewOutboxEvent("Order", 1, "OrderCompletedEvent", "{}")
	e.MarkFailed(strings.Repeat("x", 1000))
	assert.Len(t, e.ErrorMessage, 500)
}
