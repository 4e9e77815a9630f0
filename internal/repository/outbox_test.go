package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cartflow/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOutbox(t *testing.T, repo *OutboxRepository, n int, status string) []model.OutboxEvent {
	t.Helper()
	ctx := context.Background()

	events := make([]model.OutboxEvent, 0, n)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		ev := model.NewOutboxEvent("Order", int64(i+1), "OrderCompletedEvent", fmt.Sprintf(`{"orderId":%d}`, i+1))
		ev.Status = status
		ev.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Save(ctx, ev))
		events = append(events, *ev)
	}
	return events
}

func TestFindPendingOrderedByCreation(t *testing.T) {
	repo := NewOutboxRepository(newTestDB(t))
	seedOutbox(t, repo, 5, model.OutboxPending)

	got, err := repo.FindPending(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].CreatedAt.Before(got[i-1].CreatedAt), "rows must come back oldest first")
	}
	assert.Equal(t, int64(1), got[0].AggregateID)
}

func TestClaimProcessingWinsOnce(t *testing.T) {
	repo := NewOutboxRepository(newTestDB(t))
	ctx := context.Background()
	events := seedOutbox(t, repo, 1, model.OutboxPending)

	won, err := repo.ClaimProcessing(ctx, events[0].ID)
	require.NoError(t, err)
	assert.True(t, won)

	// A second claim (another relay replica) must lose.
	won, err = repo.ClaimProcessing(ctx, events[0].ID)
	require.NoError(t, err)
	assert.False(t, won)

	row, err := repo.FindByID(ctx, events[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutboxProcessing, row.Status)
}

func TestFindFailedForRetryRespectsCeiling(t *testing.T) {
	repo := NewOutboxRepository(newTestDB(t))
	ctx := context.Background()

	under := model.NewOutboxEvent("Order", 1, "OrderCompletedEvent", "{}")
	under.MarkFailed("transient")
	require.NoError(t, repo.Save(ctx, under))

	exhausted := model.NewOutboxEvent("Order", 2, "OrderCompletedEvent", "{}")
	for i := 0; i < 3; i++ {
		exhausted.MarkFailed("transient")
	}
	require.NoError(t, repo.Save(ctx, exhausted))

	got, err := repo.FindFailedForRetry(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].AggregateID)
}

func TestFindStuckProcessing(t *testing.T) {
	db := newTestDB(t)
	repo := NewOutboxRepository(db)
	ctx := context.Background()

	stuck := model.NewOutboxEvent("Order", 1, "OrderCompletedEvent", "{}")
	stuck.Status = model.OutboxProcessing
	require.NoError(t, repo.Save(ctx, stuck))

	fresh := model.NewOutboxEvent("Order", 2, "OrderCompletedEvent", "{}")
	fresh.Status = model.OutboxProcessing
	require.NoError(t, repo.Save(ctx, fresh))

	// Backdate the first row past the processing timeout, bypassing gorm's
	// automatic updated_at.
	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&model.OutboxEvent{}).
		Where("id = ?", stuck.ID).
		UpdateColumn("updated_at", past).Error)

	got, err := repo.FindStuckProcessing(ctx, time.Now().Add(-10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stuck.ID, got[0].ID)
}

func TestDeletePublishedBefore(t *testing.T) {
	repo := NewOutboxRepository(newTestDB(t))
	ctx := context.Background()

	old := model.NewOutboxEvent("Order", 1, "OrderCompletedEvent", "{}")
	oldTime := time.Now().Add(-8 * 24 * time.Hour)
	old.MarkPublished(oldTime)
	require.NoError(t, repo.Save(ctx, old))

	recent := model.NewOutboxEvent("Order", 2, "OrderCompletedEvent", "{}")
	recent.MarkPublished(time.Now())
	require.NoError(t, repo.Save(ctx, recent))

	pending := model.NewOutboxEvent("Order", 3, "OrderCompletedEvent", "{}")
	require.NoError(t, repo.Save(ctx, pending))

	deleted, err := repo.DeletePublishedBefore(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := repo.FindPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 1, "pending rows are never cleaned up")
}
