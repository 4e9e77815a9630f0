package repository

import (
	"context"
	"testing"
	"time"

	"cartflow/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRejectedTaskFindPendingForRetry(t *testing.T) {
	repo := NewRejectedTaskRepository(newTestDB(t))
	ctx := context.Background()

	retryable := model.NewRejectedTask(model.TaskRankingUpdateFailed, "{}", "redis down")
	require.NoError(t, repo.Save(ctx, retryable))

	exhausted := model.NewRejectedTask(model.TaskNotification, "{}", "gateway down")
	exhausted.RetryCount = 5
	require.NoError(t, repo.Save(ctx, exhausted))

	terminal := model.NewRejectedTask(model.TaskDataPlatform, "{}", "gone")
	terminal.MarkExhausted()
	require.NoError(t, repo.Save(ctx, terminal))

	got, err := repo.FindPendingForRetry(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.TaskRankingUpdateFailed, got[0].TaskType)
}

func TestRejectedTaskDeleteFinishedBeforeKeepsPending(t *testing.T) {
	db := newTestDB(t)
	repo := NewRejectedTaskRepository(db)
	ctx := context.Background()

	done := model.NewRejectedTask(model.TaskOrderCompleted, "{}", "")
	done.Complete(time.Now())
	require.NoError(t, repo.Save(ctx, done))

	pending := model.NewRejectedTask(model.TaskOrderCompleted, "{}", "err")
	require.NoError(t, repo.Save(ctx, pending))

	past := time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, db.Model(&model.RejectedTask{}).
		Where("id = ?", done.ID).
		UpdateColumn("updated_at", past).Error)

	deleted, err := repo.DeleteFinishedBefore(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	count, err := repo.CountByStatus(ctx, model.RetryPending)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestFailedPlatformEventExistsByOrderID(t *testing.T) {
	repo := NewFailedPlatformEventRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, model.NewFailedPlatformEvent(10, 20, "{}", "timeout")))

	exists, err := repo.ExistsByOrderID(ctx, 10, model.RetryPending)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByOrderID(ctx, 10, model.RetryCompleted)
	require.NoError(t, err)
	assert.False(t, exists)
}
