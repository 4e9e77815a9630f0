package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"cartflow/internal/config"
	"cartflow/internal/event"
	"cartflow/internal/metrics"
	"cartflow/internal/model"
	"cartflow/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type retryEnv struct {
	svc            *DeadLetterRetryService
	store          *fakeRankingStore
	rejected       *repository.RejectedTaskRepository
	failedPlatform *repository.FailedPlatformEventRepository
	platform       *fakePlatformClient
	db             *gorm.DB
}

func testDeadLetterConfig() config.DeadLetterConfig {
	return config.DeadLetterConfig{
		MaxRetry:      5,
		BatchSize:     100,
		RetryInterval: 5 * time.Minute,
		CleanupCron:   "0 30 4 * * *",
	}
}

func newRetryEnv(t *testing.T) *retryEnv {
	t.Helper()
	db := newTestDB(t)

	store := newFakeRankingStore()
	rankingSvc := NewRankingService(store, &fakeProductRepo{products: map[int64]model.Product{}}, 10, 50)

	env := &retryEnv{
		store:          store,
		rejected:       repository.NewRejectedTaskRepository(db),
		failedPlatform: repository.NewFailedPlatformEventRepository(db),
		platform:       &fakePlatformClient{},
		db:             db,
	}
	env.svc = NewDeadLetterRetryService(
		env.rejected, env.failedPlatform, rankingSvc, env.platform, env.platform,
		NoopLocker{}, metrics.NewNoopObserver(), testDeadLetterConfig(), 7)
	return env
}

func seedRejectedRankingTask(t *testing.T, env *retryEnv, orderID int64) *model.RejectedTask {
	t.Helper()
	payload, err := event.Encode(event.OrderCompletedEvent{
		OrderID:           orderID,
		ProductQuantities: map[int64]int{1: 2},
	})
	require.NoError(t, err)
	task := model.NewRejectedTask(model.TaskRankingUpdateFailed, payload, "redis down")
	require.NoError(t, env.rejected.Save(context.Background(), task))
	return task
}

func TestRetryRejectedTaskReplaysRankingUpdate(t *testing.T) {
	env := newRetryEnv(t)
	ctx := context.Background()
	task := seedRejectedRankingTask(t, env, 100)

	env.svc.RetryRejectedTasks(ctx)

	assert.Equal(t, 2.0, env.store.score(repository.RankingDaily, 1))
	assert.Equal(t, 2.0, env.store.score(repository.RankingWeekly, 1))

	got, err := env.rejected.List(ctx, model.RetryCompleted, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, task.ID, got[0].ID)
	assert.NotNil(t, got[0].CompletedAt)
}

func TestRetryRejectedTaskFailureStaysPending(t *testing.T) {
	env := newRetryEnv(t)
	ctx := context.Background()
	seedRejectedRankingTask(t, env, 100)
	env.store.err = errors.New("still down")

	env.svc.RetryRejectedTasks(ctx)

	got, err := env.rejected.List(ctx, model.RetryPending, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].RetryCount)
}

func TestRetryRejectedTaskExhaustionGoesTerminal(t *testing.T) {
	env := newRetryEnv(t)
	ctx := context.Background()
	task := seedRejectedRankingTask(t, env, 100)
	task.RetryCount = testDeadLetterConfig().MaxRetry - 1
	require.NoError(t, env.rejected.Save(ctx, task))
	env.store.err = errors.New("still down")

	env.svc.RetryRejectedTasks(ctx)

	got, err := env.rejected.List(ctx, model.RetryFailed, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, testDeadLetterConfig().MaxRetry, got[0].RetryCount)

	// Terminal rows never re-enter the sweep.
	env.store.err = nil
	env.svc.RetryRejectedTasks(ctx)
	assert.Equal(t, 0.0, env.store.score(repository.RankingDaily, 1))
}

func TestRetryPlatformEventDeliversOrderData(t *testing.T) {
	env := newRetryEnv(t)
	ctx := context.Background()

	payload, err := event.Encode(event.PaymentCompletedEvent{OrderID: 200, UserID: 7})
	require.NoError(t, err)
	row := model.NewFailedPlatformEvent(200, 7, payload, "platform unreachable")
	require.NoError(t, env.failedPlatform.Save(ctx, row))

	env.svc.RetryPlatformEvents(ctx)

	assert.Equal(t, 1, env.platform.orderData)

	pending, err := env.failedPlatform.FindPendingForRetry(ctx, testDeadLetterConfig().MaxRetry, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCleanupFinishedKeepsPendingRows(t *testing.T) {
	env := newRetryEnv(t)
	ctx := context.Background()

	done := seedRejectedRankingTask(t, env, 100)
	done.Complete(time.Now())
	require.NoError(t, env.rejected.Save(ctx, done))
	stale := time.Now().AddDate(0, 0, -8)
	require.NoError(t, env.db.Model(&model.RejectedTask{}).
		Where("id = ?", done.ID).
		UpdateColumn("updated_at", stale).Error)

	pending := seedRejectedRankingTask(t, env, 101)

	env.svc.CleanupFinished(ctx)

	remaining, err := env.rejected.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, pending.ID, remaining[0].ID)
}
