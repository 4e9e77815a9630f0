package service

import (
	"context"
	"encoding/json"
	"time"

	"cartflow/internal/config"
	"cartflow/internal/event"
	"cartflow/internal/metrics"
	"cartflow/internal/model"
	"cartflow/internal/platform"
	"cartflow/internal/repository"
	"cartflow/pkg/logger"

	"github.com/robfig/cron"
	"go.uber.org/zap"
)

const (
	lockKeyDeadLetter        = "cartflow:deadletter:retry:lock"
	lockKeyDeadLetterCleanup = "cartflow:deadletter:cleanup:lock"
)

// DeadLetterRetryService re-executes handler work that failed after its event
// was already delivered. Rows retry until the ceiling, then go terminal
// FAILED and wait for an operator.
type DeadLetterRetryService struct {
	rejected       repository.RejectedTaskInterface
	failedPlatform repository.FailedPlatformEventInterface
	ranking        *RankingService
	dataPlatform   platform.DataPlatformClient
	notifier       platform.NotificationClient
	locker         Locker
	observer       metrics.RelayObserver
	cfg            config.DeadLetterConfig
	retentionDays  int
}

func NewDeadLetterRetryService(
	rejected repository.RejectedTaskInterface,
	failedPlatform repository.FailedPlatformEventInterface,
	ranking *RankingService,
	dataPlatform platform.DataPlatformClient,
	notifier platform.NotificationClient,
	locker Locker,
	observer metrics.RelayObserver,
	cfg config.DeadLetterConfig,
	retentionDays int,
) *DeadLetterRetryService {
	return &DeadLetterRetryService{
		rejected:       rejected,
		failedPlatform: failedPlatform,
		ranking:        ranking,
		dataPlatform:   dataPlatform,
		notifier:       notifier,
		locker:         locker,
		observer:       observer,
		cfg:            cfg,
		retentionDays:  retentionDays,
	}
}

func (s *DeadLetterRetryService) Run(ctx context.Context) {
	c := cron.New()
	if err := c.AddFunc(s.cfg.CleanupCron, func() {
		release, ok := s.locker.TryLock(ctx, lockKeyDeadLetterCleanup)
		if !ok {
			return
		}
		defer release()
		s.CleanupFinished(ctx)
	}); err != nil {
		logger.Error("invalid dead letter cleanup cron expression",
			zap.String("cron", s.cfg.CleanupCron), zap.Error(err))
	} else {
		c.Start()
	}

	ticker := time.NewTicker(s.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Stop()
			logger.Info("dead letter retry service stopped")
			return
		case <-ticker.C:
			release, ok := s.locker.TryLock(ctx, lockKeyDeadLetter)
			if !ok {
				continue
			}
			s.RetryRejectedTasks(ctx)
			s.RetryPlatformEvents(ctx)
			s.reportBacklog(ctx)
			release()
		}
	}
}

func (s *DeadLetterRetryService) RetryRejectedTasks(ctx context.Context) {
	tasks, err := s.rejected.FindPendingForRetry(ctx, s.cfg.MaxRetry, s.cfg.BatchSize)
	if err != nil {
		logger.Error("failed to fetch rejected tasks", zap.Error(err))
		return
	}
	if len(tasks) == 0 {
		return
	}

	logger.Info("retrying rejected tasks", zap.Int("count", len(tasks)))

	success, failed := 0, 0
	for i := range tasks {
		task := &tasks[i]
		if !task.CanRetry(s.cfg.MaxRetry) {
			task.MarkExhausted()
			if err := s.rejected.Save(ctx, task); err != nil {
				logger.Error("failed to mark task exhausted", zap.Int64("id", task.ID), zap.Error(err))
			}
			logger.Error("rejected task exceeded max retries, manual intervention required",
				zap.Int64("id", task.ID), zap.String("task_type", task.TaskType))
			continue
		}

		task.StartRetry(time.Now())
		if err := s.rejected.Save(ctx, task); err != nil {
			logger.Error("failed to mark task in progress", zap.Int64("id", task.ID), zap.Error(err))
			continue
		}

		if err := s.executeTask(ctx, task); err != nil {
			task.Fail(err.Error())
			if !task.CanRetry(s.cfg.MaxRetry) {
				task.MarkExhausted()
				logger.Error("rejected task reached max retries",
					zap.Int64("id", task.ID),
					zap.String("task_type", task.TaskType),
					zap.Int("retry_count", task.RetryCount))
			} else {
				logger.Warn("rejected task retry failed",
					zap.Int64("id", task.ID),
					zap.String("task_type", task.TaskType),
					zap.Int("retry_count", task.RetryCount))
			}
			if err := s.rejected.Save(ctx, task); err != nil {
				logger.Error("failed to persist task failure", zap.Int64("id", task.ID), zap.Error(err))
			}
			failed++
			continue
		}

		task.Complete(time.Now())
		if err := s.rejected.Save(ctx, task); err != nil {
			logger.Error("failed to mark task completed", zap.Int64("id", task.ID), zap.Error(err))
			continue
		}
		success++
	}

	logger.Info("rejected task retry done", zap.Int("success", success), zap.Int("failed", failed))
}

func (s *DeadLetterRetryService) executeTask(ctx context.Context, task *model.RejectedTask) error {
	switch task.TaskType {
	case model.TaskRankingUpdateFailed, model.TaskOrderCompleted:
		var ev event.OrderCompletedEvent
		if err := json.Unmarshal([]byte(task.EventPayload), &ev); err != nil {
			return err
		}
		for productID, quantity := range ev.ProductQuantities {
			if err := s.ranking.UpdateRanking(ctx, productID, quantity); err != nil {
				return err
			}
		}
		return nil
	case model.TaskDataPlatform:
		var ev event.PaymentCompletedEvent
		if err := json.Unmarshal([]byte(task.EventPayload), &ev); err != nil {
			return err
		}
		return s.dataPlatform.SendOrderData(ctx, ev)
	case model.TaskNotification:
		var ev event.PaymentCompletedEvent
		if err := json.Unmarshal([]byte(task.EventPayload), &ev); err != nil {
			return err
		}
		return s.notifier.SendOrderConfirmation(ctx, ev)
	default:
		logger.Warn("unknown rejected task type", zap.String("task_type", task.TaskType))
		return nil
	}
}

func (s *DeadLetterRetryService) RetryPlatformEvents(ctx context.Context) {
	events, err := s.failedPlatform.FindPendingForRetry(ctx, s.cfg.MaxRetry, s.cfg.BatchSize)
	if err != nil {
		logger.Error("failed to fetch failed platform events", zap.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}

	logger.Info("retrying failed platform events", zap.Int("count", len(events)))

	for i := range events {
		row := &events[i]
		if !row.CanRetry(s.cfg.MaxRetry) {
			row.MarkExhausted()
			if err := s.failedPlatform.Save(ctx, row); err != nil {
				logger.Error("failed to mark platform event exhausted", zap.Int64("id", row.ID), zap.Error(err))
			}
			logger.Error("platform event exceeded max retries, manual intervention required",
				zap.Int64("id", row.ID), zap.Int64("order_id", row.OrderID))
			continue
		}

		row.StartRetry(time.Now())
		if err := s.failedPlatform.Save(ctx, row); err != nil {
			logger.Error("failed to mark platform event in progress", zap.Int64("id", row.ID), zap.Error(err))
			continue
		}

		var ev event.PaymentCompletedEvent
		if err := json.Unmarshal([]byte(row.EventPayload), &ev); err == nil {
			err = s.dataPlatform.SendOrderData(ctx, ev)
			if err == nil {
				row.Complete(time.Now())
				if saveErr := s.failedPlatform.Save(ctx, row); saveErr != nil {
					logger.Error("failed to mark platform event completed", zap.Int64("id", row.ID), zap.Error(saveErr))
				}
				continue
			}
			row.Fail(err.Error())
		} else {
			row.Fail(err.Error())
		}

		if !row.CanRetry(s.cfg.MaxRetry) {
			row.MarkExhausted()
		}
		if err := s.failedPlatform.Save(ctx, row); err != nil {
			logger.Error("failed to persist platform event failure", zap.Int64("id", row.ID), zap.Error(err))
		}
	}
}

// CleanupFinished shares the outbox retention horizon. Terminal FAILED rows
// are kept until then so operators can inspect them.
func (s *DeadLetterRetryService) CleanupFinished(ctx context.Context) {
	before := time.Now().AddDate(0, 0, -s.retentionDays)

	deleted, err := s.rejected.DeleteFinishedBefore(ctx, before)
	if err != nil {
		logger.Error("rejected task cleanup failed", zap.Error(err))
	} else if deleted > 0 {
		logger.Info("deleted old rejected tasks", zap.Int64("count", deleted))
	}

	deleted, err = s.failedPlatform.DeleteFinishedBefore(ctx, before)
	if err != nil {
		logger.Error("platform event cleanup failed", zap.Error(err))
	} else if deleted > 0 {
		logger.Info("deleted old platform events", zap.Int64("count", deleted))
	}
}

func (s *DeadLetterRetryService) reportBacklog(ctx context.Context) {
	count, err := s.rejected.CountByStatus(ctx, model.RetryPending)
	if err != nil {
		return
	}
	platformCount, err := s.failedPlatform.CountByStatus(ctx, model.RetryPending)
	if err != nil {
		return
	}
	s.observer.SetDeadLetterBacklog(float64(count + platformCount))
}
