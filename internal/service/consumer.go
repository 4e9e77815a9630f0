package service

import (
	"context"
	"errors"
	"fmt"

	"cartflow/internal/event"
	"cartflow/internal/model"
	"cartflow/internal/platform"
	"cartflow/internal/repository"
	"cartflow/pkg/logger"

	"go.uber.org/zap"
)

// EventConsumer is the downstream side of the outbox pipeline. Every handler
// is guarded by the processed-event ledger: redelivery of the same logical
// event is a no-op, which is what makes the relay's aggressive retrying safe.
type EventConsumer struct {
	ranking        *RankingService
	processed      repository.ProcessedEventInterface
	rejected       repository.RejectedTaskInterface
	failedPlatform repository.FailedPlatformEventInterface
	dataPlatform   platform.DataPlatformClient
	notifier       platform.NotificationClient
}

func NewEventConsumer(
	ranking *RankingService,
	processed repository.ProcessedEventInterface,
	rejected repository.RejectedTaskInterface,
	failedPlatform repository.FailedPlatformEventInterface,
	dataPlatform platform.DataPlatformClient,
	notifier platform.NotificationClient,
) *EventConsumer {
	return &EventConsumer{
		ranking:        ranking,
		processed:      processed,
		rejected:       rejected,
		failedPlatform: failedPlatform,
		dataPlatform:   dataPlatform,
		notifier:       notifier,
	}
}

// Register wires the consumer's handlers into the publisher bus.
func (c *EventConsumer) Register(bus *event.Bus) {
	bus.Subscribe(event.TypeOrderCompleted, c.HandleOrderCompleted)
	bus.Subscribe(event.TypePaymentCompleted, c.HandlePaymentCompleted)
}

// HandleOrderCompleted feeds the ranking engine. A ranking failure is
// dead-lettered and the delivery still completes: the dead-letter sweep is the
// only retry owner for these increments. Returning the error as well would arm
// outbox redelivery on top of the sweep and apply the quantities twice.
func (c *EventConsumer) HandleOrderCompleted(ctx context.Context, env event.Envelope) error {
	ev, ok := env.Event.(event.OrderCompletedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type for %s", env.EventType)
	}

	eventID := model.EventID(env.AggregateType, env.AggregateID, env.EventType)
	done, err := c.alreadyProcessed(ctx, eventID)
	if err != nil {
		return err
	}
	if done {
		logger.Info("duplicate order event ignored", zap.String("event_id", eventID))
		return nil
	}

	for productID, quantity := range ev.ProductQuantities {
		if err := c.ranking.UpdateRanking(ctx, productID, quantity); err != nil {
			logger.Error("ranking update failed, saving to dead letter",
				zap.Int64("order_id", ev.OrderID), zap.Error(err))
			c.saveRejected(ctx, model.TaskRankingUpdateFailed, env, err)
			break
		}
	}

	return c.markProcessed(ctx, eventID, env.EventType)
}

// HandlePaymentCompleted forwards payment data to the data platform and the
// notification gateway. These side effects are dead-lettered on failure
// rather than failing the delivery: their retry path is the dead-letter
// sweep, not outbox redelivery.
func (c *EventConsumer) HandlePaymentCompleted(ctx context.Context, env event.Envelope) error {
	ev, ok := env.Event.(event.PaymentCompletedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type for %s", env.EventType)
	}

	eventID := model.EventID(env.AggregateType, env.AggregateID, env.EventType)
	done, err := c.alreadyProcessed(ctx, eventID)
	if err != nil {
		return err
	}
	if done {
		logger.Info("duplicate payment event ignored", zap.String("event_id", eventID))
		return nil
	}

	if err := c.dataPlatform.SendOrderData(ctx, ev); err != nil {
		logger.Error("data platform transfer failed, saving to dead letter",
			zap.Int64("order_id", ev.OrderID), zap.Error(err))
		c.saveFailedPlatform(ctx, ev, err)
	}

	if ev.UserPhone == "" {
		logger.Info("skipping order confirmation, no phone number",
			zap.Int64("order_id", ev.OrderID))
	} else if err := c.notifier.SendOrderConfirmation(ctx, ev); err != nil {
		logger.Error("order confirmation failed, saving to dead letter",
			zap.Int64("order_id", ev.OrderID), zap.Error(err))
		c.saveRejected(ctx, model.TaskNotification, env, err)
	}

	return c.markProcessed(ctx, eventID, env.EventType)
}

func (c *EventConsumer) alreadyProcessed(ctx context.Context, eventID string) (bool, error) {
	exists, err := c.processed.Exists(ctx, eventID)
	if err != nil {
		return false, fmt.Errorf("check processed ledger: %w", err)
	}
	return exists, nil
}

// markProcessed inserts the ledger row. Losing the race to a concurrent
// consumer means the work is done either way, so a duplicate is success.
func (c *EventConsumer) markProcessed(ctx context.Context, eventID, eventType string) error {
	err := c.processed.Save(ctx, model.NewProcessedEvent(eventID, eventType))
	if errors.Is(err, repository.ErrAlreadyProcessed) {
		logger.Info("event processed concurrently by another consumer",
			zap.String("event_id", eventID))
		return nil
	}
	return err
}

func (c *EventConsumer) saveRejected(ctx context.Context, taskType string, env event.Envelope, cause error) {
	payload, err := event.Encode(env.Event)
	if err != nil {
		logger.Error("failed to serialize dead letter payload", zap.Error(err))
		return
	}
	task := model.NewRejectedTask(taskType, payload, cause.Error())
	if err := c.rejected.Save(ctx, task); err != nil {
		logger.Error("failed to save rejected task", zap.Error(err))
	}
}

func (c *EventConsumer) saveFailedPlatform(ctx context.Context, ev event.PaymentCompletedEvent, cause error) {
	// One pending row per order: a redelivered failure must not queue the
	// same transfer twice.
	exists, err := c.failedPlatform.ExistsByOrderID(ctx, ev.OrderID, model.RetryPending)
	if err != nil {
		logger.Error("failed to check for pending platform event", zap.Error(err))
	} else if exists {
		logger.Info("platform event already queued for retry", zap.Int64("order_id", ev.OrderID))
		return
	}

	payload, err := event.Encode(ev)
	if err != nil {
		logger.Error("failed to serialize dead letter payload", zap.Error(err))
		return
	}
	row := model.NewFailedPlatformEvent(ev.OrderID, ev.UserID, payload, cause.Error())
	if err := c.failedPlatform.Save(ctx, row); err != nil {
		logger.Error("failed to save failed platform event", zap.Error(err))
	}
}
