package service

import (
	"context"
	"fmt"
	"time"

	"cartflow/internal/config"
	"cartflow/internal/event"
	"cartflow/internal/metrics"
	"cartflow/internal/model"
	"cartflow/internal/repository"
	"cartflow/pkg/logger"

	"github.com/robfig/cron"
	"go.uber.org/zap"
)

// Redis keys for the sweep leases. The pending sweep carries no lease: the
// per-row PENDING -> PROCESSING compare-and-swap already excludes replicas.
const (
	lockKeyRetry   = "cartflow:outbox:retry:lock"
	lockKeyStuck   = "cartflow:outbox:stuck:lock"
	lockKeyCleanup = "cartflow:outbox:cleanup:lock"
)

// Relay drains the outbox. Per record the happy path is three separate
// transactions: claim PROCESSING, publish outside any transaction, then mark
// PUBLISHED. A crash between steps leaves the row in PROCESSING at worst,
// which the stuck sweep converts back to PENDING.
type Relay struct {
	outbox    repository.OutboxInterface
	publisher event.Publisher
	locker    Locker
	observer  metrics.RelayObserver
	cfg       config.OutboxConfig
}

func NewRelay(outbox repository.OutboxInterface, publisher event.Publisher, locker Locker, observer metrics.RelayObserver, cfg config.OutboxConfig) *Relay {
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		locker:    locker,
		observer:  observer,
		cfg:       cfg,
	}
}

func (r *Relay) Run(ctx context.Context) {
	go r.loop(ctx, r.cfg.RelayInterval, "", "pending", r.RelayPending)
	go r.loop(ctx, r.cfg.RetryInterval, lockKeyRetry, "retry", r.RetryFailed)
	go r.loop(ctx, r.cfg.StuckInterval, lockKeyStuck, "stuck", r.RecoverStuck)

	c := cron.New()
	if err := c.AddFunc(r.cfg.CleanupCron, func() {
		r.runSweep(ctx, lockKeyCleanup, "cleanup", r.CleanupPublished)
	}); err != nil {
		logger.Error("invalid cleanup cron expression",
			zap.String("cron", r.cfg.CleanupCron), zap.Error(err))
	} else {
		c.Start()
	}

	<-ctx.Done()
	c.Stop()
	logger.Info("outbox relay stopped")
}

func (r *Relay) loop(ctx context.Context, interval time.Duration, lockKey, sweep string, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runSweep(ctx, lockKey, sweep, fn)
		}
	}
}

func (r *Relay) runSweep(ctx context.Context, lockKey, sweep string, fn func(context.Context)) {
	if lockKey != "" {
		release, ok := r.locker.TryLock(ctx, lockKey)
		if !ok {
			return
		}
		defer release()
	}

	start := time.Now()
	fn(ctx)
	r.observer.ObserveSweep(sweep, time.Since(start).Seconds())
}

// RelayPending publishes a batch of PENDING rows in creation order.
func (r *Relay) RelayPending(ctx context.Context) {
	pending, err := r.outbox.FindPending(ctx, r.cfg.BatchSize)
	if err != nil {
		logger.Error("failed to fetch pending outbox events", zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}

	logger.Debug("relaying pending outbox events", zap.Int("count", len(pending)))

	published, failed := 0, 0
	for i := range pending {
		if err := r.publishEvent(ctx, &pending[i]); err != nil {
			// Per-record isolation: one bad payload never blocks the batch.
			logger.Error("outbox publish failed",
				zap.Int64("id", pending[i].ID),
				zap.String("event_type", pending[i].EventType),
				zap.Error(err))
			failed++
			continue
		}
		published++
	}

	if published > 0 || failed > 0 {
		logger.Info("outbox relay tick done",
			zap.Int("published", published), zap.Int("failed", failed))
	}
}

// publishEvent walks one row through claim -> decode -> publish -> mark.
// The claim is committed before the slow publish so that a concurrent relay
// replica reading the same batch skips the row.
func (r *Relay) publishEvent(ctx context.Context, ev *model.OutboxEvent) error {
	won, err := r.outbox.ClaimProcessing(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("claim row: %w", err)
	}
	if !won {
		logger.Debug("outbox row claimed by another relay", zap.Int64("id", ev.ID))
		return nil
	}
	ev.Status = model.OutboxProcessing

	decoded, err := event.Decode(ev.EventType, ev.Payload)
	if err != nil {
		// Permanent data failure: retrying can never succeed, so the row goes
		// terminal immediately instead of consuming transient retry budget.
		ev.MarkUnprocessable(err.Error(), r.cfg.MaxRetry)
		if saveErr := r.outbox.Save(ctx, ev); saveErr != nil {
			return fmt.Errorf("mark unprocessable: %w", saveErr)
		}
		r.observer.IncPublishFailed()
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
	defer cancel()

	pubErr := r.publisher.Publish(pubCtx, event.Envelope{
		AggregateType: ev.AggregateType,
		AggregateID:   ev.AggregateID,
		EventType:     ev.EventType,
		Event:         decoded,
	})
	if pubErr != nil {
		ev.MarkFailed(pubErr.Error())
		if saveErr := r.outbox.Save(ctx, ev); saveErr != nil {
			return fmt.Errorf("mark failed: %w", saveErr)
		}
		r.observer.IncPublishFailed()
		return pubErr
	}

	ev.MarkPublished(time.Now())
	if err := r.outbox.Save(ctx, ev); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	r.observer.IncPublished()

	logger.Debug("outbox event published",
		zap.Int64("id", ev.ID), zap.String("event_type", ev.EventType))
	return nil
}

// RetryFailed moves FAILED rows under the ceiling back to PENDING and
// republishes them immediately. Exhausted rows are left in place for manual
// intervention; operational visibility outranks tidiness.
func (r *Relay) RetryFailed(ctx context.Context) {
	failed, err := r.outbox.FindFailedForRetry(ctx, r.cfg.MaxRetry, r.cfg.BatchSize)
	if err != nil {
		logger.Error("failed to fetch retryable outbox events", zap.Error(err))
		return
	}
	if len(failed) == 0 {
		return
	}

	logger.Info("retrying failed outbox events", zap.Int("count", len(failed)))

	retried := 0
	for i := range failed {
		ev := &failed[i]
		if !ev.CanRetry(r.cfg.MaxRetry) {
			logger.Error("outbox event exceeded max retries, manual intervention required",
				zap.Int64("id", ev.ID),
				zap.String("event_type", ev.EventType),
				zap.Int64("aggregate_id", ev.AggregateID))
			continue
		}

		ev.Retry()
		if err := r.outbox.Save(ctx, ev); err != nil {
			logger.Error("failed to reset outbox event for retry", zap.Int64("id", ev.ID), zap.Error(err))
			continue
		}
		if err := r.publishEvent(ctx, ev); err != nil {
			logger.Warn("outbox retry failed",
				zap.Int64("id", ev.ID),
				zap.Int("retry_count", ev.RetryCount),
				zap.Error(err))
			continue
		}
		retried++
	}

	logger.Info("outbox retry tick done", zap.Int("retried", retried))
}

// RecoverStuck resets rows abandoned in PROCESSING past the timeout, assumed
// orphaned by a crashed relay. Safe because downstream consumption is
// idempotent via the processed-event ledger.
func (r *Relay) RecoverStuck(ctx context.Context) {
	threshold := time.Now().Add(-r.cfg.ProcessingTimeout)
	stuck, err := r.outbox.FindStuckProcessing(ctx, threshold, r.cfg.BatchSize)
	if err != nil {
		logger.Error("failed to fetch stuck outbox events", zap.Error(err))
		return
	}
	if len(stuck) == 0 {
		return
	}

	recovered := 0
	for i := range stuck {
		ev := &stuck[i]
		ev.Retry()
		if err := r.outbox.Save(ctx, ev); err != nil {
			logger.Error("failed to recover stuck outbox event", zap.Int64("id", ev.ID), zap.Error(err))
			continue
		}
		recovered++
	}

	logger.Warn("recovered stuck outbox events", zap.Int("count", recovered))
}

// CleanupPublished reclaims storage; no correctness impact.
func (r *Relay) CleanupPublished(ctx context.Context) {
	before := time.Now().AddDate(0, 0, -r.cfg.RetentionDays)
	deleted, err := r.outbox.DeletePublishedBefore(ctx, before)
	if err != nil {
		logger.Error("outbox cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		logger.Info("deleted old published outbox events", zap.Int64("count", deleted))
	}
}
