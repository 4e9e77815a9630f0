package platform

import (
	"context"
	"errors"
	"sync"
	"time"

	"cartflow/internal/event"
	"cartflow/pkg/logger"

	"github.com/avast/retry-go"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned without touching the downstream service while the
// breaker cools down. Callers dead-letter on it like any other send failure.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerConfig tunes one resilient client.
type BreakerConfig struct {
	RetryAttempts    uint
	RetryDelay       time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	return c
}

// circuitBreaker counts consecutive failures; at the threshold it rejects
// calls until the cooldown elapses, then lets one trial call through. Any
// success closes it again.
type circuitBreaker struct {
	mu        sync.Mutex
	name      string
	threshold int
	cooldown  time.Duration
	failures  int
	openUntil time.Time
	now       func() time.Time
}

func newCircuitBreaker(name string, threshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (b *circuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.threshold {
		return true
	}
	if b.now().Before(b.openUntil) {
		return false
	}
	// Half-open: one trial call; failure re-arms the cooldown, success closes.
	return true
}

func (b *circuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures >= b.threshold {
		logger.Info("circuit breaker closed", zap.String("breaker", b.name))
	}
	b.failures = 0
}

func (b *circuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = b.now().Add(b.cooldown)
		logger.Warn("circuit breaker open",
			zap.String("breaker", b.name),
			zap.Int("consecutive_failures", b.failures),
			zap.Duration("cooldown", b.cooldown))
	}
}

func (b *circuitBreaker) call(ctx context.Context, cfg BreakerConfig, fn func() error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}

	err := retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(cfg.RetryAttempts),
		retry.Delay(cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// ResilientDataPlatformClient fails fast while the data platform is down so a
// burst of payment events degrades into dead-letter rows instead of a pile of
// blocked handlers.
type ResilientDataPlatformClient struct {
	delegate DataPlatformClient
	breaker  *circuitBreaker
	cfg      BreakerConfig
}

func NewResilientDataPlatformClient(delegate DataPlatformClient, cfg BreakerConfig) *ResilientDataPlatformClient {
	cfg = cfg.withDefaults()
	return &ResilientDataPlatformClient{
		delegate: delegate,
		breaker:  newCircuitBreaker("data_platform", cfg.FailureThreshold, cfg.Cooldown),
		cfg:      cfg,
	}
}

func (c *ResilientDataPlatformClient) SendOrderData(ctx context.Context, ev event.PaymentCompletedEvent) error {
	err := c.breaker.call(ctx, c.cfg, func() error {
		return c.delegate.SendOrderData(ctx, ev)
	})
	if errors.Is(err, ErrCircuitOpen) {
		logger.Warn("data platform circuit open, rejecting send",
			zap.Int64("order_id", ev.OrderID))
	}
	return err
}

// ResilientNotificationClient applies the same policy to the notification
// gateway.
type ResilientNotificationClient struct {
	delegate NotificationClient
	breaker  *circuitBreaker
	cfg      BreakerConfig
}

func NewResilientNotificationClient(delegate NotificationClient, cfg BreakerConfig) *ResilientNotificationClient {
	cfg = cfg.withDefaults()
	return &ResilientNotificationClient{
		delegate: delegate,
		breaker:  newCircuitBreaker("notification", cfg.FailureThreshold, cfg.Cooldown),
		cfg:      cfg,
	}
}

func (c *ResilientNotificationClient) SendOrderConfirmation(ctx context.Context, ev event.PaymentCompletedEvent) error {
	err := c.breaker.call(ctx, c.cfg, func() error {
		return c.delegate.SendOrderConfirmation(ctx, ev)
	})
	if errors.Is(err, ErrCircuitOpen) {
		logger.Warn("notification circuit open, rejecting send",
			zap.Int64("order_id", ev.OrderID))
	}
	return err
}
