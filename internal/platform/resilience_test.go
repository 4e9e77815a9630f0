package platform

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cartflow/internal/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyClient struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *flakyClient) SendOrderData(ctx context.Context, ev event.PaymentCompletedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func (c *flakyClient) SendOrderConfirmation(ctx context.Context, ev event.PaymentCompletedEvent) error {
	return c.SendOrderData(ctx, ev)
}

func (c *flakyClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func fastBreakerConfig() BreakerConfig {
	return BreakerConfig{
		RetryAttempts:    2,
		RetryDelay:       time.Millisecond,
		FailureThreshold: 2,
		Cooldown:         time.Minute,
	}
}

func TestResilientClientRetriesBeforeFailing(t *testing.T) {
	delegate := &flakyClient{err: errors.New("connection refused")}
	client := NewResilientDataPlatformClient(delegate, fastBreakerConfig())

	err := client.SendOrderData(context.Background(), event.PaymentCompletedEvent{OrderID: 1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	// One call per attempt.
	assert.Equal(t, 2, delegate.callCount())
}

func TestBreakerOpensAndFailsFast(t *testing.T) {
	delegate := &flakyClient{err: errors.New("connection refused")}
	client := NewResilientDataPlatformClient(delegate, fastBreakerConfig())
	ctx := context.Background()

	require.Error(t, client.SendOrderData(ctx, event.PaymentCompletedEvent{OrderID: 1}))
	require.Error(t, client.SendOrderData(ctx, event.PaymentCompletedEvent{OrderID: 2}))
	callsWhenOpened := delegate.callCount()

	// Threshold reached: the next send is rejected without a network call.
	err := client.SendOrderData(ctx, event.PaymentCompletedEvent{OrderID: 3})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, callsWhenOpened, delegate.callCount())
}

func TestBreakerHalfOpenRecoveryCloses(t *testing.T) {
	delegate := &flakyClient{err: errors.New("connection refused")}
	client := NewResilientDataPlatformClient(delegate, fastBreakerConfig())
	ctx := context.Background()

	now := time.Now()
	client.breaker.now = func() time.Time { return now }

	require.Error(t, client.SendOrderData(ctx, event.PaymentCompletedEvent{OrderID: 1}))
	require.Error(t, client.SendOrderData(ctx, event.PaymentCompletedEvent{OrderID: 2}))
	require.ErrorIs(t, client.SendOrderData(ctx, event.PaymentCompletedEvent{OrderID: 3}), ErrCircuitOpen)

	// Cooldown elapses and the service recovers: the trial call closes the breaker.
	now = now.Add(2 * time.Minute)
	delegate.err = nil

	require.NoError(t, client.SendOrderData(ctx, event.PaymentCompletedEvent{OrderID: 4}))
	require.NoError(t, client.SendOrderData(ctx, event.PaymentCompletedEvent{OrderID: 5}))
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	delegate := &flakyClient{err: errors.New("connection refused")}
	client := NewResilientNotificationClient(delegate, fastBreakerConfig())
	ctx := context.Background()

	now := time.Now()
	client.breaker.now = func() time.Time { return now }

	require.Error(t, client.SendOrderConfirmation(ctx, event.PaymentCompletedEvent{OrderID: 1}))
	require.Error(t, client.SendOrderConfirmation(ctx, event.PaymentCompletedEvent{OrderID: 2}))

	// Trial call after cooldown fails: the circuit re-arms for another cooldown.
	now = now.Add(2 * time.Minute)
	require.Error(t, client.SendOrderConfirmation(ctx, event.PaymentCompletedEvent{OrderID: 3}))
	assert.ErrorIs(t,
		client.SendOrderConfirmation(ctx, event.PaymentCompletedEvent{OrderID: 4}),
		ErrCircuitOpen)
}
