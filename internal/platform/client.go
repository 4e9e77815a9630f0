package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cartflow/internal/event"
	"cartflow/pkg/logger"

	"go.uber.org/zap"
)

// DataPlatformClient forwards completed-payment data to the external analytics
// platform. Failures feed the failed-platform-event dead letter.
type DataPlatformClient interface {
	SendOrderData(ctx context.Context, ev event.PaymentCompletedEvent) error
}

// NotificationClient sends the order-confirmation message to the buyer.
type NotificationClient interface {
	SendOrderConfirmation(ctx context.Context, ev event.PaymentCompletedEvent) error
}

type HTTPDataPlatformClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDataPlatformClient(baseURL string, timeout time.Duration) *HTTPDataPlatformClient {
	return &HTTPDataPlatformClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPDataPlatformClient) SendOrderData(ctx context.Context, ev event.PaymentCompletedEvent) error {
	if c.baseURL == "" {
		// No platform configured; treat as delivered so local setups work.
		logger.Debug("data platform not configured, skipping", zap.Int64("order_id", ev.OrderID))
		return nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal order data: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send order data: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return fmt.Errorf("data platform returned status %d", res.StatusCode)
	}
	logger.Info("order data sent to data platform", zap.Int64("order_id", ev.OrderID))
	return nil
}

type HTTPNotificationClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPNotificationClient(baseURL string, timeout time.Duration) *HTTPNotificationClient {
	return &HTTPNotificationClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPNotificationClient) SendOrderConfirmation(ctx context.Context, ev event.PaymentCompletedEvent) error {
	if c.baseURL == "" {
		logger.Debug("notification gateway not configured, skipping", zap.Int64("order_id", ev.OrderID))
		return nil
	}

	payload := map[string]any{
		"phone":       ev.UserPhone,
		"orderId":     ev.OrderID,
		"finalAmount": ev.FinalAmount,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return fmt.Errorf("notification gateway returned status %d", res.StatusCode)
	}
	logger.Info("order confirmation sent", zap.Int64("order_id", ev.OrderID), zap.Int64("user_id", ev.UserID))
	return nil
}
