package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event type tags stored on outbox rows and used for payload dispatch.
const (
	TypeOrderCompleted   = "OrderCompletedEvent"
	TypePaymentCompleted = "PaymentCompletedEvent"
)

// ErrUnknownEventType marks a payload that can never be decoded. The relay
// treats it as a permanent failure rather than a transient one.
var ErrUnknownEventType = errors.New("unknown event type")

type OrderCompletedEvent struct {
	OrderID           int64         `json:"orderId"`
	ProductQuantities map[int64]int `json:"productQuantityMap"`
}

type OrderItemInfo struct {
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
}

type PaymentCompletedEvent struct {
	Version           int             `json:"version"`
	OrderID           int64           `json:"orderId"`
	UserID            int64           `json:"userId"`
	UserPhone         string          `json:"userPhone"`
	TotalAmount       int64           `json:"totalAmount"`
	DiscountAmount    int64           `json:"discountAmount"`
	FinalAmount       int64           `json:"finalAmount"`
	OrderItems        []OrderItemInfo `json:"orderItems"`
	ProductQuantities map[int64]int   `json:"productQuantityMap"`
	OrderedAt         time.Time       `json:"orderedAt"`
}

// Envelope pairs a decoded event with its outbox identity so consumers can
// derive the idempotency key.
type Envelope struct {
	AggregateType string
	AggregateID   int64
	EventType     string
	Event         any
}

var decoders = map[string]func([]byte) (any, error){
	TypeOrderCompleted: func(b []byte) (any, error) {
		var e OrderCompletedEvent
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, err
		}
		return e, nil
	},
	TypePaymentCompleted: func(b []byte) (any, error) {
		var e PaymentCompletedEvent
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, err
		}
		return e, nil
	},
}

// Decode turns an outbox payload back into a typed event.
func Decode(eventType, payload string) (any, error) {
	decode, ok := decoders[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
	ev, err := decode([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return ev, nil
}

// Encode serializes an event for outbox storage.
func Encode(ev any) (string, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
