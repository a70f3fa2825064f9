package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeCartChanged      = "CART_CHANGED"
	EventTypePaymentInitiated = "PAYMENT_INITIATED"
	EventTypePaymentVerified  = "PAYMENT_VERIFIED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CartChangedEvent published after every ledger mutation
type CartChangedEvent struct {
	BaseEvent
	SessionID string          `json:"session_id"`
	Lines     []CartLine      `json:"lines"`
	Total     decimal.Decimal `json:"total"`
}

// PaymentInitiatedEvent published when control is handed to the gateway
type PaymentInitiatedEvent struct {
	BaseEvent
	Reference string          `json:"reference"`
	SessionID string          `json:"session_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// PaymentVerifiedEvent published when the remote verification succeeds
type PaymentVerifiedEvent struct {
	BaseEvent
	Reference  string          `json:"reference"`
	SessionID  string          `json:"session_id"`
	Amount     decimal.Decimal `json:"amount"`
	GatewayRef string          `json:"gateway_ref"`
}

// PaymentFailedEvent published when an attempt reaches the failed state
type PaymentFailedEvent struct {
	BaseEvent
	Reference string `json:"reference"`
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}
