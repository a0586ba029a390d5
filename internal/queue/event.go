// Package queue defines message payloads exchanged over the message broker
// and the consumer for inbound booking notifications.
package queue

import (
	"time"

	"github.com/shopspring/decimal"
)

// Queue names.  All queues are durable and use the default exchange.
const (
	OrderCommittedQueue   = "pos.order.committed"
	OrderCancelledQueue   = "pos.order.cancelled"
	PaymentSettledQueue   = "pos.payment.settled"
	ResourceReleasedQueue = "pos.resource.released"
	BookingStatusQueue    = "pos.booking.status"
)

// OrderCommittedEvent is published once per committed order.
type OrderCommittedEvent struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Type        string          `json:"type"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"item_count"`
	ResourceID  *uint64         `json:"resource_id,omitempty"`
	BookingID   *uint64         `json:"booking_id,omitempty"`
	TerminalID  string          `json:"terminal_id,omitempty"`
	CommittedAt time.Time       `json:"committed_at"`
}

// OrderCancelledEvent is published when a pending order is cancelled.
type OrderCancelledEvent struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Reason      string    `json:"reason,omitempty"`
	ResourceID  *uint64   `json:"resource_id,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// PaymentLine mirrors one breakdown row of a settlement.
type PaymentLine struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
	Change decimal.Decimal `json:"change"`
}

// PaymentSettledEvent is published after an order is marked paid.
type PaymentSettledEvent struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Total       decimal.Decimal `json:"total"`
	ChangeDue   decimal.Decimal `json:"change_due"`
	Overpaid    decimal.Decimal `json:"overpaid"`
	Breakdown   []PaymentLine   `json:"breakdown"`
	SettledAt   time.Time       `json:"settled_at"`
}

// ResourceReleasedEvent is published when a table or room becomes available.
type ResourceReleasedEvent struct {
	ResourceID uint64    `json:"resource_id"`
	Label      string    `json:"label"`
	Reason     string    `json:"reason"`
	HoldCount  int       `json:"hold_count"`
	ReleasedAt time.Time `json:"released_at"`
}

// BookingStatusEvent is pushed by the booking system whenever a stay
// changes state.
type BookingStatusEvent struct {
	BookingID uint64    `json:"booking_id"`
	RoomID    uint64    `json:"room_id"`
	Status    string    `json:"status"`
	CheckIn   time.Time `json:"check_in"`
	CheckOut  time.Time `json:"check_out"`
	Guests    int       `json:"guests"`
	ChangedAt time.Time `json:"changed_at"`
}
