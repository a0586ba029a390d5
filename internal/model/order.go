package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType selects which context an order must carry before commit.
type OrderType string

const (
	OrderDineIn      OrderType = "dine_in"
	OrderDelivery    OrderType = "delivery"
	OrderTakeaway    OrderType = "takeaway"
	OrderRoomBooking OrderType = "room_booking"
	OrderRoomService OrderType = "room_service"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	switch t {
	case OrderDineIn, OrderDelivery, OrderTakeaway, OrderRoomBooking, OrderRoomService:
		return true
	}
	return false
}

// OrderStatus is the lifecycle state of an order.  Orders are never deleted;
// cancellation is a status transition.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusCancelled OrderStatus = "cancelled"
)

// CartLine is one priced line of an in-progress order.  The same type is
// persisted as an order line once the order is committed.
//
// Fields:
//
//	ID               – client generated UUID, unique across all carts
//	CatalogItemID    – catalog_items.id the line was priced from
//	Name             – item name at pricing time
//	BasePrice        – item base price at pricing time
//	UnitPrice        – base price plus modifiers, rounded to 2 places
//	Quantity         – always >= 1
//	Note             – free text for the kitchen
//	ModifiersSummary – human readable modifier summary
//	Category         – category label
//	Choice           – the modifier configuration the price was derived from
type CartLine struct {
	ID               string          `json:"id"`
	CatalogItemID    uint64          `json:"catalog_item_id"`
	Name             string          `json:"name"`
	BasePrice        decimal.Decimal `json:"base_price"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Quantity         int             `json:"quantity"`
	Note             string          `json:"note,omitempty"`
	ModifiersSummary string          `json:"modifiers_summary,omitempty"`
	Category         string          `json:"category,omitempty"`
	Choice           ModifierChoice  `json:"choice"`
}

// LineTotal returns unit price times quantity.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CustomerInfo carries contact and delivery details.  Phone, Email and the
// address fields are personal data and are sealed when a cart is persisted.
type CustomerInfo struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
	AddressLine1 string `json:"address_line1,omitempty"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city,omitempty"`
}

// RoomStay describes the stay requested by a room booking order.
type RoomStay struct {
	RoomID   uint64    `json:"room_id"`
	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
	Guests   int       `json:"guests"`
}

// OrderSummary is derived from the cart, discount spec and tax rate.  It is
// recomputed on every read and never stored on its own.
type OrderSummary struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"item_count"`
}

// PaymentPart records how much of an order a single method covered.
type PaymentPart struct {
	Method   string          `json:"method"`
	Amount   decimal.Decimal `json:"amount"`
	Received decimal.Decimal `json:"received"`
	Change   decimal.Decimal `json:"change"`
}

// Order is a committed order.  ID is the client generated draft id and acts
// as the idempotency and recovery key; Number is the human facing order number.
type Order struct {
	ID            string          `json:"id"`
	Number        string          `json:"order_number"`
	Type          OrderType       `json:"type"`
	Status        OrderStatus     `json:"status"`
	Lines         []CartLine      `json:"lines"`
	Customer      CustomerInfo    `json:"customer"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	LoyaltyPoints int             `json:"loyalty_points_redeemed"`
	Tax           decimal.Decimal `json:"tax"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Payments      []PaymentPart   `json:"payments,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	ResourceID    *uint64         `json:"resource_id,omitempty"`
	BookingID     *uint64         `json:"booking_id,omitempty"`
	Stay          *RoomStay       `json:"stay,omitempty"`
	GuestCount    int             `json:"guest_count"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	TerminalID    string          `json:"terminal_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
