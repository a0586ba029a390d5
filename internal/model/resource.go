package model

import (
	"errors"
	"maps"
	"slices"
	"time"
)

// ErrNotBindable is returned when an order is bound to a resource that is
// not occupied or on which the order holds no seats.
var ErrNotBindable = errors.New("resource is not held by this order")

// ResourceKind distinguishes tables from rooms linked to a booking.
type ResourceKind string

const (
	KindTable ResourceKind = "table"
	KindRoom  ResourceKind = "room"
)

// ResourceStatus is the floor state of a seat resource.
type ResourceStatus string

const (
	ResourceAvailable ResourceStatus = "available"
	ResourceOccupied  ResourceStatus = "occupied"
	ResourceReserved  ResourceStatus = "reserved"
)

// SeatResource is a table or room that hosts guests.  It is created by branch
// configuration and mutated only through compare-and-swap on Version.
//
// Fields:
//
//	ID             – seat_resources.id
//	Kind           – table or room
//	Label          – floor label (e.g. "T12")
//	Capacity       – total seats
//	UsedSeats      – seats taken by bound orders, never above Capacity
//	Status         – available, occupied or reserved
//	CurrentOrderID – order bound to the resource, if any
//	Shares         – seats held per order id; sums to UsedSeats
//	HoldCount      – releases that happened after the bound order was paid
//	Version        – optimistic lock counter
type SeatResource struct {
	ID             uint64         `json:"id"`
	Kind           ResourceKind   `json:"kind"`
	Label          string         `json:"label"`
	Capacity       int            `json:"capacity"`
	UsedSeats      int            `json:"used_seats"`
	Status         ResourceStatus `json:"status"`
	CurrentOrderID *string        `json:"current_order_id,omitempty"`
	Shares         map[string]int `json:"seat_shares,omitempty"`
	HoldCount      int            `json:"hold_count"`
	Version        uint32         `json:"version"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// RemainingSeats is always derived from Capacity and UsedSeats.
func (r SeatResource) RemainingSeats() int {
	rem := r.Capacity - r.UsedSeats
	if rem < 0 {
		return 0
	}
	return rem
}

// BoundOrder returns the current order id or "" when nothing is bound.
func (r SeatResource) BoundOrder() string {
	if r.CurrentOrderID == nil {
		return ""
	}
	return *r.CurrentOrderID
}

// SeatsFor returns the seats orderID holds on the resource.
func (r SeatResource) SeatsFor(orderID string) int {
	return r.Shares[orderID]
}

// SeatedOrders lists the orders holding seats, bound order included, in a
// stable order.
func (r SeatResource) SeatedOrders() []string {
	ids := slices.Sorted(maps.Keys(r.Shares))
	if b := r.BoundOrder(); b != "" && !slices.Contains(ids, b) {
		ids = append(ids, b)
	}
	return ids
}

// Released returns the resource emptied and available again.  HoldCount and
// Version are left for the caller.
func (r SeatResource) Released() SeatResource {
	r.Status = ResourceAvailable
	r.UsedSeats = 0
	r.CurrentOrderID = nil
	r.Shares = nil
	return r
}

// Claim records seats taken by orderID.  The share map is copied so earlier
// snapshots of r stay unchanged.
func (r SeatResource) Claim(orderID string, seats int) SeatResource {
	shares := make(map[string]int, len(r.Shares)+1)
	maps.Copy(shares, r.Shares)
	shares[orderID] += seats
	r.Shares = shares
	r.UsedSeats += seats
	return r
}

// BindOrder records orderID as the current order of an occupied resource on
// which it holds seats.  An order already bound is kept; secondary orders
// share the seats only.
func (r SeatResource) BindOrder(orderID string) (SeatResource, error) {
	if r.Status != ResourceOccupied {
		return r, ErrNotBindable
	}
	if r.SeatsFor(orderID) < 1 && r.BoundOrder() != orderID {
		return r, ErrNotBindable
	}
	if r.CurrentOrderID == nil {
		id := orderID
		r.CurrentOrderID = &id
	}
	return r, nil
}

// ReleaseOrder frees the seats held by one order and reports whether
// anything changed.  When the bound order leaves, the next seated order
// becomes bound.  The resource becomes available once no seats remain.
func (r SeatResource) ReleaseOrder(orderID string) (SeatResource, bool) {
	if r.Status != ResourceOccupied {
		return r, false
	}
	seats, held := r.Shares[orderID]
	primary := r.BoundOrder() == orderID
	if !held && !primary {
		return r, false
	}
	shares := make(map[string]int, len(r.Shares))
	maps.Copy(shares, r.Shares)
	delete(shares, orderID)
	r.Shares = shares
	r.UsedSeats -= seats
	if r.UsedSeats <= 0 || len(shares) == 0 {
		return r.Released(), true
	}
	if primary {
		next := slices.Sorted(maps.Keys(shares))[0]
		r.CurrentOrderID = &next
	}
	return r, true
}

// BookingStatus is maintained by the booking system and pushed to the engine
// as notifications.
type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingCheckedIn  BookingStatus = "checked_in"
	BookingCheckedOut BookingStatus = "checked_out"
	BookingCancelled  BookingStatus = "cancelled"
)

// Booking links a room resource to a stay.
type Booking struct {
	ID        uint64        `json:"id"`
	RoomID    uint64        `json:"room_id"`
	Status    BookingStatus `json:"status"`
	CheckIn   time.Time     `json:"check_in"`
	CheckOut  time.Time     `json:"check_out"`
	Guests    int           `json:"guests"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AcceptsRoomService reports whether orders may be charged to the booking.
func (b Booking) AcceptsRoomService() bool {
	return b.Status == BookingConfirmed || b.Status == BookingCheckedIn
}

// PaymentMethod holds the capability flags configured for a tender method.
type PaymentMethod struct {
	Code                 string `json:"code"`
	Name                 string `json:"name"`
	AllowsChangeDue      bool   `json:"allows_change_due"`
	AllowsPartialPayment bool   `json:"allows_partial_payment"`
}
