// Package validation checks that an order carries the context its type
// requires before a commit is attempted.
package validation

import (
	"fmt"
	"strings"

	"github.com/iliyamo/pos-engine/internal/model"
)

// Error names the offending field.  It is surfaced to the submitter and is
// never retried.
type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// OrderContext is the data an order type check looks at.  Resource and
// Booking are the current stored states, loaded by the caller.
type OrderContext struct {
	OrderID  string
	Type     model.OrderType
	Lines    []model.CartLine
	Customer model.CustomerInfo
	Resource *model.SeatResource
	Stay     *model.RoomStay
	Booking  *model.Booking
}

func ValidateOrder(oc OrderContext) error {
	if !oc.Type.Valid() {
		return Error{Field: "type", Message: "invalid order type"}
	}
	if err := validateLines(oc.Lines); err != nil {
		return err
	}
	switch oc.Type {
	case model.OrderDineIn:
		return validateDineIn(oc.Resource, oc.OrderID)
	case model.OrderDelivery:
		return validateDelivery(oc.Customer)
	case model.OrderTakeaway:
		return validateTakeaway(oc.Customer)
	case model.OrderRoomBooking:
		return validateRoomBooking(oc.Stay)
	case model.OrderRoomService:
		return validateRoomService(oc.Booking)
	}
	return nil
}

func validateLines(lines []model.CartLine) error {
	if len(lines) == 0 {
		return Error{Field: "lines", Message: "order must contain at least one line"}
	}
	for _, l := range lines {
		if l.ID == "" {
			return Error{Field: "lines.id", Message: "line id is required"}
		}
		if l.Quantity < 1 {
			return Error{Field: "lines.quantity", Message: "quantity must be at least 1"}
		}
		if l.UnitPrice.IsNegative() {
			return Error{Field: "lines.unit_price", Message: "unit price must not be negative"}
		}
	}
	return nil
}

// validateDineIn requires the order to hold seats on an occupied table,
// either from selecting it or from starting a new order on its remainder.
func validateDineIn(res *model.SeatResource, orderID string) error {
	if res == nil {
		return Error{Field: "resource_id", Message: "dine-in orders require a table"}
	}
	switch res.Status {
	case model.ResourceReserved:
		return Error{Field: "resource_id", Message: "table is reserved"}
	case model.ResourceOccupied:
		if res.SeatsFor(orderID) < 1 {
			return Error{Field: "resource_id", Message: "table was not selected for this order"}
		}
		return nil
	}
	return Error{Field: "resource_id", Message: "table must be selected before commit"}
}

func validateDelivery(c model.CustomerInfo) error {
	if blank(c.AddressLine1) {
		return Error{Field: "customer.address_line1", Message: "delivery address is required"}
	}
	if blank(c.City) {
		return Error{Field: "customer.city", Message: "city is required for delivery"}
	}
	if blank(c.Phone) {
		return Error{Field: "customer.phone", Message: "contact phone is required for delivery"}
	}
	return nil
}

func validateTakeaway(c model.CustomerInfo) error {
	if blank(c.Name) {
		return Error{Field: "customer.name", Message: "contact name is required for takeaway"}
	}
	if blank(c.Phone) {
		return Error{Field: "customer.phone", Message: "contact phone is required for takeaway"}
	}
	return nil
}

func validateRoomBooking(stay *model.RoomStay) error {
	if stay == nil || stay.RoomID == 0 {
		return Error{Field: "stay.room_id", Message: "room is required"}
	}
	if stay.CheckIn.IsZero() || stay.CheckOut.IsZero() || !stay.CheckOut.After(stay.CheckIn) {
		return Error{Field: "stay.check_out", Message: "check-out must be after check-in"}
	}
	if stay.Guests < 1 {
		return Error{Field: "stay.guests", Message: "at least one guest is required"}
	}
	return nil
}

func validateRoomService(b *model.Booking) error {
	if b == nil {
		return Error{Field: "booking_id", Message: "room service requires a linked booking"}
	}
	if !b.AcceptsRoomService() {
		return Error{Field: "booking_id", Message: fmt.Sprintf("booking is %s, expected confirmed or checked in", b.Status)}
	}
	return nil
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
