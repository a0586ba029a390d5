// Package seating implements the table and room allocation state machine.
// Every state change is a compare-and-swap on the resource version, so two
// terminals racing for the same table produce exactly one winner.
package seating

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/iliyamo/pos-engine/internal/cart"
	"github.com/iliyamo/pos-engine/internal/metrics"
	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/repository"
)

var (
	// ErrResourceReserved rejects selection of a reserved resource.  It is a
	// user-facing answer, not a transient failure.
	ErrResourceReserved = errors.New("resource is reserved")
	// ErrResourceAlreadyOccupied means another order holds the resource.  The
	// accompanying Decision carries the existing order branch.
	ErrResourceAlreadyOccupied = errors.New("resource already occupied")
	ErrNoRemainingSeats        = errors.New("no remaining seats")
	ErrNoBoundOrder            = errors.New("no order bound to resource")
	ErrOrderPaid               = errors.New("bound order is paid and cannot be modified")
	ErrOrderCancelled          = errors.New("bound order is cancelled")
	ErrInvalidGuestCount       = errors.New("guest count must be at least 1")
	ErrContention              = errors.New("resource changed too often, try again")
	// ErrOrderUnsettled blocks releasing a resource while an order seated at
	// it is still pending.  Cancelling the order frees its seats instead.
	ErrOrderUnsettled = errors.New("an order at this resource is not settled")
)

// maxCASAttempts bounds re-reads after a version conflict.
const maxCASAttempts = 5

// Store persists seat resources.  CompareAndSwap writes next only if the
// stored version still equals next.Version, and bumps the version on success.
type Store interface {
	Get(ctx context.Context, id uint64) (model.SeatResource, error)
	CompareAndSwap(ctx context.Context, next model.SeatResource) error
	ListOccupied(ctx context.Context) ([]model.SeatResource, error)
}

// OrderReader looks up orders bound to resources.
type OrderReader interface {
	GetByID(ctx context.Context, id string) (model.Order, error)
}

// EventPublisher is notified after a resource is released.
type EventPublisher interface {
	ResourceReleased(ctx context.Context, res model.SeatResource, reason string)
}

// DecisionKind tags the variant held by a Decision.
type DecisionKind string

const (
	// DecisionBound: the resource is now held by the caller's order context.
	DecisionBound DecisionKind = "bound"
	// DecisionExistingOrder: the resource is held by someone else; pick a Choice.
	DecisionExistingOrder DecisionKind = "existing_order"
)

// Choice is an action available in the existing order branch.
type Choice string

const (
	ChoiceResume         Choice = "resume"
	ChoiceStartNew       Choice = "start_new"
	ChoiceCancelExisting Choice = "cancel_existing"
)

// Decision is the tagged result of selecting a resource.
type Decision struct {
	Kind          DecisionKind       `json:"kind"`
	Resource      model.SeatResource `json:"resource"`
	OrderID       string             `json:"order_id,omitempty"`
	GuestCount    int                `json:"guest_count,omitempty"`
	ExistingOrder *model.Order       `json:"existing_order,omitempty"`
	Choices       []Choice           `json:"choices,omitempty"`
}

// Allocator drives resource state transitions.
type Allocator struct {
	store  Store
	orders OrderReader
	events EventPublisher
	log    *slog.Logger
}

func NewAllocator(store Store, orders OrderReader, events EventPublisher, log *slog.Logger) *Allocator {
	if log == nil {
		log = slog.Default()
	}
	return &Allocator{store: store, orders: orders, events: events, log: log}
}

// Get returns the current state of a resource.
func (a *Allocator) Get(ctx context.Context, id uint64) (model.SeatResource, error) {
	return a.store.Get(ctx, id)
}

// Select claims an available resource for orderID (a fresh id when empty)
// with the given number of guests.  When the resource already hosts an
// order, it returns a DecisionExistingOrder together with
// ErrResourceAlreadyOccupied and leaves the resource untouched.
func (a *Allocator) Select(ctx context.Context, id uint64, orderID string, guests int) (Decision, error) {
	if guests < 1 {
		return Decision{}, ErrInvalidGuestCount
	}
	if orderID == "" {
		orderID = uuid.NewString()
	}
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		res, err := a.store.Get(ctx, id)
		if err != nil {
			return Decision{}, err
		}
		if held := res.SeatsFor(orderID); held > 0 {
			return Decision{Kind: DecisionBound, Resource: res, OrderID: orderID, GuestCount: held}, nil
		}
		switch {
		case res.Status == model.ResourceReserved:
			metrics.RecordContention("reserved")
			return Decision{}, ErrResourceReserved
		case res.Status == model.ResourceOccupied || res.CurrentOrderID != nil:
			metrics.RecordContention("occupied")
			d, err := a.existing(ctx, res)
			if err != nil {
				return Decision{}, err
			}
			return d, ErrResourceAlreadyOccupied
		}

		seats := min(guests, res.Capacity)
		next := res.Released().Claim(orderID, seats)
		next.Status = model.ResourceOccupied
		next.CurrentOrderID = &orderID
		if err := a.store.CompareAndSwap(ctx, next); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				continue
			}
			return Decision{}, err
		}
		next.Version++
		a.log.Info("resource selected",
			slog.Uint64("resource_id", id),
			slog.String("order_id", orderID),
			slog.Int("guests", seats))
		return Decision{Kind: DecisionBound, Resource: next, OrderID: orderID, GuestCount: seats}, nil
	}
	return Decision{}, ErrContention
}

// existing builds the three-way branch for a resource that already hosts an order.
func (a *Allocator) existing(ctx context.Context, res model.SeatResource) (Decision, error) {
	d := Decision{Kind: DecisionExistingOrder, Resource: res}
	if bound := res.BoundOrder(); bound != "" {
		d.OrderID = bound
		o, err := a.orders.GetByID(ctx, bound)
		switch {
		case err == nil:
			d.ExistingOrder = &o
		case errors.Is(err, repository.ErrNotFound):
			// selected but never committed
		default:
			return Decision{}, err
		}
	}
	if d.ExistingOrder != nil && d.ExistingOrder.Status == model.StatusPending {
		d.Choices = append(d.Choices, ChoiceResume)
	}
	if res.RemainingSeats() > 0 {
		d.Choices = append(d.Choices, ChoiceStartNew)
	}
	if d.ExistingOrder == nil || d.ExistingOrder.Status == model.StatusPending {
		d.Choices = append(d.Choices, ChoiceCancelExisting)
	}
	return d, nil
}

// ResumeExisting loads the bound order's lines into a fresh cart.  Paid
// orders are immutable from the floor.
func (a *Allocator) ResumeExisting(ctx context.Context, id uint64) (model.Order, *cart.Ledger, error) {
	res, err := a.store.Get(ctx, id)
	if err != nil {
		return model.Order{}, nil, err
	}
	bound := res.BoundOrder()
	if bound == "" {
		return model.Order{}, nil, ErrNoBoundOrder
	}
	o, err := a.orders.GetByID(ctx, bound)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Order{}, nil, ErrNoBoundOrder
		}
		return model.Order{}, nil, err
	}
	switch o.Status {
	case model.StatusPaid:
		return model.Order{}, nil, ErrOrderPaid
	case model.StatusCancelled:
		return model.Order{}, nil, ErrOrderCancelled
	}
	return o, cart.NewLedger(o.Lines), nil
}

// StartNewOnRemainder opens an independent order context on the seats the
// existing occupant does not use.  The guest count is clamped to the
// remaining seats.
func (a *Allocator) StartNewOnRemainder(ctx context.Context, id uint64, orderID string, guests int) (Decision, error) {
	if guests < 1 {
		return Decision{}, ErrInvalidGuestCount
	}
	if orderID == "" {
		orderID = uuid.NewString()
	}
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		res, err := a.store.Get(ctx, id)
		if err != nil {
			return Decision{}, err
		}
		switch res.Status {
		case model.ResourceReserved:
			return Decision{}, ErrResourceReserved
		case model.ResourceAvailable:
			return a.Select(ctx, id, orderID, guests)
		}
		if held := res.SeatsFor(orderID); held > 0 {
			return Decision{Kind: DecisionBound, Resource: res, OrderID: orderID, GuestCount: held}, nil
		}
		remaining := res.RemainingSeats()
		if remaining <= 0 {
			return Decision{}, ErrNoRemainingSeats
		}
		seats := min(guests, remaining)
		next := res.Claim(orderID, seats)
		if err := a.store.CompareAndSwap(ctx, next); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				continue
			}
			return Decision{}, err
		}
		next.Version++
		a.log.Info("resource shared with new order",
			slog.Uint64("resource_id", id),
			slog.String("order_id", orderID),
			slog.Int("guests", seats),
			slog.Int("remaining", next.RemainingSeats()))
		return Decision{Kind: DecisionBound, Resource: next, OrderID: orderID, GuestCount: seats}, nil
	}
	return Decision{}, ErrContention
}

// Release makes the resource available again once every order seated at it
// is paid or cancelled.  A pending order yields ErrOrderUnsettled.  When the
// bound order was paid, the hold count goes up by one.
func (a *Allocator) Release(ctx context.Context, id uint64) (model.SeatResource, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		res, err := a.store.Get(ctx, id)
		if err != nil {
			return model.SeatResource{}, err
		}
		if res.Status == model.ResourceAvailable && res.CurrentOrderID == nil && res.UsedSeats == 0 {
			return res, nil
		}
		states, err := a.seatedOrders(ctx, res)
		if err != nil {
			return model.SeatResource{}, err
		}
		for orderID, st := range states {
			if st == model.StatusPending {
				a.log.Info("release refused, order pending",
					slog.Uint64("resource_id", id),
					slog.String("order_id", orderID))
				return model.SeatResource{}, ErrOrderUnsettled
			}
		}
		paid := states[res.BoundOrder()] == model.StatusPaid
		next := res.Released()
		if paid {
			next.HoldCount++
		}
		if err := a.store.CompareAndSwap(ctx, next); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				continue
			}
			return model.SeatResource{}, err
		}
		next.Version++
		a.log.Info("resource released",
			slog.Uint64("resource_id", id),
			slog.String("reason", "manual"),
			slog.Bool("after_payment", paid),
			slog.Int("hold_count", next.HoldCount))
		if a.events != nil {
			a.events.ResourceReleased(ctx, next, "manual")
		}
		return next, nil
	}
	return model.SeatResource{}, ErrContention
}

// seatedOrders looks up the status of every order holding seats.  Orders
// that were selected but never committed are left out.
func (a *Allocator) seatedOrders(ctx context.Context, res model.SeatResource) (map[string]model.OrderStatus, error) {
	states := make(map[string]model.OrderStatus)
	for _, orderID := range res.SeatedOrders() {
		o, err := a.orders.GetByID(ctx, orderID)
		switch {
		case err == nil:
			states[orderID] = o.Status
		case errors.Is(err, repository.ErrNotFound):
		default:
			return nil, err
		}
	}
	return states, nil
}

// reclaim returns the seats of cancelled orders whose release never landed
// and reports whether the resource changed.
func (a *Allocator) reclaim(ctx context.Context, id uint64) (bool, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		res, err := a.store.Get(ctx, id)
		if err != nil {
			return false, err
		}
		if res.Status != model.ResourceOccupied {
			return false, nil
		}
		states, err := a.seatedOrders(ctx, res)
		if err != nil {
			return false, err
		}
		next, changed := res, false
		for _, orderID := range res.SeatedOrders() {
			if states[orderID] != model.StatusCancelled {
				continue
			}
			var c bool
			next, c = next.ReleaseOrder(orderID)
			changed = changed || c
		}
		if !changed {
			return false, nil
		}
		if err := a.store.CompareAndSwap(ctx, next); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				continue
			}
			return false, err
		}
		next.Version++
		a.log.Info("cancelled seats reclaimed",
			slog.Uint64("resource_id", id),
			slog.Int("used_seats", next.UsedSeats),
			slog.String("status", string(next.Status)))
		if a.events != nil && next.Status == model.ResourceAvailable {
			a.events.ResourceReleased(ctx, next, "reconcile")
		}
		return true, nil
	}
	return false, ErrContention
}

// Reconcile returns the seats of cancelled orders whose release never
// landed.  It returns how many resources changed.
func (a *Allocator) Reconcile(ctx context.Context) (int, error) {
	occupied, err := a.store.ListOccupied(ctx)
	if err != nil {
		return 0, err
	}
	freed := 0
	for _, res := range occupied {
		changed, err := a.reclaim(ctx, res.ID)
		if err != nil {
			a.log.Error("reconcile release failed", slog.Uint64("resource_id", res.ID), slog.Any("error", err))
			continue
		}
		if changed {
			freed++
		}
	}
	return freed, nil
}
