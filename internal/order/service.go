// Package order commits and cancels orders.  Commits are idempotent on the
// client generated order id and retry exactly once when the order number
// collides with a concurrent commit.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/pos-engine/internal/checkout"
	"github.com/iliyamo/pos-engine/internal/discount"
	"github.com/iliyamo/pos-engine/internal/loyalty"
	"github.com/iliyamo/pos-engine/internal/metrics"
	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/pricing"
	"github.com/iliyamo/pos-engine/internal/repository"
	"github.com/iliyamo/pos-engine/internal/tax"
	"github.com/iliyamo/pos-engine/internal/validation"
)

var (
	// ErrDuplicateOrderConflict is returned when the order number collided
	// on both the first attempt and the single retry.
	ErrDuplicateOrderConflict = errors.New("order number conflict persisted after retry")
	ErrOrderPaid              = errors.New("paid orders cannot be cancelled")
)

// Store persists orders.  Create inserts the order with its lines and, for
// orders with a resource, binds the order to it in the same transaction.
// Cancel flips a pending order to cancelled and releases its seats in one
// transaction; it returns repository.ErrConflict for paid orders.
type Store interface {
	GetByID(ctx context.Context, id string) (model.Order, error)
	Create(ctx context.Context, o model.Order) error
	CountForDay(ctx context.Context, day time.Time) (int, error)
	Cancel(ctx context.Context, id, reason string) (model.Order, error)
}

type ResourceReader interface {
	Get(ctx context.Context, id uint64) (model.SeatResource, error)
}

type BookingReader interface {
	Get(ctx context.Context, id uint64) (model.Booking, error)
}

// TaxSource returns the branch tax rate; nil means not configured.
type TaxSource interface {
	TaxRate(ctx context.Context) (*decimal.Decimal, error)
}

// CartClearer empties the cart an order was composed in.
type CartClearer interface {
	Clear(ctx context.Context, staffID, terminalID string) error
}

// Pricer resolves catalog prices.  Implemented by pricing.Service.
type Pricer interface {
	PriceConfiguration(ctx context.Context, itemID uint64, choice model.ModifierChoice) (model.CatalogItem, pricing.Result, error)
}

type EventPublisher interface {
	OrderCommitted(ctx context.Context, o model.Order)
	OrderCancelled(ctx context.Context, o model.Order)
}

// Draft is an order ready to be committed.  ID is generated by the client
// and makes resubmission safe.
type Draft struct {
	ID          string             `json:"id"`
	Type        model.OrderType    `json:"type"`
	Lines       []model.CartLine   `json:"lines"`
	Customer    model.CustomerInfo `json:"customer"`
	Discount    discount.Spec      `json:"discount"`
	UseLoyalty  bool               `json:"use_loyalty"`
	TaxRate     *decimal.Decimal   `json:"tax_rate,omitempty"`
	DeliveryFee decimal.Decimal    `json:"delivery_fee"`
	Notes       string             `json:"notes,omitempty"`
	ResourceID  *uint64            `json:"resource_id,omitempty"`
	BookingID   *uint64            `json:"booking_id,omitempty"`
	Stay        *model.RoomStay    `json:"stay,omitempty"`
	GuestCount  int                `json:"guest_count,omitempty"`
	StaffID     string             `json:"-"`
	TerminalID  string             `json:"-"`
}

// Deps groups the collaborators of a Service.  Bookings, Taxes, Carts,
// Events and Loyalty may be nil.
type Deps struct {
	Orders     Store
	Catalog    Pricer
	Resources  ResourceReader
	Bookings   BookingReader
	Taxes      TaxSource
	Carts      CartClearer
	Events     EventPublisher
	Loyalty    *loyalty.Resolver
	Calculator checkout.Calculator
}

type Service struct {
	Deps
	backoff time.Duration
	now     func() time.Time
	log     *slog.Logger
}

func NewService(deps Deps, backoff time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{Deps: deps, backoff: backoff, now: time.Now, log: log}
}

// Get returns a committed order.
func (s *Service) Get(ctx context.Context, id string) (model.Order, error) {
	return s.Orders.GetByID(ctx, id)
}

// Quote computes the summary a draft would commit with.  Lookups degrade
// the same way they do on Submit.
func (s *Service) Quote(ctx context.Context, d Draft) (checkout.Result, error) {
	if err := d.Discount.Validate(); err != nil {
		return checkout.Result{}, validation.Error{Field: "discount", Message: err.Error()}
	}
	points := 0
	if d.UseLoyalty {
		points = s.Loyalty.Points(ctx, d.Customer)
	}
	in := checkout.Input{
		Lines:         d.Lines,
		Discount:      d.Discount,
		LoyaltyPoints: points,
		TaxRate:       s.taxRate(ctx, d.TaxRate),
		DeliveryFee:   d.DeliveryFee,
	}
	if d.Type != model.OrderDelivery {
		in.DeliveryFee = decimal.Zero
	}
	return s.Calculator.Summarize(in)
}

func (s *Service) taxRate(ctx context.Context, override *decimal.Decimal) tax.Rate {
	if override != nil {
		return tax.Percent(*override)
	}
	if s.Taxes == nil {
		return tax.Unset()
	}
	p, err := s.Taxes.TaxRate(ctx)
	if err != nil {
		s.log.Warn("tax rate lookup failed, using default", slog.Any("error", err))
		return tax.Unset()
	}
	return tax.FromNullable(p)
}

// Submit validates and commits a draft.  Submitting the same draft id again
// returns the order committed the first time.
func (s *Service) Submit(ctx context.Context, d Draft) (model.Order, error) {
	if d.ID == "" {
		return model.Order{}, validation.Error{Field: "id", Message: "order id is required"}
	}
	if existing, err := s.Orders.GetByID(ctx, d.ID); err == nil {
		s.log.Info("order already committed", slog.String("order_id", d.ID), slog.String("order_number", existing.Number))
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.Order{}, err
	}

	lines, err := s.reprice(ctx, d.Lines)
	if err != nil {
		metrics.RecordOrderOperation("submit", false)
		return model.Order{}, err
	}
	d.Lines = lines

	oc, err := s.orderContext(ctx, d)
	if err != nil {
		return model.Order{}, err
	}
	if err := validation.ValidateOrder(oc); err != nil {
		metrics.RecordOrderOperation("submit", false)
		return model.Order{}, err
	}
	quote, err := s.Quote(ctx, d)
	if err != nil {
		return model.Order{}, err
	}

	o := s.build(d, oc, quote)
	committed, err := s.commit(ctx, o)
	if err != nil {
		metrics.RecordOrderOperation("submit", false)
		return model.Order{}, err
	}
	metrics.RecordOrderOperation("submit", true)

	if s.Carts != nil && d.StaffID != "" {
		if err := s.Carts.Clear(ctx, d.StaffID, d.TerminalID); err != nil {
			s.log.Warn("cart clear failed", slog.String("order_id", committed.ID), slog.Any("error", err))
		}
	}
	if s.Events != nil {
		s.Events.OrderCommitted(ctx, committed)
	}
	s.log.Info("order committed",
		slog.String("order_id", committed.ID),
		slog.String("order_number", committed.Number),
		slog.String("type", string(committed.Type)),
		slog.String("total", committed.Total.StringFixed(2)))
	return committed, nil
}

// reprice rebuilds each line from the catalog so committed prices never come
// from the client.  Line id, quantity, note and choice are kept.
func (s *Service) reprice(ctx context.Context, lines []model.CartLine) ([]model.CartLine, error) {
	out := make([]model.CartLine, 0, len(lines))
	for _, l := range lines {
		item, res, err := s.Catalog.PriceConfiguration(ctx, l.CatalogItemID, l.Choice)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, validation.Error{Field: "lines.catalog_item_id",
					Message: fmt.Sprintf("catalog item %d is not available", l.CatalogItemID)}
			}
			return nil, err
		}
		l.Name = item.Name
		l.BasePrice = item.BasePrice
		l.UnitPrice = res.UnitPrice
		l.ModifiersSummary = res.Summary
		l.Category = item.Category
		out = append(out, l)
	}
	return out, nil
}

func (s *Service) orderContext(ctx context.Context, d Draft) (validation.OrderContext, error) {
	oc := validation.OrderContext{OrderID: d.ID, Type: d.Type, Lines: d.Lines, Customer: d.Customer, Stay: d.Stay}
	if d.Type == model.OrderDineIn && d.ResourceID != nil {
		res, err := s.Resources.Get(ctx, *d.ResourceID)
		switch {
		case err == nil:
			oc.Resource = &res
		case errors.Is(err, repository.ErrNotFound):
		default:
			return oc, err
		}
	}
	if d.Type == model.OrderRoomService && d.BookingID != nil && s.Bookings != nil {
		b, err := s.Bookings.Get(ctx, *d.BookingID)
		switch {
		case err == nil:
			oc.Booking = &b
		case errors.Is(err, repository.ErrNotFound):
		default:
			return oc, err
		}
	}
	return oc, nil
}

func (s *Service) build(d Draft, oc validation.OrderContext, q checkout.Result) model.Order {
	now := s.now().UTC()
	o := model.Order{
		ID:            d.ID,
		Type:          d.Type,
		Status:        model.StatusPending,
		Lines:         d.Lines,
		Customer:      d.Customer,
		Subtotal:      q.Summary.Subtotal,
		Discount:      q.Summary.Discount,
		LoyaltyPoints: q.Discount.PointsRedeemed,
		Tax:           q.Summary.Tax,
		DeliveryFee:   q.Summary.DeliveryFee,
		Total:         q.Summary.Total,
		Notes:         d.Notes,
		GuestCount:    d.GuestCount,
		TerminalID:    d.TerminalID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	switch d.Type {
	case model.OrderDineIn:
		o.ResourceID = d.ResourceID
		o.GuestCount = oc.Resource.SeatsFor(d.ID)
	case model.OrderRoomService:
		o.BookingID = d.BookingID
	case model.OrderRoomBooking:
		o.Stay = d.Stay
		o.GuestCount = d.Stay.Guests
	}
	return o
}

// commit assigns an order number and inserts the order.  A duplicate key is
// retried once after the backoff; the second one is fatal.
func (s *Service) commit(ctx context.Context, o model.Order) (model.Order, error) {
	for attempt := 0; attempt < 2; attempt++ {
		n, err := s.Orders.CountForDay(ctx, o.CreatedAt)
		if err != nil {
			return model.Order{}, err
		}
		o.Number = Number(o.CreatedAt, n+1)

		err = s.Orders.Create(ctx, o)
		if err == nil {
			return o, nil
		}
		if errors.Is(err, model.ErrNotBindable) {
			return model.Order{}, validation.Error{Field: "resource_id", Message: "table is no longer occupied by this order context"}
		}
		if !errors.Is(err, repository.ErrDuplicateKey) {
			return model.Order{}, err
		}
		// The same draft may have landed from a concurrent resubmission.
		if existing, gerr := s.Orders.GetByID(ctx, o.ID); gerr == nil {
			return existing, nil
		}
		if attempt == 1 {
			s.log.Error("order commit conflicted twice",
				slog.String("order_id", o.ID),
				slog.String("order_number", o.Number),
				slog.String("error_code", "DuplicateOrderConflict"))
			return model.Order{}, fmt.Errorf("%w: %v", ErrDuplicateOrderConflict, err)
		}
		metrics.RecordDuplicateRetry()
		s.log.Warn("order number taken, retrying",
			slog.String("order_id", o.ID),
			slog.String("order_number", o.Number),
			slog.Duration("backoff", s.backoff))
		select {
		case <-ctx.Done():
			return model.Order{}, ctx.Err()
		case <-time.After(s.backoff):
		}
	}
	return model.Order{}, ErrDuplicateOrderConflict
}

// Cancel flips the order to cancelled and releases its seats.  Cancelling
// an already cancelled order returns it unchanged.
func (s *Service) Cancel(ctx context.Context, id, reason string) (model.Order, error) {
	cur, err := s.Orders.GetByID(ctx, id)
	if err != nil {
		return model.Order{}, err
	}
	switch cur.Status {
	case model.StatusCancelled:
		return cur, nil
	case model.StatusPaid:
		return model.Order{}, ErrOrderPaid
	}
	o, err := s.Orders.Cancel(ctx, id, reason)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.Order{}, ErrOrderPaid
		}
		metrics.RecordOrderOperation("cancel", false)
		return model.Order{}, err
	}
	metrics.RecordOrderOperation("cancel", true)
	s.log.Info("order cancelled", slog.String("order_id", id), slog.String("reason", reason))
	if s.Events != nil {
		s.Events.OrderCancelled(ctx, o)
	}
	return o, nil
}

// Number formats the human facing order number for the seq-th order of day.
func Number(day time.Time, seq int) string {
	return fmt.Sprintf("ORD-%s-%04d", day.UTC().Format("20060102"), seq)
}
