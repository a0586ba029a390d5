package settlement

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/pos-engine/internal/metrics"
	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/money"
	"github.com/iliyamo/pos-engine/internal/repository"
)

var (
	// ErrConcurrentSettlement is raised when the order is already paid or
	// another terminal is settling it right now.
	ErrConcurrentSettlement = errors.New("order is being settled or already paid")
	ErrOrderCancelled       = errors.New("cancelled orders cannot be settled")
	// ErrTotalMismatch means the caller priced against a stale summary.
	ErrTotalMismatch = errors.New("tendered total does not match the order total")
)

// OrderStore loads orders and flips them from pending to paid.  MarkPaid
// returns repository.ErrConflict when the order is no longer pending.
type OrderStore interface {
	GetByID(ctx context.Context, id string) (model.Order, error)
	MarkPaid(ctx context.Context, id, method string, parts []model.PaymentPart) (model.Order, error)
}

// MethodSource lists configured payment methods.
type MethodSource interface {
	ListPaymentMethods(ctx context.Context) ([]model.PaymentMethod, error)
}

// Guard serialises settlement per order across terminals.
type Guard interface {
	SettlementKey(orderID string) string
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// EventPublisher is told about accepted settlements.
type EventPublisher interface {
	PaymentSettled(ctx context.Context, o model.Order, out Outcome)
}

// Request is a settlement attempt.  Total is optional; when present it must
// match the stored order total.
type Request struct {
	Total  *decimal.Decimal `json:"total,omitempty"`
	Tender Tender           `json:"tender"`
}

type Service struct {
	orders  OrderStore
	methods MethodSource
	guard   Guard
	events  EventPublisher
	log     *slog.Logger
}

// NewService wires a settlement service.  guard, methods and events may be nil.
func NewService(orders OrderStore, methods MethodSource, guard Guard, events EventPublisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{orders: orders, methods: methods, guard: guard, events: events, log: log}
}

// SettlePayment validates the tender against the order total and marks the
// order paid.  A rejected tender leaves the order untouched.
func (s *Service) SettlePayment(ctx context.Context, orderID string, req Request) (model.Order, Outcome, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return model.Order{}, Outcome{}, err
	}
	switch o.Status {
	case model.StatusPaid:
		metrics.RecordSettlementRejection("already_paid")
		return o, Outcome{}, ErrConcurrentSettlement
	case model.StatusCancelled:
		return o, Outcome{}, ErrOrderCancelled
	}
	if req.Total != nil && money.Round(*req.Total).Sub(o.Total).Abs().GreaterThan(money.Epsilon) {
		metrics.RecordSettlementRejection("total_mismatch")
		return o, Outcome{}, ErrTotalMismatch
	}

	out, err := Settle(o.Total, req.Tender, s.loadMethods(ctx))
	if err != nil {
		metrics.RecordSettlementRejection(reason(err))
		s.log.Warn("tender rejected",
			slog.String("order_id", orderID),
			slog.String("total", o.Total.StringFixed(2)),
			slog.String("applied", out.Applied.StringFixed(2)),
			slog.Any("error", err))
		return o, out, err
	}

	if s.guard != nil {
		key := s.guard.SettlementKey(orderID)
		ok, err := s.guard.Acquire(ctx, key)
		if err != nil {
			return o, out, err
		}
		if !ok {
			metrics.RecordSettlementRejection("concurrent")
			return o, out, ErrConcurrentSettlement
		}
		defer func() {
			if err := s.guard.Release(context.WithoutCancel(ctx), key); err != nil {
				s.log.Warn("settlement guard release failed", slog.String("order_id", orderID), slog.Any("error", err))
			}
		}()
	}

	method := req.Tender.Method
	if req.Tender.IsSplit() {
		method = "split"
	}
	paid, err := s.orders.MarkPaid(ctx, orderID, method, out.Payments())
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			metrics.RecordSettlementRejection("concurrent")
			return o, out, ErrConcurrentSettlement
		}
		metrics.RecordOrderOperation("settle", false)
		return o, out, err
	}
	metrics.RecordOrderOperation("settle", true)
	s.log.Info("order settled",
		slog.String("order_id", orderID),
		slog.String("method", method),
		slog.String("total", paid.Total.StringFixed(2)),
		slog.String("change_due", out.ChangeDue.StringFixed(2)),
		slog.String("overpaid", out.Overpaid.StringFixed(2)))
	if s.events != nil {
		s.events.PaymentSettled(ctx, paid, out)
	}
	return paid, out, nil
}

func (s *Service) loadMethods(ctx context.Context) Methods {
	if s.methods == nil {
		return DefaultMethods()
	}
	list, err := s.methods.ListPaymentMethods(ctx)
	if err != nil || len(list) == 0 {
		if err != nil {
			s.log.Warn("payment methods unavailable, using defaults", slog.Any("error", err))
		}
		return DefaultMethods()
	}
	return NewMethods(list)
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrEmptySplit):
		return "empty_split"
	case errors.Is(err, ErrInsufficientSplitCoverage):
		return "insufficient_split_coverage"
	case errors.Is(err, ErrPaymentBelowTotal):
		return "payment_below_total"
	case errors.Is(err, ErrOverpaymentWithoutChange):
		return "overpayment_without_change"
	default:
		return "invalid_tender"
	}
}
