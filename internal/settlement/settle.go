// Package settlement validates tendered payment against an order total.
package settlement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/money"
)

var (
	ErrEmptySplit                = errors.New("split tender has no positive row")
	ErrInsufficientSplitCoverage = errors.New("split tender does not cover the total")
	ErrPaymentBelowTotal         = errors.New("amount received is below the total")
	ErrOverpaymentWithoutChange  = errors.New("payment method gives no change and must match the total")
	ErrAmountReceivedRequired    = errors.New("amount received is required")
	ErrNegativeAmount            = errors.New("tender amounts must not be negative")
	ErrUnknownMethod             = errors.New("unknown payment method")
	ErrMethodNotSplittable       = errors.New("payment method does not accept partial payment")
)

// Row is one line of a split tender.
type Row struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

// Tender is what the customer offers.  Split wins when it has rows;
// otherwise Method and AmountReceived describe a single-method payment.
type Tender struct {
	Method         string           `json:"method,omitempty"`
	AmountReceived *decimal.Decimal `json:"amount_received,omitempty"`
	Split          []Row            `json:"split,omitempty"`
}

// IsSplit reports whether the tender is split across rows.
func (t Tender) IsSplit() bool { return len(t.Split) > 0 }

// Entry is one audited line of the breakdown.  Amount is what the method
// was charged; Received is what was handed over for it.
type Entry struct {
	Method   string          `json:"method"`
	Amount   decimal.Decimal `json:"amount"`
	Received decimal.Decimal `json:"received"`
	Change   decimal.Decimal `json:"change"`
}

// Outcome is the settlement answer.  Breakdown is filled even when the
// tender is rejected.  Overpaid is the split excess no cash row could hand
// back as change.
type Outcome struct {
	Accepted  bool            `json:"accepted"`
	Total     decimal.Decimal `json:"total"`
	Applied   decimal.Decimal `json:"applied"`
	ChangeDue decimal.Decimal `json:"change_due"`
	Overpaid  decimal.Decimal `json:"overpaid"`
	Breakdown []Entry         `json:"breakdown"`
}

// Payments converts the breakdown into persisted payment parts.
func (o Outcome) Payments() []model.PaymentPart {
	parts := make([]model.PaymentPart, 0, len(o.Breakdown))
	for _, e := range o.Breakdown {
		parts = append(parts, model.PaymentPart{Method: e.Method, Amount: e.Amount, Received: e.Received, Change: e.Change})
	}
	return parts
}

// CoverageError details how far a split tender fell short.
type CoverageError struct {
	Total     decimal.Decimal
	Applied   decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("split tender covers %s of %s, short by %s",
		e.Applied.StringFixed(2), e.Total.StringFixed(2), e.Shortfall.StringFixed(2))
}

func (e *CoverageError) Unwrap() error { return ErrInsufficientSplitCoverage }

// BelowTotalError details a single-method payment that does not reach the total.
type BelowTotalError struct {
	Method   string
	Total    decimal.Decimal
	Received decimal.Decimal
}

func (e *BelowTotalError) Error() string {
	return fmt.Sprintf("%s received %s, total is %s", e.Method, e.Received.StringFixed(2), e.Total.StringFixed(2))
}

func (e *BelowTotalError) Unwrap() error { return ErrPaymentBelowTotal }

// Methods indexes payment methods by code.
type Methods map[string]model.PaymentMethod

// NewMethods builds a Methods index.
func NewMethods(list []model.PaymentMethod) Methods {
	m := make(Methods, len(list))
	for _, pm := range list {
		m[pm.Code] = pm
	}
	return m
}

// DefaultMethods is used when no method configuration is available.
func DefaultMethods() Methods {
	return NewMethods([]model.PaymentMethod{
		{Code: "cash", Name: "Cash", AllowsChangeDue: true, AllowsPartialPayment: true},
		{Code: "card", Name: "Card", AllowsChangeDue: false, AllowsPartialPayment: true},
	})
}

// Settle validates tender against total.  A rejected tender returns a
// non-nil error together with an Outcome whose Accepted is false.
func Settle(total decimal.Decimal, tender Tender, methods Methods) (Outcome, error) {
	total = money.Round(money.NonNegative(total))
	if tender.IsSplit() {
		return settleSplit(total, tender.Split, methods)
	}
	return settleSingle(total, tender, methods)
}

func settleSingle(total decimal.Decimal, tender Tender, methods Methods) (Outcome, error) {
	out := Outcome{Total: total}
	pm, ok := methods[tender.Method]
	if !ok {
		return out, fmt.Errorf("%w: %q", ErrUnknownMethod, tender.Method)
	}
	if tender.AmountReceived == nil {
		return out, ErrAmountReceivedRequired
	}
	received := money.Round(*tender.AmountReceived)
	if received.IsNegative() {
		return out, ErrNegativeAmount
	}
	out.Applied = received
	if !money.Covers(received, total) {
		out.Breakdown = []Entry{{Method: pm.Code, Amount: received, Received: received, Change: decimal.Zero}}
		return out, &BelowTotalError{Method: pm.Code, Total: total, Received: received}
	}

	change := decimal.Zero
	if pm.AllowsChangeDue {
		change = money.NonNegative(received.Sub(total))
	} else if received.Sub(total).GreaterThan(money.Epsilon) {
		out.Breakdown = []Entry{{Method: pm.Code, Amount: received, Received: received, Change: decimal.Zero}}
		return out, fmt.Errorf("%w: %s received %s, total is %s", ErrOverpaymentWithoutChange,
			pm.Code, received.StringFixed(2), total.StringFixed(2))
	}
	// A non-change method within the rounding tolerance is charged the total.
	out.Accepted = true
	out.ChangeDue = change
	out.Breakdown = []Entry{{Method: pm.Code, Amount: total, Received: received, Change: change}}
	return out, nil
}

func settleSplit(total decimal.Decimal, rows []Row, methods Methods) (Outcome, error) {
	out := Outcome{Total: total}
	applied := decimal.Zero
	var used []Row
	for _, r := range rows {
		amount := money.Round(r.Amount)
		if amount.IsNegative() {
			return out, ErrNegativeAmount
		}
		if amount.IsZero() {
			continue
		}
		pm, ok := methods[r.Method]
		if !ok {
			return out, fmt.Errorf("%w: %q", ErrUnknownMethod, r.Method)
		}
		if !pm.AllowsPartialPayment {
			return out, fmt.Errorf("%w: %q", ErrMethodNotSplittable, r.Method)
		}
		applied = applied.Add(amount)
		used = append(used, Row{Method: pm.Code, Amount: amount})
	}
	out.Applied = applied
	for _, r := range used {
		out.Breakdown = append(out.Breakdown, Entry{Method: r.Method, Amount: r.Amount, Received: r.Amount, Change: decimal.Zero})
	}
	if len(used) == 0 {
		return out, ErrEmptySplit
	}
	if !money.Covers(applied, total) {
		return out, &CoverageError{Total: total, Applied: applied, Shortfall: total.Sub(applied)}
	}

	excess := money.NonNegative(applied.Sub(total))
	if excess.GreaterThan(money.Epsilon) {
		if idx := changeRow(out.Breakdown, excess, methods); idx >= 0 {
			e := &out.Breakdown[idx]
			e.Change = excess
			e.Amount = e.Received.Sub(excess)
			out.ChangeDue = excess
		} else {
			out.Overpaid = excess
		}
	}
	out.Accepted = true
	return out, nil
}

// changeRow picks the row that hands back the excess: the first change-giving
// row large enough to absorb it, else the first change-giving row.  A smaller
// row ends up with a negative net amount, paid out of the drawer.
func changeRow(entries []Entry, excess decimal.Decimal, methods Methods) int {
	first := -1
	for i, e := range entries {
		if !methods[e.Method].AllowsChangeDue {
			continue
		}
		if !e.Received.LessThan(excess) {
			return i
		}
		if first < 0 {
			first = i
		}
	}
	return first
}
