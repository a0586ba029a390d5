// Package tax applies the configured tax rate to the post-discount base.
package tax

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/pos-engine/internal/money"
)

var ErrNegativeRate = errors.New("tax rate must not be negative")

// Rate is a tax percentage that remembers whether it was set.  A zero Rate
// is unset and resolves to the calculator default; Percent(0) is a real
// zero rate.
type Rate struct {
	percent decimal.Decimal
	set     bool
}

// Percent returns a set rate of p percent.
func Percent(p decimal.Decimal) Rate { return Rate{percent: p, set: true} }

// Unset returns a rate that falls back to the default.
func Unset() Rate { return Rate{} }

// IsSet reports whether the rate was explicitly configured.
func (r Rate) IsSet() bool { return r.set }

// Value returns the percentage; only meaningful when IsSet.
func (r Rate) Value() decimal.Decimal { return r.percent }

// FromNullable builds a Rate from an optional percentage, as stored in settings.
func FromNullable(p *decimal.Decimal) Rate {
	if p == nil {
		return Unset()
	}
	return Percent(*p)
}

// Breakdown is the result of applying tax.
type Breakdown struct {
	TaxableBase decimal.Decimal `json:"taxable_base"`
	Rate        decimal.Decimal `json:"rate"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
}

// Calculator applies rates, falling back to Default for unset ones.
type Calculator struct {
	Default decimal.Decimal
}

func NewCalculator(defaultPercent decimal.Decimal) Calculator {
	return Calculator{Default: defaultPercent}
}

// Resolve returns the effective percentage for r.
func (c Calculator) Resolve(r Rate) decimal.Decimal {
	if r.IsSet() {
		return r.percent
	}
	return c.Default
}

// Compute returns tax and total for the given subtotal, discount and fee.
// The delivery fee is never taxed.
func (c Calculator) Compute(subtotal, totalDiscount, deliveryFee decimal.Decimal, r Rate) (Breakdown, error) {
	pct := c.Resolve(r)
	if pct.IsNegative() {
		return Breakdown{}, ErrNegativeRate
	}
	base := money.NonNegative(subtotal.Sub(totalDiscount))
	tax := money.Round(base.Mul(pct).Div(money.Hundred))
	return Breakdown{
		TaxableBase: base,
		Rate:        pct,
		Tax:         tax,
		Total:       money.Round(base.Add(tax).Add(money.NonNegative(deliveryFee))),
	}, nil
}
