// Package checkout composes cart, discount and tax into an order summary.
package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/iliyamo/pos-engine/internal/cart"
	"github.com/iliyamo/pos-engine/internal/discount"
	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/money"
	"github.com/iliyamo/pos-engine/internal/tax"
)

// Input is everything a summary depends on.  Change any of it and the
// summary must be computed again.
type Input struct {
	Lines         []model.CartLine
	Discount      discount.Spec
	LoyaltyPoints int
	TaxRate       tax.Rate
	DeliveryFee   decimal.Decimal
}

// Result carries the summary together with the breakdowns it came from.
type Result struct {
	Summary  model.OrderSummary `json:"summary"`
	Discount discount.Result    `json:"discount"`
	Tax      tax.Breakdown      `json:"tax"`
}

// Calculator binds the redemption policy and tax default.
type Calculator struct {
	Policy discount.Policy
	Tax    tax.Calculator
}

func NewCalculator(policy discount.Policy, taxCalc tax.Calculator) Calculator {
	return Calculator{Policy: policy, Tax: taxCalc}
}

// Summarize computes subtotal, discount, tax, fee and total for in.
func (c Calculator) Summarize(in Input) (Result, error) {
	subtotal := cart.Subtotal(in.Lines)
	disc, err := discount.Compute(in.Lines, in.Discount, in.LoyaltyPoints, subtotal, c.Policy)
	if err != nil {
		return Result{}, err
	}
	fee := money.NonNegative(in.DeliveryFee)
	tb, err := c.Tax.Compute(subtotal, disc.TotalDiscount, fee, in.TaxRate)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Summary: model.OrderSummary{
			Subtotal:    money.Round(subtotal),
			Discount:    money.Round(disc.TotalDiscount),
			Tax:         tb.Tax,
			DeliveryFee: fee,
			Total:       tb.Total,
			ItemCount:   cart.ItemCount(in.Lines),
		},
		Discount: disc,
		Tax:      tb,
	}, nil
}
