// Package discount computes merchandise discounts and loyalty redemption
// for a cart.  The result is the single authoritative discount amount used
// by tax and totals.
package discount

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/money"
)

// Mode selects between one discount for the whole order or one per line.
type Mode string

const (
	ModeNone       Mode = ""
	ModeWholeOrder Mode = "whole_order"
	ModePerItem    Mode = "per_item"
)

// Kind is how a rule's value is interpreted.
type Kind string

const (
	KindPercent Kind = "percent"
	KindAmount  Kind = "amount"
)

var (
	ErrNegativeValue = errors.New("discount value must not be negative")
	ErrUnknownKind   = errors.New("unknown discount kind")
	ErrUnknownMode   = errors.New("unknown discount mode")
)

// Rule is a percent or fixed amount discount.
type Rule struct {
	Kind  Kind            `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// Spec describes the discount requested for an order.  WholeOrder is used in
// ModeWholeOrder, PerItem (keyed by cart line id) in ModePerItem.
type Spec struct {
	Mode       Mode            `json:"mode"`
	WholeOrder *Rule           `json:"whole_order,omitempty"`
	PerItem    map[string]Rule `json:"per_item,omitempty"`
}

// Validate checks kinds and values without computing anything.
func (s Spec) Validate() error {
	switch s.Mode {
	case ModeNone:
		return nil
	case ModeWholeOrder:
		if s.WholeOrder == nil {
			return nil
		}
		return s.WholeOrder.validate()
	case ModePerItem:
		for _, r := range s.PerItem {
			if err := r.validate(); err != nil {
				return err
			}
		}
		return nil
	}
	return ErrUnknownMode
}

func (r Rule) validate() error {
	if r.Value.IsNegative() {
		return ErrNegativeValue
	}
	if r.Kind != KindPercent && r.Kind != KindAmount {
		return ErrUnknownKind
	}
	return nil
}

// apply returns the discount of r on base, never more than base.
func (r Rule) apply(base decimal.Decimal) decimal.Decimal {
	var v decimal.Decimal
	switch r.Kind {
	case KindPercent:
		v = base.Mul(r.Value).Div(money.Hundred)
	case KindAmount:
		v = r.Value
	}
	return money.Clamp(v, decimal.Zero, money.NonNegative(base))
}

// Policy is the loyalty redemption policy.
type Policy struct {
	MinOrder    decimal.Decimal // subtotal required before points can be redeemed
	BlockPoints int             // points per redeemable block
	BlockValue  decimal.Decimal // currency value of one block
}

// DefaultPolicy is the restaurant's fixed redemption policy: blocks of 2000
// points worth 20 each, on orders of at least 1000.
func DefaultPolicy() Policy {
	return Policy{
		MinOrder:    decimal.NewFromInt(1000),
		BlockPoints: 2000,
		BlockValue:  decimal.NewFromInt(20),
	}
}

// Result is the discount breakdown of an order.
type Result struct {
	MerchandiseDiscount decimal.Decimal `json:"merchandise_discount"`
	LoyaltyDiscount     decimal.Decimal `json:"loyalty_discount"`
	TotalDiscount       decimal.Decimal `json:"total_discount"`
	PointsRedeemed      int             `json:"points_redeemed"`
}

// Compute applies spec to the cart lines and redeems loyalty points against
// subtotalBase.  availablePoints is zero when the customer is unknown or the
// loyalty lookup failed.
func Compute(lines []model.CartLine, spec Spec, availablePoints int, subtotalBase decimal.Decimal, policy Policy) (Result, error) {
	if err := spec.Validate(); err != nil {
		return Result{}, err
	}
	base := money.NonNegative(subtotalBase)
	res := Result{
		MerchandiseDiscount: decimal.Zero,
		LoyaltyDiscount:     decimal.Zero,
		TotalDiscount:       decimal.Zero,
	}

	switch spec.Mode {
	case ModeWholeOrder:
		if spec.WholeOrder != nil {
			res.MerchandiseDiscount = spec.WholeOrder.apply(base)
		}
	case ModePerItem:
		sum := decimal.Zero
		merch := decimal.Zero
		for _, ln := range lines {
			lt := ln.LineTotal()
			merch = merch.Add(lt)
			if r, ok := spec.PerItem[ln.ID]; ok {
				sum = sum.Add(r.apply(lt))
			}
		}
		res.MerchandiseDiscount = money.Clamp(sum, decimal.Zero, merch)
	}

	res.LoyaltyDiscount, res.PointsRedeemed = redeem(availablePoints, base, policy)

	total := res.MerchandiseDiscount.Add(res.LoyaltyDiscount)
	res.TotalDiscount = money.Clamp(total, decimal.Zero, base)
	return res, nil
}

// redeem converts whole blocks of points into a discount capped at base.
func redeem(points int, base decimal.Decimal, p Policy) (decimal.Decimal, int) {
	if p.BlockPoints <= 0 || !p.BlockValue.IsPositive() || points <= 0 {
		return decimal.Zero, 0
	}
	if base.LessThan(p.MinOrder) {
		return decimal.Zero, 0
	}
	blocks := points / p.BlockPoints
	if blocks == 0 {
		return decimal.Zero, 0
	}
	candidate := p.BlockValue.Mul(decimal.NewFromInt(int64(blocks)))
	clamped := decimal.Min(candidate, base)
	applied := clamped.Div(p.BlockValue).Floor().IntPart()
	return p.BlockValue.Mul(decimal.NewFromInt(applied)), int(applied) * p.BlockPoints
}
