package discount

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/pos-engine/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func lines() []model.CartLine {
	return []model.CartLine{
		{ID: "a", UnitPrice: d("100"), Quantity: 3},
		{ID: "b", UnitPrice: d("50"), Quantity: 2},
	}
}

func TestLoyaltyRedemption(t *testing.T) {
	tests := []struct {
		name       string
		subtotal   string
		points     int
		wantDisc   string
		wantPoints int
	}{
		{"above minimum", "1500", 5000, "40", 4000},
		{"below minimum", "900", 5000, "0", 0},
		{"exactly minimum", "1000", 2000, "20", 2000},
		{"not a full block", "1500", 1999, "0", 0},
		{"no points", "1500", 0, "0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compute(nil, Spec{}, tt.points, d(tt.subtotal), DefaultPolicy())
			if err != nil {
				t.Fatal(err)
			}
			if !res.LoyaltyDiscount.Equal(d(tt.wantDisc)) {
				t.Errorf("loyalty discount = %s, want %s", res.LoyaltyDiscount, tt.wantDisc)
			}
			if res.PointsRedeemed != tt.wantPoints {
				t.Errorf("points redeemed = %d, want %d", res.PointsRedeemed, tt.wantPoints)
			}
		})
	}
}

func TestLoyaltyClampedToSubtotal(t *testing.T) {
	p := Policy{MinOrder: d("10"), BlockPoints: 2000, BlockValue: d("20")}
	res, err := Compute(nil, Spec{}, 20000, d("55"), p)
	if err != nil {
		t.Fatal(err)
	}
	// candidate 200 clamps to 55, which is two whole blocks
	if !res.LoyaltyDiscount.Equal(d("40")) || res.PointsRedeemed != 4000 {
		t.Fatalf("got %s / %d", res.LoyaltyDiscount, res.PointsRedeemed)
	}
}

func TestMerchandiseDiscount(t *testing.T) {
	subtotal := d("400")
	tests := []struct {
		name string
		spec Spec
		want string
	}{
		{"none", Spec{}, "0"},
		{"whole percent", Spec{Mode: ModeWholeOrder, WholeOrder: &Rule{Kind: KindPercent, Value: d("10")}}, "40"},
		{"whole percent above 100", Spec{Mode: ModeWholeOrder, WholeOrder: &Rule{Kind: KindPercent, Value: d("150")}}, "400"},
		{"whole amount", Spec{Mode: ModeWholeOrder, WholeOrder: &Rule{Kind: KindAmount, Value: d("25")}}, "25"},
		{"whole amount above subtotal", Spec{Mode: ModeWholeOrder, WholeOrder: &Rule{Kind: KindAmount, Value: d("900")}}, "400"},
		{"per item", Spec{Mode: ModePerItem, PerItem: map[string]Rule{
			"a": {Kind: KindPercent, Value: d("50")},
			"b": {Kind: KindAmount, Value: d("10")},
		}}, "160"},
		{"per item amount clamped per line", Spec{Mode: ModePerItem, PerItem: map[string]Rule{
			"b": {Kind: KindAmount, Value: d("500")},
		}}, "100"},
		{"per item unknown line ignored", Spec{Mode: ModePerItem, PerItem: map[string]Rule{
			"zzz": {Kind: KindAmount, Value: d("5")},
		}}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compute(lines(), tt.spec, 0, subtotal, DefaultPolicy())
			if err != nil {
				t.Fatal(err)
			}
			if !res.MerchandiseDiscount.Equal(d(tt.want)) {
				t.Errorf("merchandise discount = %s, want %s", res.MerchandiseDiscount, tt.want)
			}
		})
	}
}

func TestTotalDiscountNeverExceedsSubtotal(t *testing.T) {
	specs := []Spec{
		{Mode: ModeWholeOrder, WholeOrder: &Rule{Kind: KindPercent, Value: d("100")}},
		{Mode: ModeWholeOrder, WholeOrder: &Rule{Kind: KindAmount, Value: d("1e6")}},
		{Mode: ModePerItem, PerItem: map[string]Rule{"a": {Kind: KindPercent, Value: d("100")}, "b": {Kind: KindPercent, Value: d("100")}}},
	}
	for _, subtotal := range []string{"0", "400", "1200"} {
		for _, spec := range specs {
			res, err := Compute(lines(), spec, 100000, d(subtotal), DefaultPolicy())
			if err != nil {
				t.Fatal(err)
			}
			if res.TotalDiscount.IsNegative() || res.TotalDiscount.GreaterThan(d(subtotal)) {
				t.Fatalf("subtotal %s: total discount %s out of bounds", subtotal, res.TotalDiscount)
			}
		}
	}
}

func TestInvalidSpec(t *testing.T) {
	tests := []struct {
		spec Spec
		want error
	}{
		{Spec{Mode: ModeWholeOrder, WholeOrder: &Rule{Kind: KindAmount, Value: d("-1")}}, ErrNegativeValue},
		{Spec{Mode: ModeWholeOrder, WholeOrder: &Rule{Kind: "bogus", Value: d("1")}}, ErrUnknownKind},
		{Spec{Mode: "bogus"}, ErrUnknownMode},
	}
	for _, tt := range tests {
		if _, err := Compute(lines(), tt.spec, 0, d("400"), DefaultPolicy()); !errors.Is(err, tt.want) {
			t.Errorf("got %v, want %v", err, tt.want)
		}
	}
}
