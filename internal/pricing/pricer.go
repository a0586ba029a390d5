// Package pricing resolves a catalog item and a modifier choice into a unit
// price and a human readable summary.
package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/money"
)

// AppliedVariant records the option resolved for one variant group.
type AppliedVariant struct {
	Group  string          `json:"group"`
	Option string          `json:"option"`
	Delta  decimal.Decimal `json:"delta"`
}

// AppliedSelection records one chosen option of a selection group.
type AppliedSelection struct {
	Group  string          `json:"group"`
	Option string          `json:"option"`
	Price  decimal.Decimal `json:"price"`
}

// AppliedAddon records one chosen addon.
type AppliedAddon struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Result is the outcome of pricing one configuration.
type Result struct {
	UnitPrice         decimal.Decimal    `json:"unit_price"`
	Summary           string             `json:"summary"`
	AppliedVariants   []AppliedVariant   `json:"applied_variants"`
	AppliedSelections []AppliedSelection `json:"applied_selections"`
	AppliedAddons     []AppliedAddon     `json:"applied_addons"`
}

// Price computes the unit price of item configured with choice.  Contributions
// are summed at full precision and the total is rounded once at the end.
func Price(item model.CatalogItem, choice model.ModifierChoice) Result {
	res := Result{
		AppliedVariants:   []AppliedVariant{},
		AppliedSelections: []AppliedSelection{},
		AppliedAddons:     []AppliedAddon{},
	}
	unit := item.BasePrice
	var parts []string

	for _, g := range item.Variants {
		if len(g.Options) == 0 {
			continue
		}
		opt := g.Options[0]
		if want, ok := choice.Variants[g.Name]; ok {
			for _, o := range g.Options {
				if o.Name == want {
					opt = o
					break
				}
			}
		}
		unit = unit.Add(opt.PriceModifier)
		res.AppliedVariants = append(res.AppliedVariants, AppliedVariant{Group: g.Name, Option: opt.Name, Delta: opt.PriceModifier})
		if !opt.PriceModifier.IsZero() {
			parts = append(parts, fmt.Sprintf("%s: %s (%s)", g.Name, opt.Name, signed(opt.PriceModifier)))
		}
	}

	for _, g := range item.Selections {
		for _, opt := range resolveSelection(g, choice.Selections[g.Name]) {
			unit = unit.Add(opt.Price)
			res.AppliedSelections = append(res.AppliedSelections, AppliedSelection{Group: g.Name, Option: opt.Name, Price: opt.Price})
			if !opt.Price.IsZero() {
				parts = append(parts, fmt.Sprintf("%s: %s (%s)", g.Name, opt.Name, signed(opt.Price)))
			}
		}
	}

	for _, a := range item.Addons {
		if !a.Available() || !choice.Addons[a.Name] {
			continue
		}
		unit = unit.Add(a.Price)
		res.AppliedAddons = append(res.AppliedAddons, AppliedAddon{Name: a.Name, Price: a.Price})
		if !a.Price.IsZero() {
			parts = append(parts, fmt.Sprintf("%s (%s)", a.Name, signed(a.Price)))
		}
	}

	res.UnitPrice = money.Round(unit)
	res.Summary = strings.Join(parts, "; ")
	return res
}

// resolveSelection returns the options chosen for one selection group.  A
// single group always yields exactly one option; multi and optional groups
// yield every requested option that exists, in catalog order, without repeats.
func resolveSelection(g model.SelectionGroup, wanted []string) []model.SelectionOption {
	if len(g.Options) == 0 {
		return nil
	}
	if g.Cardinality == model.CardinalitySingle {
		for _, w := range wanted {
			for _, o := range g.Options {
				if o.Name == w {
					return []model.SelectionOption{o}
				}
			}
		}
		return []model.SelectionOption{g.Options[0]}
	}
	set := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		set[w] = true
	}
	var out []model.SelectionOption
	for _, o := range g.Options {
		if set[o.Name] {
			out = append(out, o)
			delete(set, o.Name)
		}
	}
	return out
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(2)
	}
	return "+" + d.StringFixed(2)
}

// CatalogReader loads catalog items.  Implemented by repository.CatalogRepo.
type CatalogReader interface {
	GetItem(ctx context.Context, id uint64) (model.CatalogItem, error)
}

// Service prices configurations for items looked up by id.
type Service struct {
	catalog CatalogReader
}

func NewService(catalog CatalogReader) *Service {
	return &Service{catalog: catalog}
}

// Item returns the catalog item with the given id.
func (s *Service) Item(ctx context.Context, id uint64) (model.CatalogItem, error) {
	return s.catalog.GetItem(ctx, id)
}

// PriceConfiguration loads the item and prices the given choice.
func (s *Service) PriceConfiguration(ctx context.Context, itemID uint64, choice model.ModifierChoice) (model.CatalogItem, Result, error) {
	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		return model.CatalogItem{}, Result{}, err
	}
	return item, Price(item, choice), nil
}
