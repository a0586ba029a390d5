package model

import "github.com/shopspring/decimal"

// Cardinality controls how many options of a selection group a guest may pick.
type Cardinality string

const (
	CardinalitySingle   Cardinality = "single"   // exactly one option, defaults to the first
	CardinalityMulti    Cardinality = "multi"    // zero or more options
	CardinalityOptional Cardinality = "optional" // zero or more options
)

// CatalogItem is a sellable menu item together with its modifier groups.
// It is owned by the catalog tables and is never mutated by the engine.
//
// Fields:
//
//	ID         – catalog_items.id
//	Name       – display name
//	Category   – category label copied onto cart lines
//	BasePrice  – price before any modifier
//	Variants   – ordered variant groups, one option is always applied per group
//	Selections – ordered selection groups with a cardinality
//	Addons     – optional extras toggled on or off
type CatalogItem struct {
	ID         uint64           `json:"id"`
	Name       string           `json:"name"`
	Category   string           `json:"category"`
	BasePrice  decimal.Decimal  `json:"base_price"`
	Variants   []VariantGroup   `json:"variants"`
	Selections []SelectionGroup `json:"selections"`
	Addons     []Addon          `json:"addons"`
}

// HasModifiers reports whether the item offers anything to configure.  Items
// without modifiers go straight into the cart with quantity one.
func (i CatalogItem) HasModifiers() bool {
	return len(i.Variants) > 0 || len(i.Selections) > 0 || len(i.Addons) > 0
}

// VariantGroup is a named group of mutually exclusive options (e.g. Size).
type VariantGroup struct {
	Name    string          `json:"name"`
	Options []VariantOption `json:"options"`
}

// VariantOption adjusts the base price by PriceModifier, which may be negative.
type VariantOption struct {
	Name          string          `json:"name"`
	PriceModifier decimal.Decimal `json:"price_modifier"`
}

// SelectionGroup is a named group of priced options (e.g. Sauces).
type SelectionGroup struct {
	Name        string            `json:"name"`
	Cardinality Cardinality       `json:"cardinality"`
	Options     []SelectionOption `json:"options"`
}

type SelectionOption struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Addon is an optional extra.  IsAvailable is nil when the catalog does not
// track availability; only an explicit false hides the addon.
type Addon struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	IsAvailable *bool           `json:"is_available,omitempty"`
}

// Available reports whether the addon may be chosen.
func (a Addon) Available() bool {
	return a.IsAvailable == nil || *a.IsAvailable
}

// ModifierChoice is the configuration a guest picked for one catalog item.
// Variants maps group name to option name, Selections maps group name to the
// chosen option names and Addons maps addon name to whether it was chosen.
type ModifierChoice struct {
	Variants   map[string]string   `json:"variants,omitempty"`
	Selections map[string][]string `json:"selections,omitempty"`
	Addons     map[string]bool     `json:"addons,omitempty"`
}
