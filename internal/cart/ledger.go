// Package cart holds the in-progress order lines of one terminal and the
// Redis-backed session store that persists them between requests.
package cart

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/pricing"
)

var (
	// ErrLineNotFound is returned when a line id is not in the cart.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrInvalidQuantity is returned when a line is appended with quantity < 1.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// MergePolicy decides what Append does with a line equal to an existing one.
type MergePolicy int

const (
	// MergeEqual increments the quantity of an equal line.
	MergeEqual MergePolicy = iota
	// AlwaysInsert keeps every appended line separate.
	AlwaysInsert
)

// Ledger is an ordered set of cart lines.  It is owned by a single order
// context and is not safe for concurrent use.
type Ledger struct {
	lines []model.CartLine
}

// NewLedger returns a ledger seeded with copies of lines.
func NewLedger(lines []model.CartLine) *Ledger {
	l := &Ledger{lines: make([]model.CartLine, 0, len(lines))}
	for _, ln := range lines {
		if ln.Quantity < 1 {
			continue
		}
		l.lines = append(l.lines, ln)
	}
	return l
}

// NewLine builds a cart line from a priced configuration.  The id is a fresh UUID.
func NewLine(item model.CatalogItem, res pricing.Result, choice model.ModifierChoice, quantity int, note string) model.CartLine {
	return model.CartLine{
		ID:               uuid.NewString(),
		CatalogItemID:    item.ID,
		Name:             item.Name,
		BasePrice:        item.BasePrice,
		UnitPrice:        res.UnitPrice,
		Quantity:         quantity,
		Note:             note,
		ModifiersSummary: res.Summary,
		Category:         item.Category,
		Choice:           choice,
	}
}

// Append adds line to the ledger.  Under MergeEqual an equal line absorbs the
// quantity instead; the returned line is the one now holding the quantity.
func (l *Ledger) Append(line model.CartLine, policy MergePolicy) (model.CartLine, error) {
	if line.Quantity < 1 {
		return model.CartLine{}, ErrInvalidQuantity
	}
	if line.ID == "" {
		line.ID = uuid.NewString()
	}
	if policy == MergeEqual {
		key := MergeKey(line)
		for i := range l.lines {
			if MergeKey(l.lines[i]) == key {
				l.lines[i].Quantity += line.Quantity
				return l.lines[i], nil
			}
		}
	}
	l.lines = append(l.lines, line)
	return line, nil
}

// SetQuantity changes a line's quantity.  A quantity of zero or less removes it.
func (l *Ledger) SetQuantity(lineID string, q int) error {
	if q <= 0 {
		return l.Remove(lineID)
	}
	for i := range l.lines {
		if l.lines[i].ID == lineID {
			l.lines[i].Quantity = q
			return nil
		}
	}
	return ErrLineNotFound
}

// Remove deletes a line.
func (l *Ledger) Remove(lineID string) error {
	for i := range l.lines {
		if l.lines[i].ID == lineID {
			l.lines = append(l.lines[:i], l.lines[i+1:]...)
			return nil
		}
	}
	return ErrLineNotFound
}

// Clear empties the ledger.
func (l *Ledger) Clear() { l.lines = l.lines[:0] }

// Lines returns a copy of the lines in insertion order.
func (l *Ledger) Lines() []model.CartLine {
	out := make([]model.CartLine, len(l.lines))
	copy(out, l.lines)
	return out
}

// Len returns the number of distinct lines.
func (l *Ledger) Len() int { return len(l.lines) }

// Subtotal is the sum of unit price times quantity over all lines.
func (l *Ledger) Subtotal() decimal.Decimal {
	return Subtotal(l.lines)
}

// ItemCount is the sum of quantities.
func (l *Ledger) ItemCount() int {
	return ItemCount(l.lines)
}

// Subtotal sums line totals of an arbitrary slice.
func Subtotal(lines []model.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, ln := range lines {
		total = total.Add(ln.LineTotal())
	}
	return total
}

// ItemCount sums quantities of an arbitrary slice.
func ItemCount(lines []model.CartLine) int {
	n := 0
	for _, ln := range lines {
		n += ln.Quantity
	}
	return n
}

// MergeKey identifies lines that may be merged: same catalog item, same
// serialized modifier choice and same note.  Selection option order does not
// matter; map keys are sorted by encoding/json.
func MergeKey(line model.CartLine) string {
	c := model.ModifierChoice{Variants: line.Choice.Variants, Addons: map[string]bool{}}
	for name, on := range line.Choice.Addons {
		if on {
			c.Addons[name] = true
		}
	}
	if len(line.Choice.Selections) > 0 {
		c.Selections = make(map[string][]string, len(line.Choice.Selections))
		for g, opts := range line.Choice.Selections {
			if len(opts) == 0 {
				continue
			}
			sorted := append([]string(nil), opts...)
			sort.Strings(sorted)
			c.Selections[g] = sorted
		}
	}
	key := struct {
		Item   uint64               `json:"i"`
		Choice model.ModifierChoice `json:"c"`
		Note   string               `json:"n"`
	}{line.CatalogItemID, c, line.Note}
	b, _ := json.Marshal(key)
	return string(b)
}
