package repository

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/pos-engine/internal/model"
)

// CatalogRepo reads menu items and their modifier groups.  The catalog is
// maintained outside the engine so the repo is read only.
type CatalogRepo struct {
	db *sql.DB
}

// NewCatalogRepo returns a CatalogRepo bound to db.
func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

// GetItem loads an active item with its variant groups, selection groups and
// addons, each ordered by position.  Inactive items are reported as
// ErrNotFound.
func (r *CatalogRepo) GetItem(ctx context.Context, id uint64) (model.CatalogItem, error) {
	var item model.CatalogItem
	const q = `SELECT id, name, category, base_price FROM catalog_items WHERE id = ? AND is_active = 1`
	err := r.db.QueryRowContext(ctx, q, id).Scan(&item.ID, &item.Name, &item.Category, &item.BasePrice)
	if err != nil {
		return model.CatalogItem{}, translate(err)
	}

	if item.Variants, err = r.variants(ctx, id); err != nil {
		return model.CatalogItem{}, err
	}
	if item.Selections, err = r.selections(ctx, id); err != nil {
		return model.CatalogItem{}, err
	}
	if item.Addons, err = r.addons(ctx, id); err != nil {
		return model.CatalogItem{}, err
	}
	return item, nil
}

func (r *CatalogRepo) variants(ctx context.Context, itemID uint64) ([]model.VariantGroup, error) {
	const q = `
		SELECT g.id, g.name, o.name, o.price_modifier
		FROM variant_groups g
		JOIN variant_options o ON o.group_id = g.id
		WHERE g.item_id = ?
		ORDER BY g.position, g.id, o.position, o.id`
	rows, err := r.db.QueryContext(ctx, q, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out    []model.VariantGroup
		lastID uint64
	)
	for rows.Next() {
		var (
			groupID uint64
			group   string
			opt     model.VariantOption
		)
		if err := rows.Scan(&groupID, &group, &opt.Name, &opt.PriceModifier); err != nil {
			return nil, err
		}
		if len(out) == 0 || groupID != lastID {
			out = append(out, model.VariantGroup{Name: group})
			lastID = groupID
		}
		g := &out[len(out)-1]
		g.Options = append(g.Options, opt)
	}
	return out, rows.Err()
}

func (r *CatalogRepo) selections(ctx context.Context, itemID uint64) ([]model.SelectionGroup, error) {
	// LEFT JOIN keeps groups that have no options yet; they price as nothing.
	const q = `
		SELECT g.id, g.name, g.cardinality, o.name, o.price
		FROM selection_groups g
		LEFT JOIN selection_options o ON o.group_id = g.id
		WHERE g.item_id = ?
		ORDER BY g.position, g.id, o.position, o.id`
	rows, err := r.db.QueryContext(ctx, q, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out    []model.SelectionGroup
		lastID uint64
	)
	for rows.Next() {
		var (
			groupID uint64
			name    string
			card    string
			optName sql.NullString
			price   decimal.NullDecimal
		)
		if err := rows.Scan(&groupID, &name, &card, &optName, &price); err != nil {
			return nil, err
		}
		if len(out) == 0 || groupID != lastID {
			out = append(out, model.SelectionGroup{Name: name, Cardinality: model.Cardinality(card)})
			lastID = groupID
		}
		if optName.Valid {
			g := &out[len(out)-1]
			g.Options = append(g.Options, model.SelectionOption{Name: optName.String, Price: price.Decimal})
		}
	}
	return out, rows.Err()
}

func (r *CatalogRepo) addons(ctx context.Context, itemID uint64) ([]model.Addon, error) {
	const q = `SELECT name, price, is_available FROM addons WHERE item_id = ? ORDER BY position, id`
	rows, err := r.db.QueryContext(ctx, q, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Addon
	for rows.Next() {
		var (
			a     model.Addon
			avail sql.NullBool
		)
		if err := rows.Scan(&a.Name, &a.Price, &avail); err != nil {
			return nil, err
		}
		if avail.Valid {
			v := avail.Bool
			a.IsAvailable = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
