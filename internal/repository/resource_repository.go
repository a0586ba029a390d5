package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/iliyamo/pos-engine/internal/model"
)

// ResourceRepo persists tables and rooms.  Every write goes through a
// version check so concurrent terminals can never both take the same seats.
type ResourceRepo struct {
	db *sql.DB
}

// NewResourceRepo returns a ResourceRepo bound to db.
func NewResourceRepo(db *sql.DB) *ResourceRepo { return &ResourceRepo{db: db} }

const resourceColumns = `id, kind, label, capacity, used_seats, status, current_order_id, seat_shares, hold_count, version, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(s rowScanner) (model.SeatResource, error) {
	var (
		res     model.SeatResource
		kind    string
		status  string
		orderID sql.NullString
		shares  []byte
	)
	err := s.Scan(&res.ID, &kind, &res.Label, &res.Capacity, &res.UsedSeats, &status,
		&orderID, &shares, &res.HoldCount, &res.Version, &res.UpdatedAt)
	if err != nil {
		return model.SeatResource{}, err
	}
	if len(shares) > 0 {
		if err := json.Unmarshal(shares, &res.Shares); err != nil {
			return model.SeatResource{}, err
		}
	}
	res.Kind = model.ResourceKind(kind)
	res.Status = model.ResourceStatus(status)
	if orderID.Valid {
		id := orderID.String
		res.CurrentOrderID = &id
	}
	return res, nil
}

// Get returns a resource by id.
func (r *ResourceRepo) Get(ctx context.Context, id uint64) (model.SeatResource, error) {
	q := `SELECT ` + resourceColumns + ` FROM seat_resources WHERE id = ?`
	res, err := scanResource(r.db.QueryRowContext(ctx, q, id))
	return res, translate(err)
}

// List returns every resource ordered by label for the floor view.
func (r *ResourceRepo) List(ctx context.Context) ([]model.SeatResource, error) {
	return r.list(ctx, `SELECT `+resourceColumns+` FROM seat_resources ORDER BY label`)
}

// ListOccupied returns resources currently hosting guests.
func (r *ResourceRepo) ListOccupied(ctx context.Context) ([]model.SeatResource, error) {
	return r.list(ctx, `SELECT `+resourceColumns+` FROM seat_resources WHERE status = 'occupied' ORDER BY id`)
}

func (r *ResourceRepo) list(ctx context.Context, q string) ([]model.SeatResource, error) {
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SeatResource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// CompareAndSwap writes next when the stored version still equals
// next.Version and bumps the version.  A moved version yields
// ErrVersionConflict; a missing row yields ErrNotFound.
func (r *ResourceRepo) CompareAndSwap(ctx context.Context, next model.SeatResource) error {
	return casResource(ctx, r.db, next)
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func casResource(ctx context.Context, db execQuerier, next model.SeatResource) error {
	const q = `
		UPDATE seat_resources
		SET used_seats = ?, status = ?, current_order_id = ?, seat_shares = ?, hold_count = ?, version = version + 1
		WHERE id = ? AND version = ?`
	var orderID, shares any
	if next.CurrentOrderID != nil {
		orderID = *next.CurrentOrderID
	}
	if len(next.Shares) > 0 {
		bs, err := json.Marshal(next.Shares)
		if err != nil {
			return err
		}
		shares = string(bs)
	}
	result, err := db.ExecContext(ctx, q, next.UsedSeats, string(next.Status), orderID, shares,
		next.HoldCount, next.ID, next.Version)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM seat_resources WHERE id = ?`, next.ID).Scan(&exists)
	if err != nil {
		return translate(err)
	}
	return ErrVersionConflict
}

// lockResourceTx reads a resource with a row lock for the rest of tx.
func lockResourceTx(ctx context.Context, tx *sql.Tx, id uint64) (model.SeatResource, error) {
	q := `SELECT ` + resourceColumns + ` FROM seat_resources WHERE id = ? FOR UPDATE`
	res, err := scanResource(tx.QueryRowContext(ctx, q, id))
	return res, translate(err)
}
