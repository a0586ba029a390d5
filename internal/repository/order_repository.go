package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/pos-engine/internal/model"
)

// OrderRepo stores committed orders with their lines and payments.  The
// order id is the client generated draft id so a resubmitted draft hits the
// primary key instead of creating a second order.
type OrderRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewOrderRepo returns an OrderRepo bound to db.
func NewOrderRepo(db *sql.DB) *OrderRepo {
	return &OrderRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const orderColumns = `id, order_number, type, status, customer, stay, subtotal, discount,
	loyalty_points_redeemed, tax, delivery_fee, total, payment_method, notes, resource_id,
	booking_id, guest_count, cancel_reason, terminal_id, created_at, updated_at`

// GetByID returns an order with its lines in cart order and its payments.
func (r *OrderRepo) GetByID(ctx context.Context, id string) (model.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if err != nil {
		return model.Order{}, translate(err)
	}
	if o.Lines, err = r.lines(ctx, id); err != nil {
		return model.Order{}, err
	}
	if o.Payments, err = r.payments(ctx, id); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func scanOrder(s rowScanner) (model.Order, error) {
	var (
		o                                       model.Order
		typ, status                             string
		customer, stay                          []byte
		method, notes, cancelReason, terminalID sql.NullString
		resourceID, bookingID                   sql.NullInt64
	)
	err := s.Scan(&o.ID, &o.Number, &typ, &status, &customer, &stay, &o.Subtotal, &o.Discount,
		&o.LoyaltyPoints, &o.Tax, &o.DeliveryFee, &o.Total, &method, &notes, &resourceID,
		&bookingID, &o.GuestCount, &cancelReason, &terminalID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.Order{}, err
	}
	o.Type = model.OrderType(typ)
	o.Status = model.OrderStatus(status)
	o.PaymentMethod = method.String
	o.Notes = notes.String
	o.CancelReason = cancelReason.String
	o.TerminalID = terminalID.String
	if resourceID.Valid {
		v := uint64(resourceID.Int64)
		o.ResourceID = &v
	}
	if bookingID.Valid {
		v := uint64(bookingID.Int64)
		o.BookingID = &v
	}
	if len(customer) > 0 {
		if err := json.Unmarshal(customer, &o.Customer); err != nil {
			return model.Order{}, err
		}
	}
	if len(stay) > 0 && string(stay) != "null" {
		o.Stay = &model.RoomStay{}
		if err := json.Unmarshal(stay, o.Stay); err != nil {
			return model.Order{}, err
		}
	}
	return o, nil
}

func (r *OrderRepo) lines(ctx context.Context, orderID string) ([]model.CartLine, error) {
	const q = `
		SELECT line_id, catalog_item_id, name, base_price, unit_price, quantity, note,
		       modifiers_summary, category, choice
		FROM order_lines WHERE order_id = ? ORDER BY position`
	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CartLine
	for rows.Next() {
		var (
			l                       model.CartLine
			note, summary, category sql.NullString
			choice                  []byte
		)
		if err := rows.Scan(&l.ID, &l.CatalogItemID, &l.Name, &l.BasePrice, &l.UnitPrice, &l.Quantity,
			&note, &summary, &category, &choice); err != nil {
			return nil, err
		}
		l.Note, l.ModifiersSummary, l.Category = note.String, summary.String, category.String
		if len(choice) > 0 {
			if err := json.Unmarshal(choice, &l.Choice); err != nil {
				return nil, err
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *OrderRepo) payments(ctx context.Context, orderID string) ([]model.PaymentPart, error) {
	const q = `SELECT method, amount, received, change_due FROM order_payments WHERE order_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PaymentPart
	for rows.Next() {
		var p model.PaymentPart
		if err := rows.Scan(&p.Method, &p.Amount, &p.Received, &p.Change); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create inserts the order and its lines and binds the order to its resource
// in one transaction.  A taken id or order number yields ErrDuplicateKey; a
// resource that is not occupied yields model.ErrNotBindable.
func (r *OrderRepo) Create(ctx context.Context, o model.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return err
	}
	var stay []byte
	if o.Stay != nil {
		if stay, err = json.Marshal(o.Stay); err != nil {
			return err
		}
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = r.now()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	if o.Status == "" {
		o.Status = model.StatusPending
	}

	const q = `INSERT INTO orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q, o.ID, o.Number, string(o.Type), string(o.Status), customer, stay,
		o.Subtotal, o.Discount, o.LoyaltyPoints, o.Tax, o.DeliveryFee, o.Total,
		nullString(o.PaymentMethod), nullString(o.Notes), o.ResourceID, o.BookingID, o.GuestCount,
		nullString(o.CancelReason), nullString(o.TerminalID), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	if err := insertLinesTx(ctx, tx, o.ID, o.Lines); err != nil {
		return translate(err)
	}

	if o.ResourceID != nil {
		res, err := lockResourceTx(ctx, tx, *o.ResourceID)
		if err != nil {
			return err
		}
		next, err := res.BindOrder(o.ID)
		if err != nil {
			return err
		}
		if next.BoundOrder() != res.BoundOrder() {
			if err := casResource(ctx, tx, next); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// insertLinesTx writes all lines in a single multi-row INSERT.
func insertLinesTx(ctx context.Context, tx *sql.Tx, orderID string, lines []model.CartLine) error {
	if len(lines) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO order_lines (order_id, line_id, position, catalog_item_id, name,
		base_price, unit_price, quantity, note, modifiers_summary, category, choice) VALUES `)
	args := make([]any, 0, len(lines)*12)
	for i, l := range lines {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		choice, err := json.Marshal(l.Choice)
		if err != nil {
			return err
		}
		args = append(args, orderID, l.ID, i, l.CatalogItemID, l.Name, l.BasePrice, l.UnitPrice,
			l.Quantity, nullString(l.Note), nullString(l.ModifiersSummary), nullString(l.Category), choice)
	}
	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return err
}

// CountForDay counts orders created on the UTC calendar day of day.
func (r *OrderRepo) CountForDay(ctx context.Context, day time.Time) (int, error) {
	start, end := dayBounds(day)
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE created_at >= ? AND created_at < ?`, start, end).Scan(&n)
	return n, err
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	d := day.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// Cancel marks a pending order cancelled and frees the seats it held.  A
// paid order yields ErrConflict; an already cancelled order is returned
// unchanged.
func (r *OrderRepo) Cancel(ctx context.Context, id, reason string) (model.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Order{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var (
		status     string
		resourceID sql.NullInt64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT status, resource_id FROM orders WHERE id = ? FOR UPDATE`, id).
		Scan(&status, &resourceID)
	if err != nil {
		return model.Order{}, translate(err)
	}
	switch model.OrderStatus(status) {
	case model.StatusPaid:
		return model.Order{}, ErrConflict
	case model.StatusCancelled:
		return r.GetByID(ctx, id)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET status = 'cancelled', cancel_reason = ?, updated_at = ? WHERE id = ?`,
		nullString(reason), r.now(), id)
	if err != nil {
		return model.Order{}, err
	}

	if resourceID.Valid {
		res, err := lockResourceTx(ctx, tx, uint64(resourceID.Int64))
		if err != nil && !errors.Is(err, ErrNotFound) {
			return model.Order{}, err
		}
		if err == nil {
			if next, changed := res.ReleaseOrder(id); changed {
				if err := casResource(ctx, tx, next); err != nil {
					return model.Order{}, err
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Order{}, err
	}
	committed = true
	return r.GetByID(ctx, id)
}

// MarkPaid flips a pending order to paid and records how it was settled.
// Only one caller can win the pending to paid transition; the others get
// ErrConflict.
func (r *OrderRepo) MarkPaid(ctx context.Context, id, method string, parts []model.PaymentPart) (model.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Order{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := r.now()
	result, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = 'paid', payment_method = ?, updated_at = ? WHERE id = ? AND status = 'pending'`,
		method, now, id)
	if err != nil {
		return model.Order{}, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return model.Order{}, err
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = ?`, id).Scan(&exists); err != nil {
			return model.Order{}, translate(err)
		}
		return model.Order{}, ErrConflict
	}

	for _, p := range parts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_payments (order_id, method, amount, received, change_due, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, p.Method, p.Amount, p.Received, p.Change, now)
		if err != nil {
			return model.Order{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Order{}, err
	}
	committed = true
	return r.GetByID(ctx, id)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
