package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/pos-engine/internal/model"
)

// SettingsRepo reads branch configuration: the tax rate, tender methods and
// loyalty balances.
type SettingsRepo struct {
	db *sql.DB
}

// NewSettingsRepo returns a SettingsRepo bound to db.
func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

const taxRateSetting = "tax_rate"

// TaxRate returns the configured percentage or nil when the setting is
// missing or blank.
func (r *SettingsRepo) TaxRate(ctx context.Context) (*decimal.Decimal, error) {
	var v sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE name = ?`, taxRateSetting).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseRate(v)
}

func parseRate(v sql.NullString) (*decimal.Decimal, error) {
	s := strings.TrimSpace(v.String)
	if !v.Valid || s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListPaymentMethods returns the configured tender methods in display order.
func (r *SettingsRepo) ListPaymentMethods(ctx context.Context) ([]model.PaymentMethod, error) {
	const q = `SELECT code, name, allows_change_due, allows_partial_payment FROM payment_methods ORDER BY position, code`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PaymentMethod
	for rows.Next() {
		var m model.PaymentMethod
		if err := rows.Scan(&m.Code, &m.Name, &m.AllowsChangeDue, &m.AllowsPartialPayment); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AvailablePoints returns the loyalty balance for a customer id or phone
// number.  Unknown customers have zero points.
func (r *SettingsRepo) AvailablePoints(ctx context.Context, customerKey string) (int, error) {
	var points int
	err := r.db.QueryRowContext(ctx,
		`SELECT points FROM loyalty_accounts WHERE customer_id = ? OR phone = ? LIMIT 1`,
		customerKey, customerKey).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return points, err
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
