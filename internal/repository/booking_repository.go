package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/pos-engine/internal/model"
)

// BookingRepo mirrors stays pushed by the booking system.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to db.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// Get returns a booking by id.
func (r *BookingRepo) Get(ctx context.Context, id uint64) (model.Booking, error) {
	const q = `SELECT id, room_id, status, check_in, check_out, guests, updated_at FROM bookings WHERE id = ?`
	var (
		b                 model.Booking
		status            string
		checkIn, checkOut sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(&b.ID, &b.RoomID, &status, &checkIn, &checkOut, &b.Guests, &b.UpdatedAt)
	if err != nil {
		return model.Booking{}, translate(err)
	}
	b.Status = model.BookingStatus(status)
	b.CheckIn, b.CheckOut = checkIn.Time, checkOut.Time
	return b, nil
}

// Upsert stores b unless a newer notification for the same booking was
// already applied.  Notifications can arrive out of order, so the row only
// moves forward in updated_at.
func (r *BookingRepo) Upsert(ctx context.Context, b model.Booking) error {
	const q = `
		INSERT INTO bookings (id, room_id, status, check_in, check_out, guests, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			room_id   = IF(VALUES(updated_at) >= updated_at, VALUES(room_id), room_id),
			status    = IF(VALUES(updated_at) >= updated_at, VALUES(status), status),
			check_in  = IF(VALUES(updated_at) >= updated_at, VALUES(check_in), check_in),
			check_out = IF(VALUES(updated_at) >= updated_at, VALUES(check_out), check_out),
			guests    = IF(VALUES(updated_at) >= updated_at, VALUES(guests), guests),
			updated_at = GREATEST(updated_at, VALUES(updated_at))`
	_, err := r.db.ExecContext(ctx, q, b.ID, b.RoomID, string(b.Status),
		nullTime(b.CheckIn), nullTime(b.CheckOut), b.Guests, b.UpdatedAt.UTC())
	return err
}
