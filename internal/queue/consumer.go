package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/pos-engine/internal/model"
)

// ErrBadBooking marks a notification that can never be applied.  Such
// messages are rejected without requeue.
var ErrBadBooking = errors.New("invalid booking notification")

// BookingWriter stores the latest known state of a booking.
type BookingWriter interface {
	Upsert(ctx context.Context, b model.Booking) error
}

// Deduper reports whether a message key was already processed.
type Deduper interface {
	MessageKey(queue, messageID string) string
	Seen(ctx context.Context, key string) (bool, error)
}

// BookingConsumer applies booking status notifications so room service
// orders can be validated against the current stay.
type BookingConsumer struct {
	url    string
	store  BookingWriter
	dedupe Deduper
	log    *slog.Logger
}

// NewBookingConsumer builds a consumer.  dedupe may be nil.
func NewBookingConsumer(url string, store BookingWriter, dedupe Deduper, log *slog.Logger) *BookingConsumer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingConsumer{url: url, store: store, dedupe: dedupe, log: log}
}

// Run connects to RabbitMQ and consumes until ctx is cancelled.  Dial and
// channel failures are retried with exponential backoff capped at 30s.
func (bc *BookingConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(bc.url)
		if err != nil {
			bc.log.Warn("booking consumer: dial failed", slog.Any("error", err), slog.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second

		err = bc.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bc.log.Warn("booking consumer: loop ended, reconnecting", slog.Any("error", err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (bc *BookingConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		bc.log.Warn("booking consumer: set QoS failed", slog.Any("error", err))
	}
	if _, err := ch.QueueDeclare(BookingStatusQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(BookingStatusQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			err := bc.Handle(ctx, d.MessageId, d.Body)
			switch {
			case err == nil:
				_ = d.Ack(false)
			case errors.Is(err, ErrBadBooking):
				bc.log.Error("booking consumer: dropping message", slog.String("message_id", d.MessageId), slog.Any("error", err))
				_ = d.Nack(false, false)
			default:
				bc.log.Warn("booking consumer: requeueing message", slog.String("message_id", d.MessageId), slog.Any("error", err))
				_ = d.Nack(false, true)
			}
		}
	}
}

// Handle applies one notification body.  Messages carrying an id already
// seen are acknowledged without being applied again.
func (bc *BookingConsumer) Handle(ctx context.Context, messageID string, body []byte) error {
	var ev BookingStatusEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrBadBooking, err)
	}
	b, err := ev.booking()
	if err != nil {
		return err
	}
	if bc.dedupe != nil && messageID != "" {
		seen, err := bc.dedupe.Seen(ctx, bc.dedupe.MessageKey(BookingStatusQueue, messageID))
		if err != nil {
			bc.log.Warn("booking consumer: dedupe unavailable", slog.Any("error", err))
		} else if seen {
			return nil
		}
	}
	if err := bc.store.Upsert(ctx, b); err != nil {
		return err
	}
	bc.log.Info("booking status applied",
		slog.Uint64("booking_id", b.ID),
		slog.Uint64("room_id", b.RoomID),
		slog.String("status", string(b.Status)))
	return nil
}

func (ev BookingStatusEvent) booking() (model.Booking, error) {
	if ev.BookingID == 0 {
		return model.Booking{}, fmt.Errorf("%w: booking_id is required", ErrBadBooking)
	}
	st := model.BookingStatus(ev.Status)
	switch st {
	case model.BookingPending, model.BookingConfirmed, model.BookingCheckedIn, model.BookingCheckedOut, model.BookingCancelled:
	default:
		return model.Booking{}, fmt.Errorf("%w: unknown status %q", ErrBadBooking, ev.Status)
	}
	changed := ev.ChangedAt
	if changed.IsZero() {
		changed = time.Now().UTC()
	}
	return model.Booking{
		ID:        ev.BookingID,
		RoomID:    ev.RoomID,
		Status:    st,
		CheckIn:   ev.CheckIn,
		CheckOut:  ev.CheckOut,
		Guests:    ev.Guests,
		UpdatedAt: changed,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
