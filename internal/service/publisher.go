// Package service publishes domain events to RabbitMQ.  Publishing is best
// effort: failures are logged and never undo the operation that caused them.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/queue"
	"github.com/iliyamo/pos-engine/internal/settlement"
)

// publishTimeout bounds a single publish so a slow broker never stalls a request.
const publishTimeout = 3 * time.Second

type sendFunc func(ctx context.Context, queueName string, body []byte) error

// Publisher sends events to durable queues on the default exchange.
type Publisher struct {
	url  string
	send sendFunc
	log  *slog.Logger
}

// NewPublisher returns a publisher for url.  An empty url disables
// publishing.
func NewPublisher(url string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{url: url, log: log}
	p.send = p.dialAndPublish
	return p
}

// Publish marshals event and sends it to queueName.
func (p *Publisher) Publish(ctx context.Context, queueName string, event any) error {
	if p == nil || p.url == "" {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		p.log.Error("rabbitmq: marshal event failed", slog.String("queue", queueName), slog.Any("error", err))
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.send(ctx, queueName, body); err != nil {
		p.log.Warn("rabbitmq: publish failed", slog.String("queue", queueName), slog.Any("error", err))
		return err
	}
	return nil
}

// dialAndPublish opens a connection per message and declares the queue
// before publishing.
func (p *Publisher) dialAndPublish(ctx context.Context, queueName string, body []byte) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

func (p *Publisher) OrderCommitted(ctx context.Context, o model.Order) {
	items := 0
	for _, l := range o.Lines {
		items += l.Quantity
	}
	_ = p.Publish(ctx, queue.OrderCommittedQueue, queue.OrderCommittedEvent{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Type:        string(o.Type),
		Total:       o.Total,
		ItemCount:   items,
		ResourceID:  o.ResourceID,
		BookingID:   o.BookingID,
		TerminalID:  o.TerminalID,
		CommittedAt: o.CreatedAt,
	})
}

func (p *Publisher) OrderCancelled(ctx context.Context, o model.Order) {
	_ = p.Publish(ctx, queue.OrderCancelledQueue, queue.OrderCancelledEvent{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Reason:      o.CancelReason,
		ResourceID:  o.ResourceID,
		CancelledAt: o.UpdatedAt,
	})
}

func (p *Publisher) PaymentSettled(ctx context.Context, o model.Order, out settlement.Outcome) {
	lines := make([]queue.PaymentLine, 0, len(out.Breakdown))
	for _, e := range out.Breakdown {
		lines = append(lines, queue.PaymentLine{Method: e.Method, Amount: e.Amount, Change: e.Change})
	}
	_ = p.Publish(ctx, queue.PaymentSettledQueue, queue.PaymentSettledEvent{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Total:       o.Total,
		ChangeDue:   out.ChangeDue,
		Overpaid:    out.Overpaid,
		Breakdown:   lines,
		SettledAt:   o.UpdatedAt,
	})
}

func (p *Publisher) ResourceReleased(ctx context.Context, res model.SeatResource, reason string) {
	_ = p.Publish(ctx, queue.ResourceReleasedQueue, queue.ResourceReleasedEvent{
		ResourceID: res.ID,
		Label:      res.Label,
		Reason:     reason,
		HoldCount:  res.HoldCount,
		ReleasedAt: time.Now().UTC(),
	})
}
