package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQP publishes events to a durable topic exchange, keyed by
// Event.RoutingKey.
type AMQP struct {
	ch       Channel
	exchange string
	now      func() time.Time
}

// NewAMQP declares exchange on ch and returns a publisher for it.
func NewAMQP(ch Channel, exchange string) (*AMQP, error) {
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		return nil, errors.Wrapf(err, "declare exchange %q", exchange)
	}
	return &AMQP{ch: ch, exchange: exchange, now: time.Now}, nil
}

// Dial connects to the broker at url and opens a publishing channel.
// The returned close function releases both.
func Dial(url, exchange string) (*AMQP, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, errors.Wrap(err, "dial broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, "open channel")
	}
	p, err := NewAMQP(ch, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return p, conn.Close, nil
}

func (p *AMQP) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	key := e.RoutingKey()
	if err := p.ch.PublishWithContext(ctx,
		p.exchange, // exchange
		key,        // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    e.OrderID.String(),
			Body:         body,
			Timestamp:    p.now(),
		},
	); err != nil {
		return errors.Wrapf(err, "publish %s", key)
	}

	zctx.From(ctx).Debug("Event published", zap.String("routing_key", key))
	return nil
}
