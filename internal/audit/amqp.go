package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"
)

// Exchange is the topic exchange audit events are published to.
const Exchange = "ride_audit"

// Publisher is the subset of *amqp.Channel the AMQP sink uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// DeclareExchange makes sure the audit exchange exists.
func DeclareExchange(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	return eris.Wrap(err, "audit: declare exchange")
}

// DefaultPublishTimeout bounds a single publish so a blocked broker cannot
// hold up the caller.
const DefaultPublishTimeout = 2 * time.Second

// AMQPSink publishes events as JSON with routing key audit.<action>.
type AMQPSink struct {
	pub     Publisher
	timeout time.Duration
}

// NewAMQPSink creates an AMQPSink. A timeout <= 0 uses DefaultPublishTimeout.
func NewAMQPSink(pub Publisher, timeout time.Duration) *AMQPSink {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &AMQPSink{pub: pub, timeout: timeout}
}

// RoutingKey returns the key an event is published under.
func RoutingKey(a Action) string {
	return "audit." + strings.ToLower(string(a))
}

// Record publishes e, giving up after the sink's timeout.
func (s *AMQPSink) Record(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "audit: marshal event")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.pub.PublishWithContext(ctx,
		Exchange,
		RoutingKey(e.Action),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    e.At,
		})
	if err != nil {
		return eris.Wrap(err, "audit: publish event")
	}
	return nil
}
