package broker

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/google/uuid"
)

const (
	taskExchange    = "farmctl.tasks"
	controlExchange = "farmctl.control"
	exchangeType    = "topic"
)

// AMQPBroker wraps one AMQP connection, retried only while it is first
// established (a dropped connection is not re-dialled), grounded
// directly on the teacher's shared/mq Broker (connect-with-retry,
// durable topic exchange, manual ack, Qos(prefetch=1)), generalized
// to per-host queue routing and a second control exchange carrying
// revoke signals.
type AMQPBroker struct {
	url  string
	conn *amqp.Connection
	ch   *amqp.Channel
	log  zerolog.Logger
}

// New connects to RabbitMQ, making up to 10 attempts, and declares both
// exchanges used by the dispatch plane.
func New(amqpURL string, log zerolog.Logger) (*AMQPBroker, error) {
	b := &AMQPBroker{url: amqpURL, log: log}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *AMQPBroker) connect() error {
	var err error
	for attempt := 1; attempt <= 10; attempt++ {
		b.conn, err = amqp.Dial(b.url)
		if err == nil {
			break
		}
		b.log.Warn().Err(err).Int("attempt", attempt).Msg("rabbitmq connection failed — retrying")
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	if err != nil {
		return fmt.Errorf("rabbitmq connect after 10 attempts: %w", err)
	}

	b.ch, err = b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := b.ch.ExchangeDeclare(taskExchange, exchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare task exchange: %w", err)
	}
	return b.ch.ExchangeDeclare(controlExchange, exchangeType, true, false, false, false, nil)
}

// Publish sends body on routingKey and returns a fresh broker id that
// callers correlate against later revoke/status calls.
func (b *AMQPBroker) Publish(ctx context.Context, routingKey string, body []byte) (string, error) {
	brokerID := uuid.NewString()
	err := b.ch.PublishWithContext(ctx, taskExchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    brokerID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return brokerID, nil
}

// Subscribe declares queueName durable, binds it to every pattern on
// the task exchange, sets Qos(prefetch=1) and streams deliveries until
// ctx is done.
func (b *AMQPBroker) Subscribe(ctx context.Context, queueName string, patterns ...string) (<-chan Delivery, error) {
	q, err := b.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	for _, p := range patterns {
		if err := b.ch.QueueBind(q.Name, p, taskExchange, false, nil); err != nil {
			return nil, fmt.Errorf("bind queue %s to %s: %w", queueName, p, err)
		}
	}
	if err := b.ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	raw, err := b.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queueName, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-raw:
				if !ok {
					return
				}
				delivery := d
				select {
				case out <- Delivery{
					RoutingKey: delivery.RoutingKey,
					Body:       delivery.Body,
					Ack:        func() { _ = delivery.Ack(false) },
					Nack:       func(requeue bool) { _ = delivery.Nack(false, requeue) },
				}:
				case <-ctx.Done():
					_ = delivery.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

// SubscribeControl streams control-exchange deliveries (currently only
// revoke messages) bound to pattern, e.g. "revoke.#".
func (b *AMQPBroker) SubscribeControl(ctx context.Context, queueName, pattern string) (<-chan Delivery, error) {
	q, err := b.ch.QueueDeclare(queueName, false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare control queue: %w", err)
	}
	if err := b.ch.QueueBind(q.Name, pattern, controlExchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind control queue: %w", err)
	}
	raw, err := b.ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume control queue: %w", err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-raw:
				if !ok {
					return
				}
				select {
				case out <- Delivery{RoutingKey: d.RoutingKey, Body: d.Body, Ack: func() {}, Nack: func(bool) {}}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Revoke publishes a terminate signal on the control exchange with
// routing key "revoke.<brokerID>". Nothing in this module subscribes
// to that key (cmd/worker does not call SubscribeControl), so a revoke
// does not stop a task that a worker is already running.
func (b *AMQPBroker) Revoke(ctx context.Context, brokerID string) error {
	err := b.ch.PublishWithContext(ctx, controlExchange, "revoke."+brokerID, false, false, amqp.Publishing{
		ContentType: "text/plain",
		Timestamp:   time.Now(),
		Body:        []byte(brokerID),
	})
	if err != nil {
		return fmt.Errorf("revoke %s: %w", brokerID, err)
	}
	return nil
}

func (b *AMQPBroker) Close() error {
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
