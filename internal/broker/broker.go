// Package broker defines the dispatch plane's transport boundary: the
// API publishes tasks onto per-host queues, workers consume from their
// queue plus a shared default queue (spec.md §5, §6).
package broker

import "context"

// Delivery is one consumed message. Ack/Nack must be called exactly
// once per delivery.
type Delivery struct {
	RoutingKey string
	Body       []byte
	Ack        func()
	Nack       func(requeue bool)
}

// Broker is the transport the dispatch plane and workers depend on.
// Never depended on directly by the job orchestrator or session pool.
type Broker interface {
	// Publish sends body on routingKey and returns a broker-assigned id
	// for later status correlation (spec.md §4.I step 3).
	Publish(ctx context.Context, routingKey string, body []byte) (brokerID string, err error)
	// Subscribe binds queueName to every routing key in patterns and
	// streams deliveries until ctx is cancelled or the channel closes.
	Subscribe(ctx context.Context, queueName string, patterns ...string) (<-chan Delivery, error)
	// Revoke best-effort cancels an in-flight task (spec.md §4.I
	// cancel_task / §5 cancellation semantics).
	Revoke(ctx context.Context, brokerID string) error
	Close() error
}
