package broker

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryBroker is an in-process Broker double for tests. No pack
// example ships an in-memory AMQP fake; wiring a real broker into unit
// tests would defeat their purpose, so this is a small hand-written
// implementation of the same interface.
type MemoryBroker struct {
	mu       sync.Mutex
	subs     map[string][]chan Delivery // queue -> subscriber channels
	patterns map[string][]string        // queue -> bound patterns
	revoked  map[string]bool
}

// NewMemory returns an empty in-process broker.
func NewMemory() *MemoryBroker {
	return &MemoryBroker{
		subs:     make(map[string][]chan Delivery),
		patterns: make(map[string][]string),
		revoked:  make(map[string]bool),
	}
}

func (m *MemoryBroker) Publish(ctx context.Context, routingKey string, body []byte) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()

	for queue, pats := range m.patterns {
		for _, p := range pats {
			if !matchRoutingKey(p, routingKey) {
				continue
			}
			for _, ch := range m.subs[queue] {
				ch := ch
				body := body
				go func() {
					ch <- Delivery{RoutingKey: routingKey, Body: body, Ack: func() {}, Nack: func(bool) {}}
				}()
			}
			break
		}
	}
	return id, nil
}

func (m *MemoryBroker) Subscribe(ctx context.Context, queueName string, patterns ...string) (<-chan Delivery, error) {
	ch := make(chan Delivery, 16)
	m.mu.Lock()
	m.subs[queueName] = append(m.subs[queueName], ch)
	m.patterns[queueName] = append(m.patterns[queueName], patterns...)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (m *MemoryBroker) Revoke(ctx context.Context, brokerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[brokerID] = true
	return nil
}

// Revoked reports whether Revoke was called for brokerID — test hook
// only, not part of the Broker interface.
func (m *MemoryBroker) Revoked(brokerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[brokerID]
}

func (m *MemoryBroker) Close() error { return nil }

// matchRoutingKey implements the subset of AMQP topic matching this
// module's routing keys need: "*" matches exactly one dot segment,
// "#" matches zero or more.
func matchRoutingKey(pattern, key string) bool {
	if pattern == key {
		return true
	}
	pSegs := strings.Split(pattern, ".")
	kSegs := strings.Split(key, ".")
	return matchSegs(pSegs, kSegs)
}

func matchSegs(p, k []string) bool {
	if len(p) == 0 {
		return len(k) == 0
	}
	switch p[0] {
	case "#":
		if len(p) == 1 {
			return true
		}
		for i := 0; i <= len(k); i++ {
			if matchSegs(p[1:], k[i:]) {
				return true
			}
		}
		return false
	case "*":
		if len(k) == 0 {
			return false
		}
		return matchSegs(p[1:], k[1:])
	default:
		if len(k) == 0 || k[0] != p[0] {
			return false
		}
		return matchSegs(p[1:], k[1:])
	}
}
