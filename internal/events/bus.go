package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Bus fans out envelopes to zero or more live subscribers per tenant
// channel, backed by NATS core (at-most-once) subjects.
type Bus struct {
	conn *nats.Conn
}

// Connect dials the broker with automatic reconnection.
func Connect(url string) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect to %s: %w", url, err)
	}
	return &Bus{conn: nc}, nil
}

// Publish wraps data in an envelope stamped with the current time and writes
// it to the tenant's subject. Best-effort: no error if nobody is listening.
func (b *Bus) Publish(ctx context.Context, tenantID, eventType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("events: marshal %s payload: %w", eventType, err)
	}
	env := Envelope{
		Type:      eventType,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	if err := b.conn.Publish(SubjectFor(tenantID), payload); err != nil {
		return fmt.Errorf("events: publish %s for %s: %w", eventType, tenantID, err)
	}
	return nil
}

// Subscribe returns a channel delivering the tenant's envelopes. The cancel
// function is idempotent: it unsubscribes, drains and closes the channel,
// and is safe to call from racing goroutines (client close vs. server
// shutdown both tear down the same stream).
func (b *Bus) Subscribe(tenantID string) (<-chan Envelope, func(), error) {
	ch := make(chan Envelope, 64)

	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)

	sub, err := b.conn.Subscribe(SubjectFor(tenantID), func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Printf("events: drop malformed envelope for %s: %v", tenantID, err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- env:
		default:
			// Drop when the subscriber is slow: blocking here would stall
			// the shared NATS delivery goroutine.
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("events: subscribe for %s: %w", tenantID, err)
	}
	// Flush ensures the subscription is registered on the server before
	// returning, so that messages published on other connections are routed.
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("events: flush subscription: %w", err)
	}

	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			closed = true
			mu.Unlock()
			// Drain remaining messages so the handler can't block, then close.
			for {
				select {
				case <-ch:
				default:
					close(ch)
					return
				}
			}
		})
	}

	return ch, cancel, nil
}

// Flush blocks until all buffered publishes reached the server.
func (b *Bus) Flush() error {
	return b.conn.Flush()
}

// SubscriptionCount reports live subscriptions on this connection. Used by
// operational endpoints and leak assertions in tests.
func (b *Bus) SubscriptionCount() int {
	return b.conn.NumSubscriptions()
}

// Close terminates the broker connection.
func (b *Bus) Close() error {
	b.conn.Close()
	return nil
}
