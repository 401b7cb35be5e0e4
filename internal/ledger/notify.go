package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventType names a ledger notification.
type EventType string

const (
	EventPending  EventType = "decision.pending"
	EventResolved EventType = "decision.resolved"
)

// Event tells approval queues that a decision needs or got a review.
type Event struct {
	Type       EventType `json:"type"`
	DecisionID string    `json:"decision_id"`
	AgentID    string    `json:"agent_id"`
	ScopeID    string    `json:"scope_id"`
	Action     string    `json:"action"`
	Confidence float64   `json:"confidence"`
	Outcome    Outcome   `json:"outcome"`
	Actor      string    `json:"actor,omitempty"`
	At         time.Time `json:"at"`
}

func eventFor(t EventType, d Decision, at time.Time) Event {
	return Event{
		Type:       t,
		DecisionID: d.ID,
		AgentID:    d.AgentID,
		ScopeID:    d.Context.ScopeID,
		Action:     d.Action,
		Confidence: d.Confidence,
		Outcome:    d.Outcome,
		Actor:      d.ReviewedBy,
		At:         at,
	}
}

// Notifier publishes ledger events. Failures never undo a ledger write.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }

// publisher is the part of the redis client the notifier uses.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier publishes events as JSON on a redis pub/sub channel.
type RedisNotifier struct {
	client  publisher
	channel string
}

// NewRedisNotifier creates a notifier over an existing client.
func NewRedisNotifier(client publisher, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// DialRedisNotifier connects to addr and returns the notifier with a close func.
func DialRedisNotifier(addr, password string, db int, channel string) (*RedisNotifier, func() error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisNotifier(rdb, channel), rdb.Close
}

// Notify publishes one event.
func (n *RedisNotifier) Notify(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", ev.Type, n.channel, err)
	}
	return nil
}
