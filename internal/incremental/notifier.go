package incremental

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openindex-dev/openindex/internal/logger"
)

// Operation classifies a change notification.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

const (
	// defaultDebounce coalesces bursts of notifications per primary key.
	defaultDebounce = 250 * time.Millisecond
	// defaultNotifyBuffer bounds in-flight notifications. Producers
	// block when the consumer falls behind.
	defaultNotifyBuffer = 256
)

// Notification is one change event published on the channel.
type Notification struct {
	Operation  Operation      `json:"op"`
	Table      string         `json:"table"`
	PrimaryKey string         `json:"pk"`
	Old        map[string]any `json:"old,omitempty"`
	New        map[string]any `json:"new,omitempty"`
	Timestamp  time.Time      `json:"ts"`
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithDebounce sets the coalescing window.
func WithDebounce(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		if d > 0 {
			n.debounce = d
		}
	}
}

// WithNotifyBuffer bounds the delivery channel.
func WithNotifyBuffer(size int) NotifierOption {
	return func(n *Notifier) {
		if size > 0 {
			n.buffer = size
		}
	}
}

// Notifier carries change notifications over redis pub/sub. Incoming
// events are debounced per primary key, so a burst of updates to one
// row collapses into a single delivery.
type Notifier struct {
	client   *redis.Client
	channel  string
	debounce time.Duration
	buffer   int
}

// NewNotifier creates a notifier on the named channel.
func NewNotifier(client *redis.Client, channel string, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		client:   client,
		channel:  channel,
		debounce: defaultDebounce,
		buffer:   defaultNotifyBuffer,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// EnsureChannel verifies connectivity and records the channel in the
// registry set. Safe to call on every startup.
func (n *Notifier) EnsureChannel(ctx context.Context) error {
	if err := n.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging notification broker: %w", err)
	}
	if err := n.client.SAdd(ctx, "openindex:channels", n.channel).Err(); err != nil {
		return fmt.Errorf("registering channel %s: %w", n.channel, err)
	}
	return nil
}

// Publish sends a notification. Emitters fill Timestamp when zero.
func (n *Notifier) Publish(ctx context.Context, note Notification) error {
	if note.Timestamp.IsZero() {
		note.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", n.channel, err)
	}
	return nil
}

// Listen subscribes to the channel and returns a bounded stream of
// debounced notifications. The stream closes when ctx is cancelled.
func (n *Notifier) Listen(ctx context.Context) (<-chan Notification, error) {
	sub := n.client.Subscribe(ctx, n.channel)
	// Force the subscription before returning so no events are lost.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", n.channel, err)
	}

	out := make(chan Notification, n.buffer)
	go n.pump(ctx, sub, out)
	return out, nil
}

// pump decodes, debounces and forwards notifications. Pending events
// are keyed by primary key; consecutive events for the same key within
// the window collapse to the latest.
func (n *Notifier) pump(ctx context.Context, sub *redis.PubSub, out chan<- Notification) {
	defer sub.Close()
	defer close(out)

	incoming := sub.Channel()
	pending := make(map[string]Notification)
	var order []string

	timer := time.NewTimer(n.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	flush := func() {
		for _, key := range order {
			select {
			case out <- pending[key]:
			case <-ctx.Done():
				return
			}
		}
		pending = make(map[string]Notification)
		order = order[:0]
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-incoming:
			if !ok {
				flush()
				return
			}
			var note Notification
			if err := json.Unmarshal([]byte(msg.Payload), &note); err != nil {
				logger.Warn("dropping malformed notification on %s: %v", n.channel, err)
				continue
			}
			if _, seen := pending[note.PrimaryKey]; !seen {
				order = append(order, note.PrimaryKey)
			}
			pending[note.PrimaryKey] = note
			timer.Reset(n.debounce)
		case <-timer.C:
			flush()
		}
	}
}
