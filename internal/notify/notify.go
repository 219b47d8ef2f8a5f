// Package notify announces published indexes on kafka and turns incoming
// announcements back into callbacks, so every server instance can drop page
// cache entries built from an older index.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/resilience"
)

const EventIndexPublished = "IndexPublished"

// IndexPublished is the payload of an EventIndexPublished message.
type IndexPublished struct {
	Generation  string    `json:"generation"`
	Posts       int       `json:"posts"`
	Tags        int       `json:"tags"`
	BuiltAt     time.Time `json:"builtAt"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// KafkaNotifier announces published indexes on a kafka topic.
type KafkaNotifier struct {
	publisher Publisher
	retry     resilience.RetryConfig
	logger    *slog.Logger
}

// NewKafkaNotifier returns a notifier that publishes through p, retrying per retry.
func NewKafkaNotifier(p Publisher, retry resilience.RetryConfig) *KafkaNotifier {
	return &KafkaNotifier{
		publisher: p,
		retry:     retry,
		logger:    slog.Default().With("component", "notifier"),
	}
}

// IndexPublished sends ev, retrying transient broker failures.
func (n *KafkaNotifier) IndexPublished(ctx context.Context, ev IndexPublished) error {
	err := resilience.Retry(ctx, "notify-index-published", n.retry, func(ctx context.Context) error {
		return n.publisher.Publish(ctx, kafka.Event{
			Key:   ev.Generation,
			Type:  EventIndexPublished,
			Value: ev,
		})
	})
	if err != nil {
		return fmt.Errorf("announcing generation %s: %w", ev.Generation, err)
	}
	n.logger.Info("index publication announced", "generation", ev.Generation, "posts", ev.Posts)
	return nil
}

// Handler decodes EventIndexPublished messages for onPublished and ignores
// every other event type. Undecodable payloads are logged and skipped so
// they do not block the partition.
func Handler(onPublished func(ctx context.Context, ev IndexPublished) error) kafka.MessageHandler {
	logger := slog.Default().With("component", "notify-listener")
	return func(ctx context.Context, msg kafka.Message) error {
		if msg.EventType != "" && msg.EventType != EventIndexPublished {
			return nil
		}
		ev, err := kafka.DecodeJSON[IndexPublished](msg.Value)
		if err != nil {
			logger.Warn("skipping undecodable message", "offset", msg.Offset, "error", err)
			return nil
		}
		return onPublished(ctx, ev)
	}
}
