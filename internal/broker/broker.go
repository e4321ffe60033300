// Package broker delivers outbox events to the order events stream on
// Redis Streams and exposes the stream constants shared by publisher
// and consumer.
package broker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/merchkit/sales-pipeline/internal/model"
)

const (
	// StreamKey is the Redis Stream carrying order events.
	StreamKey = "order:events"

	// FieldEventKind, FieldOrderID, FieldMerchantID and FieldPayload are
	// the entry fields written for every delivered event. order_id is
	// the partition/ordering key downstream consumers dedupe on.
	FieldEventKind  = "event_kind"
	FieldOrderID    = "order_id"
	FieldMerchantID = "merchant_id"
	FieldPayload    = "payload"
)

// Broker delivers a single event and returns the broker-assigned
// message id once the send is acknowledged.
type Broker interface {
	Publish(ctx context.Context, event *model.OutboxEvent) (string, error)
}

// RedisBroker implements Broker on Redis Streams.
type RedisBroker struct {
	client rueidis.Client
}

// NewRedisBroker creates a new Redis Streams broker.
func NewRedisBroker(client rueidis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// Publish appends the event to the stream and waits for the reply. The
// returned id is Redis's entry id; an error or context timeout means
// the event must not be marked delivered.
func (b *RedisBroker) Publish(ctx context.Context, event *model.OutboxEvent) (string, error) {
	cmd := b.client.B().Xadd().Key(StreamKey).Id("*").
		FieldValue().
		FieldValue(FieldEventKind, string(event.EventKind)).
		FieldValue(FieldOrderID, strconv.FormatInt(event.OrderID, 10)).
		FieldValue(FieldMerchantID, strconv.FormatInt(event.MerchantID, 10)).
		FieldValue(FieldPayload, string(event.Payload)).
		Build()

	messageID, err := b.client.Do(ctx, cmd).ToString()
	if err != nil {
		return "", fmt.Errorf("failed to publish event %d to stream %s: %w", event.ID, StreamKey, err)
	}

	return messageID, nil
}
