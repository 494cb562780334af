package publisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musicfeed/internal/domain"
)

type fakeChannel struct {
	exchange string
	key      string
	msgs     []amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.exchange, f.key = exchange, key
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestPublisher(ch *fakeChannel) *RabbitMQ {
	return &RabbitMQ{
		channel:    ch,
		exchange:   "musicfeed",
		routingKey: "items",
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestPublish_SendsPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	pub := newTestPublisher(ch)

	event := &domain.ItemEvent{
		Action: "create",
		Item: domain.ContentItem{
			ID:    7,
			Hash:  "abc",
			Kind:  domain.KindVideo,
			Title: "New video",
			URL:   "https://www.youtube.com/watch?v=v1",
		},
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.Publish(context.Background(), event))

	require.Len(t, ch.msgs, 1)
	msg := ch.msgs[0]
	assert.Equal(t, "musicfeed", ch.exchange)
	assert.Equal(t, "items", ch.key)
	assert.Equal(t, uint8(amqp.Persistent), msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "item.create", msg.Type)
	assert.Equal(t, "video", msg.Headers["kind"])
	_, err := uuid.Parse(msg.MessageId)
	assert.NoError(t, err)

	var received domain.ItemEvent
	require.NoError(t, json.Unmarshal(msg.Body, &received))
	assert.Equal(t, "create", received.Action)
	assert.Equal(t, "abc", received.Item.Hash)
	assert.Equal(t, "New video", received.Item.Title)
}

func TestPublish_UniqueMessageIDs(t *testing.T) {
	ch := &fakeChannel{}
	pub := newTestPublisher(ch)
	event := &domain.ItemEvent{Action: "update", Item: domain.ContentItem{Kind: domain.KindNews}}

	require.NoError(t, pub.Publish(context.Background(), event))
	require.NoError(t, pub.Publish(context.Background(), event))

	require.Len(t, ch.msgs, 2)
	assert.NotEqual(t, ch.msgs[0].MessageId, ch.msgs[1].MessageId)
}

func TestPublish_ChannelError(t *testing.T) {
	ch := &fakeChannel{err: amqp.ErrClosed}
	pub := newTestPublisher(ch)

	err := pub.Publish(context.Background(), &domain.ItemEvent{Action: "create"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, amqp.ErrClosed))
}

func TestClose_ClosesChannel(t *testing.T) {
	ch := &fakeChannel{}
	pub := newTestPublisher(ch)

	assert.NoError(t, pub.Close())
	assert.True(t, ch.closed)
}
