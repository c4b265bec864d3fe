package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
)

type fakeChannel struct {
	declared   []string
	published  []amqp.Publishing
	keys       []string
	publishErr error
	closed     bool
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestPublisher(channels ...*fakeChannel) (*SoldPublisher, *int) {
	dials := 0
	p := NewSoldPublisher("amqp://test", "seats.sold")
	p.dial = func(url string) (channel, func() error, error) {
		if dials >= len(channels) {
			return nil, nil, errors.New("dial failed")
		}
		ch := channels[dials]
		dials++
		return ch, func() error { return nil }, nil
	}
	return p, &dials
}

func TestSoldPublisher_PublishSold(t *testing.T) {
	event := seat.SoldEvent{
		LayoutID:    "layout-1",
		OrderRef:    "ORDER-123",
		SeatUIDs:    []string{"A-1", "A-2"},
		ConfirmedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	t.Run("永続メッセージとして発行する", func(t *testing.T) {
		ch := &fakeChannel{}
		p, dials := newTestPublisher(ch)

		require.NoError(t, p.PublishSold(context.Background(), event))
		require.NoError(t, p.PublishSold(context.Background(), event))

		assert.Equal(t, 1, *dials)
		assert.Equal(t, []string{"seats.sold"}, ch.declared)
		require.Len(t, ch.published, 2)
		msg := ch.published[0]
		assert.Equal(t, "seats.sold", ch.keys[0])
		assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
		assert.Equal(t, "application/json", msg.ContentType)
		assert.Equal(t, "ORDER-123", msg.MessageId)

		var got seat.SoldEvent
		require.NoError(t, json.Unmarshal(msg.Body, &got))
		assert.Equal(t, event, got)
	})

	t.Run("発行失敗後は再接続する", func(t *testing.T) {
		broken := &fakeChannel{publishErr: errors.New("channel closed")}
		healthy := &fakeChannel{}
		p, dials := newTestPublisher(broken, healthy)

		assert.Error(t, p.PublishSold(context.Background(), event))
		assert.True(t, broken.closed)

		require.NoError(t, p.PublishSold(context.Background(), event))
		assert.Equal(t, 2, *dials)
		assert.Len(t, healthy.published, 1)
	})

	t.Run("接続できなければエラーを返す", func(t *testing.T) {
		p, _ := newTestPublisher()
		assert.Error(t, p.PublishSold(context.Background(), event))
	})
}

func TestSoldPublisher_Close(t *testing.T) {
	ch := &fakeChannel{}
	p, _ := newTestPublisher(ch)
	require.NoError(t, p.PublishSold(context.Background(), seat.SoldEvent{OrderRef: "o"}))

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
