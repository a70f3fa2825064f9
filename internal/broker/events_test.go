package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublishRoutesTopicsAndKeys(t *testing.T) {
	writer := &fakeWriter{}
	publisher := NewEventPublisher(NewProducerWithWriter(writer), "cart-events", "payment-events")
	ctx := context.Background()

	require.NoError(t, publisher.PublishCartChanged(ctx, &models.CartChangedEvent{
		BaseEvent: NewBaseEvent(models.EventTypeCartChanged),
		SessionID: "s1",
	}))
	require.NoError(t, publisher.PublishPaymentVerified(ctx, &models.PaymentVerifiedEvent{
		BaseEvent: NewBaseEvent(models.EventTypePaymentVerified),
		Reference: "ref-1",
		Amount:    decimal.NewFromInt(100),
	}))

	require.Len(t, writer.messages, 2)
	assert.Equal(t, "cart-events", writer.messages[0].Topic)
	assert.Equal(t, "session-s1", string(writer.messages[0].Key))
	assert.Equal(t, "payment-events", writer.messages[1].Topic)
	assert.Equal(t, "payment-ref-1", string(writer.messages[1].Key))

	var base models.BaseEvent
	require.NoError(t, json.Unmarshal(writer.messages[1].Value, &base))
	assert.Equal(t, models.EventTypePaymentVerified, base.EventType)
	assert.NotEmpty(t, base.EventID)
}

func TestPublishWriterError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	publisher := NewEventPublisher(NewProducerWithWriter(writer), "cart-events", "payment-events")

	err := publisher.PublishPaymentFailed(context.Background(), &models.PaymentFailedEvent{Reference: "r"})
	assert.ErrorContains(t, err, "broker down")
}

func TestHandleMessageRoutesCartChanged(t *testing.T) {
	handler := NewEventHandler()

	var got *models.CartChangedEvent
	handler.OnCartChanged(func(_ context.Context, e *models.CartChangedEvent) error {
		got = e
		return nil
	})

	event := models.CartChangedEvent{
		BaseEvent: NewBaseEvent(models.EventTypeCartChanged),
		SessionID: "s1",
		Lines:     []models.CartLine{{ID: "1", Quantity: 2, Price: decimal.NewFromInt(5)}},
	}
	value, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: value}))
	require.NotNil(t, got)
	assert.Equal(t, "s1", got.SessionID)
	assert.Len(t, got.Lines, 1)
}

func TestHandleMessageIgnoresOtherEvents(t *testing.T) {
	handler := NewEventHandler()
	handler.OnCartChanged(func(context.Context, *models.CartChangedEvent) error {
		t.Fatal("unexpected call")
		return nil
	})

	value, _ := json.Marshal(NewBaseEvent(models.EventTypePaymentInitiated))
	assert.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: value}))
}

func TestHandleMessageBadPayload(t *testing.T) {
	err := NewEventHandler().HandleMessage(context.Background(), kafka.Message{Value: []byte("{")})
	assert.Error(t, err)
}

func TestWriterFlushesPromptly(t *testing.T) {
	w := newWriter([]string{"localhost:9092"})

	assert.LessOrEqual(t, w.BatchTimeout, 10*time.Millisecond)
	assert.Positive(t, w.BatchTimeout)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}
