package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickcart/quickcart-backend/pkg/config"
	"github.com/quickcart/quickcart-backend/pkg/db/models"
	"github.com/quickcart/quickcart-backend/pkg/enums"
	"github.com/quickcart/quickcart-backend/pkg/outbox"
	"github.com/quickcart/quickcart-backend/pkg/outbox/payloads"
)

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders-topic"})
	require.NoError(t, err)
	return reg
}

func mustEnvelope(t *testing.T, data any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return envelope
}

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)
	orderID := uuid.New()

	event := models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID.String(),
		Payload: mustEnvelope(t, payloads.OrderCreatedEvent{
			OrderID:     orderID,
			OrderNumber: "ORD-20261015-ABCDEFGH",
			TotalAmount: decimal.RequireFromString("64.00"),
		}),
	}

	resolved, err := reg.Resolve(event)
	require.NoError(t, err)
	assert.Equal(t, "orders-topic", resolved.Descriptor.Topic)
	payload, ok := resolved.Payload.(*payloads.OrderCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, orderID, payload.OrderID)
	assert.True(t, payload.TotalAmount.Equal(decimal.RequireFromString("64")))
	assert.NotEmpty(t, resolved.Envelope.EventID)
}

func TestEventRegistryRejectsUnknownAndMismatched(t *testing.T) {
	reg := newTestEventRegistry(t)

	_, err := reg.Resolve(models.OutboxEvent{EventType: "mystery", AggregateType: enums.AggregateOrder, AggregateID: "x"})
	var nonRetry NonRetryableError
	require.True(t, errors.As(err, &nonRetry))

	_, err = reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateProduct,
		AggregateID:   "42",
		Payload:       mustEnvelope(t, payloads.OrderCancelledEvent{}),
	})
	require.True(t, errors.As(err, &nonRetry))

	_, err = reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventStockAdjusted,
		AggregateType: enums.AggregateProduct,
		AggregateID:   "42",
		Payload:       json.RawMessage(`{"version":1,"eventId":"e","data":null}`),
	})
	require.True(t, errors.As(err, &nonRetry))
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	require.Error(t, err)
}

func TestEventRegistryRejectsNewerEnvelope(t *testing.T) {
	reg := newTestEventRegistry(t)
	_, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventStockAdjusted,
		AggregateType: enums.AggregateProduct,
		AggregateID:   "42",
		Payload:       json.RawMessage(`{"version":2,"eventId":"e","data":{"productId":42}}`),
	})
	var nonRetry NonRetryableError
	require.True(t, errors.As(err, &nonRetry))
	assert.Contains(t, err.Error(), "version 2")
}

func TestEventRegistryTopics(t *testing.T) {
	assert.Equal(t, []string{"orders-topic"}, newTestEventRegistry(t).Topics())
}
