package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quickcart/quickcart-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	assert.Equal(t, "projects/shop/topics/orders", resourceName("shop", "topics", "orders"))
	assert.Equal(t, "projects/other/topics/orders", resourceName("shop", "topics", "projects/other/topics/orders"))
	assert.Equal(t, "projects/shop/subscriptions/projects-x", resourceName("shop", "subscriptions", "projects-x"))
	assert.Empty(t, resourceName("shop", "topics", "  "))
	assert.Empty(t, resourceName("", "topics", "orders"))
}

func TestNewClientRequiresProjectAndTopic(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{OrdersTopic: "orders"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "shop"}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errTopicRequired)
}

func TestNotFoundOr(t *testing.T) {
	err := notFoundOr(status.Error(codes.NotFound, "gone"), "topic", "orders")
	assert.EqualError(t, err, `topic "orders" does not exist`)

	cause := errors.New("boom")
	err = notFoundOr(cause, "subscription", "orders-sub")
	assert.ErrorIs(t, err, cause)
}

func TestNilClient(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("orders"))
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}
