package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quickcart/quickcart-backend/pkg/enums"
)

// OrderLine is the per-item part of order events.
type OrderLine struct {
	ProductID *int64 `json:"product_id,omitempty"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
}

// OrderCreatedEvent is emitted when checkout commits a new order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	UserID        uuid.UUID           `json:"user_id"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Lines         []OrderLine         `json:"lines"`
}

// OrderStatusChangedEvent is emitted on every administrative status update.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	ChangedAt   time.Time         `json:"changed_at"`
}

// OrderCancelledEvent is emitted when a cancellation restores stock.
type OrderCancelledEvent struct {
	OrderID       uuid.UUID         `json:"order_id"`
	OrderNumber   string            `json:"order_number"`
	UserID        uuid.UUID         `json:"user_id"`
	PreviousState enums.OrderStatus `json:"previous_status"`
	Restored      []OrderLine       `json:"restored"`
	CancelledAt   time.Time         `json:"cancelled_at"`
}

// StockAdjustedEvent is emitted when an operator adjusts stock directly.
type StockAdjustedEvent struct {
	ProductID int64                `json:"product_id"`
	Operation enums.StockOperation `json:"operation"`
	Quantity  int                  `json:"quantity"`
	Previous  int                  `json:"previous"`
	Current   int                  `json:"current"`
}
