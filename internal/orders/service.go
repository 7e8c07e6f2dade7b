package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quickcart/quickcart-backend/pkg/db/models"
	"github.com/quickcart/quickcart-backend/pkg/enums"
	pkgerrors "github.com/quickcart/quickcart-backend/pkg/errors"
	"github.com/quickcart/quickcart-backend/pkg/logger"
	"github.com/quickcart/quickcart-backend/pkg/metrics"
	"github.com/quickcart/quickcart-backend/pkg/outbox"
	"github.com/quickcart/quickcart-backend/pkg/outbox/payloads"
	"github.com/quickcart/quickcart-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockRestorer returns stock when an order is cancelled.
type StockRestorer interface {
	Increment(ctx context.Context, tx *gorm.DB, productID int64, quantity int) error
}

// Service covers the order lifecycle after checkout and the customer-facing
// reads.
type Service interface {
	List(ctx context.Context, userID uuid.UUID, params ListParams) (*OrderList, error)
	Get(ctx context.Context, userID, orderID uuid.UUID) (*OrderView, error)
	Cancel(ctx context.Context, userID, orderID uuid.UUID) (*OrderView, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*OrderView, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	stock    StockRestorer
	perPage  int
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	clockNow func() time.Time
}

// NewService builds the order service. perPage is the default list page
// size; m and logg may be nil.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, stock StockRestorer, perPage int, m *metrics.OrderMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock restorer required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   publisher,
		stock:    stock,
		perPage:  perPage,
		metrics:  m,
		logg:     logg,
		clockNow: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params ListParams) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]any{"status": *params.Status})
	}

	page := pagination.Params{Page: params.Page, PerPage: params.PerPage}.Normalize(s.perPage)
	rows, total, err := s.repo.ListForUser(ctx, userID, params.Status, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}

	list := &OrderList{
		Data: make([]OrderView, 0, len(rows)),
		Meta: pagination.NewMeta(page, total),
	}
	for i := range rows {
		list.Data = append(list.Data, *NewOrderView(&rows[i]))
	}
	return list, nil
}

func (s *service) Get(ctx context.Context, userID, orderID uuid.UUID) (*OrderView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	order, err := s.repo.FindForUser(ctx, userID, orderID)
	if err != nil {
		return nil, orderLookupError(err, orderID)
	}
	return NewOrderView(order), nil
}

// Cancel cancels a pending or processing order owned by userID and puts every
// item's quantity back into stock.
func (s *service) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*OrderView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	actor := &outbox.ActorRef{UserID: &userID, Role: string(enums.RoleCustomer)}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindForUser(ctx, userID, orderID)
		if err != nil {
			return orderLookupError(err, orderID)
		}
		return s.cancelTx(ctx, tx, order, actor)
	})
	if err != nil {
		return nil, pkgerrors.Ensure(pkgerrors.CodeTransactionFailure, err, "cancel order failed")
	}

	s.metrics.IncCancellation()
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "order cancelled")
	}
	return s.Get(ctx, userID, orderID)
}

// UpdateStatus sets any known status; there is no transition graph. shipped_at
// and delivered_at are stamped once. Moving to cancelled goes through the same
// path as a customer cancel and is a no-op for an already cancelled order.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*OrderView, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]any{"status": status})
	}

	actor := &outbox.ActorRef{Role: string(enums.RoleAdmin)}
	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return orderLookupError(err, orderID)
		}
		from := order.Status

		switch {
		case status == enums.OrderStatusCancelled && from == enums.OrderStatusCancelled:
			updated = order
			return nil
		case status == enums.OrderStatusCancelled:
			if err := s.cancelTx(ctx, tx, order, actor); err != nil {
				return err
			}
		default:
			if err := repo.Update(ctx, order.ID, s.statusUpdates(order, status)); err != nil {
				return err
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID.String(),
			Actor:         actor,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				From:        from,
				To:          status,
				ChangedAt:   s.clockNow(),
			},
		}); err != nil {
			return err
		}

		updated, err = repo.FindByID(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Ensure(pkgerrors.CodeTransactionFailure, err, "update order status failed")
	}

	s.metrics.IncStatusChange(string(status))
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{
			"status": status,
		})
		s.logg.Info(logCtx, "order status updated")
	}
	return NewOrderView(updated), nil
}

func (s *service) statusUpdates(order *models.Order, status enums.OrderStatus) map[string]any {
	now := s.clockNow()
	updates := map[string]any{
		"status":     status,
		"updated_at": now,
	}
	if status == enums.OrderStatusShipped && order.ShippedAt == nil {
		updates["shipped_at"] = now
	}
	if status == enums.OrderStatusDelivered && order.DeliveredAt == nil {
		updates["delivered_at"] = now
	}
	return updates
}

// cancelTx flips the status with a conditional update, so of two concurrent
// cancels only one restores stock.
func (s *service) cancelTx(ctx context.Context, tx *gorm.DB, order *models.Order, actor *outbox.ActorRef) error {
	if !order.Status.Cancellable() {
		return notCancellable(order)
	}

	now := s.clockNow()
	changed, err := s.repo.WithTx(tx).TransitionStatus(ctx, order.ID, enums.CancellableOrderStatuses(), map[string]any{
		"status":       enums.OrderStatusCancelled,
		"cancelled_at": now,
		"updated_at":   now,
	})
	if err != nil {
		return err
	}
	if !changed {
		return notCancellable(order)
	}

	restored := make([]payloads.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		if item.ProductID == nil {
			continue
		}
		if err := s.stock.Increment(ctx, tx, *item.ProductID, item.Quantity); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				continue
			}
			return err
		}
		restored = append(restored, payloads.OrderLine{
			ProductID: item.ProductID,
			SKU:       item.ProductSKU,
			Quantity:  item.Quantity,
		})
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID.String(),
		Actor:         actor,
		Data: payloads.OrderCancelledEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			UserID:        order.UserID,
			PreviousState: order.Status,
			Restored:      restored,
			CancelledAt:   now,
		},
	})
}

func notCancellable(order *models.Order) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "Order cannot be cancelled").
		WithDetails(map[string]any{"order_id": order.ID, "status": order.Status})
}

func orderLookupError(err error, orderID uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
			WithDetails(map[string]any{"order_id": orderID})
	}
	return err
}
