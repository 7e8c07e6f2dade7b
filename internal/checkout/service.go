package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quickcart/quickcart-backend/internal/cart"
	"github.com/quickcart/quickcart-backend/internal/inventory"
	"github.com/quickcart/quickcart-backend/internal/orders"
	"github.com/quickcart/quickcart-backend/internal/pricing"
	product "github.com/quickcart/quickcart-backend/internal/products"
	"github.com/quickcart/quickcart-backend/pkg/db"
	"github.com/quickcart/quickcart-backend/pkg/db/models"
	"github.com/quickcart/quickcart-backend/pkg/enums"
	pkgerrors "github.com/quickcart/quickcart-backend/pkg/errors"
	"github.com/quickcart/quickcart-backend/pkg/logger"
	"github.com/quickcart/quickcart-backend/pkg/metrics"
	"github.com/quickcart/quickcart-backend/pkg/outbox"
	"github.com/quickcart/quickcart-backend/pkg/outbox/payloads"
	"github.com/quickcart/quickcart-backend/pkg/types"
)

const (
	defaultNumberAttempts = 5
	orderNumberSavepoint  = "order_number"
	maxNotesLength        = 1000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockDecrementer interface {
	Decrement(ctx context.Context, tx *gorm.DB, productID int64, quantity int) error
}

type cartClearer interface {
	ClearTx(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service turns the caller's cart into an order.
type Service interface {
	Checkout(ctx context.Context, principal types.Principal, input CheckoutInput) (*orders.OrderView, error)
}

// Deps lists the collaborators of the checkout service. Metrics and Logger
// are optional; Calculator and Numbers fall back to the storefront defaults.
type Deps struct {
	Tx             txRunner
	Carts          cart.CartRepository
	CartClearer    cartClearer
	Products       *product.Repository
	Orders         orders.Repository
	Stock          stockDecrementer
	Calculator     *pricing.Calculator
	Numbers        orders.NumberGenerator
	NumberAttempts int
	Outbox         outboxPublisher
	Metrics        *metrics.OrderMetrics
	Logger         *logger.Logger
}

type service struct {
	Deps
	clockNow func() time.Time
}

// NewService builds the checkout service.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case deps.Carts == nil:
		return nil, fmt.Errorf("cart repository required")
	case deps.CartClearer == nil:
		return nil, fmt.Errorf("cart clearer required")
	case deps.Products == nil:
		return nil, fmt.Errorf("product repository required")
	case deps.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case deps.Stock == nil:
		return nil, fmt.Errorf("stock ledger required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	if deps.Calculator == nil {
		calc := pricing.DefaultCalculator()
		deps.Calculator = &calc
	}
	if deps.Numbers == nil {
		deps.Numbers = orders.NewNumberGenerator("ORD")
	}
	if deps.NumberAttempts <= 0 {
		deps.NumberAttempts = defaultNumberAttempts
	}
	return &service{
		Deps:     deps,
		clockNow: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Checkout validates the cart against locked stock, prices it, writes the
// order with its item snapshots, takes the stock and empties the cart. Every
// step shares one transaction, and the cart row is locked before its lines are
// read so two checkouts of one cart cannot both see the same lines.
func (s *service) Checkout(ctx context.Context, principal types.Principal, input CheckoutInput) (*orders.OrderView, error) {
	started := time.Now()
	view, err := s.checkout(ctx, principal, input)

	code := ""
	if err != nil {
		code = string(pkgerrors.As(err).Code())
	}
	s.Metrics.ObserveCheckout(code, time.Since(started))
	return view, err
}

func (s *service) checkout(ctx context.Context, principal types.Principal, input CheckoutInput) (*orders.OrderView, error) {
	if !principal.IsUser() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "checkout requires an authenticated user")
	}
	input, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}
	userID := *principal.UserID

	var orderID uuid.UUID
	err = s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.Carts.WithTx(tx)
		if _, err := carts.LockByOwner(ctx, principal.OwnerKey()); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return emptyCart()
			}
			return err
		}
		record, err := carts.FindByOwner(ctx, principal.OwnerKey())
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return emptyCart()
		}
		if err != nil {
			return err
		}
		if len(record.Items) == 0 {
			return emptyCart()
		}

		ids := make([]int64, 0, len(record.Items))
		for _, item := range record.Items {
			ids = append(ids, item.ProductID)
		}
		locked, err := s.Products.WithTx(tx).LockByIDs(ctx, ids)
		if err != nil {
			return err
		}

		lines := make([]pricing.Line, 0, len(record.Items))
		for _, item := range record.Items {
			p, ok := locked[item.ProductID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
					WithDetails(map[string]any{"product_id": item.ProductID})
			}
			if !p.IsActive {
				return pkgerrors.New(pkgerrors.CodeInactive, fmt.Sprintf("Product is not available: %s", p.Name)).
					WithDetails(map[string]any{"product_id": p.ID})
			}
			if p.StockQuantity < item.Quantity {
				return inventory.InsufficientStock(&p, item.Quantity)
			}
			lines = append(lines, pricing.Line{Quantity: item.Quantity, UnitPrice: item.Price})
		}
		totals := s.Calculator.Calculate(lines)

		order := &models.Order{
			UserID:          userID,
			Status:          enums.OrderStatusPending,
			Subtotal:        totals.Subtotal,
			TaxAmount:       totals.Tax,
			ShippingAmount:  totals.Shipping,
			DiscountAmount:  totals.Discount,
			TotalAmount:     totals.Total,
			ShippingAddress: input.ShippingAddress,
			BillingAddress:  input.BillingAddress,
			PaymentMethod:   input.PaymentMethod,
			PaymentStatus:   enums.PaymentStatusPending,
			Notes:           input.Notes,
		}
		if err := s.insertOrder(ctx, tx, order); err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(record.Items))
		events := make([]payloads.OrderLine, 0, len(record.Items))
		for i, item := range record.Items {
			p := locked[item.ProductID]
			productID := p.ID
			items = append(items, models.OrderItem{
				OrderID:     order.ID,
				ProductID:   &productID,
				ProductName: p.Name,
				ProductSKU:  p.SKU,
				Quantity:    item.Quantity,
				UnitPrice:   item.Price,
				TotalPrice:  lines[i].Total(),
			})
			events = append(events, payloads.OrderLine{ProductID: &productID, SKU: p.SKU, Quantity: item.Quantity})
		}
		if err := s.Orders.WithTx(tx).CreateItems(ctx, items); err != nil {
			return err
		}

		for _, item := range record.Items {
			if err := s.Stock.Decrement(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		if err := s.CartClearer.ClearTx(ctx, tx, record.ID); err != nil {
			return err
		}

		if err := s.Outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID.String(),
			Actor:         &outbox.ActorRef{UserID: &userID, Role: string(enums.RoleCustomer)},
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				UserID:        userID,
				TotalAmount:   order.TotalAmount,
				PaymentMethod: order.PaymentMethod,
				Lines:         events,
			},
		}); err != nil {
			return err
		}

		orderID = order.ID
		return nil
	})
	if err != nil {
		if s.Logger != nil && !isBusinessError(err) {
			s.Logger.Error(s.Logger.WithUserID(ctx, userID.String()), "checkout failed", err)
		}
		return nil, pkgerrors.Ensure(pkgerrors.CodeTransactionFailure, err, "checkout failed")
	}

	created, err := s.Orders.FindForUser(ctx, userID, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if s.Logger != nil {
		logCtx := s.Logger.WithFields(s.Logger.WithOrderID(ctx, orderID.String()), map[string]any{
			"order_number": created.OrderNumber,
			"total":        created.TotalAmount.StringFixed(2),
			"items":        len(created.Items),
		})
		s.Logger.Info(logCtx, "order placed")
	}
	return orders.NewOrderView(created), nil
}

// insertOrder assigns an order number and inserts the order. A duplicate
// number rolls back to a savepoint and retries with a fresh one, so the
// surrounding transaction stays usable.
func (s *service) insertOrder(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	repo := s.Orders.WithTx(tx)
	for attempt := 1; ; attempt++ {
		order.OrderNumber = s.Numbers(s.clockNow())
		if err := tx.SavePoint(orderNumberSavepoint).Error; err != nil {
			return err
		}

		err := repo.Create(ctx, order)
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, "order_number") || attempt >= s.NumberAttempts {
			return err
		}
		if rbErr := tx.RollbackTo(orderNumberSavepoint).Error; rbErr != nil {
			return rbErr
		}
		if s.Logger != nil {
			s.Logger.Warn(s.Logger.WithField(ctx, "attempt", attempt), "order number collision, regenerating")
		}
	}
}

func normalizeInput(input CheckoutInput) (CheckoutInput, error) {
	input.ShippingAddress = input.ShippingAddress.Normalize()
	input.BillingAddress = input.BillingAddress.Normalize()

	problems := map[string]string{}
	if !input.PaymentMethod.IsValid() {
		problems["payment_method"] = "must be one of credit_card, debit_card, paypal, stripe"
	}
	for field, addr := range map[string]types.Address{
		"shipping_address": input.ShippingAddress,
		"billing_address":  input.BillingAddress,
	} {
		if !addressComplete(addr) {
			problems[field] = "name, address_line_1, city, state, postal_code and country are required"
		}
	}
	if input.Notes != nil {
		notes := strings.TrimSpace(*input.Notes)
		switch {
		case notes == "":
			input.Notes = nil
		case len([]rune(notes)) > maxNotesLength:
			problems["notes"] = fmt.Sprintf("must be at most %d characters", maxNotesLength)
		default:
			input.Notes = &notes
		}
	}

	if len(problems) > 0 {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "invalid checkout request").WithDetails(problems)
	}
	return input, nil
}

func addressComplete(a types.Address) bool {
	return a.Name != "" && a.AddressLine1 != "" && a.City != "" &&
		a.State != "" && a.PostalCode != "" && a.Country != ""
}

func emptyCart() error {
	return pkgerrors.New(pkgerrors.CodeEmptyCart, "Cart is empty")
}

func isBusinessError(err error) bool {
	typed := pkgerrors.As(err)
	return typed != nil && !pkgerrors.MetadataFor(typed.Code()).Retryable
}
