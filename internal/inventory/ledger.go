package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	product "github.com/quickcart/quickcart-backend/internal/products"
	"github.com/quickcart/quickcart-backend/pkg/db/models"
	"github.com/quickcart/quickcart-backend/pkg/enums"
	pkgerrors "github.com/quickcart/quickcart-backend/pkg/errors"
	"github.com/quickcart/quickcart-backend/pkg/logger"
	"github.com/quickcart/quickcart-backend/pkg/metrics"
	"github.com/quickcart/quickcart-backend/pkg/outbox"
	"github.com/quickcart/quickcart-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Ledger is the only writer of products.stock_quantity. Decrement and
// Increment run inside the caller's transaction; Adjust opens its own.
type Ledger struct {
	db       *gorm.DB
	tx       txRunner
	products *product.Repository
	outbox   outboxPublisher
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
}

// NewLedger wires the ledger. publisher may be nil when no events are wanted.
func NewLedger(db *gorm.DB, tx txRunner, publisher outboxPublisher, logg *logger.Logger) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	return &Ledger{
		db:       db,
		tx:       tx,
		products: product.NewRepository(db),
		outbox:   publisher,
		logg:     logg,
	}, nil
}

// WithMetrics records operator adjustments on m.
func (l *Ledger) WithMetrics(m *metrics.OrderMetrics) *Ledger {
	l.metrics = m
	return l
}

// CheckAvailable is an advisory read; nothing is held between this call and
// a later mutation.
func (l *Ledger) CheckAvailable(ctx context.Context, productID int64, quantity int) (bool, error) {
	if quantity < 1 {
		return false, invalidQuantity(quantity)
	}
	p, err := l.products.FindByID(ctx, productID)
	if err != nil {
		return false, err
	}
	return p.StockQuantity >= quantity, nil
}

// Decrement subtracts quantity with a conditional update, so two concurrent
// decrements of the same row can never both pass the stock check.
func (l *Ledger) Decrement(ctx context.Context, tx *gorm.DB, productID int64, quantity int) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if quantity < 1 {
		return invalidQuantity(quantity)
	}

	res := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock_quantity >= ?", productID, quantity).
		Updates(map[string]any{
			"stock_quantity": gorm.Expr("stock_quantity - ?", quantity),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	current, err := product.NewRepository(tx).FindByID(ctx, productID)
	if err != nil {
		return err
	}
	return InsufficientStock(current, quantity)
}

// Increment restores quantity. Only cancellation calls it, always for an
// amount that an earlier Decrement removed.
func (l *Ledger) Increment(ctx context.Context, tx *gorm.DB, productID int64, quantity int) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if quantity < 1 {
		return invalidQuantity(quantity)
	}

	res := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"stock_quantity": gorm.Expr("stock_quantity + ?", quantity),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"product_id": productID})
	}
	return nil
}

// Adjust applies an operator stock change under a row lock. Subtract and set
// floor the result at zero.
func (l *Ledger) Adjust(ctx context.Context, productID int64, quantity int, op enums.StockOperation) (*models.Product, error) {
	if !op.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid stock operation").
			WithDetails(map[string]any{"operation": op})
	}
	if quantity < 0 {
		return nil, invalidQuantity(quantity)
	}

	var result *models.Product
	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := product.NewRepository(tx).LockByIDs(ctx, []int64{productID})
		if err != nil {
			return err
		}
		current, ok := locked[productID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": productID})
		}

		previous := current.StockQuantity
		next := op.Apply(previous, quantity)
		if err := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ?", productID).
			Updates(map[string]any{
				"stock_quantity": next,
				"updated_at":     time.Now().UTC(),
			}).Error; err != nil {
			return err
		}
		current.StockQuantity = next

		if l.outbox != nil {
			if err := l.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventStockAdjusted,
				AggregateType: enums.AggregateProduct,
				AggregateID:   strconv.FormatInt(productID, 10),
				Data: payloads.StockAdjustedEvent{
					ProductID: productID,
					Operation: op,
					Quantity:  quantity,
					Previous:  previous,
					Current:   next,
				},
			}); err != nil {
				return err
			}
		}

		result = &current
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Ensure(pkgerrors.CodeTransactionFailure, err, "stock adjustment failed")
	}
	l.metrics.IncStockAdjustment(string(op))

	if l.logg != nil {
		logCtx := l.logg.WithFields(ctx, map[string]any{
			"product_id": productID,
			"operation":  op,
			"quantity":   quantity,
			"stock":      result.StockQuantity,
		})
		l.logg.Info(logCtx, "stock adjusted")
	}
	return result, nil
}

// InsufficientStock builds the error returned when p cannot cover requested.
func InsufficientStock(p *models.Product, requested int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("Insufficient stock for product: %s", p.Name)).
		WithDetails(map[string]any{
			"product_id": p.ID,
			"product":    p.Name,
			"requested":  requested,
			"available":  p.StockQuantity,
		})
}

func invalidQuantity(quantity int) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid quantity").
		WithDetails(map[string]any{"quantity": quantity})
}
