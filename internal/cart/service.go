package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quickcart/quickcart-backend/internal/inventory"
	product "github.com/quickcart/quickcart-backend/internal/products"
	"github.com/quickcart/quickcart-backend/pkg/db"
	"github.com/quickcart/quickcart-backend/pkg/db/models"
	pkgerrors "github.com/quickcart/quickcart-backend/pkg/errors"
	"github.com/quickcart/quickcart-backend/pkg/logger"
	"github.com/quickcart/quickcart-backend/pkg/types"
)

// addItemAttempts bounds the retry when two concurrent adds of the same
// product both try to insert the line.
const addItemAttempts = 2

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes cart operations scoped to the calling principal.
type Service interface {
	GetOrCreate(ctx context.Context, principal types.Principal) (*CartView, error)
	AddItem(ctx context.Context, principal types.Principal, productID int64, quantity int) (*CartView, error)
	UpdateItem(ctx context.Context, principal types.Principal, itemID uuid.UUID, quantity int) (*CartView, error)
	RemoveItem(ctx context.Context, principal types.Principal, itemID uuid.UUID) (*CartView, error)
	Clear(ctx context.Context, principal types.Principal) (*CartView, error)
	ClearTx(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error
}

type service struct {
	repo     CartRepository
	products *product.Repository
	tx       txRunner
	logg     *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, products *product.Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:     repo,
		products: products,
		tx:       tx,
		logg:     logg,
	}, nil
}

func (s *service) GetOrCreate(ctx context.Context, principal types.Principal) (*CartView, error) {
	if err := validatePrincipal(principal); err != nil {
		return nil, err
	}
	record, err := s.repo.EnsureForOwner(ctx, principal)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return NewCartView(record), nil
}

// AddItem adds quantity of a product. An existing line for the product is
// merged: quantities are summed, stock is re-checked against the sum and the
// originally captured price is kept.
func (s *service) AddItem(ctx context.Context, principal types.Principal, productID int64, quantity int) (*CartView, error) {
	if err := validatePrincipal(principal); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"quantity": quantity})
	}

	var err error
	for attempt := 1; attempt <= addItemAttempts; attempt++ {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.addItem(ctx, tx, principal, productID, quantity)
		})
		if err == nil || !db.IsUniqueViolation(err, "") {
			break
		}
	}
	if err != nil {
		return nil, pkgerrors.Ensure(pkgerrors.CodeTransactionFailure, err, "add cart item failed")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"product_id": productID,
			"quantity":   quantity,
		})
		s.logg.Info(logCtx, "cart item added")
	}
	return s.view(ctx, principal)
}

func (s *service) addItem(ctx context.Context, tx *gorm.DB, principal types.Principal, productID int64, quantity int) error {
	repo := s.repo.WithTx(tx)
	record, err := repo.EnsureForOwner(ctx, principal)
	if err != nil {
		return err
	}
	if _, err := repo.LockByOwner(ctx, record.OwnerKey); err != nil {
		return err
	}

	p, err := s.products.WithTx(tx).FindByID(ctx, productID)
	if err != nil {
		return err
	}
	if !p.IsActive {
		return pkgerrors.New(pkgerrors.CodeInactive, fmt.Sprintf("Product is not available: %s", p.Name)).
			WithDetails(map[string]any{"product_id": p.ID})
	}

	existing, err := repo.FindItemByProduct(ctx, record.ID, productID)
	if err != nil {
		return err
	}

	wanted := quantity
	if existing != nil {
		wanted += existing.Quantity
	}
	if p.StockQuantity < wanted {
		return inventory.InsufficientStock(p, wanted)
	}

	if existing != nil {
		return repo.UpdateItemQuantity(ctx, existing.ID, wanted)
	}
	return repo.CreateItem(ctx, &models.CartItem{
		CartID:    record.ID,
		ProductID: p.ID,
		Quantity:  quantity,
		Price:     p.Price,
	})
}

func (s *service) UpdateItem(ctx context.Context, principal types.Principal, itemID uuid.UUID, quantity int) (*CartView, error) {
	if err := validatePrincipal(principal); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"quantity": quantity})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.EnsureForOwner(ctx, principal)
		if err != nil {
			return err
		}
		if _, err := repo.LockByOwner(ctx, record.OwnerKey); err != nil {
			return err
		}
		item, err := repo.FindItem(ctx, record.ID, itemID)
		if err != nil {
			return itemLookupError(err, itemID)
		}
		p, err := s.products.WithTx(tx).FindByID(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if p.StockQuantity < quantity {
			return inventory.InsufficientStock(p, quantity)
		}
		return repo.UpdateItemQuantity(ctx, item.ID, quantity)
	})
	if err != nil {
		return nil, pkgerrors.Ensure(pkgerrors.CodeTransactionFailure, err, "update cart item failed")
	}
	return s.view(ctx, principal)
}

func (s *service) RemoveItem(ctx context.Context, principal types.Principal, itemID uuid.UUID) (*CartView, error) {
	if err := validatePrincipal(principal); err != nil {
		return nil, err
	}
	record, err := s.repo.EnsureForOwner(ctx, principal)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	removed, err := s.repo.DeleteItem(ctx, record.ID, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove cart item")
	}
	if !removed {
		return nil, itemNotFound(itemID)
	}
	return s.view(ctx, principal)
}

// Clear empties the cart. Clearing an empty cart is a no-op.
func (s *service) Clear(ctx context.Context, principal types.Principal) (*CartView, error) {
	if err := validatePrincipal(principal); err != nil {
		return nil, err
	}
	record, err := s.repo.EnsureForOwner(ctx, principal)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if err := s.repo.ClearItems(ctx, record.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
	}
	return s.view(ctx, principal)
}

// ClearTx empties the cart inside the caller's transaction.
func (s *service) ClearTx(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return s.repo.WithTx(tx).ClearItems(ctx, cartID)
}

func (s *service) view(ctx context.Context, principal types.Principal) (*CartView, error) {
	record, err := s.repo.FindByOwner(ctx, principal.OwnerKey())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return NewCartView(record), nil
}

func validatePrincipal(principal types.Principal) error {
	if !principal.Valid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "cart owner could not be resolved")
	}
	return nil
}

func itemLookupError(err error, itemID uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return itemNotFound(itemID)
	}
	return err
}

func itemNotFound(itemID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found").
		WithDetails(map[string]any{"item_id": itemID})
}
