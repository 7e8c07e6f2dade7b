package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quickcart/quickcart-backend/pkg/db/models"
	"github.com/quickcart/quickcart-backend/pkg/types"
)

// Repository exposes persistence operations for carts and their lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// EnsureForOwner inserts the owner's cart unless one exists and returns the
// stored row. Concurrent first calls race on ux_carts_owner_key; the loser's
// insert is a no-op and both read the same cart.
func (r *Repository) EnsureForOwner(ctx context.Context, principal types.Principal) (*models.Cart, error) {
	record := models.Cart{
		OwnerKey: principal.OwnerKey(),
		UserID:   principal.UserID,
	}
	if !principal.IsUser() {
		sessionID := principal.SessionID
		record.SessionID = &sessionID
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_key"}},
			DoNothing: true,
		}).
		Create(&record).Error
	if err != nil {
		return nil, err
	}
	return r.FindByOwner(ctx, record.OwnerKey)
}

// FindByOwner loads the cart with its lines and their products.
func (r *Repository) FindByOwner(ctx context.Context, ownerKey string) (*models.Cart, error) {
	var record models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Preload("Items.Product").
		Where("owner_key = ?", ownerKey).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// LockByOwner takes a FOR UPDATE lock on the owner's cart row and returns its
// id. Writers that read lines and then modify them hold this lock first, so
// they serialize per cart.
func (r *Repository) LockByOwner(ctx context.Context, ownerKey string) (uuid.UUID, error) {
	var record models.Cart
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("owner_key = ?", ownerKey).
		First(&record).Error
	if err != nil {
		return uuid.Nil, err
	}
	return record.ID, nil
}

// FindItem returns the line only when it belongs to cartID.
func (r *Repository) FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindItemByProduct returns the cart's line for productID, or nil when absent.
func (r *Repository) FindItemByProduct(ctx context.Context, cartID uuid.UUID, productID int64) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *Repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Omit("Product").Create(item).Error
}

func (r *Repository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", quantity).Error
}

// DeleteItem reports whether a line of cartID was removed.
func (r *Repository) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ClearItems deletes every line; the cart row stays.
func (r *Repository) ClearItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
}
