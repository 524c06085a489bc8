package cart

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/psecars/merch-backend/pkg/db"
	"github.com/psecars/merch-backend/pkg/db/models"
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

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("cart_items.id ASC")
}

// FindBySession loads the cart and its lines without locking.
func (r *Repository) FindBySession(ctx context.Context, sessionID string) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", orderedItems).
		Where("session_id = ?", sessionID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// LockBySession loads the cart row FOR UPDATE, then its lines.
func (r *Repository) LockBySession(ctx context.Context, sessionID string) (*models.Cart, error) {
	var cart models.Cart
	err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("session_id = ?", sessionID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return r.withItems(ctx, &cart)
}

// LockByID loads the cart row FOR UPDATE, then its lines.
func (r *Repository) LockByID(ctx context.Context, id int64) (*models.Cart, error) {
	var cart models.Cart
	err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return r.withItems(ctx, &cart)
}

func (r *Repository) withItems(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	var items []models.CartItem
	if err := orderedItems(r.db.WithContext(ctx)).
		Where("cart_id = ?", cart.ID).
		Find(&items).Error; err != nil {
		return nil, err
	}
	cart.Items = items
	return cart, nil
}

// CreateIfAbsent inserts cart unless another cart already owns its session id.
// It reports whether a row was inserted.
func (r *Repository) CreateIfAbsent(ctx context.Context, cart *models.Cart) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "session_id"}}, DoNothing: true}).
		Omit(clause.Associations).
		Create(cart)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Update saves the cart header fields. Lines are managed separately.
func (r *Repository) Update(ctx context.Context, cart *models.Cart) error {
	return r.db.WithContext(ctx).
		Omit(clause.Associations).
		Save(cart).Error
}

func (r *Repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *Repository) UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", quantity).Error
}

// DeleteItem removes the line for productID and reports whether one existed.
func (r *Repository) DeleteItem(ctx context.Context, cartID, productID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Delete removes the cart and all of its lines.
func (r *Repository) Delete(ctx context.Context, cartID int64) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return tx.Where("id = ?", cartID).Delete(&models.Cart{}).Error
}

// ListExpiredIDs pages through carts whose expires_at is before now, by ascending id.
func (r *Repository) ListExpiredIDs(ctx context.Context, now time.Time, afterID int64, limit int) ([]int64, error) {
	return r.listIDs(ctx, "expires_at < ?", now, afterID, limit)
}

// ListInactiveIDs pages through carts untouched since cutoff, by ascending id.
func (r *Repository) ListInactiveIDs(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]int64, error) {
	return r.listIDs(ctx, "updated_at < ?", cutoff, afterID, limit)
}

func (r *Repository) listIDs(ctx context.Context, cond string, at time.Time, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where(cond, at).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
