package inventory

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/psecars/merch-backend/pkg/db/models"
)

// Repository reads products and applies single-statement stock updates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, id int64) (*models.Product, error)
	FindProducts(ctx context.Context, ids []int64) (map[int64]models.Product, error)
	Decrement(ctx context.Context, id int64, qty int) (bool, error)
	Increment(ctx context.Context, id int64, qty int) (bool, error)
	SetStock(ctx context.Context, id int64, qty int) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindProducts(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	out := make(map[int64]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// Decrement subtracts qty only while enough stock remains. It reports whether a row changed.
func (r *repository) Decrement(ctx context.Context, id int64, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE products
		SET stock_quantity = stock_quantity - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock_quantity >= ?
	`, qty, id, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Increment(ctx context.Context, id int64, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE products
		SET stock_quantity = stock_quantity + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, qty, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetStock(ctx context.Context, id int64, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE products
		SET stock_quantity = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, qty, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
