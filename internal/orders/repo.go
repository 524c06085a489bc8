package orders

import (
	"context"
	"strings"

	"gorm.io/gorm"

	dbpkg "github.com/psecars/merch-backend/pkg/db"
	"github.com/psecars/merch-backend/pkg/db/models"
	"github.com/psecars/merch-backend/pkg/enums"
	"github.com/psecars/merch-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("order_items.id ASC")
}

// Create inserts the order together with its lines.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", orderedItems).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LockByID loads the order row FOR UPDATE, then its lines.
func (r *repository) LockByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	var items []models.OrderItem
	if err := orderedItems(r.db.WithContext(ctx)).
		Where("order_id = ?", id).
		Find(&items).Error; err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Update("status", status).Error
}

var orderPages = pagination.Keyset{Scope: "orders", Descending: true}

// List returns one page of orders newest first plus a look-ahead row.
func (r *repository) List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Preload("Items", orderedItems)
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if email := strings.TrimSpace(filters.CustomerEmail); email != "" {
		query = query.Where("LOWER(customer_email) = ?", strings.ToLower(email))
	}

	var orders []models.Order
	err := orderPages.Apply(query, cursor, limit).Find(&orders).Error
	return orders, err
}
