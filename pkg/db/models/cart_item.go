package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is one product line in a cart. Price is captured when the line is first added.
type CartItem struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement"`
	CartID    int64           `gorm:"column:cart_id;not null;uniqueIndex:idx_cart_items_cart_product"`
	ProductID int64           `gorm:"column:product_id;not null;uniqueIndex:idx_cart_items_cart_product"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	Quantity  int             `gorm:"column:quantity;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Subtotal is price times quantity.
func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
