package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/psecars/merch-backend/pkg/enums"
)

// Order is the immutable record produced by checkout or explicit order creation.
type Order struct {
	ID              int64             `gorm:"column:id;primaryKey;autoIncrement"`
	CustomerEmail   string            `gorm:"column:customer_email;not null;index"`
	CustomerName    string            `gorm:"column:customer_name;not null"`
	CustomerAddress *string           `gorm:"column:customer_address"`
	TotalAmount     decimal.Decimal   `gorm:"column:total_amount;type:numeric(10,2);not null"`
	Status          enums.OrderStatus `gorm:"column:status;type:text;not null;default:'PENDING';index"`
	Items           []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem freezes product name, price and quantity at order time.
type OrderItem struct {
	ID          int64           `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID     int64           `gorm:"column:order_id;not null;index"`
	ProductID   int64           `gorm:"column:product_id;not null"`
	ProductName string          `gorm:"column:product_name;not null"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	Quantity    int             `gorm:"column:quantity;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// Subtotal is price times quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
