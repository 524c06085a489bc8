package models

import (
	"time"

	"github.com/shopspring/decimal"

	dbtypes "github.com/psecars/merch-backend/pkg/db/types"
)

// Product is a sellable catalog entry. StockQuantity is the live shared inventory.
type Product struct {
	ID            int64               `gorm:"column:id;primaryKey;autoIncrement"`
	Name          string              `gorm:"column:name;not null"`
	Description   *string             `gorm:"column:description"`
	Price         decimal.Decimal     `gorm:"column:price;type:numeric(10,2);not null"`
	StockQuantity int                 `gorm:"column:stock_quantity;not null;default:0"`
	CategoryID    *int64              `gorm:"column:category_id;index"`
	ImageURLs     dbtypes.StringArray `gorm:"column:image_urls"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// IsAvailable reports whether quantity units can currently be supplied.
func (p Product) IsAvailable(quantity int) bool {
	return quantity > 0 && p.StockQuantity >= quantity
}
