package cart

import (
	"github.com/shopspring/decimal"

	"github.com/psecars/merch-backend/pkg/db/models"
)

// TotalAmount is the sum of price times quantity over items.
func TotalAmount(items []models.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// TotalQuantity is the sum of line quantities.
func TotalQuantity(items []models.CartItem) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

// IsEmpty reports whether the cart has no lines.
func IsEmpty(items []models.CartItem) bool {
	return len(items) == 0
}

func findItem(items []models.CartItem, productID int64) *models.CartItem {
	for i := range items {
		if items[i].ProductID == productID {
			return &items[i]
		}
	}
	return nil
}

func productIDs(items []models.CartItem) []int64 {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}
