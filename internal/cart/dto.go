package cart

import (
	"time"

	"github.com/psecars/merch-backend/pkg/db/models"
)

// CustomerInfo carries optional contact fields. A nil field leaves the stored value unchanged.
type CustomerInfo struct {
	Email   *string
	Name    *string
	Address *string
}

// ItemView is one cart line as returned over HTTP.
type ItemView struct {
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName,omitempty"`
	ImageURL    *string `json:"imageUrl,omitempty"`
	Price       string  `json:"price"`
	Quantity    int     `json:"quantity"`
	Subtotal    string  `json:"subtotal"`
}

// View is the cart with its derived totals.
type View struct {
	ID              int64      `json:"id,omitempty"`
	SessionID       string     `json:"sessionId"`
	CustomerEmail   *string    `json:"customerEmail,omitempty"`
	CustomerName    *string    `json:"customerName,omitempty"`
	CustomerAddress *string    `json:"customerAddress,omitempty"`
	Items           []ItemView `json:"items"`
	TotalAmount     string     `json:"totalAmount"`
	TotalItems      int        `json:"totalItems"`
	IsEmpty         bool       `json:"isEmpty"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

// Summary is the lightweight cart badge payload.
type Summary struct {
	SessionID     string `json:"sessionId"`
	TotalItems    int    `json:"totalItems"`
	TotalQuantity int    `json:"totalQuantity"`
	TotalAmount   string `json:"totalAmount"`
	IsEmpty       bool   `json:"isEmpty"`
}

// UnavailableItem is a line whose quantity exceeds live stock.
type UnavailableItem struct {
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName,omitempty"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
}

func emptyView(sessionID string) *View {
	return &View{
		SessionID:   sessionID,
		Items:       []ItemView{},
		TotalAmount: formatMoney(TotalAmount(nil)),
		IsEmpty:     true,
	}
}

func newView(cart *models.Cart, products map[int64]models.Product) *View {
	items := make([]ItemView, 0, len(cart.Items))
	for _, line := range cart.Items {
		item := ItemView{
			ProductID: line.ProductID,
			Price:     formatMoney(line.Price),
			Quantity:  line.Quantity,
			Subtotal:  formatMoney(line.Subtotal()),
		}
		if product, ok := products[line.ProductID]; ok {
			item.ProductName = product.Name
			if len(product.ImageURLs) > 0 {
				url := product.ImageURLs[0]
				item.ImageURL = &url
			}
		}
		items = append(items, item)
	}
	createdAt, updatedAt, expiresAt := cart.CreatedAt, cart.UpdatedAt, cart.ExpiresAt
	return &View{
		ID:              cart.ID,
		SessionID:       cart.SessionID,
		CustomerEmail:   cart.CustomerEmail,
		CustomerName:    cart.CustomerName,
		CustomerAddress: cart.CustomerAddress,
		Items:           items,
		TotalAmount:     formatMoney(TotalAmount(cart.Items)),
		TotalItems:      TotalQuantity(cart.Items),
		IsEmpty:         IsEmpty(cart.Items),
		CreatedAt:       &createdAt,
		UpdatedAt:       &updatedAt,
		ExpiresAt:       &expiresAt,
	}
}

func newSummary(sessionID string, items []models.CartItem) *Summary {
	return &Summary{
		SessionID:     sessionID,
		TotalItems:    len(items),
		TotalQuantity: TotalQuantity(items),
		TotalAmount:   formatMoney(TotalAmount(items)),
		IsEmpty:       IsEmpty(items),
	}
}
