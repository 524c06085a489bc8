package orders

import (
	"strings"
	"time"

	"github.com/psecars/merch-backend/pkg/db/models"
	"github.com/psecars/merch-backend/pkg/enums"
)

// LineInput is one requested product line of an explicit order.
type LineInput struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required"`
}

// CreateOrderInput carries an order placed without a cart.
type CreateOrderInput struct {
	CustomerEmail   string      `json:"customerEmail" validate:"required,email"`
	CustomerName    string      `json:"customerName" validate:"required"`
	CustomerAddress *string     `json:"customerAddress,omitempty"`
	Items           []LineInput `json:"items" validate:"required,min=1,dive"`
}

// ListFilters narrow the orders list.
type ListFilters struct {
	Status        *enums.OrderStatus
	CustomerEmail string
}

// ListQuery is a filtered, cursor-paginated orders request.
type ListQuery struct {
	ListFilters
	Limit  int
	Cursor string
}

// ItemView is one frozen order line.
type ItemView struct {
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Price       string `json:"price"`
	Quantity    int    `json:"quantity"`
	Subtotal    string `json:"subtotal"`
}

// OrderView is the order as returned over HTTP.
type OrderView struct {
	ID              int64             `json:"id"`
	CustomerEmail   string            `json:"customerEmail"`
	CustomerName    string            `json:"customerName"`
	CustomerAddress *string           `json:"customerAddress,omitempty"`
	Status          enums.OrderStatus `json:"status"`
	TotalAmount     string            `json:"totalAmount"`
	TotalItems      int               `json:"totalItems"`
	Items           []ItemView        `json:"items"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderView `json:"orders"`
	NextCursor string      `json:"nextCursor,omitempty"`
}

// NewOrderView renders an order with its lines.
func NewOrderView(order *models.Order) OrderView {
	items := make([]ItemView, 0, len(order.Items))
	totalItems := 0
	for _, line := range order.Items {
		items = append(items, ItemView{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Price:       line.Price.StringFixed(2),
			Quantity:    line.Quantity,
			Subtotal:    line.Subtotal().StringFixed(2),
		})
		totalItems += line.Quantity
	}
	return OrderView{
		ID:              order.ID,
		CustomerEmail:   order.CustomerEmail,
		CustomerName:    order.CustomerName,
		CustomerAddress: order.CustomerAddress,
		Status:          order.Status,
		TotalAmount:     order.TotalAmount.StringFixed(2),
		TotalItems:      totalItems,
		Items:           items,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
