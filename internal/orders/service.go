package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/psecars/merch-backend/internal/inventory"
	"github.com/psecars/merch-backend/pkg/db/models"
	"github.com/psecars/merch-backend/pkg/enums"
	pkgerrors "github.com/psecars/merch-backend/pkg/errors"
	"github.com/psecars/merch-backend/pkg/metrics"
	"github.com/psecars/merch-backend/pkg/pagination"
)

// Service turns carts or explicit line lists into orders and drives their lifecycle.
type Service interface {
	CheckoutFromCart(ctx context.Context, sessionID string) (*models.Order, error)
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID int64) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, status enums.OrderStatus) (*models.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	ListOrders(ctx context.Context, query ListQuery) (*OrderList, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	inventory inventory.Service
	carts     CartCheckout
	metrics   *metrics.CommerceMetrics
	now       func() time.Time
}

// NewService builds the order engine. m may be nil.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, inv inventory.Service, carts CartCheckout, m *metrics.CommerceMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		outbox:    outbox,
		inventory: inv,
		carts:     carts,
		metrics:   m,
		now:       time.Now,
	}, nil
}

// CheckoutFromCart converts the session's cart into a PENDING order. Stock
// decrements, the order insert, the outbox event and the cart deletion share one
// transaction.
func (s *service) CheckoutFromCart(ctx context.Context, sessionID string) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cart, err := s.carts.PrepareForCheckout(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		email, name := valueOf(cart.CustomerEmail), valueOf(cart.CustomerName)
		if email == "" || name == "" {
			return pkgerrors.New(pkgerrors.CodeMissingCustomerInfo, "customer email and name are required").
				WithDetails(map[string]any{
					"customerEmail": email != "",
					"customerName":  name != "",
				})
		}

		inv := s.inventory.WithTx(tx)
		ids := make([]int64, 0, len(cart.Items))
		for _, line := range cart.Items {
			ids = append(ids, line.ProductID)
		}
		products, err := inv.FindProducts(ctx, ids)
		if err != nil {
			return err
		}

		order = &models.Order{
			CustomerEmail:   email,
			CustomerName:    name,
			CustomerAddress: cart.CustomerAddress,
			Status:          enums.OrderStatusPending,
		}
		for _, line := range cart.Items {
			if err := inv.Decrement(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
			order.Items = append(order.Items, models.OrderItem{
				ProductID:   line.ProductID,
				ProductName: products[line.ProductID].Name,
				Price:       line.Price,
				Quantity:    line.Quantity,
			})
		}

		if err := s.place(ctx, tx, order, SourceCart); err != nil {
			return err
		}
		return s.carts.Delete(ctx, tx, cart.ID)
	})
	s.metrics.ObserveOrder(SourceCart, err)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CreateOrder places an order from an explicit line list at current product prices.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	order, err := s.createOrder(ctx, input)
	s.metrics.ObserveOrder(SourceExplicit, err)
	return order, err
}

func (s *service) createOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	email, name := strings.TrimSpace(input.CustomerEmail), strings.TrimSpace(input.CustomerName)
	if email == "" || name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMissingCustomerInfo, "customer email and name are required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	for _, line := range input.Items {
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be greater than zero").
				WithDetails(map[string]any{"productId": line.ProductID, "quantity": line.Quantity})
		}
	}

	order := &models.Order{
		CustomerEmail:   email,
		CustomerName:    name,
		CustomerAddress: trimmedOrNil(input.CustomerAddress),
		Status:          enums.OrderStatusPending,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		inv := s.inventory.WithTx(tx)
		order.Items = order.Items[:0]
		for _, line := range input.Items {
			product, err := inv.GetProduct(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if err := inv.Decrement(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
			order.Items = append(order.Items, models.OrderItem{
				ProductID:   product.ID,
				ProductName: product.Name,
				Price:       product.Price,
				Quantity:    line.Quantity,
			})
		}
		return s.place(ctx, tx, order, SourceExplicit)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) place(ctx context.Context, tx *gorm.DB, order *models.Order, source string) error {
	total := decimal.Zero
	for _, item := range order.Items {
		total = total.Add(item.Subtotal())
	}
	order.TotalAmount = total

	if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return s.outbox.Emit(ctx, tx, orderEvent(enums.EventOrderPlaced, order.ID, OrderPlacedEvent{
		OrderID:       order.ID,
		Source:        source,
		CustomerEmail: order.CustomerEmail,
		TotalAmount:   order.TotalAmount.StringFixed(2),
		Items:         lineRefs(order.Items),
	}))
}

// CancelOrder returns every line's quantity to stock and marks the order CANCELLED.
func (s *service) CancelOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = s.lockOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanCancel() {
			return invalidTransition(order.Status, enums.OrderStatusCancelled)
		}

		inv := s.inventory.WithTx(tx)
		for _, line := range order.Items {
			if err := inv.Increment(ctx, line.ProductID, line.Quantity); err != nil {
				if pkgerrors.HasCode(err, pkgerrors.CodeProductNotFound) {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "order references a missing product").
						WithDetails(map[string]any{"orderId": orderID, "productId": line.ProductID})
				}
				return err
			}
		}

		previous := order.Status
		if err := repo.UpdateStatus(ctx, orderID, enums.OrderStatusCancelled); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		order.Status = enums.OrderStatusCancelled
		order.UpdatedAt = s.now().UTC()
		return s.outbox.Emit(ctx, tx, orderEvent(enums.EventOrderCancelled, orderID, OrderCancelledEvent{
			OrderID:        orderID,
			PreviousStatus: previous,
			RestoredItems:  lineRefs(order.Items),
		}))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncCancelled()
	return order, nil
}

// UpdateStatus overwrites the order status. Transitions are not checked here;
// stock restoration only happens through CancelOrder.
func (s *service) UpdateStatus(ctx context.Context, orderID int64, status enums.OrderStatus) (*models.Order, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]any{"status": string(status)})
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = s.lockOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		previous := order.Status
		if err := repo.UpdateStatus(ctx, orderID, status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		order.Status = status
		order.UpdatedAt = s.now().UTC()
		return s.outbox.Emit(ctx, tx, orderEvent(enums.EventOrderStatusChanged, orderID, OrderStatusChangedEvent{
			OrderID: orderID,
			From:    previous,
			To:      status,
		}))
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, orderLoadError(err, orderID)
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, query ListQuery) (*OrderList, error) {
	if query.Status != nil && !query.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	cursor, err := orderPages.Parse(query.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, query.ListFilters, cursor, query.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page, next := pagination.Trim(orderPages, rows, query.Limit, func(o models.Order) int64 { return o.ID })

	views := make([]OrderView, 0, len(page))
	for i := range page {
		views = append(views, NewOrderView(&page[i]))
	}
	return &OrderList{Orders: views, NextCursor: next}, nil
}

func (s *service) lockOrder(ctx context.Context, repo Repository, orderID int64) (*models.Order, error) {
	order, err := repo.LockByID(ctx, orderID)
	if err != nil {
		return nil, orderLoadError(err, orderID)
	}
	return order, nil
}

func orderLoadError(err error, orderID int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found").
			WithDetails(map[string]any{"orderId": orderID})
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "cannot move order from %s to %s", from, to).
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}

func valueOf(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
