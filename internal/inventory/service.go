package inventory

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/psecars/merch-backend/pkg/db/models"
	pkgerrors "github.com/psecars/merch-backend/pkg/errors"
	"github.com/psecars/merch-backend/pkg/metrics"
)

// Service is the single gate for product stock. Reads never lock; every write
// is one conditional UPDATE so concurrent writers cannot oversell.
type Service interface {
	WithTx(tx *gorm.DB) Service
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	FindProducts(ctx context.Context, ids []int64) (map[int64]models.Product, error)
	IsAvailable(ctx context.Context, id int64, qty int) (bool, error)
	Decrement(ctx context.Context, id int64, qty int) error
	Increment(ctx context.Context, id int64, qty int) error
	SetStock(ctx context.Context, id int64, qty int) (*models.Product, error)
}

type service struct {
	repo    Repository
	metrics *metrics.CommerceMetrics
}

// NewService builds the inventory service. m may be nil.
func NewService(repo Repository, m *metrics.CommerceMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{repo: repo, metrics: m}, nil
}

// WithTx binds reads and writes to tx.
func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx), metrics: s.metrics}
}

func (s *service) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product, err := s.repo.FindProduct(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, productNotFound(id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) FindProducts(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	products, err := s.repo.FindProducts(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	return products, nil
}

func (s *service) IsAvailable(ctx context.Context, id int64, qty int) (bool, error) {
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return false, err
	}
	return product.IsAvailable(qty), nil
}

// Decrement takes qty units from stock, failing with INSUFFICIENT_STOCK when fewer remain.
func (s *service) Decrement(ctx context.Context, id int64, qty int) error {
	if qty <= 0 {
		return invalidQuantity(qty)
	}
	ok, err := s.repo.Decrement(ctx, id, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
	}
	if ok {
		return nil
	}

	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	s.metrics.IncStockRejection("decrement")
	return InsufficientStock(product, qty)
}

// Increment returns qty units to stock. A missing product is reported as PRODUCT_NOT_FOUND.
func (s *service) Increment(ctx context.Context, id int64, qty int) error {
	if qty <= 0 {
		return invalidQuantity(qty)
	}
	ok, err := s.repo.Increment(ctx, id, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment stock")
	}
	if !ok {
		return productNotFound(id)
	}
	return nil
}

func (s *service) SetStock(ctx context.Context, id int64, qty int) (*models.Product, error) {
	if qty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "stock quantity cannot be negative").
			WithDetails(map[string]any{"stockQuantity": qty})
	}
	ok, err := s.repo.SetStock(ctx, id, qty)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set stock")
	}
	if !ok {
		return nil, productNotFound(id)
	}
	return s.GetProduct(ctx, id)
}

// InsufficientStock builds the INSUFFICIENT_STOCK error shared by the cart and order engines.
func InsufficientStock(product *models.Product, requested int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock,
		fmt.Sprintf("insufficient stock for product %s", product.Name)).
		WithDetails(map[string]any{
			"productId": product.ID,
			"requested": requested,
			"available": product.StockQuantity,
		})
}

func productNotFound(id int64) error {
	return pkgerrors.Newf(pkgerrors.CodeProductNotFound, "product %d not found", id).
		WithDetails(map[string]any{"productId": id})
}

func invalidQuantity(qty int) error {
	return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be positive").
		WithDetails(map[string]any{"quantity": qty})
}
