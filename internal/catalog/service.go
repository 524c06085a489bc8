package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/psecars/merch-backend/internal/inventory"
	dbpkg "github.com/psecars/merch-backend/pkg/db"
	"github.com/psecars/merch-backend/pkg/db/models"
	dbtypes "github.com/psecars/merch-backend/pkg/db/types"
	pkgerrors "github.com/psecars/merch-backend/pkg/errors"
	"github.com/psecars/merch-backend/pkg/pagination"
)

const categoryNameConstraint = "categories_name_key"

// Service exposes product browsing plus the admin catalog writes.
type Service interface {
	ListProducts(ctx context.Context, input ListProductsInput) (*ProductList, error)
	GetProduct(ctx context.Context, id int64) (*ProductDTO, error)
	CheckAvailability(ctx context.Context, id int64, quantity int) (*Availability, error)
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	UpdateStock(ctx context.Context, id int64, quantity int) (*ProductDTO, error)
	ListCategories(ctx context.Context) ([]CategoryDTO, error)
	GetCategory(ctx context.Context, id int64) (*CategoryDTO, error)
	CreateCategory(ctx context.Context, input CreateCategoryInput) (*CategoryDTO, error)
}

type service struct {
	repo      *Repository
	inventory inventory.Service
}

// NewService constructs the catalog service. Stock writes go through inv.
func NewService(repo *Repository, inv inventory.Service) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	return &service{repo: repo, inventory: inv}, nil
}

func (s *service) ListProducts(ctx context.Context, input ListProductsInput) (*ProductList, error) {
	f := input.Filters
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "minPrice cannot exceed maxPrice")
	}
	cursor, err := productPages.Parse(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.ListProducts(ctx, f, cursor, input.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	page, next := pagination.Trim(productPages, rows, input.Limit, func(p models.Product) int64 { return p.ID })

	products := make([]ProductDTO, 0, len(page))
	for i := range page {
		products = append(products, NewProductDTO(&page[i]))
	}
	return &ProductList{Products: products, NextCursor: next}, nil
}

func (s *service) GetProduct(ctx context.Context, id int64) (*ProductDTO, error) {
	product, err := s.inventory.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := NewProductDTO(product)
	return &dto, nil
}

func (s *service) CheckAvailability(ctx context.Context, id int64, quantity int) (*Availability, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be greater than zero")
	}
	product, err := s.inventory.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Availability{
		ProductID:     product.ID,
		Quantity:      quantity,
		Available:     product.IsAvailable(quantity),
		StockQuantity: product.StockQuantity,
	}, nil
}

// CreateProduct inserts a product. A referenced category must exist.
func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
	}
	if input.StockQuantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "stock quantity cannot be negative")
	}
	if input.CategoryID != nil {
		if _, err := s.category(ctx, *input.CategoryID); err != nil {
			return nil, err
		}
	}

	product := &models.Product{
		Name:          name,
		Description:   input.Description,
		Price:         input.Price.Round(2),
		StockQuantity: input.StockQuantity,
		CategoryID:    input.CategoryID,
		ImageURLs:     dbtypes.StringArray(input.ImageURLs),
	}
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert product")
	}
	dto := NewProductDTO(created)
	return &dto, nil
}

// UpdateStock overwrites the stock level through the inventory gate.
func (s *service) UpdateStock(ctx context.Context, id int64, quantity int) (*ProductDTO, error) {
	product, err := s.inventory.SetStock(ctx, id, quantity)
	if err != nil {
		return nil, err
	}
	dto := NewProductDTO(product)
	return &dto, nil
}

func (s *service) ListCategories(ctx context.Context) ([]CategoryDTO, error) {
	rows, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	out := make([]CategoryDTO, 0, len(rows))
	for i := range rows {
		out = append(out, NewCategoryDTO(&rows[i]))
	}
	return out, nil
}

func (s *service) GetCategory(ctx context.Context, id int64) (*CategoryDTO, error) {
	category, err := s.category(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := NewCategoryDTO(category)
	return &dto, nil
}

func (s *service) CreateCategory(ctx context.Context, input CreateCategoryInput) (*CategoryDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	created, err := s.repo.CreateCategory(ctx, &models.Category{Name: name, Description: input.Description})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, categoryNameConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "category already exists").
				WithDetails(map[string]any{"name": name})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert category")
	}
	dto := NewCategoryDTO(created)
	return &dto, nil
}

func (s *service) category(ctx context.Context, id int64) (*models.Category, error) {
	category, err := s.repo.FindCategory(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found").
				WithDetails(map[string]any{"categoryId": id})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category")
	}
	return category, nil
}
