package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/psecars/merch-backend/pkg/db/models"
)

// ProductFilters describe the supported filter knobs for the browse endpoint.
type ProductFilters struct {
	CategoryID    *int64
	AvailableOnly bool
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
}

// ListProductsInput is a filtered, cursor-paginated product request.
type ListProductsInput struct {
	Filters ProductFilters
	Limit   int
	Cursor  string
}

// CreateProductInput carries the admin product payload.
type CreateProductInput struct {
	Name          string          `json:"name" validate:"required,max=255"`
	Description   *string         `json:"description,omitempty"`
	Price         decimal.Decimal `json:"price" validate:"money"`
	StockQuantity int             `json:"stockQuantity" validate:"gte=0"`
	CategoryID    *int64          `json:"categoryId,omitempty" validate:"omitempty,gt=0"`
	ImageURLs     []string        `json:"imageUrls,omitempty" validate:"omitempty,dive,url"`
}

// CreateCategoryInput carries the admin category payload.
type CreateCategoryInput struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description,omitempty"`
}

// ProductDTO is the product as returned over HTTP.
type ProductDTO struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   *string   `json:"description,omitempty"`
	Price         string    `json:"price"`
	StockQuantity int       `json:"stockQuantity"`
	InStock       bool      `json:"inStock"`
	CategoryID    *int64    `json:"categoryId,omitempty"`
	ImageURLs     []string  `json:"imageUrls"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ProductList wraps a page of products plus the next page cursor.
type ProductList struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

// CategoryDTO is the category as returned over HTTP.
type CategoryDTO struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// Availability answers whether a quantity can currently be supplied.
type Availability struct {
	ProductID     int64 `json:"productId"`
	Quantity      int   `json:"quantity"`
	Available     bool  `json:"available"`
	StockQuantity int   `json:"stockQuantity"`
}

// NewProductDTO maps a product row to its response shape.
func NewProductDTO(product *models.Product) ProductDTO {
	urls := []string(product.ImageURLs)
	if urls == nil {
		urls = []string{}
	}
	return ProductDTO{
		ID:            product.ID,
		Name:          product.Name,
		Description:   product.Description,
		Price:         product.Price.StringFixed(2),
		StockQuantity: product.StockQuantity,
		InStock:       product.StockQuantity > 0,
		CategoryID:    product.CategoryID,
		ImageURLs:     urls,
		CreatedAt:     product.CreatedAt,
		UpdatedAt:     product.UpdatedAt,
	}
}

// NewCategoryDTO maps a category row to its response shape.
func NewCategoryDTO(category *models.Category) CategoryDTO {
	return CategoryDTO{
		ID:          category.ID,
		Name:        category.Name,
		Description: category.Description,
	}
}
