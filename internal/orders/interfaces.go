package orders

import (
	"context"

	"gorm.io/gorm"

	"github.com/psecars/merch-backend/pkg/db/models"
	"github.com/psecars/merch-backend/pkg/enums"
	"github.com/psecars/merch-backend/pkg/outbox"
	"github.com/psecars/merch-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id int64) (*models.Order, error)
	LockByID(ctx context.Context, id int64) (*models.Order, error)
	UpdateStatus(ctx context.Context, id int64, status enums.OrderStatus) error
	List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Order, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CartCheckout is the slice of the cart engine that checkout consumes.
type CartCheckout interface {
	PrepareForCheckout(ctx context.Context, tx *gorm.DB, sessionID string) (*models.Cart, error)
	Delete(ctx context.Context, tx *gorm.DB, cartID int64) error
}
