package cart

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/psecars/merch-backend/pkg/db/models"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindBySession(ctx context.Context, sessionID string) (*models.Cart, error)
	LockBySession(ctx context.Context, sessionID string) (*models.Cart, error)
	LockByID(ctx context.Context, id int64) (*models.Cart, error)
	CreateIfAbsent(ctx context.Context, cart *models.Cart) (bool, error)
	Update(ctx context.Context, cart *models.Cart) error
	CreateItem(ctx context.Context, item *models.CartItem) error
	UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) error
	DeleteItem(ctx context.Context, cartID, productID int64) (bool, error)
	Delete(ctx context.Context, cartID int64) error
	ListExpiredIDs(ctx context.Context, now time.Time, afterID int64, limit int) ([]int64, error)
	ListInactiveIDs(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]int64, error)
}
