package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/psecars/merch-backend/internal/inventory"
	"github.com/psecars/merch-backend/pkg/db/models"
	pkgerrors "github.com/psecars/merch-backend/pkg/errors"
)

const (
	// DefaultTTL is how long a cart survives without mutations.
	DefaultTTL = 7 * 24 * time.Hour

	sweepBatchSize = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the cart lifecycle keyed by anonymous session id.
type Service interface {
	GetOrCreate(ctx context.Context, sessionID string) (*View, error)
	GetCart(ctx context.Context, sessionID string) (*View, error)
	AddItem(ctx context.Context, sessionID string, productID int64, quantity int) (*View, error)
	UpdateItemQuantity(ctx context.Context, sessionID string, productID int64, quantity int) (*View, error)
	RemoveItem(ctx context.Context, sessionID string, productID int64) (*View, error)
	Clear(ctx context.Context, sessionID string) error
	ListUnavailableItems(ctx context.Context, sessionID string) ([]UnavailableItem, error)
	PrepareForCheckout(ctx context.Context, tx *gorm.DB, sessionID string) (*models.Cart, error)
	Delete(ctx context.Context, tx *gorm.DB, cartID int64) error
	UpdateCustomerInfo(ctx context.Context, sessionID string, info CustomerInfo) (*View, error)
	Summary(ctx context.Context, sessionID string) (*Summary, error)
	ExpireCarts(ctx context.Context, now time.Time) (int, error)
	CleanupInactiveCarts(ctx context.Context, now time.Time, inactiveFor time.Duration) (int, error)
}

type service struct {
	repo      CartRepository
	tx        txRunner
	inventory inventory.Service
	ttl       time.Duration
	now       func() time.Time
}

// NewService builds a cart service backed by the provided stack. A non-positive ttl uses DefaultTTL.
func NewService(repo CartRepository, tx txRunner, inv inventory.Service, ttl time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &service{
		repo:      repo,
		tx:        tx,
		inventory: inv,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

func (s *service) GetOrCreate(ctx context.Context, sessionID string) (*View, error) {
	sessionID = newOrExistingSession(sessionID)
	var cart *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		cart, err = s.lockOrCreate(ctx, s.repo.WithTx(tx), sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

func (s *service) GetCart(ctx context.Context, sessionID string) (*View, error) {
	sessionID = sessionKey(sessionID)
	cart, err := s.repo.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, s.cartLoadError(err, sessionID)
	}
	return s.view(ctx, cart)
}

func (s *service) AddItem(ctx context.Context, sessionID string, productID int64, quantity int) (*View, error) {
	if quantity <= 0 {
		return nil, invalidQuantity(quantity)
	}
	sessionID = newOrExistingSession(sessionID)

	var cart *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		inv := s.inventory.WithTx(tx)
		product, err := inv.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if product.StockQuantity < quantity {
			return inventory.InsufficientStock(product, quantity)
		}

		repo := s.repo.WithTx(tx)
		cart, err = s.lockOrCreate(ctx, repo, sessionID)
		if err != nil {
			return err
		}

		if line := findItem(cart.Items, productID); line != nil {
			combined := line.Quantity + quantity
			if product.StockQuantity < combined {
				return inventory.InsufficientStock(product, combined)
			}
			if err := repo.UpdateItemQuantity(ctx, line.ID, combined); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
			}
		} else {
			item := &models.CartItem{
				CartID:    cart.ID,
				ProductID: productID,
				Price:     product.Price,
				Quantity:  quantity,
			}
			if err := repo.CreateItem(ctx, item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
			}
		}
		return s.touch(ctx, repo, cart)
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, sessionID)
}

// UpdateItemQuantity overwrites the quantity of an existing line. Zero or less removes it.
func (s *service) UpdateItemQuantity(ctx context.Context, sessionID string, productID int64, quantity int) (*View, error) {
	sessionID = sessionKey(sessionID)
	if quantity <= 0 {
		return s.RemoveItem(ctx, sessionID, productID)
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.LockBySession(ctx, sessionID)
		if err != nil {
			return s.cartLoadError(err, sessionID)
		}
		line := findItem(cart.Items, productID)
		if line == nil {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "product %d is not in the cart", productID).
				WithDetails(map[string]any{"productId": productID})
		}

		product, err := s.inventory.WithTx(tx).GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if product.StockQuantity < quantity {
			return inventory.InsufficientStock(product, quantity)
		}

		if err := repo.UpdateItemQuantity(ctx, line.ID, quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
		return s.touch(ctx, repo, cart)
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, sessionID)
}

// RemoveItem deletes the line for productID. Missing lines and missing carts are not errors.
func (s *service) RemoveItem(ctx context.Context, sessionID string, productID int64) (*View, error) {
	sessionID = sessionKey(sessionID)
	found := true
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.LockBySession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				found = false
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if _, err := repo.DeleteItem(ctx, cart.ID, productID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
		}
		return s.touch(ctx, repo, cart)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return emptyView(sessionID), nil
	}
	return s.reload(ctx, sessionID)
}

// Clear deletes the cart and its lines. Clearing a missing cart is a no-op.
func (s *service) Clear(ctx context.Context, sessionID string) error {
	sessionID = sessionKey(sessionID)
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.LockBySession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if err := repo.Delete(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart")
		}
		return nil
	})
}

func (s *service) ListUnavailableItems(ctx context.Context, sessionID string) ([]UnavailableItem, error) {
	sessionID = sessionKey(sessionID)
	cart, err := s.repo.FindBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []UnavailableItem{}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return unavailableItems(ctx, s.inventory, cart.Items)
}

// PrepareForCheckout locks the cart inside tx and verifies it can become an order.
// With a nil tx the checks run without a lock.
func (s *service) PrepareForCheckout(ctx context.Context, tx *gorm.DB, sessionID string) (*models.Cart, error) {
	sessionID = sessionKey(sessionID)
	repo := s.repo.WithTx(tx)
	var (
		cart *models.Cart
		err  error
	)
	if tx != nil {
		cart, err = repo.LockBySession(ctx, sessionID)
	} else {
		cart, err = repo.FindBySession(ctx, sessionID)
	}
	if err != nil {
		return nil, s.cartLoadError(err, sessionID)
	}
	if IsEmpty(cart.Items) {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	unavailable, err := unavailableItems(ctx, s.inventory.WithTx(tx), cart.Items)
	if err != nil {
		return nil, err
	}
	if len(unavailable) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeItemsUnavailable, "some cart items are no longer available").
			WithDetails(map[string]any{"unavailableItems": unavailable})
	}
	return cart, nil
}

// Delete removes a cart inside the caller's transaction.
func (s *service) Delete(ctx context.Context, tx *gorm.DB, cartID int64) error {
	if err := s.repo.WithTx(tx).Delete(ctx, cartID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart")
	}
	return nil
}

func (s *service) UpdateCustomerInfo(ctx context.Context, sessionID string, info CustomerInfo) (*View, error) {
	sessionID = newOrExistingSession(sessionID)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := s.lockOrCreate(ctx, repo, sessionID)
		if err != nil {
			return err
		}
		if info.Email != nil {
			cart.CustomerEmail = trimmed(info.Email)
		}
		if info.Name != nil {
			cart.CustomerName = trimmed(info.Name)
		}
		if info.Address != nil {
			cart.CustomerAddress = trimmed(info.Address)
		}
		return s.touch(ctx, repo, cart)
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, sessionID)
}

func (s *service) Summary(ctx context.Context, sessionID string) (*Summary, error) {
	sessionID = sessionKey(sessionID)
	cart, err := s.repo.FindBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newSummary(sessionID, nil), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return newSummary(sessionID, cart.Items), nil
}

// ExpireCarts deletes every cart whose expiry lies before now, one transaction per cart.
// Failures on individual carts are collected and do not stop the sweep.
func (s *service) ExpireCarts(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	return s.sweep(ctx, s.repo.ListExpiredIDs, now, func(cart *models.Cart) bool {
		return cart.IsExpired(now)
	})
}

// CleanupInactiveCarts deletes carts not modified within inactiveFor of now.
func (s *service) CleanupInactiveCarts(ctx context.Context, now time.Time, inactiveFor time.Duration) (int, error) {
	if inactiveFor <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "inactivity window must be positive")
	}
	cutoff := now.UTC().Add(-inactiveFor)
	return s.sweep(ctx, s.repo.ListInactiveIDs, cutoff, func(cart *models.Cart) bool {
		return cart.UpdatedAt.Before(cutoff)
	})
}

type idLister func(ctx context.Context, at time.Time, afterID int64, limit int) ([]int64, error)

func (s *service) sweep(ctx context.Context, list idLister, at time.Time, stillDue func(*models.Cart) bool) (int, error) {
	var (
		deleted int
		errs    error
		afterID int64
	)
	for {
		if err := ctx.Err(); err != nil {
			return deleted, multierr.Append(errs, err)
		}
		ids, err := list(ctx, at, afterID, sweepBatchSize)
		if err != nil {
			return deleted, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list carts"))
		}
		for _, id := range ids {
			afterID = id
			removed, err := s.deleteIfDue(ctx, id, stillDue)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("cart %d: %w", id, err))
				continue
			}
			if removed {
				deleted++
			}
		}
		if len(ids) < sweepBatchSize {
			return deleted, errs
		}
	}
}

// deleteIfDue re-checks the cart under lock so a cart refreshed concurrently survives.
func (s *service) deleteIfDue(ctx context.Context, id int64, stillDue func(*models.Cart) bool) (bool, error) {
	removed := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.LockByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if !stillDue(cart) {
			return nil
		}
		if err := repo.Delete(ctx, cart.ID); err != nil {
			return err
		}
		removed = true
		return nil
	})
	return removed, err
}

func (s *service) lockOrCreate(ctx context.Context, repo CartRepository, sessionID string) (*models.Cart, error) {
	cart, err := repo.LockBySession(ctx, sessionID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	fresh := &models.Cart{
		SessionID: sessionID,
		ExpiresAt: s.expiry(),
	}
	if _, err := repo.CreateIfAbsent(ctx, fresh); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	// a concurrent request may have won the insert; either way the row now exists
	cart, err = repo.LockBySession(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load created cart")
	}
	return cart, nil
}

func (s *service) touch(ctx context.Context, repo CartRepository, cart *models.Cart) error {
	cart.ExpiresAt = s.expiry()
	if err := repo.Update(ctx, cart); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh cart")
	}
	return nil
}

func (s *service) expiry() time.Time {
	return s.now().UTC().Add(s.ttl)
}

func (s *service) reload(ctx context.Context, sessionID string) (*View, error) {
	cart, err := s.repo.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, s.cartLoadError(err, sessionID)
	}
	return s.view(ctx, cart)
}

func (s *service) view(ctx context.Context, cart *models.Cart) (*View, error) {
	products, err := s.inventory.FindProducts(ctx, productIDs(cart.Items))
	if err != nil {
		return nil, err
	}
	return newView(cart, products), nil
}

func (s *service) cartLoadError(err error, sessionID string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeCartNotFound, "cart not found").
			WithDetails(map[string]any{"sessionId": sessionID})
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
}

func unavailableItems(ctx context.Context, inv inventory.Service, items []models.CartItem) ([]UnavailableItem, error) {
	products, err := inv.FindProducts(ctx, productIDs(items))
	if err != nil {
		return nil, err
	}
	out := []UnavailableItem{}
	for _, line := range items {
		product, ok := products[line.ProductID]
		if !ok {
			out = append(out, UnavailableItem{ProductID: line.ProductID, Requested: line.Quantity})
			continue
		}
		if line.Quantity > product.StockQuantity {
			out = append(out, UnavailableItem{
				ProductID:   line.ProductID,
				ProductName: product.Name,
				Requested:   line.Quantity,
				Available:   product.StockQuantity,
			})
		}
	}
	return out, nil
}

// sessionKey is the lookup form of a session id.
func sessionKey(sessionID string) string {
	return strings.TrimSpace(sessionID)
}

// newOrExistingSession is used on paths that may create a cart: a blank id
// gets a fresh one.
func newOrExistingSession(sessionID string) string {
	if id := sessionKey(sessionID); id != "" {
		return id
	}
	return uuid.NewString()
}

func trimmed(v *string) *string {
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func invalidQuantity(qty int) error {
	return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be greater than zero").
		WithDetails(map[string]any{"quantity": qty})
}
