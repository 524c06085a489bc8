package controllers

import (
	"net/http"

	"github.com/psecars/merch-backend/api/responses"
	"github.com/psecars/merch-backend/api/validators"
	cartsvc "github.com/psecars/merch-backend/internal/cart"
	pkgerrors "github.com/psecars/merch-backend/pkg/errors"
	"github.com/psecars/merch-backend/pkg/logger"
)

type addCartItemRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type updateCustomerRequest struct {
	CustomerEmail   *string `json:"customerEmail,omitempty" validate:"omitempty,email"`
	CustomerName    *string `json:"customerName,omitempty" validate:"omitempty,max=255"`
	CustomerAddress *string `json:"customerAddress,omitempty"`
}

// checkoutPreviewResponse is a cart that passed the checkout checks. Ready is
// false only while customer email or name is missing.
type checkoutPreviewResponse struct {
	Cart  *cartsvc.View `json:"cart"`
	Ready bool          `json:"ready"`
}

// CartGet returns the session cart, creating an empty one when absent.
func CartGet(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("cart"))
			return
		}
		sid, err := cartSession(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetOrCreate(r.Context(), sid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartSummary returns the lightweight cart badge payload.
func CartSummary(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return summaryHandler(svc, logg, func(s *cartsvc.Summary) any { return s })
}

// CartCount returns the number of distinct lines in the cart.
func CartCount(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return summaryHandler(svc, logg, func(s *cartsvc.Summary) any { return s.TotalItems })
}

// CartQuantity returns the summed quantity of every line.
func CartQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return summaryHandler(svc, logg, func(s *cartsvc.Summary) any { return s.TotalQuantity })
}

func summaryHandler(svc cartsvc.Service, logg *logger.Logger, pick func(*cartsvc.Summary) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("cart"))
			return
		}
		sid, err := cartSession(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), sid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pick(summary))
	}
}

// CartValidate reports lines whose quantity exceeds current stock.
func CartValidate(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("cart"))
			return
		}
		sid, err := cartSession(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := svc.ListUnavailableItems(r.Context(), sid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(items) > 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeItemsUnavailable, "some items in the cart are no longer available").
				WithDetails(map[string]any{"items": items}))
			return
		}
		responses.WriteSuccess(w, map[string]bool{"valid": true})
	}
}

// CartCheckoutPreview runs the same checks as checkout without placing an order.
// A missing cart, an empty cart and unavailable lines fail with their own codes.
func CartCheckoutPreview(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("cart"))
			return
		}
		sid, err := cartSession(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := svc.PrepareForCheckout(r.Context(), nil, sid); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetCart(r.Context(), sid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, checkoutPreviewResponse{
			Cart:  view,
			Ready: view.CustomerEmail != nil && view.CustomerName != nil,
		})
	}
}

// CartAddItem adds a product line or increases an existing one.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("cart"))
			return
		}
		sid, err := cartSession(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.AddItem(r.Context(), sid, payload.ProductID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartUpdateItem sets a line quantity; zero removes the line.
func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("cart"))
			return
		}
		sid, err := cartSession(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := pathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateCartItemRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.UpdateItemQuantity(r.Context(), sid, productID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartRemoveItem drops a line from the cart.
func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("cart"))
			return
		}
		sid, err := cartSession(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := pathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.RemoveItem(r.Context(), sid, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartClear removes every line from the cart.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("cart"))
			return
		}
		sid, err := cartSession(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Clear(r.Context(), sid); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CartUpdateCustomer stores checkout contact details on the cart.
func CartUpdateCustomer(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("cart"))
			return
		}
		sid, err := cartSession(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateCustomerRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.UpdateCustomerInfo(r.Context(), sid, cartsvc.CustomerInfo{
			Email:   payload.CustomerEmail,
			Name:    payload.CustomerName,
			Address: payload.CustomerAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
