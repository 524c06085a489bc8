package controllers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/psecars/merch-backend/api/responses"
	"github.com/psecars/merch-backend/api/validators"
	ordersvc "github.com/psecars/merch-backend/internal/orders"
	"github.com/psecars/merch-backend/pkg/enums"
	pkgerrors "github.com/psecars/merch-backend/pkg/errors"
	"github.com/psecars/merch-backend/pkg/logger"
	"github.com/psecars/merch-backend/pkg/pagination"
)

type updateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// OrdersList returns a filtered page of orders.
func OrdersList(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("orders"))
			return
		}
		query, err := parseOrderListQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if email := validators.ParseQueryString(r, "customerEmail"); email != nil {
			query.CustomerEmail = *email
		}
		list, err := svc.ListOrders(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// OrdersByCustomer lists the orders placed with a customer email.
func OrdersByCustomer(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("orders"))
			return
		}
		email, err := url.PathUnescape(chi.URLParam(r, "customerEmail"))
		if err != nil || strings.TrimSpace(email) == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid customer email"))
			return
		}
		query, err := parseOrderListQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query.CustomerEmail = strings.TrimSpace(email)
		list, err := svc.ListOrders(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func parseOrderListQuery(r *http.Request) (ordersvc.ListQuery, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return ordersvc.ListQuery{}, err
	}
	query := ordersvc.ListQuery{Limit: limit, Cursor: r.URL.Query().Get("cursor")}
	if raw := validators.ParseQueryString(r, "status"); raw != nil {
		status, err := enums.ParseOrderStatus(*raw)
		if err != nil {
			return ordersvc.ListQuery{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status").
				WithDetails(map[string]any{"field": "status"})
		}
		query.Status = &status
	}
	return query, nil
}

// OrdersGet returns one order with its lines.
func OrdersGet(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("orders"))
			return
		}
		orderID, err := pathID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ordersvc.NewOrderView(order))
	}
}

// OrdersCreate places an order from an explicit line list.
func OrdersCreate(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("orders"))
			return
		}
		var payload ordersvc.CreateOrderInput
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.CreateOrder(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		logOrder(r, logg, order.ID, "order.created")
		responses.WriteSuccessStatus(w, http.StatusCreated, ordersvc.NewOrderView(order))
	}
}

// OrdersCheckout converts the session cart into an order.
func OrdersCheckout(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("orders"))
			return
		}
		sid, err := cartSession(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.CheckoutFromCart(r.Context(), sid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		logOrder(r, logg, order.ID, "order.checked_out")
		responses.WriteSuccessStatus(w, http.StatusCreated, ordersvc.NewOrderView(order))
	}
}

// OrdersUpdateStatus moves an order to a new status.
func OrdersUpdateStatus(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("orders"))
			return
		}
		orderID, err := pathID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateOrderStatusRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status").
				WithDetails(map[string]any{"field": "status"}))
			return
		}
		order, err := svc.UpdateStatus(r.Context(), orderID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ordersvc.NewOrderView(order))
	}
}

// OrdersCancel cancels an order and restores its stock.
func OrdersCancel(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("orders"))
			return
		}
		orderID, err := pathID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.CancelOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ordersvc.NewOrderView(order))
	}
}

func logOrder(r *http.Request, logg *logger.Logger, orderID int64, msg string) {
	if logg == nil {
		return
	}
	logg.Info(logg.WithOrderID(r.Context(), orderID), msg)
}
