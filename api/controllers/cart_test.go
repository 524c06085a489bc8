package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/psecars/merch-backend/api/middleware"
	cartsvc "github.com/psecars/merch-backend/internal/cart"
	"github.com/psecars/merch-backend/pkg/db/models"
	pkgerrors "github.com/psecars/merch-backend/pkg/errors"
	"github.com/psecars/merch-backend/pkg/logger"
	"github.com/psecars/merch-backend/pkg/types"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

type stubCartService struct {
	cartsvc.Service

	view        *cartsvc.View
	summary     *cartsvc.Summary
	unavailable []cartsvc.UnavailableItem
	err         error
	prepareErr  error

	gotSession  string
	gotProduct  int64
	gotQuantity int
	gotInfo     cartsvc.CustomerInfo
	cleared     bool
}

func (s *stubCartService) GetOrCreate(_ context.Context, sid string) (*cartsvc.View, error) {
	s.gotSession = sid
	return s.view, s.err
}

func (s *stubCartService) GetCart(_ context.Context, sid string) (*cartsvc.View, error) {
	s.gotSession = sid
	return s.view, s.err
}

func (s *stubCartService) AddItem(_ context.Context, sid string, productID int64, qty int) (*cartsvc.View, error) {
	s.gotSession, s.gotProduct, s.gotQuantity = sid, productID, qty
	return s.view, s.err
}

func (s *stubCartService) UpdateItemQuantity(_ context.Context, sid string, productID int64, qty int) (*cartsvc.View, error) {
	s.gotSession, s.gotProduct, s.gotQuantity = sid, productID, qty
	return s.view, s.err
}

func (s *stubCartService) RemoveItem(_ context.Context, sid string, productID int64) (*cartsvc.View, error) {
	s.gotSession, s.gotProduct = sid, productID
	return s.view, s.err
}

func (s *stubCartService) Clear(_ context.Context, sid string) error {
	s.gotSession = sid
	s.cleared = true
	return s.err
}

func (s *stubCartService) ListUnavailableItems(context.Context, string) ([]cartsvc.UnavailableItem, error) {
	return s.unavailable, s.err
}

func (s *stubCartService) PrepareForCheckout(_ context.Context, tx *gorm.DB, sid string) (*models.Cart, error) {
	s.gotSession = sid
	if s.prepareErr != nil {
		return nil, s.prepareErr
	}
	return &models.Cart{SessionID: sid}, nil
}

func (s *stubCartService) UpdateCustomerInfo(_ context.Context, sid string, info cartsvc.CustomerInfo) (*cartsvc.View, error) {
	s.gotSession, s.gotInfo = sid, info
	return s.view, s.err
}

func (s *stubCartService) Summary(context.Context, string) (*cartsvc.Summary, error) {
	return s.summary, s.err
}

func cartRequest(method, target, body string, params map[string]string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := middleware.WithCartSession(req.Context(), "sess-1")
	if len(params) > 0 {
		routeCtx := chi.NewRouteContext()
		for k, v := range params {
			routeCtx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
	}
	return req.WithContext(ctx)
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var envelope types.ErrorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return envelope.Error
}

func TestCartGetUsesSession(t *testing.T) {
	stub := &stubCartService{view: &cartsvc.View{SessionID: "sess-1", Items: []cartsvc.ItemView{}, TotalAmount: "0.00", IsEmpty: true}}
	resp := httptest.NewRecorder()
	CartGet(stub, testLogger()).ServeHTTP(resp, cartRequest(http.MethodGet, "/api/v1/cart", "", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if stub.gotSession != "sess-1" {
		t.Fatalf("expected session forwarded, got %q", stub.gotSession)
	}
	var view cartsvc.View
	decodeData(t, resp, &view)
	if !view.IsEmpty || view.TotalAmount != "0.00" {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestCartGetMissingSession(t *testing.T) {
	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	CartGet(&stubCartService{}, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCartAddItem(t *testing.T) {
	stub := &stubCartService{view: &cartsvc.View{SessionID: "sess-1", TotalAmount: "20.00", TotalItems: 2}}
	resp := httptest.NewRecorder()
	CartAddItem(stub, testLogger()).ServeHTTP(resp, cartRequest(http.MethodPost, "/api/v1/cart/items", `{"productId":7,"quantity":2}`, nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if stub.gotProduct != 7 || stub.gotQuantity != 2 {
		t.Fatalf("unexpected forwarded args product=%d qty=%d", stub.gotProduct, stub.gotQuantity)
	}
}

func TestCartAddItemRejectsMissingProduct(t *testing.T) {
	resp := httptest.NewRecorder()
	CartAddItem(&stubCartService{}, testLogger()).ServeHTTP(resp, cartRequest(http.MethodPost, "/api/v1/cart/items", `{"quantity":2}`, nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if apiErr := decodeError(t, resp); apiErr.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", apiErr.Code)
	}
}

func TestCartAddItemPropagatesStockError(t *testing.T) {
	stub := &stubCartService{err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock")}
	resp := httptest.NewRecorder()
	CartAddItem(stub, testLogger()).ServeHTTP(resp, cartRequest(http.MethodPost, "/api/v1/cart/items", `{"productId":7,"quantity":9}`, nil))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestCartUpdateItemInvalidProductID(t *testing.T) {
	resp := httptest.NewRecorder()
	req := cartRequest(http.MethodPut, "/api/v1/cart/items/abc", `{"quantity":1}`, map[string]string{"productId": "abc"})
	CartUpdateItem(&stubCartService{}, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCartUpdateItemForwardsZero(t *testing.T) {
	stub := &stubCartService{view: &cartsvc.View{SessionID: "sess-1"}}
	resp := httptest.NewRecorder()
	req := cartRequest(http.MethodPut, "/api/v1/cart/items/3", `{"quantity":0}`, map[string]string{"productId": "3"})
	CartUpdateItem(stub, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if stub.gotProduct != 3 || stub.gotQuantity != 0 {
		t.Fatalf("unexpected forwarded args product=%d qty=%d", stub.gotProduct, stub.gotQuantity)
	}
}

func TestCartRemoveAndClear(t *testing.T) {
	stub := &stubCartService{view: &cartsvc.View{SessionID: "sess-1"}}
	resp := httptest.NewRecorder()
	CartRemoveItem(stub, testLogger()).ServeHTTP(resp, cartRequest(http.MethodDelete, "/api/v1/cart/items/5", "", map[string]string{"productId": "5"}))
	if resp.Code != http.StatusOK || stub.gotProduct != 5 {
		t.Fatalf("remove: status %d product %d", resp.Code, stub.gotProduct)
	}

	resp = httptest.NewRecorder()
	CartClear(stub, testLogger()).ServeHTTP(resp, cartRequest(http.MethodDelete, "/api/v1/cart", "", nil))
	if resp.Code != http.StatusNoContent || !stub.cleared {
		t.Fatalf("clear: status %d cleared %v", resp.Code, stub.cleared)
	}
}

func TestCartCountAndQuantity(t *testing.T) {
	stub := &stubCartService{summary: &cartsvc.Summary{SessionID: "sess-1", TotalItems: 2, TotalQuantity: 5}}

	resp := httptest.NewRecorder()
	CartCount(stub, testLogger()).ServeHTTP(resp, cartRequest(http.MethodGet, "/api/v1/cart/count", "", nil))
	var count int
	decodeData(t, resp, &count)
	if count != 2 {
		t.Fatalf("expected count 2 got %d", count)
	}

	resp = httptest.NewRecorder()
	CartQuantity(stub, testLogger()).ServeHTTP(resp, cartRequest(http.MethodGet, "/api/v1/cart/quantity", "", nil))
	var quantity int
	decodeData(t, resp, &quantity)
	if quantity != 5 {
		t.Fatalf("expected quantity 5 got %d", quantity)
	}
}

func TestCartValidate(t *testing.T) {
	stub := &stubCartService{}
	resp := httptest.NewRecorder()
	CartValidate(stub, testLogger()).ServeHTTP(resp, cartRequest(http.MethodGet, "/api/v1/cart/validate", "", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for a valid cart, got %d", resp.Code)
	}

	stub.unavailable = []cartsvc.UnavailableItem{{ProductID: 1, ProductName: "Mug", Requested: 3, Available: 1}}
	resp = httptest.NewRecorder()
	CartValidate(stub, testLogger()).ServeHTTP(resp, cartRequest(http.MethodGet, "/api/v1/cart/validate", "", nil))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	apiErr := decodeError(t, resp)
	if apiErr.Code != string(pkgerrors.CodeItemsUnavailable) || apiErr.Details == nil {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestCartCheckoutPreview(t *testing.T) {
	email, name := "a@example.com", "Ada"
	stub := &stubCartService{view: &cartsvc.View{
		SessionID:     "sess-1",
		CustomerEmail: &email,
		CustomerName:  &name,
		Items:         []cartsvc.ItemView{{ProductID: 1, Price: "10.00", Quantity: 1, Subtotal: "10.00"}},
		TotalAmount:   "10.00",
		TotalItems:    1,
	}}
	resp := httptest.NewRecorder()
	CartCheckoutPreview(stub, testLogger()).ServeHTTP(resp, cartRequest(http.MethodGet, "/api/v1/cart/checkout", "", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var preview checkoutPreviewResponse
	decodeData(t, resp, &preview)
	if !preview.Ready || preview.Cart == nil || preview.Cart.TotalAmount != "10.00" {
		t.Fatalf("unexpected preview %+v", preview)
	}
}

func TestCartCheckoutPreviewFailsLikeCheckout(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"missing cart", pkgerrors.New(pkgerrors.CodeCartNotFound, "cart not found"), http.StatusNotFound},
		{"empty cart", pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty"), http.StatusUnprocessableEntity},
		{"unavailable lines", pkgerrors.New(pkgerrors.CodeItemsUnavailable, "some cart items are no longer available").
			WithDetails(map[string]any{"unavailableItems": []cartsvc.UnavailableItem{{ProductID: 7}}}), http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubCartService{view: &cartsvc.View{SessionID: "sess-1"}, prepareErr: tc.err}
			resp := httptest.NewRecorder()
			CartCheckoutPreview(stub, testLogger()).ServeHTTP(resp, cartRequest(http.MethodGet, "/api/v1/cart/checkout", "", nil))
			if resp.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, resp.Code)
			}
			want := tc.err.(*pkgerrors.Error).Code()
			if apiErr := decodeError(t, resp); apiErr.Code != string(want) {
				t.Fatalf("unexpected code %s", apiErr.Code)
			}
		})
	}
}

func TestCartUpdateCustomer(t *testing.T) {
	stub := &stubCartService{view: &cartsvc.View{SessionID: "sess-1"}}
	resp := httptest.NewRecorder()
	body := `{"customerEmail":"a@example.com","customerName":"Ada"}`
	CartUpdateCustomer(stub, testLogger()).ServeHTTP(resp, cartRequest(http.MethodPut, "/api/v1/cart/customer", body, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if stub.gotInfo.Email == nil || *stub.gotInfo.Email != "a@example.com" || stub.gotInfo.Address != nil {
		t.Fatalf("unexpected info %+v", stub.gotInfo)
	}

	resp = httptest.NewRecorder()
	CartUpdateCustomer(stub, testLogger()).ServeHTTP(resp, cartRequest(http.MethodPut, "/api/v1/cart/customer", `{"customerEmail":"nope"}`, nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad email got %d", resp.Code)
	}
}
