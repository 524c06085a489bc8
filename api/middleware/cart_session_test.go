package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/psecars/merch-backend/pkg/session"
)

type fakeAttributes struct {
	values map[string]string
	getErr error
}

func newFakeAttributes() *fakeAttributes {
	return &fakeAttributes{values: map[string]string{}}
}

func (f *fakeAttributes) GetAttribute(_ context.Context, sessionID, name string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.values[sessionID+"/"+name]
	if !ok {
		return "", session.ErrNotFound
	}
	return v, nil
}

func (f *fakeAttributes) SetAttribute(_ context.Context, sessionID, name, value string) error {
	f.values[sessionID+"/"+name] = value
	return nil
}

func captureSession(t *testing.T, mw func(http.Handler) http.Handler, req *http.Request) (string, *httptest.ResponseRecorder) {
	t.Helper()
	var got string
	resp := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CartSessionFromContext(r.Context())
	})).ServeHTTP(resp, req)
	return got, resp
}

func responseCookie(resp *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range resp.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestCartSessionPrefersCookie(t *testing.T) {
	store := newFakeAttributes()
	store.values["srv/cartSessionId"] = "from-server"
	mw := CartSession(CartSessionOptions{}, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.AddCookie(&http.Cookie{Name: "CART_SESSION_ID", Value: "from-cookie"})
	req.AddCookie(&http.Cookie{Name: "MERCH_SESSION", Value: "srv"})

	got, resp := captureSession(t, mw, req)
	if got != "from-cookie" {
		t.Fatalf("expected cookie key, got %q", got)
	}
	cookie := responseCookie(resp, "CART_SESSION_ID")
	if cookie == nil || cookie.Value != "from-cookie" || cookie.MaxAge != 7*24*60*60 || !cookie.HttpOnly || cookie.Path != "/" {
		t.Fatalf("unexpected cart cookie %+v", cookie)
	}
	if store.values["srv/cartSessionId"] != "from-cookie" {
		t.Fatalf("expected server session updated, got %q", store.values["srv/cartSessionId"])
	}
}

func TestCartSessionFallsBackToServerSession(t *testing.T) {
	store := newFakeAttributes()
	store.values["srv/cartSessionId"] = "from-server"
	mw := CartSession(CartSessionOptions{}, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.AddCookie(&http.Cookie{Name: "MERCH_SESSION", Value: "srv"})

	got, resp := captureSession(t, mw, req)
	if got != "from-server" {
		t.Fatalf("expected server session key, got %q", got)
	}
	if cookie := responseCookie(resp, "CART_SESSION_ID"); cookie == nil || cookie.Value != "from-server" {
		t.Fatalf("expected cart cookie written back, got %+v", cookie)
	}
	if responseCookie(resp, "MERCH_SESSION") != nil {
		t.Fatalf("existing server session must not be reissued")
	}
}

func TestCartSessionGeneratesFreshKey(t *testing.T) {
	store := newFakeAttributes()
	mw := CartSession(CartSessionOptions{Secure: true}, store, nil)

	got, resp := captureSession(t, mw, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if got == "" {
		t.Fatal("expected generated key")
	}
	server := responseCookie(resp, "MERCH_SESSION")
	if server == nil || server.Value == "" || !server.Secure {
		t.Fatalf("expected new secure server session cookie, got %+v", server)
	}
	if store.values[server.Value+"/cartSessionId"] != got {
		t.Fatalf("expected generated key stored under new server session")
	}
}

func TestCartSessionSurvivesStoreFailure(t *testing.T) {
	store := newFakeAttributes()
	store.getErr = errors.New("redis down")
	mw := CartSession(CartSessionOptions{}, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.AddCookie(&http.Cookie{Name: "MERCH_SESSION", Value: "srv"})
	got, _ := captureSession(t, mw, req)
	if got == "" {
		t.Fatal("expected a generated key when the store fails")
	}
}

func TestCartSessionWithoutStore(t *testing.T) {
	mw := CartSession(CartSessionOptions{}, nil, nil)
	got, resp := captureSession(t, mw, httptest.NewRequest(http.MethodGet, "/", nil))
	if got == "" {
		t.Fatal("expected generated key")
	}
	if responseCookie(resp, "MERCH_SESSION") != nil {
		t.Fatal("no server session cookie without a store")
	}
}
