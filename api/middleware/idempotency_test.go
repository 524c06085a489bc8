package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/psecars/merch-backend/pkg/errors"
)

type fakeIdempotencyStore struct {
	data   map[string]string
	ttls   map[string]time.Duration
	setErr error
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeIdempotencyStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeIdempotencyStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (f *fakeIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func checkoutRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/from-cart", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	called := false
	handler := Idempotency(newFakeIdempotencyStore(), nil, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("", `{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if called {
		t.Fatal("handler should not run without an idempotency key")
	}
}

func TestIdempotencyNilStorePassesThrough(t *testing.T) {
	called := false
	handler := Idempotency(nil, nil, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("", `{}`))
	if !called {
		t.Fatal("expected handler to run when idempotency is disabled")
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeIdempotencyStore()
	calls := 0
	handler := Idempotency(store, nil, CheckoutIdempotencyTTL)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":41}}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, checkoutRequest("abc", `{}`))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, checkoutRequest("abc", `{}`))
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", second.Code)
	}
	if second.Body.String() != `{"data":{"id":41}}` {
		t.Fatalf("unexpected replay body %s", second.Body.String())
	}
	if second.Header().Get("Content-Type") != "application/json" || second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("unexpected replay headers %v", second.Header())
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, expected 1", calls)
	}
	for key, ttl := range store.ttls {
		if ttl != CheckoutIdempotencyTTL {
			t.Fatalf("key %s stored with ttl %v", key, ttl)
		}
	}
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	store := newFakeIdempotencyStore()
	handler := Idempotency(store, nil, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("xyz", `{"items":[1]}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("xyz", `{"items":[2]}`))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected %s got %s", pkgerrors.CodeIdempotency, code)
	}
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeIdempotencyStore()
	var inner http.Handler
	outer := Idempotency(store, nil, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// a duplicate arrives while the first checkout is still running
		dup := httptest.NewRecorder()
		inner.ServeHTTP(dup, checkoutRequest("dup", `{}`))
		if dup.Code != http.StatusConflict {
			t.Errorf("expected in-flight duplicate to get 409, got %d", dup.Code)
		}
		if code := errorCode(t, dup); code != string(pkgerrors.CodeConflict) {
			t.Errorf("expected %s got %s", pkgerrors.CodeConflict, code)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	inner = outer

	rec := httptest.NewRecorder()
	outer.ServeHTTP(rec, checkoutRequest("dup", `{}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeIdempotencyStore()
	calls := 0
	handler := Idempotency(store, nil, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("retry-me", `{}`))
	}
	if calls != 2 {
		t.Fatalf("expected handler to run on retry, ran %d", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected no stored records, got %d", len(store.data))
	}
}

func TestIdempotencyStoreFailureKeepsResponse(t *testing.T) {
	store := newFakeIdempotencyStore()
	store.setErr = errors.New("redis down")
	handler := Idempotency(store, nil, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("k", `{}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected handler response to reach the client, got %d", rec.Code)
	}
}

func TestIdempotencyScopeIncludesCartSession(t *testing.T) {
	store := newFakeIdempotencyStore()
	calls := 0
	handler := Idempotency(store, nil, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for _, session := range []string{"shopper-a", "shopper-b"} {
		req := checkoutRequest("same-key", `{}`)
		req = req.WithContext(WithCartSession(req.Context(), session))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected separate scopes per session, handler ran %d times", calls)
	}
}
