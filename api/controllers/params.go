package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/psecars/merch-backend/api/middleware"
	pkgerrors "github.com/psecars/merch-backend/pkg/errors"
)

func pathID(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+key).WithDetails(map[string]any{"field": key})
	}
	return id, nil
}

func cartSession(r *http.Request) (string, error) {
	sid := middleware.CartSessionFromContext(r.Context())
	if sid == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "cart session missing")
	}
	return sid, nil
}

func unavailable(name string) error {
	return pkgerrors.New(pkgerrors.CodeInternal, name+" service unavailable")
}
