package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/psecars/merch-backend/pkg/logger"
)

// RequestIDHeader is read from callers and echoed on every response.
const RequestIDHeader = "X-Request-Id"

const ctxRequestID contextKey = "request_id"

// RequestID adopts a well-formed inbound X-Request-Id or mints a UUID, echoes
// it on the response and binds it to the request logger.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if !usableRequestID(id) {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			ctx := context.WithValue(r.Context(), ctxRequestID, id)
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestID).(string)
	return id
}

// usableRequestID accepts 1-128 visible ASCII characters so caller ids can be
// logged and echoed without escaping.
func usableRequestID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}
