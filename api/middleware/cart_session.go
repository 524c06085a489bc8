package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/psecars/merch-backend/pkg/logger"
	"github.com/psecars/merch-backend/pkg/session"
)

const (
	defaultCartCookie   = "CART_SESSION_ID"
	defaultServerCookie = "MERCH_SESSION"
	defaultAttribute    = "cartSessionId"
	defaultCookieMaxAge = 7 * 24 * time.Hour
	maxSessionKeyLen    = 128
)

type sessionAttributes interface {
	GetAttribute(ctx context.Context, sessionID, name string) (string, error)
	SetAttribute(ctx context.Context, sessionID, name, value string) error
}

// CartSessionOptions name the cookies and session attribute used to carry the cart key.
type CartSessionOptions struct {
	CartCookie   string
	ServerCookie string
	Attribute    string
	MaxAge       time.Duration
	Secure       bool
}

func (o CartSessionOptions) withDefaults() CartSessionOptions {
	if o.CartCookie == "" {
		o.CartCookie = defaultCartCookie
	}
	if o.ServerCookie == "" {
		o.ServerCookie = defaultServerCookie
	}
	if o.Attribute == "" {
		o.Attribute = defaultAttribute
	}
	if o.MaxAge <= 0 {
		o.MaxAge = defaultCookieMaxAge
	}
	return o
}

// CartSession resolves the anonymous cart key: the cart cookie first, then the
// server-side session attribute, then a fresh UUID. The key is written back to
// both stores and placed in the request context. A nil store disables the
// server-side lookup.
func CartSession(opts CartSessionOptions, store sessionAttributes, logg *logger.Logger) func(http.Handler) http.Handler {
	opts = opts.withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			serverID := cookieValue(r, opts.ServerCookie)
			cartKey := cookieValue(r, opts.CartCookie)
			if cartKey == "" && serverID != "" && store != nil {
				value, err := store.GetAttribute(ctx, serverID, opts.Attribute)
				switch {
				case err == nil:
					cartKey = value
				case !errors.Is(err, session.ErrNotFound):
					warn(ctx, logg, "cart_session.lookup_failed", err)
				}
			}
			if cartKey == "" {
				cartKey = uuid.NewString()
			}

			http.SetCookie(w, sessionCookie(opts, opts.CartCookie, cartKey))
			if store != nil {
				if serverID == "" {
					serverID = session.NewID()
					http.SetCookie(w, sessionCookie(opts, opts.ServerCookie, serverID))
				}
				if err := store.SetAttribute(ctx, serverID, opts.Attribute, cartKey); err != nil {
					warn(ctx, logg, "cart_session.store_failed", err)
				}
			}

			ctx = WithCartSession(ctx, cartKey)
			if logg != nil {
				ctx = logg.WithSessionID(ctx, cartKey)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	value := strings.TrimSpace(cookie.Value)
	if len(value) > maxSessionKeyLen {
		return ""
	}
	return value
}

func sessionCookie(opts CartSessionOptions, name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(opts.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func warn(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil {
		return
	}
	logg.Warn(logg.WithField(ctx, "error", err.Error()), msg)
}
