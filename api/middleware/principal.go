package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quickcart/quickcart-backend/api/responses"
	pkgAuth "github.com/quickcart/quickcart-backend/pkg/auth"
	"github.com/quickcart/quickcart-backend/pkg/config"
	pkgerrors "github.com/quickcart/quickcart-backend/pkg/errors"
	"github.com/quickcart/quickcart-backend/pkg/logger"
	"github.com/quickcart/quickcart-backend/pkg/types"
)

const (
	SessionHeader = "X-Session-Id"
	SessionCookie = "quickcart_session"

	maxSessionIDLength = 128
)

// Principal resolves the caller. A bearer token wins and must be valid;
// without one the session header or cookie identifies an anonymous shopper.
// Requests with neither pass through without a principal.
func Principal(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if raw := strings.TrimSpace(r.Header.Get("Authorization")); raw != "" {
				token := raw
				if strings.HasPrefix(strings.ToLower(token), "bearer ") {
					token = strings.TrimSpace(token[7:])
				}
				if token == "" {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
					return
				}
				claims, err := pkgAuth.ParseAccessToken(cfg, token)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
					return
				}

				ctx = WithPrincipal(ctx, types.UserPrincipal(claims.UserID))
				ctx = WithRole(ctx, claims.Role)
				if logg != nil {
					ctx = logg.WithActorRole(logg.WithUserID(ctx, claims.UserID.String()), string(claims.Role))
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if sessionID := sessionFromRequest(r); sessionID != "" {
				ctx = WithPrincipal(ctx, types.SessionPrincipal(sessionID))
				if logg != nil {
					ctx = logg.WithSessionID(ctx, sessionID)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EnsureSession gives anonymous callers a fresh session id, returned both as
// a cookie and in the X-Session-Id response header.
func EnsureSession(maxAge time.Duration, secure bool, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if PrincipalFromContext(ctx).Valid() {
				next.ServeHTTP(w, r)
				return
			}

			sessionID := uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    sessionID,
				Path:     "/",
				MaxAge:   int(maxAge.Seconds()),
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})
			w.Header().Set(SessionHeader, sessionID)

			ctx = WithPrincipal(ctx, types.SessionPrincipal(sessionID))
			if logg != nil {
				ctx = logg.WithSessionID(ctx, sessionID)
				logg.Debug(ctx, "session.minted")
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects requests without an authenticated user.
func RequireUser(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !PrincipalFromContext(r.Context()).IsUser() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func sessionFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); validSessionID(id) {
		return id
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if id := strings.TrimSpace(cookie.Value); validSessionID(id) {
			return id
		}
	}
	return ""
}

func validSessionID(id string) bool {
	if id == "" || len(id) > maxSessionIDLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
