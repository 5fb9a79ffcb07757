package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/devaloi/courier/internal/domain"
	"github.com/devaloi/courier/internal/identity"
	"github.com/devaloi/courier/internal/transport"
)

// SessionCookie is the cookie that carries the session token.
const SessionCookie = "session"

// Verifier turns a session token into an identity.
type Verifier interface {
	Verify(token string) (identity.Identity, error)
}

// Authenticate attaches the caller's identity to the request context when a valid
// session token is presented. It never rejects; see RequireIdentity.
func Authenticate(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := extractToken(r); token != "" {
				if id, err := v.Verify(token); err == nil {
					r = r.WithContext(identity.WithIdentity(r.Context(), id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireIdentity rejects requests without a current identity with 401.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity.FromContext(r.Context())
		if !ok || !id.Valid(time.Now()) {
			transport.WriteError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractToken looks at the session cookie, then the bearer header, then ?token=.
func extractToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}
