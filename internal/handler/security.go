package handler

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/velmart/storefront/internal/domain/auth"
)

// Authenticate validates the Bearer token issued by the external identity
// provider and attaches a read-only auth.Session to the request context.
// The core trusts the provider's claims as given.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			session := sessionFromClaims(claims)
			if session.UserID == "" {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
		})
	}
}

func sessionFromClaims(claims jwt.MapClaims) auth.Session {
	s := auth.Session{}
	if sub, ok := claims["sub"].(string); ok {
		s.UserID = sub
	}
	if email, ok := claims["email"].(string); ok {
		s.Email = email
	}
	if roles, ok := claims["roles"].([]any); ok {
		for _, r := range roles {
			if role, ok := r.(string); ok {
				s.Roles = append(s.Roles, role)
			}
		}
	}
	return s
}

// RequireAdmin rejects sessions without an admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing session")
			return
		}
		if !session.IsAdmin() {
			writeError(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}
