package middleware

import (
	"net/http"
	"slices"
	"strings"

	"chatbot-gateway/internal/handlers/render"
	"chatbot-gateway/internal/handlers/userctx"
	"chatbot-gateway/internal/service/auth/tokenmanager"
)

// TokenParser validates access tokens
type TokenParser interface {
	ParseAccess(access string) (tokenmanager.Claims, error)
}

// All verification failures collapse to one message, the caller must not
// learn whether the token was absent, garbled, expired or wrongly signed
const unauthorizedMessage = "Invalid or expired access token"

// RequiredAuth rejects requests without a valid bearer access token
// and attaches the caller identity to the request context
func RequiredAuth(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := authenticate(parser, r)
			if !ok {
				render.ServiceError(w, unauthorizedMessage, http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the caller identity when a valid token is present
// and lets the request through unauthenticated otherwise
func OptionalAuth(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity, ok := authenticate(parser, r); ok {
				r = r.WithContext(userctx.New(r.Context(), identity))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole allows only callers whose role is in the permitted set
// No identity at all means 401, a wrong role means 403
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := userctx.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Access token is required", http.StatusUnauthorized)
				return
			}

			if !slices.Contains(roles, identity.Role) {
				render.ServiceError(w, "Insufficient permissions for this operation", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(parser TokenParser, r *http.Request) (userctx.Identity, bool) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return userctx.Identity{}, false
	}

	claims, err := parser.ParseAccess(token)
	if err != nil {
		return userctx.Identity{}, false
	}

	return userctx.Identity{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
	}, true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
