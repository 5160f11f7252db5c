package handlers

import (
	"net/http"
	"time"

	"chatbot-gateway/internal/handlers/middleware"
	"chatbot-gateway/internal/logger"
	"chatbot-gateway/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authHandler *AuthHandler,
	chatHandler *ChatHandler,
	parser middleware.TokenParser,
	environment string,
	log logger.Logger,
) http.Handler {
	required := middleware.RequiredAuth(parser)
	optional := middleware.OptionalAuth(parser)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	startedAt := time.Now()

	mux := http.NewServeMux()

	mux.Handle("POST /auth/register", authHandler.Register())
	mux.Handle("POST /auth/login", authHandler.Login())
	mux.Handle("POST /auth/refresh", authHandler.Refresh())
	mux.Handle("POST /auth/logout", optional(authHandler.Logout()))
	mux.Handle("GET /auth/profile", required(authHandler.Profile()))
	mux.Handle("POST /auth/revoke-all", required(adminOnly(authHandler.RevokeAll())))

	mux.Handle("POST /chat/text", required(chatHandler.Text()))
	mux.Handle("POST /chat/multimodal", required(chatHandler.Multimodal()))

	mux.Handle("GET /health", required(handleHealth(environment, startedAt)))

	return chain(mux,
		middleware.LoggerMiddleware(log),
	)
}
