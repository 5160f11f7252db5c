package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"chatbot-gateway/internal/handlers/render"
	"chatbot-gateway/internal/handlers/userctx"
)

func handleHealth(environment string, startedAt time.Time) http.Handler {
	type userInfo struct {
		ID    uuid.UUID `json:"id"`
		Email string    `json:"email"`
		Role  string    `json:"role"`
	}
	type response struct {
		Status      string    `json:"status"`
		Uptime      string    `json:"uptime"`
		Timestamp   time.Time `json:"timestamp"`
		Environment string    `json:"environment"`
		User        userInfo  `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := userctx.FromContext(r.Context())

		render.JSON(w, response{
			Status:      "ok",
			Uptime:      time.Since(startedAt).Round(time.Second).String(),
			Timestamp:   time.Now(),
			Environment: environment,
			User: userInfo{
				ID:    identity.UserID,
				Email: identity.Email,
				Role:  identity.Role,
			},
		})
	})
}
