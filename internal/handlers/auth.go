package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatbot-gateway/internal/apperrors"
	"chatbot-gateway/internal/handlers/render"
	"chatbot-gateway/internal/handlers/userctx"
	"chatbot-gateway/internal/logger"
	"chatbot-gateway/internal/models"
	"chatbot-gateway/internal/service/auth"
)

type authService interface {
	// Register user with email and password
	// Has to return apperrors.ErrUserAlreadyExists if the email is taken
	Register(ctx context.Context, email string, password string, device models.DeviceInfo) (auth.AuthResult, error)

	// Login with email and password
	// Has to return apperrors.ErrUserNotFound on unknown email or wrong password
	Login(ctx context.Context, email string, password string, device models.DeviceInfo) (auth.AuthResult, error)

	// Issue new access token against a live refresh token
	Refresh(ctx context.Context, refresh string) (models.IssuedToken, error)

	// Revoke the refresh token, safe to repeat
	Logout(ctx context.Context, refresh string) error

	// Return the user for an authenticated identity
	GetProfile(ctx context.Context, userID uuid.UUID) (models.User, error)

	// Revoke every refresh token the user holds
	RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error)
}

type AuthHandler struct {
	auth   authService
	logger logger.Logger
}

func NewAuth(auth authService, l logger.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: l}
}

type userResponse struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}

type tokensResponse struct {
	AccessToken           string    `json:"accessToken"`
	RefreshToken          string    `json:"refreshToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

func toUserResponse(u models.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Role: u.Role}
}

func toTokensResponse(pair models.TokenPair) tokensResponse {
	return tokensResponse{
		AccessToken:           pair.Access.Value,
		RefreshToken:          pair.Refresh.Value,
		AccessTokenExpiresAt:  pair.Access.ExpiresAt,
		RefreshTokenExpiresAt: pair.Refresh.ExpiresAt,
	}
}

func (h *AuthHandler) Register() http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=6"`
	}
	type response struct {
		Message string         `json:"message"`
		User    userResponse   `json:"user"`
		Tokens  tokensResponse `json:"tokens"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		result, err := h.auth.Register(r.Context(), data.Email, data.Password, deviceInfo(r))
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				render.ServiceError(w, "User with this email already exists", http.StatusConflict)
			default:
				h.logger.Error("register failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSONWithStatus(w, response{
			Message: "User registered successfully",
			User:    toUserResponse(result.User),
			Tokens:  toTokensResponse(result.Tokens),
		}, http.StatusCreated)
	})
}

func (h *AuthHandler) Login() http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	type response struct {
		Message string         `json:"message"`
		User    userResponse   `json:"user"`
		Tokens  tokensResponse `json:"tokens"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		result, err := h.auth.Login(r.Context(), data.Email, data.Password, deviceInfo(r))
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserNotFound):
				render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
			default:
				h.logger.Error("login failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, response{
			Message: "Login successful",
			User:    toUserResponse(result.User),
			Tokens:  toTokensResponse(result.Tokens),
		})
	})
}

func (h *AuthHandler) Refresh() http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}
	type response struct {
		Message              string    `json:"message"`
		AccessToken          string    `json:"accessToken"`
		AccessTokenExpiresAt time.Time `json:"accessTokenExpiresAt"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		access, err := h.auth.Refresh(r.Context(), data.RefreshToken)
		if err != nil {
			// Collapse every verification failure to one message, the caller
			// must not learn whether it was the signature, expiry or revocation
			switch {
			case errors.Is(err, apperrors.ErrTokenInvalid),
				errors.Is(err, apperrors.ErrRefreshTokenNotFound),
				errors.Is(err, apperrors.ErrRefreshTokenRevoked),
				errors.Is(err, apperrors.ErrRefreshTokenExpired),
				errors.Is(err, apperrors.ErrUserNotFound),
				errors.Is(err, apperrors.ErrUserInactive):
				render.ServiceError(w, "Invalid or expired refresh token", http.StatusUnauthorized)
			default:
				h.logger.Error("refresh failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, response{
			Message:              "Token refreshed successfully",
			AccessToken:          access.Value,
			AccessTokenExpiresAt: access.ExpiresAt,
		})
	})
}

func (h *AuthHandler) Logout() http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Body is optional and errors are swallowed
		// Logout must never fail visibly to the caller
		var data request
		_ = decodeBody(r, &data)

		if err := h.auth.Logout(r.Context(), data.RefreshToken); err != nil {
			h.logger.Warn("logout revoke failed", "error", err.Error())
		}

		render.JSON(w, response{Message: "Logout successful"})
	})
}

func (h *AuthHandler) Profile() http.Handler {
	type response struct {
		User userResponse `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := userctx.FromContext(r.Context())

		user, err := h.auth.GetProfile(r.Context(), identity.UserID)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserNotFound):
				render.ServiceError(w, "User not found", http.StatusNotFound)
			default:
				h.logger.Error("profile lookup failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, response{User: toUserResponse(user)})
	})
}

// RevokeAll is the administrative "log out everywhere" for a given user
func (h *AuthHandler) RevokeAll() http.Handler {
	type request struct {
		UserID uuid.UUID `json:"userId" validate:"required"`
	}
	type response struct {
		Message string `json:"message"`
		Revoked int64  `json:"revoked"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		revoked, err := h.auth.RevokeAll(r.Context(), data.UserID)
		if err != nil {
			h.logger.Error("revoke all failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{Message: "All sessions revoked", Revoked: revoked})
	})
}

// deviceInfo collects advisory session metadata from the request
func deviceInfo(r *http.Request) models.DeviceInfo {
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		// First hop is the client when the gateway sits behind a proxy
		ip = strings.TrimSpace(strings.SplitN(ip, ",", 2)[0])
	} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	} else {
		ip = r.RemoteAddr
	}

	return models.DeviceInfo{
		UserAgent: r.UserAgent(),
		IP:        ip,
	}
}
