package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbot-gateway/internal/apperrors"
	"chatbot-gateway/internal/handlers/userctx"
	"chatbot-gateway/internal/logger"
	"chatbot-gateway/internal/models"
	"chatbot-gateway/internal/service/auth"
)

// Scriptable auth service double
type fakeAuthService struct {
	registerResult auth.AuthResult
	registerErr    error
	loginResult    auth.AuthResult
	loginErr       error
	refreshToken   models.IssuedToken
	refreshErr     error
	logoutErr      error
	profileUser    models.User
	profileErr     error
	revokedCount   int64
	revokeAllErr   error

	lastDevice models.DeviceInfo
	lastLogout string
}

func (f *fakeAuthService) Register(_ context.Context, email, password string, device models.DeviceInfo) (auth.AuthResult, error) {
	f.lastDevice = device
	return f.registerResult, f.registerErr
}

func (f *fakeAuthService) Login(_ context.Context, email, password string, device models.DeviceInfo) (auth.AuthResult, error) {
	f.lastDevice = device
	return f.loginResult, f.loginErr
}

func (f *fakeAuthService) Refresh(_ context.Context, refresh string) (models.IssuedToken, error) {
	return f.refreshToken, f.refreshErr
}

func (f *fakeAuthService) Logout(_ context.Context, refresh string) error {
	f.lastLogout = refresh
	return f.logoutErr
}

func (f *fakeAuthService) GetProfile(_ context.Context, userID uuid.UUID) (models.User, error) {
	return f.profileUser, f.profileErr
}

func (f *fakeAuthService) RevokeAll(_ context.Context, userID uuid.UUID) (int64, error) {
	return f.revokedCount, f.revokeAllErr
}

func sampleResult() auth.AuthResult {
	now := time.Now().Truncate(time.Second)
	return auth.AuthResult{
		User: models.User{
			ID:    uuid.New(),
			Email: "user@example.com",
			Role:  models.RoleUser,
		},
		Tokens: models.TokenPair{
			Access:  models.IssuedToken{Value: "access-jwt", ExpiresAt: now.Add(15 * time.Minute)},
			Refresh: models.IssuedToken{Value: "refresh-jwt", ExpiresAt: now.Add(30 * 24 * time.Hour)},
		},
	}
}

func postJSON(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	return got
}

func Test_AuthHandler_Register(t *testing.T) {
	t.Parallel()

	t.Run("success returns 201 with user and tokens", func(t *testing.T) {
		svc := &fakeAuthService{registerResult: sampleResult()}
		h := NewAuth(svc, logger.NewNoOp())

		w := postJSON(t, h.Register(), `{"email":"user@example.com","password":"password123"}`)

		require.Equal(t, http.StatusCreated, w.Code)
		got := decodeJSON(t, w)
		assert.Equal(t, "User registered successfully", got["message"])

		user := got["user"].(map[string]any)
		assert.Equal(t, "user@example.com", user["email"])
		assert.Equal(t, models.RoleUser, user["role"])
		assert.NotContains(t, user, "hashedPassword")

		tokens := got["tokens"].(map[string]any)
		assert.Equal(t, "access-jwt", tokens["accessToken"])
		assert.Equal(t, "refresh-jwt", tokens["refreshToken"])
	})

	t.Run("duplicate email returns 409", func(t *testing.T) {
		svc := &fakeAuthService{registerErr: apperrors.ErrUserAlreadyExists}
		h := NewAuth(svc, logger.NewNoOp())

		w := postJSON(t, h.Register(), `{"email":"user@example.com","password":"password123"}`)

		require.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "User with this email already exists", decodeJSON(t, w)["message"])
	})

	t.Run("validation failures return 400 with fields", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"missing email", `{"password":"password123"}`},
			{"bad email", `{"email":"not-an-email","password":"password123"}`},
			{"short password", `{"email":"user@example.com","password":"short"}`},
			{"not json", `this is not json`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc := &fakeAuthService{registerResult: sampleResult()}
				h := NewAuth(svc, logger.NewNoOp())

				w := postJSON(t, h.Register(), tt.body)
				assert.Equal(t, http.StatusBadRequest, w.Code)
			})
		}
	})

	t.Run("unexpected error returns 500", func(t *testing.T) {
		svc := &fakeAuthService{registerErr: errors.New("db on fire")}
		h := NewAuth(svc, logger.NewNoOp())

		w := postJSON(t, h.Register(), `{"email":"user@example.com","password":"password123"}`)

		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "db on fire", "internals must not leak")
	})

	t.Run("device metadata is captured", func(t *testing.T) {
		svc := &fakeAuthService{registerResult: sampleResult()}
		h := NewAuth(svc, logger.NewNoOp())

		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"user@example.com","password":"password123"}`))
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("User-Agent", "test-browser")
		r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		h.Register().ServeHTTP(httptest.NewRecorder(), r)

		assert.Equal(t, "test-browser", svc.lastDevice.UserAgent)
		assert.Equal(t, "203.0.113.7", svc.lastDevice.IP, "first forwarded hop is the client")
	})
}

func Test_AuthHandler_Login(t *testing.T) {
	t.Parallel()

	t.Run("success returns 200", func(t *testing.T) {
		svc := &fakeAuthService{loginResult: sampleResult()}
		h := NewAuth(svc, logger.NewNoOp())

		w := postJSON(t, h.Login(), `{"email":"user@example.com","password":"password123"}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Login successful", decodeJSON(t, w)["message"])
	})

	t.Run("bad credentials return 401 with a generic message", func(t *testing.T) {
		svc := &fakeAuthService{loginErr: apperrors.ErrUserNotFound}
		h := NewAuth(svc, logger.NewNoOp())

		w := postJSON(t, h.Login(), `{"email":"user@example.com","password":"wrong"}`)

		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Invalid email or password", decodeJSON(t, w)["message"])
	})
}

func Test_AuthHandler_Refresh(t *testing.T) {
	t.Parallel()

	t.Run("success returns fresh access token", func(t *testing.T) {
		expiresAt := time.Now().Add(15 * time.Minute).Truncate(time.Second)
		svc := &fakeAuthService{refreshToken: models.IssuedToken{Value: "new-access", ExpiresAt: expiresAt}}
		h := NewAuth(svc, logger.NewNoOp())

		w := postJSON(t, h.Refresh(), `{"refreshToken":"refresh-jwt"}`)

		require.Equal(t, http.StatusOK, w.Code)
		got := decodeJSON(t, w)
		assert.Equal(t, "new-access", got["accessToken"])
	})

	t.Run("every verification failure collapses to the same 401", func(t *testing.T) {
		failures := []error{
			apperrors.ErrTokenInvalid,
			apperrors.ErrRefreshTokenNotFound,
			apperrors.ErrRefreshTokenRevoked,
			apperrors.ErrRefreshTokenExpired,
			apperrors.ErrUserNotFound,
			apperrors.ErrUserInactive,
		}

		for _, failure := range failures {
			svc := &fakeAuthService{refreshErr: failure}
			h := NewAuth(svc, logger.NewNoOp())

			w := postJSON(t, h.Refresh(), `{"refreshToken":"refresh-jwt"}`)

			require.Equal(t, http.StatusUnauthorized, w.Code, "failure: %v", failure)
			assert.Equal(t, "Invalid or expired refresh token", decodeJSON(t, w)["message"], "failure: %v", failure)
		}
	})

	t.Run("missing token returns 400", func(t *testing.T) {
		svc := &fakeAuthService{}
		h := NewAuth(svc, logger.NewNoOp())

		w := postJSON(t, h.Refresh(), `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func Test_AuthHandler_Logout(t *testing.T) {
	t.Parallel()

	t.Run("returns 200 and revokes the token", func(t *testing.T) {
		svc := &fakeAuthService{}
		h := NewAuth(svc, logger.NewNoOp())

		w := postJSON(t, h.Logout(), `{"refreshToken":"refresh-jwt"}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Logout successful", decodeJSON(t, w)["message"])
		assert.Equal(t, "refresh-jwt", svc.lastLogout)
	})

	t.Run("no body still succeeds", func(t *testing.T) {
		svc := &fakeAuthService{}
		h := NewAuth(svc, logger.NewNoOp())

		w := postJSON(t, h.Logout(), ``)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("garbage body still succeeds", func(t *testing.T) {
		svc := &fakeAuthService{}
		h := NewAuth(svc, logger.NewNoOp())

		w := postJSON(t, h.Logout(), `{{{`)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("revoke failure is hidden from the caller", func(t *testing.T) {
		svc := &fakeAuthService{logoutErr: errors.New("store unavailable")}
		h := NewAuth(svc, logger.NewNoOp())

		w := postJSON(t, h.Logout(), `{"refreshToken":"refresh-jwt"}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func Test_AuthHandler_Profile(t *testing.T) {
	t.Parallel()

	withIdentity := func(h http.Handler, userID uuid.UUID) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := userctx.New(r.Context(), userctx.Identity{UserID: userID, Email: "user@example.com", Role: models.RoleUser})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r.WithContext(ctx))
		return w
	}

	t.Run("returns the user", func(t *testing.T) {
		userID := uuid.New()
		svc := &fakeAuthService{profileUser: models.User{ID: userID, Email: "user@example.com", Role: models.RoleUser}}
		h := NewAuth(svc, logger.NewNoOp())

		w := withIdentity(h.Profile(), userID)

		require.Equal(t, http.StatusOK, w.Code)
		user := decodeJSON(t, w)["user"].(map[string]any)
		assert.Equal(t, userID.String(), user["id"])
		assert.Equal(t, "user@example.com", user["email"])
	})

	t.Run("deleted user returns 404", func(t *testing.T) {
		svc := &fakeAuthService{profileErr: apperrors.ErrUserNotFound}
		h := NewAuth(svc, logger.NewNoOp())

		w := withIdentity(h.Profile(), uuid.New())

		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "User not found", decodeJSON(t, w)["message"])
	})
}

func Test_AuthHandler_RevokeAll(t *testing.T) {
	t.Parallel()

	t.Run("returns revoked count", func(t *testing.T) {
		svc := &fakeAuthService{revokedCount: 3}
		h := NewAuth(svc, logger.NewNoOp())

		w := postJSON(t, h.RevokeAll(), `{"userId":"`+uuid.NewString()+`"}`)

		require.Equal(t, http.StatusOK, w.Code)
		got := decodeJSON(t, w)
		assert.EqualValues(t, 3, got["revoked"])
	})

	t.Run("missing user id returns 400", func(t *testing.T) {
		svc := &fakeAuthService{}
		h := NewAuth(svc, logger.NewNoOp())

		w := postJSON(t, h.RevokeAll(), `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
