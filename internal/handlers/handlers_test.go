package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"templatedev/api/internal/config"
	"templatedev/api/internal/models"
	"templatedev/api/internal/repository"
	"templatedev/api/internal/security"
	"templatedev/api/internal/service"
)

type testServer struct {
	engine *gin.Engine
	auth   *service.AuthService
}

func newTestServer(t *testing.T, checks map[string]HealthCheck) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	auth := service.NewAuthService(
		store.Users(),
		store.RefreshTokens(),
		security.NewTokenSigner("access-secret", 15*time.Minute, nil),
		security.NewTokenSigner("refresh-secret", time.Hour, nil),
		security.NewPasswordHasher(bcrypt.MinCost),
		zerolog.Nop(),
	)
	users := service.NewUserService(store.Users(), zerolog.Nop())
	cfg := &config.AppConfig{Environment: "test"}

	engine := gin.New()
	NewHandlerSet(zerolog.Nop(), cfg, auth, users, nil, checks).Register(engine.Group("/api"))
	return testServer{engine: engine, auth: auth}
}

func (s testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decodePair(t *testing.T, rec *httptest.ResponseRecorder) models.TokenPair {
	t.Helper()
	var pair models.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	return pair
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": "a@b.com", "password": "password123", "name": "A"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	registered := decodePair(t, rec)
	assert.NotEmpty(t, registered.AccessToken)
	assert.Equal(t, "a@b.com", registered.User.Email)
	assert.Equal(t, models.UserRoleUser, registered.User.Role)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = srv.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "a@b.com", "password": "password123"})
	require.Equal(t, http.StatusCreated, rec.Code)
	loggedIn := decodePair(t, rec)

	rec = srv.do(t, http.MethodGet, "/api/auth/me", loggedIn.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"a@b.com"`)

	rec = srv.do(t, http.MethodPost, "/api/auth/refresh", "", gin.H{"refreshToken": loggedIn.RefreshToken})
	require.Equal(t, http.StatusCreated, rec.Code)
	rotated := decodePair(t, rec)
	assert.NotEqual(t, loggedIn.RefreshToken, rotated.RefreshToken)

	rec = srv.do(t, http.MethodPost, "/api/auth/refresh", "", gin.H{"refreshToken": loggedIn.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid refresh token"}`, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/auth/logout", rotated.AccessToken, gin.H{"refreshToken": rotated.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Logged out successfully"}`, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/auth/logout", rotated.AccessToken, gin.H{"refreshToken": rotated.RefreshToken})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/auth/refresh", "", gin.H{"refreshToken": rotated.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": "a@b.com", "password": "password123"})
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		want   string
	}{
		{
			name: "register validation", method: http.MethodPost, path: "/api/auth/register",
			body:   gin.H{"email": "nope", "password": "short"},
			status: http.StatusBadRequest,
			want:   `{"error":"invalid input","fields":{"email":"must be a valid email","password":"must be at least 8 characters"}}`,
		},
		{
			name: "register conflict", method: http.MethodPost, path: "/api/auth/register",
			body:   gin.H{"email": "A@B.com", "password": "password123"},
			status: http.StatusConflict,
			want:   `{"error":"user with this email already exists"}`,
		},
		{
			name: "register malformed body", method: http.MethodPost, path: "/api/auth/register",
			body:   "{not json",
			status: http.StatusBadRequest,
			want:   `{"error":"invalid request body"}`,
		},
		{
			name: "login wrong password", method: http.MethodPost, path: "/api/auth/login",
			body:   gin.H{"email": "a@b.com", "password": "wrong-password"},
			status: http.StatusUnauthorized,
			want:   `{"error":"invalid credentials"}`,
		},
		{
			name: "login unknown email", method: http.MethodPost, path: "/api/auth/login",
			body:   gin.H{"email": "ghost@b.com", "password": "password123"},
			status: http.StatusUnauthorized,
			want:   `{"error":"invalid credentials"}`,
		},
		{
			name: "refresh garbage", method: http.MethodPost, path: "/api/auth/refresh",
			body:   gin.H{"refreshToken": "garbage"},
			status: http.StatusUnauthorized,
			want:   `{"error":"invalid refresh token"}`,
		},
		{
			name: "logout without token", method: http.MethodPost, path: "/api/auth/logout",
			body:   gin.H{"refreshToken": "x"},
			status: http.StatusUnauthorized,
			want:   `{"error":"You must be logged in to access this resource"}`,
		},
		{
			name: "me with forged token", method: http.MethodGet, path: "/api/auth/me",
			token:  "forged",
			status: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			if tt.want != "" {
				assert.JSONEq(t, tt.want, rec.Body.String())
			}
		})
	}
}

func TestUserRoutes(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	alice := decodePair(t, srv.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": "alice@b.com", "password": "password123"}))
	bob := decodePair(t, srv.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": "bob@b.com", "password": "password123"}))
	require.NoError(t, srv.auth.EnsureAdmin(ctx, "root@b.com", "administrator"))
	root := decodePair(t, srv.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "root@b.com", "password": "administrator"}))

	rec := srv.do(t, http.MethodGet, "/api/users", alice.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Access denied. Required roles: ADMIN"}`, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/users", root.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []models.PublicUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 3)

	rec = srv.do(t, http.MethodGet, "/api/users/"+bob.User.ID, alice.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"You can only access your own resources"}`, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/users/"+alice.User.ID, alice.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPatch, "/api/users/"+alice.User.ID, alice.AccessToken, gin.H{"name": "Alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Alice"`)

	rec = srv.do(t, http.MethodPatch, "/api/users/"+alice.User.ID, alice.AccessToken, gin.H{"email": "bob@b.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/users/missing", root.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"User with ID missing not found"}`, rec.Body.String())

	rec = srv.do(t, http.MethodDelete, "/api/users/"+bob.User.ID, root.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"User `+bob.User.ID+` deleted successfully"}`, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/auth/refresh", "", gin.H{"refreshToken": bob.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	})
	rec := srv.do(t, http.MethodGet, "/api/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"database":"ok"},"environment":"test"}`, rec.Body.String())

	srv = newTestServer(t, map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"cache":    func(context.Context) error { return errors.New("connection refused") },
	})
	rec = srv.do(t, http.MethodGet, "/api/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"database":"ok","cache":"error"},"environment":"test"}`, rec.Body.String())
}
