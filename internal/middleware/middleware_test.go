package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templatedev/api/internal/apperr"
	"templatedev/api/internal/models"
	"templatedev/api/internal/policy"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticValidator map[string]models.AuthContext

func (v staticValidator) ValidateAccessToken(token string) (models.AuthContext, error) {
	authCtx, ok := v[token]
	if !ok {
		return models.AuthContext{}, apperr.ErrInvalidAccessToken
	}
	return authCtx, nil
}

var tokens = staticValidator{
	"user-token":  {UserID: "u1", Email: "u1@example.com", Role: models.UserRoleUser},
	"admin-token": {UserID: "a1", Email: "a1@example.com", Role: models.UserRoleAdmin},
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}

func newAuthorizedEngine(operation string) *gin.Engine {
	engine := gin.New()
	engine.Use(Authenticate(tokens))
	engine.GET("/", Authorize(operation), func(c *gin.Context) {
		authCtx, _ := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"userId": authCtx.UserID})
	})
	return engine
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		header    string
		status    int
		body      string
	}{
		{"public without token", policy.OpAuthLogin, "", http.StatusOK, `{"userId":""}`},
		{"protected without token", policy.OpAuthMe, "", http.StatusUnauthorized, `{"error":"You must be logged in to access this resource"}`},
		{"protected with invalid token", policy.OpAuthMe, "Bearer forged", http.StatusUnauthorized, ""},
		{"protected with token", policy.OpAuthMe, "Bearer user-token", http.StatusOK, `{"userId":"u1"}`},
		{"admin route as user", policy.OpUsersList, "Bearer user-token", http.StatusForbidden, `{"error":"Access denied. Required roles: ADMIN"}`},
		{"admin route as admin", policy.OpUsersList, "Bearer admin-token", http.StatusOK, `{"userId":"a1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			newAuthorizedEngine(tt.operation).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, rec.Body.String())
			}
		})
	}
}

type countingLimiter struct {
	allowed int
	keys    []string
}

func (l *countingLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) bool {
	l.keys = append(l.keys, key)
	if l.allowed == 0 {
		return false
	}
	l.allowed--
	return true
}

func TestRateLimit(t *testing.T) {
	limiter := &countingLimiter{allowed: 1}
	engine := gin.New()
	engine.POST("/login", RateLimit(limiter, "auth.login", 1, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	first := httptest.NewRecorder()
	engine.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/login", nil))
	second := httptest.NewRecorder()
	engine.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/login", nil))

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	require.Len(t, limiter.keys, 2)
	assert.Equal(t, "auth.login:192.0.2.1", limiter.keys[0])
}

func TestRateLimitDisabledWithoutLimiter(t *testing.T) {
	engine := gin.New()
	engine.POST("/login", RateLimit(nil, "auth.login", 1, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusCreated, rec.Code)
	}
	assert.Nil(t, NewRedisLimiter(nil, zerolog.Nop()))
}

func TestRecoveryAndRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID(), Recovery(zerolog.Nop()))
	engine.GET("/boom", func(*gin.Context) { panic(errors.New("boom")) })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestCORS(t *testing.T) {
	engine := gin.New()
	engine.Use(CORS([]string{"https://app.example.com"}))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
