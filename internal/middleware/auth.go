package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"templatedev/api/internal/apperr"
	"templatedev/api/internal/models"
	"templatedev/api/internal/policy"
)

const authContextKey = "auth_context"

type AccessTokenValidator interface {
	ValidateAccessToken(token string) (models.AuthContext, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Identify resolves the caller from the bearer header. A missing or invalid
// token leaves the request anonymous; Authorize decides what that means.
func Identify(r *http.Request, validator AccessTokenValidator) *models.AuthContext {
	token, ok := BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil
	}
	authCtx, err := validator.ValidateAccessToken(token)
	if err != nil {
		return nil
	}
	return &authCtx
}

func Authenticate(validator AccessTokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authCtx := Identify(c.Request, validator); authCtx != nil {
			SetCurrentUser(c, *authCtx)
		}
		c.Next()
	}
}

func SetCurrentUser(c *gin.Context, authCtx models.AuthContext) {
	c.Set(authContextKey, authCtx)
}

// CurrentUser returns the identity attached by Authenticate.
func CurrentUser(c *gin.Context) (models.AuthContext, bool) {
	val, exists := c.Get(authContextKey)
	if !exists {
		return models.AuthContext{}, false
	}
	authCtx, ok := val.(models.AuthContext)
	return authCtx, ok
}

// Authorize enforces the policy rule registered for operation.
func Authorize(operation string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var caller *models.AuthContext
		if authCtx, ok := CurrentUser(c); ok {
			caller = &authCtx
		}

		if err := policy.Authorize(operation, caller); err != nil {
			abortWithError(c, err)
			return
		}
		c.Next()
	}
}

func abortWithError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	message := "internal server error"
	if appErr, ok := apperr.As(err); ok && kind != apperr.KindInternal {
		message = appErr.Message
	}
	c.AbortWithStatusJSON(apperr.HTTPStatus(kind), gin.H{"error": message})
}
