package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"templatedev/api/internal/config"
	"templatedev/api/internal/middleware"
	"templatedev/api/internal/policy"
	"templatedev/api/internal/service"
)

// HealthCheck probes one dependency for the health endpoint.
type HealthCheck func(ctx context.Context) error

type HandlerSet struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	auth    *service.AuthService
	users   *service.UserService
	limiter middleware.Limiter
	checks  map[string]HealthCheck
}

func NewHandlerSet(
	log zerolog.Logger,
	cfg *config.AppConfig,
	auth *service.AuthService,
	users *service.UserService,
	limiter middleware.Limiter,
	checks map[string]HealthCheck,
) HandlerSet {
	return HandlerSet{
		log:     log,
		cfg:     cfg,
		auth:    auth,
		users:   users,
		limiter: limiter,
		checks:  checks,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", middleware.Authorize(policy.OpHealth), h.Health)

	identify := middleware.Authenticate(h.auth)

	auth := router.Group("/auth", identify)
	{
		auth.POST("/register", h.rateLimit(policy.OpAuthRegister), middleware.Authorize(policy.OpAuthRegister), h.RegisterUser)
		auth.POST("/login", h.rateLimit(policy.OpAuthLogin), middleware.Authorize(policy.OpAuthLogin), h.Login)
		auth.POST("/refresh", h.rateLimit(policy.OpAuthRefresh), middleware.Authorize(policy.OpAuthRefresh), h.Refresh)
		auth.POST("/logout", middleware.Authorize(policy.OpAuthLogout), h.Logout)
		auth.GET("/me", middleware.Authorize(policy.OpAuthMe), h.Me)
	}

	users := router.Group("/users", identify)
	{
		users.GET("", middleware.Authorize(policy.OpUsersList), h.ListUsers)
		users.GET("/:id", middleware.Authorize(policy.OpUsersGet), h.GetUser)
		users.PATCH("/:id", middleware.Authorize(policy.OpUsersUpdate), h.UpdateUser)
		users.DELETE("/:id", middleware.Authorize(policy.OpUsersDelete), h.DeleteUser)
	}
}

func (h HandlerSet) rateLimit(operation string) gin.HandlerFunc {
	if h.cfg == nil || !h.cfg.RateLimit.Enabled {
		return middleware.RateLimit(nil, operation, 0, 0)
	}
	return middleware.RateLimit(h.limiter, operation, h.cfg.RateLimit.Limit, h.cfg.RateLimit.Window)
}
