package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"templatedev/api/internal/apperr"
	"templatedev/api/internal/middleware"
	"templatedev/api/internal/service"
	"templatedev/api/internal/validation"
)

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h HandlerSet) RegisterUser(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, invalidBody())
		return
	}

	pair, err := h.auth.Register(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pair)
}

func (h HandlerSet) Login(c *gin.Context) {
	var req service.LoginInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, invalidBody())
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pair)
}

func (h HandlerSet) Refresh(c *gin.Context) {
	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, invalidBody())
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeError(c, err)
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pair)
}

func (h HandlerSet) Logout(c *gin.Context) {
	caller, ok := middleware.CurrentUser(c)
	if !ok {
		h.writeError(c, apperr.ErrUnauthenticated)
		return
	}

	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, invalidBody())
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.auth.Logout(c.Request.Context(), caller.UserID, req.RefreshToken); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (h HandlerSet) Me(c *gin.Context) {
	caller, ok := middleware.CurrentUser(c)
	if !ok {
		h.writeError(c, apperr.ErrUnauthenticated)
		return
	}

	user, err := h.auth.Me(c.Request.Context(), caller)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
