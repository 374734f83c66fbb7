package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"templatedev/api/internal/apperr"
	"templatedev/api/internal/middleware"
	"templatedev/api/internal/service"
)

func (h HandlerSet) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h HandlerSet) GetUser(c *gin.Context) {
	caller, ok := middleware.CurrentUser(c)
	if !ok {
		h.writeError(c, apperr.ErrUnauthenticated)
		return
	}

	user, err := h.users.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h HandlerSet) UpdateUser(c *gin.Context) {
	caller, ok := middleware.CurrentUser(c)
	if !ok {
		h.writeError(c, apperr.ErrUnauthenticated)
		return
	}

	var req service.UpdateUserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, invalidBody())
		return
	}

	user, err := h.users.Update(c.Request.Context(), caller, c.Param("id"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h HandlerSet) DeleteUser(c *gin.Context) {
	caller, ok := middleware.CurrentUser(c)
	if !ok {
		h.writeError(c, apperr.ErrUnauthenticated)
		return
	}

	id := c.Param("id")
	if err := h.users.Delete(c.Request.Context(), caller, id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: service.DeletedMessage(id)})
}
