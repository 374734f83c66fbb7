package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"templatedev/api/internal/apperr"
	"templatedev/api/internal/middleware"
)

// writeError renders err as {"error": ..., "fields": ...}. Internal errors
// are logged in full and reported without detail.
func (h HandlerSet) writeError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind == apperr.KindInternal {
		h.log.Error().
			Err(err).
			Str("path", c.Request.URL.Path).
			Str("request_id", middleware.RequestIDFrom(c)).
			Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	body := gin.H{"error": appErr.Message}
	if len(appErr.Fields) > 0 {
		body["fields"] = appErr.Fields
	}
	c.JSON(apperr.HTTPStatus(appErr.Kind), body)
}

func invalidBody() error {
	return apperr.Validation("invalid request body", nil)
}
