// Package rpc serves the auth and user procedures over a tRPC-compatible
// JSON endpoint: GET for queries, POST for mutations, one procedure per path.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"templatedev/api/internal/apperr"
	"templatedev/api/internal/config"
	"templatedev/api/internal/middleware"
	"templatedev/api/internal/models"
	"templatedev/api/internal/policy"
)

const maxInputBytes = 1 << 20

type Kind uint8

const (
	Query Kind = iota
	Mutation
)

func (k Kind) String() string {
	if k == Mutation {
		return "mutation"
	}
	return "query"
}

// Context is the per-request identity handed to every procedure. User is nil
// for anonymous callers.
type Context struct {
	User      *models.AuthContext
	RequestID string
}

type HandlerFunc func(ctx context.Context, rc Context, input json.RawMessage) (any, error)

type Procedure struct {
	Kind        Kind
	RateLimited bool
	Handler     HandlerFunc
}

type Router struct {
	log        zerolog.Logger
	validator  middleware.AccessTokenValidator
	limiter    middleware.Limiter
	rateLimit  config.RateLimitConfig
	procedures map[string]Procedure
}

func NewRouter(
	log zerolog.Logger,
	validator middleware.AccessTokenValidator,
	limiter middleware.Limiter,
	rateLimit config.RateLimitConfig,
	procedures map[string]Procedure,
) *Router {
	return &Router{
		log:        log,
		validator:  validator,
		limiter:    limiter,
		rateLimit:  rateLimit,
		procedures: procedures,
	}
}

func (r *Router) Register(router gin.IRoutes) {
	router.GET("/:procedure", r.serve)
	router.POST("/:procedure", r.serve)
}

func (r *Router) serve(c *gin.Context) {
	path := c.Param("procedure")

	proc, ok := r.procedures[path]
	if !ok {
		r.writeError(c, path, &Error{Code: CodeNotFound, Message: fmt.Sprintf("No procedure found on path %q", path)})
		return
	}

	wantMethod := http.MethodGet
	if proc.Kind == Mutation {
		wantMethod = http.MethodPost
	}
	if c.Request.Method != wantMethod {
		r.writeError(c, path, &Error{
			Code:    CodeMethodNotSupported,
			Message: fmt.Sprintf("Unsupported %s-request to %s procedure at path %q", c.Request.Method, proc.Kind, path),
		})
		return
	}

	if proc.RateLimited && r.rateLimit.Enabled && r.limiter != nil {
		if !r.limiter.Allow(c.Request.Context(), path+":"+c.ClientIP(), r.rateLimit.Limit, r.rateLimit.Window) {
			r.writeError(c, path, &Error{Code: CodeTooManyRequests, Message: "too many requests"})
			return
		}
	}

	rc := Context{
		User:      middleware.Identify(c.Request, r.validator),
		RequestID: middleware.RequestIDFrom(c),
	}
	if rc.User != nil {
		middleware.SetCurrentUser(c, *rc.User)
	}

	if err := policy.Authorize(path, rc.User); err != nil {
		r.writeError(c, path, err)
		return
	}

	input, err := readInput(c)
	if err != nil {
		r.writeError(c, path, err)
		return
	}

	out, err := proc.Handler(c.Request.Context(), rc, input)
	if err != nil {
		r.writeError(c, path, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": gin.H{"data": out}})
}

// readInput returns the raw procedure input: the "input" query parameter for
// GET requests and the request body otherwise.
func readInput(c *gin.Context) (json.RawMessage, error) {
	var raw []byte
	if c.Request.Method == http.MethodGet {
		raw = []byte(c.Query("input"))
	} else {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxInputBytes+1))
		if err != nil {
			return nil, apperr.Validation("invalid request body", nil)
		}
		if len(body) > maxInputBytes {
			return nil, apperr.Validation("request body too large", nil)
		}
		raw = body
	}

	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, apperr.Validation("invalid request body", nil)
	}
	return raw, nil
}

func (r *Router) writeError(c *gin.Context, path string, err error) {
	rpcErr := toRPCError(err)
	if rpcErr.Code == CodeInternal {
		r.log.Error().
			Err(err).
			Str("procedure", path).
			Str("request_id", middleware.RequestIDFrom(c)).
			Msg("procedure failed")
	}
	c.JSON(rpcErr.Code.HTTPStatus(), rpcErr.envelope(path))
}
