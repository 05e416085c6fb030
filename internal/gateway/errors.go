package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avasheets/internal/observability"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

// errorResponse is the error body returned by every endpoint.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Outcome codes.
const (
	codeBadRequest   = "badRequest"
	codeUnauthorized = "unauthorized"
	codeForbidden    = "forbidden"
	codeNotFound     = "notFound"
	codeConflict     = "conflict"
	codeServerError  = "serverError"
)

// classifyError maps an error to its HTTP status and outcome code.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, util.ErrInvalidInput):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, util.ErrUnauthorized):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, util.ErrForbidden):
		return http.StatusForbidden, codeForbidden
	case errors.Is(err, util.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, util.ErrConflict):
		return http.StatusConflict, codeConflict
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

// writeError renders the error. Server-side detail is logged, never exposed.
func (g *Gateway) writeError(c *gin.Context, err error) {
	status, code := classifyError(err)

	message := err.Error()
	if !util.IsClientError(err) {
		g.logger.Error("request failed",
			observability.String("path", c.Request.URL.Path),
			observability.String("method", c.Request.Method),
			observability.Error(err))
		message = "internal error"
	}

	c.AbortWithStatusJSON(status, errorResponse{Code: code, Message: message})
}
