package gateway

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vyrodovalexey/avasheets/internal/audit"
	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/observability"
)

const (
	// RequestIDHeader is the header carrying the request ID.
	RequestIDHeader = "X-Request-ID"

	// userKey is the gin context key for the authenticated user.
	userKey = "authenticatedUser"
)

// requestID assigns each request an ID, honoring one supplied by the client.
func (g *Gateway) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Request = c.Request.WithContext(
			observability.ContextWithRequestID(c.Request.Context(), id))
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// recovery converts panics into 500 responses without killing the process.
func (g *Gateway) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				g.logger.Error("panic recovered",
					observability.Any("error", err),
					observability.String("method", c.Request.Method),
					observability.String("path", c.Request.URL.Path),
					observability.String("stack", string(debug.Stack())))
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
					Code:    codeServerError,
					Message: "internal error",
				})
			}
		}()
		c.Next()
	}
}

// logging logs each request after it completes, level picked by status.
func (g *Gateway) logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []observability.Field{
			observability.String("requestId", observability.RequestIDFromContext(c.Request.Context())),
			observability.String("method", c.Request.Method),
			observability.String("path", path),
			observability.Int("status", status),
			observability.Duration("latency", time.Since(start)),
			observability.String("clientIp", c.ClientIP()),
		}

		switch {
		case status >= http.StatusInternalServerError:
			g.logger.Error("http request", fields...)
		case status >= http.StatusBadRequest:
			g.logger.Warn("http request", fields...)
		default:
			g.logger.Info("http request", fields...)
		}
	}
}

// httpMetrics observes request durations on the route template so label
// cardinality stays bounded.
func (g *Gateway) httpMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		g.metrics.RequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// authenticate verifies the bearer credential and stores the user on the
// context. Requests without a valid credential never reach a handler.
func (g *Gateway) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := bearerToken(c.Request)
		user, err := g.authn.Authenticate(c.Request.Context(), credential)
		if err != nil {
			g.audit.LogAuthentication(c.Request.Context(), audit.ActionConnect, audit.OutcomeFailure,
				&audit.Subject{RemoteIP: c.ClientIP()})
			g.writeError(c, err)
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// bearerToken extracts the credential from the Authorization header, falling
// back to the token query parameter for websocket clients.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// currentUser returns the authenticated user set by the authenticate
// middleware.
func currentUser(c *gin.Context) *model.User {
	user, _ := c.MustGet(userKey).(*model.User)
	return user
}
