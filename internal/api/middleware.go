package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"homesense.dev/backend/internal/store"
)

const (
	ctxUserKey      = "auth_user"
	requestIDHeader = "X-Request-ID"
)

// requestIDMiddleware tags every request with an id for log
// correlation, honoring one supplied by the caller.
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// metricsMiddleware records request counts, latency and in-flight
// gauge. FullPath keeps the label cardinality bounded to route
// templates.
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.metrics == nil {
			c.Next()
			return
		}

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		s.metrics.RequestsInFlight.Inc()
		start := time.Now()

		c.Next()

		s.metrics.RequestsInFlight.Dec()
		s.metrics.RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
		s.metrics.RequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// authMiddleware resolves the bearer token to a user and aborts with a
// uniform 401 on any failure.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.authSvc.ResolveBearer(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
			return
		}
		c.Set(ctxUserKey, user)
		c.Next()
	}
}

// currentUser returns the authenticated user set by authMiddleware.
func currentUser(c *gin.Context) *store.User {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*store.User)
	return user
}

// pathID parses a numeric path parameter.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// queryLimit parses the optional limit query parameter.
func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
