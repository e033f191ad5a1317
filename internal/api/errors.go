package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"homesense.dev/backend/internal/auth"
	"homesense.dev/backend/internal/store"
)

// writeError maps the core failure taxonomy to HTTP status codes.
// NotFound covers entities that exist but belong to another user; the
// response never distinguishes the two cases.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case store.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	case errors.Is(err, store.ErrInvalidInput), errors.Is(err, store.ErrInvalidState):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid credentials"})
	default:
		s.logger.Error("internal error",
			"error", err,
			"request_id", c.GetString("request_id"),
			"path", c.FullPath(),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
	}
}

// badRequest rejects malformed request bodies.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": msg})
}
