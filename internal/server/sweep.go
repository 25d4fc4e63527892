package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunSweep triggers one sweep pass immediately instead of waiting for
// the daily tick.
func (s *Server) RunSweep(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	if err := s.scheduler.RunOnce(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
