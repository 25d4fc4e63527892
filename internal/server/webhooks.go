package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/intellispire/commercestore/internal/ratelimit"
)

func (s *Server) HandleGatewayWebhook(c *gin.Context) {
	gatewayName := strings.TrimSpace(c.Param("gateway"))

	limit, err := s.webhookLimiter.AllowGateway(c.Request.Context(), gatewayName)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !limit.Allowed {
		if limit.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(limit.RetryAfter.Seconds()+1)))
		}
		AbortWithError(c, ratelimit.ErrRateLimited)
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for key := range c.Request.Header {
		headers[key] = c.Request.Header.Get(key)
	}

	if err := s.webhookSvc.Ingest(c.Request.Context(), gatewayName, payload, headers); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
