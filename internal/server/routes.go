package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/onboardctl/internal/auth"
	"github.com/danmuck/onboardctl/internal/pairs"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	data := s.router.Group("/")
	if s.validator != nil {
		data.Use(auth.Middleware(s.validator))
	}

	data.GET("/addresses", func(c *gin.Context) {
		if s.book == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "address book not configured"})
			return
		}
		records, err := s.book.List(c.Request.Context())
		if err != nil {
			s.logger.Error().Err(err).Msg("list addresses failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"network":   s.book.Network(),
			"addresses": records,
		})
	})

	data.GET("/pairs", func(c *gin.Context) {
		if s.pairs == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market not configured"})
			return
		}
		table, err := s.pairs()
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, pairs.ErrMissingAggregator) {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error(), "pairs": table})
			return
		}
		c.JSON(http.StatusOK, gin.H{"pairs": table})
	})
}
