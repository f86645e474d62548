package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/MimeLyc/latexmt-web/pkg/log"
)

const requestIDHeader = "X-Request-Id"

// requestID reuses the caller's X-Request-Id or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"request_id", c.GetString(requestIDHeader),
		}
		switch {
		case len(c.Errors) > 0:
			logger.Error("HTTP request", append(args, "error", c.Errors.String())...)
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Warn("HTTP request", args...)
		default:
			logger.Info("HTTP request", args...)
		}
	}
}

// requireJobs rejects job routes when job mode is off.
func (s *Server) requireJobs(c *gin.Context) {
	if !s.jobsEnabled {
		writeError(c, http.StatusForbidden, jobsDisabledMsg)
		c.Abort()
		return
	}
	c.Next()
}
