package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/igasovic/PKM-sub000/internal/observability"
)

// Metrics records request counts and latency per matched route. Scrapes of
// /metrics itself are not counted. A nil m disables the middleware.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		m.ApiInflightInc()
		defer m.ApiInflightDec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
