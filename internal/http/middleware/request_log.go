package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

// quietRoutes are polled by health checks and scrapers and are only logged on failure.
var quietRoutes = map[string]bool{
	"/healthcheck": true,
	"/metrics":     true,
}

// RequestLogger writes one access line per request after the handler chain.
// Server errors log at Error, client errors at Warn.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	access := log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if quietRoutes[route] && status < 400 {
			return
		}

		kv := make([]interface{}, 0, 20)
		kv = append(kv,
			"method", c.Request.Method,
			"route", route,
			"uri", c.Request.URL.RequestURI(),
			"status", status,
			"bytes", c.Writer.Size(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if project := c.Query("project"); project != "" {
			kv = append(kv, "project", project)
		}
		ctx := c.Request.Context()
		if td := ctxutil.GetTraceData(ctx); td != nil {
			kv = append(kv, "request_id", td.RequestID, "trace_id", td.TraceID)
		}
		if rd := ctxutil.GetRequestData(ctx); rd != nil && rd.UserID != 0 {
			kv = append(kv, "user_id", rd.UserID)
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			kv = append(kv, "error", errs.String())
		}

		switch {
		case status >= 500:
			access.Error("request failed", kv...)
		case status >= 400:
			access.Warn("request rejected", kv...)
		default:
			access.Info("request", kv...)
		}
	}
}
