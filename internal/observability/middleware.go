package observability

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const requestLoggerKey = "wearctl.logger"

// SessionLabel reports the session an admin request is served against.
type SessionLabel func() (id, state string)

// SessionRequestLogger tags every admin request with the session ID and
// stores the tagged logger for handlers (see RequestLog). Session commands
// log at info; polling reads log at debug.
func SessionRequestLogger(logger zerolog.Logger, label SessionLabel) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id, state := label()
		reqLogger := logger.With().Str("session", id).Logger()
		c.Set(requestLoggerKey, reqLogger)
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = reqLogger.Error()
		case status >= 400:
			event = reqLogger.Warn()
		case isSessionCommand(c.Request.Method, path):
			event = reqLogger.Info()
		default:
			event = reqLogger.Debug()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Str("state", state).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("admin_request")
	}
}

// RequestLog returns the session-tagged logger for c, or fallback outside
// SessionRequestLogger.
func RequestLog(c *gin.Context, fallback zerolog.Logger) zerolog.Logger {
	if v, ok := c.Get(requestLoggerKey); ok {
		if l, ok := v.(zerolog.Logger); ok {
			return l
		}
	}
	return fallback
}

// SessionRequestMetrics records admin request counts and latency. Scrapes and
// the long-lived events stream are not counted.
func SessionRequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		switch {
		case path == "":
			path = "unmatched"
		case path == "/metrics", strings.HasSuffix(path, "/events"):
			return
		}
		RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

func isSessionCommand(method, path string) bool {
	return method == http.MethodPost && strings.HasPrefix(path, "/session/")
}
