package main

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// slogGinLogger is a gin middleware that emits one structured log line per
// request. WebSocket upgrades are logged at debug to keep the request log
// readable.
func slogGinLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case c.Writer.Status() >= 500:
			logger.Error("request", attrs...)
		case c.Writer.Status() >= 400:
			logger.Warn("request", attrs...)
		case path == "/api/ws":
			logger.Debug("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
	}
}

// tlsErrorWriter adapts net/http's ErrorLog to slog, dropping handshake
// noise from scanners that probe the TLS port with garbage.
type tlsErrorWriter struct {
	logger *slog.Logger
}

func newTLSErrorWriter(logger *slog.Logger) *tlsErrorWriter {
	return &tlsErrorWriter{logger: logger}
}

func (w *tlsErrorWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if strings.Contains(msg, "TLS handshake error") {
		w.logger.Debug(msg)
		return len(p), nil
	}
	w.logger.Error(msg)
	return len(p), nil
}
