package middleware

import (
	"bytes"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RequestLogging logs one structured line per request once it completes,
// with the request/response bodies passed through the shared Redactor
// before they reach the log sink. Collapsed into
// a single non-streaming-aware middleware since body redaction only makes
// sense on the buffered unary path; streaming bodies are logged separately
// by the assembler at chunk granularity.
func RequestLogging(redactor *Redactor) gin.HandlerFunc {
	// redactor.SetKeys must be called by the caller with the current known
	// proxy API keys before this middleware sees traffic.
	return func(c *gin.Context) {
		start := time.Now()

		var reqBody []byte
		if c.Request.Body != nil {
			reqBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(reqBody))
		}

		c.Next()

		fields := log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}
		if len(reqBody) > 0 {
			fields["request_body"] = redactor.Redact(string(reqBody))
		}
		log.WithFields(fields).Debug("request completed")
	}
}
