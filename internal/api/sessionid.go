package api

import "github.com/gin-gonic/gin"

const defaultSessionID = "default"

// resolveSessionID implements the header/cookie/default precedence: the
// X-Session-ID header, then a session-id cookie, then the literal
// "default".
func resolveSessionID(c *gin.Context) string {
	if v := c.GetHeader("X-Session-ID"); v != "" {
		return v
	}
	if v, err := c.Cookie("session-id"); err == nil && v != "" {
		return v
	}
	return defaultSessionID
}
