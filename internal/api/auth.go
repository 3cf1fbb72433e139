package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// KeyChecker reports whether a presented key is one of the currently
// configured proxy API keys.
type KeyChecker interface {
	IsValid(key string) bool
}

// bcryptPrefix marks a configured key as a bcrypt hash rather than a literal
// secret, so an operator can commit api-keys to config without storing them
// in plaintext.
const bcryptPrefix = "$2"

type staticKeys struct {
	plain  []string
	hashed []string
}

// NewStaticKeys builds a KeyChecker over a fixed key list. Entries that look
// like a bcrypt hash ($2a$/$2b$/$2y$) are compared with bcrypt.
// CompareHashAndPassword; everything else is compared in constant time as a
// literal secret.
func NewStaticKeys(keys []string) KeyChecker {
	sk := &staticKeys{}
	for _, k := range keys {
		if strings.HasPrefix(k, bcryptPrefix) {
			sk.hashed = append(sk.hashed, k)
		} else {
			sk.plain = append(sk.plain, k)
		}
	}
	return sk
}

func (s *staticKeys) IsValid(key string) bool {
	if key == "" {
		return false
	}
	for _, k := range s.plain {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return true
		}
	}
	for _, h := range s.hashed {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(key)) == nil {
			return true
		}
	}
	return false
}

// AuthMiddleware authenticates requests per the dialect-specific credential
// rules: OpenAI/Anthropic use Authorization: Bearer <key>; Gemini prefers
// x-goog-api-key and falls back to Authorization: Bearer. Disabled
// entirely when disableAuth is true.
func AuthMiddleware(checker KeyChecker, disableAuth bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if disableAuth || checker == nil {
			c.Next()
			return
		}

		key := c.GetHeader("x-goog-api-key")
		if key == "" {
			key = bearerToken(c.GetHeader("Authorization"))
		}
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}
		if !checker.IsValid(key) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return header
}

// GenerateAndLogKey logs a freshly generated proxy API key to stdout and the
// logger, for the "auth enabled but no key configured" startup case.
func GenerateAndLogKey(key string) {
	log.Warnf("no API key configured; generated one for this run: %s", key)
}
