package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/llmproxy-dev/llmproxy/internal/apierr"
	"github.com/llmproxy-dev/llmproxy/internal/translator"
)

// handleGeminiModels serves GET /v1beta/models.
func (s *Server) handleGeminiModels(c *gin.Context) {
	backends := s.catalog.Backends()
	models := make([]gin.H, 0)
	for _, b := range backends {
		for _, m := range s.catalog.Models(b) {
			models = append(models, gin.H{"name": "models/" + m, "displayName": m})
		}
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

// handleGeminiAction serves POST /v1beta/models/:action, where action is
// "<model>:generateContent" or "<model>:streamGenerateContent".
func (s *Server) handleGeminiAction(c *gin.Context) {
	action := c.Param("action")
	parts := strings.SplitN(action, ":", 2)
	if len(parts) != 2 {
		s.writeError(c, translator.Gemini, apierr.InvalidRequest("malformed model/action path %q", action))
		return
	}
	model, method := parts[0], parts[1]

	var stream bool
	switch method {
	case "generateContent":
		stream = false
	case "streamGenerateContent":
		stream = true
	default:
		s.writeError(c, translator.Gemini, apierr.InvalidRequest("unsupported action %q", method))
		return
	}

	c.Set(geminiModelContextKey, model)
	s.pipeline(c, translator.Gemini, &stream)
}

const geminiModelContextKey = "gemini_model"
