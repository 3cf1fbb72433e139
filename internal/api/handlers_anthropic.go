package api

import (
	"github.com/gin-gonic/gin"

	"github.com/llmproxy-dev/llmproxy/internal/translator"
)

// handleAnthropicMessages serves POST /anthropic/v1/messages.
func (s *Server) handleAnthropicMessages(c *gin.Context) {
	s.pipeline(c, translator.Anthropic, nil)
}
