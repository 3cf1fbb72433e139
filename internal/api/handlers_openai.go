package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llmproxy-dev/llmproxy/internal/translator"
)

// handleChatCompletions serves POST /v1/chat/completions.
func (s *Server) handleChatCompletions(c *gin.Context) {
	s.pipeline(c, translator.OpenAIChat, nil)
}

// handleLegacyCompletions serves POST /v1/completions, the pre-chat
// completions shape still used by some tooling.
func (s *Server) handleLegacyCompletions(c *gin.Context) {
	s.pipeline(c, translator.OpenAILegacy, nil)
}

// handleResponses serves POST /v1/responses.
func (s *Server) handleResponses(c *gin.Context) {
	s.pipeline(c, translator.OpenAIResponses, nil)
}

// handleOpenAIModels serves GET /v1/models, listing every model currently
// known across all functional backends in OpenAI's model-list shape.
func (s *Server) handleOpenAIModels(c *gin.Context) {
	backends := s.catalog.Backends()
	data := make([]gin.H, 0)
	for _, b := range backends {
		for _, m := range s.catalog.Models(b) {
			data = append(data, gin.H{"id": m, "object": "model", "owned_by": b})
		}
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}
