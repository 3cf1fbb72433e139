package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleHealth serves GET /health.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"backends": s.catalog.Backends(),
	})
}

// handleDocs serves GET /docs with a minimal pointer to the raw OpenAPI
// document; there is no bundled Swagger UI.
func (s *Server) handleDocs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"openapi": "/openapi.json"})
}

// handleOpenAPI serves GET /openapi.json, a minimal description of the
// exposed endpoint surface.
func (s *Server) handleOpenAPI(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"openapi": "3.0.0",
		"info":    gin.H{"title": "llmproxy", "version": "1"},
		"paths": gin.H{
			"/v1/chat/completions":               gin.H{},
			"/v1/completions":                     gin.H{},
			"/v1/responses":                       gin.H{},
			"/v1/models":                          gin.H{},
			"/v1beta/models":                      gin.H{},
			"/v1beta/models/{model}:{method}":     gin.H{},
			"/anthropic/v1/messages":              gin.H{},
			"/health":                              gin.H{},
		},
	})
}
