package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/llmproxy-dev/llmproxy/internal/accounting"
	"github.com/llmproxy-dev/llmproxy/internal/command"
	"github.com/llmproxy-dev/llmproxy/internal/config"
	"github.com/llmproxy-dev/llmproxy/internal/dispatcher"
	"github.com/llmproxy-dev/llmproxy/internal/middleware"
	"github.com/llmproxy-dev/llmproxy/internal/session"
)

// Server wires every pipeline component behind a gin engine and an
// http.Server.
type Server struct {
	engine *gin.Engine
	http   *http.Server

	cfg         *config.Config
	sessions    *session.Store
	dispatcher  *dispatcher.Dispatcher
	interpreter *command.Interpreter
	catalog     *ModelCatalog
	keySource   dispatcher.KeySource

	redactor       *middleware.Redactor
	accountingSink accounting.Sink
}

// NewServer constructs and wires the gin engine and every route. cfg.Port
// is bound only once Start is called.
func NewServer(cfg *config.Config, sessions *session.Store, disp *dispatcher.Dispatcher, catalog *ModelCatalog, keySource dispatcher.KeySource, sink accounting.Sink) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	redactor := middleware.NewRedactor()
	redactor.SetKeys(cfg.APIKeys)
	engine.Use(middleware.RequestLogging(redactor))

	s := &Server{
		engine:         engine,
		cfg:            cfg,
		sessions:       sessions,
		dispatcher:     disp,
		interpreter:    command.NewInterpreter(cfg.CommandPrefix),
		catalog:        catalog,
		keySource:      keySource,
		redactor:       redactor,
		accountingSink: sink,
	}
	s.setupRoutes()

	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engine,
	}
	return s
}

func (s *Server) setupRoutes() {
	checker := AuthMiddleware(NewStaticKeys(s.cfg.APIKeys), s.cfg.DisableAuth)

	v1 := s.engine.Group("/v1")
	v1.Use(checker)
	{
		v1.POST("/chat/completions", s.handleChatCompletions)
		v1.POST("/completions", s.handleLegacyCompletions)
		v1.POST("/responses", s.handleResponses)
		v1.GET("/models", s.handleOpenAIModels)
	}

	v1beta := s.engine.Group("/v1beta")
	v1beta.Use(checker)
	{
		v1beta.GET("/models", s.handleGeminiModels)
		v1beta.POST("/models/:action", s.handleGeminiAction)
	}

	anthropic := s.engine.Group("/anthropic/v1")
	anthropic.Use(checker)
	{
		anthropic.POST("/messages", s.handleAnthropicMessages)
	}

	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/docs", s.handleDocs)
	s.engine.GET("/openapi.json", s.handleOpenAPI)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "*")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Handler returns the underlying http.Handler, for embedding in a test
// server or a different listener than the one Start binds.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving; it blocks until the server stops.
func (s *Server) Start() error {
	log.Infof("api: listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// UpdateConfig swaps in a reloaded config, refreshing the key checker and
// redactor key list. Routes and the engine itself are not rebuilt.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.cfg = cfg
	s.redactor.SetKeys(cfg.APIKeys)
	s.interpreter = command.NewInterpreter(cfg.CommandPrefix)
}
