package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mizuikk/codex-openai-wrapper/internal/api/handlers"
	"github.com/mizuikk/codex-openai-wrapper/internal/config"
	"github.com/mizuikk/codex-openai-wrapper/internal/logging"
	log "github.com/mizuikk/codex-openai-wrapper/internal/logging"
	"github.com/mizuikk/codex-openai-wrapper/internal/usage"
)

// Server owns the gin engine and the handler dependency bundle.
type Server struct {
	deps *handlers.Deps
	http *http.Server
}

// NewServer wires middleware and routes for the initial config.
func NewServer(cfg *config.Config, store *usage.Store) *Server {
	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	deps := handlers.New(cfg, store)

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(corsMiddleware())

	engine.GET("/health", deps.Health)

	guarded := engine.Group("/")
	guarded.Use(apiKeyMiddleware(cfg.Auth.APIKeys))
	if cfg.RateLimit.Enabled {
		guarded.Use(rateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}

	guarded.POST("/v1/chat/completions", deps.ChatCompletions)
	guarded.POST("/v1/completions", deps.Completions)
	guarded.POST("/v1/responses", deps.Responses)
	guarded.GET("/v1/models", deps.Models)
	guarded.GET("/usage", deps.UsageStats)

	guarded.POST("/api/chat", deps.OllamaChat)
	guarded.POST("/api/generate", deps.OllamaGenerate)
	guarded.GET("/api/tags", deps.OllamaTags)
	guarded.POST("/api/show", deps.OllamaShow)
	guarded.GET("/api/version", deps.OllamaVersion)

	return &Server{
		deps: deps,
		http: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Deps exposes the handler bundle so callers can hook config reloads.
func (s *Server) Deps() *handlers.Deps { return s.deps }

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	log.Infof("listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
