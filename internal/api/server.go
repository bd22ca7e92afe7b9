// Package api exposes the invitation services over HTTP.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/makemykankotri/kankotri/internal/services"
	"github.com/makemykankotri/kankotri/pkg/config"
	"github.com/makemykankotri/kankotri/pkg/feature"
	"github.com/makemykankotri/kankotri/pkg/middleware"
	"github.com/makemykankotri/kankotri/pkg/observability"
	"github.com/makemykankotri/kankotri/pkg/plugin"
	"github.com/makemykankotri/kankotri/pkg/storage"
	"github.com/makemykankotri/kankotri/pkg/validation"
)

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// Deps groups everything the handlers call into
type Deps struct {
	Templates   *services.TemplateService
	Invitations *services.InvitationService
	Editor      *services.EditorService
	Assist      *services.AssistService
	Flags       *feature.Flags
	Plugins     *plugin.Registry
	Assets      storage.Store
	Validator   *validation.Validator
	Verifier    *middleware.TokenVerifier

	// Checks are run by /ready, keyed by component name
	Checks         map[string]HealthCheck
	MetricsHandler http.Handler

	Logger  observability.Logger
	Metrics observability.MetricsClient
}

// Server represents the API server
type Server struct {
	router     *gin.Engine
	server     *http.Server
	config     config.APIConfig
	deps       Deps
	limiter    *middleware.RateLimiter
	production bool
	started    time.Time
	logger     observability.Logger
	metrics    observability.MetricsClient
}

// NewServer creates a new API server
func NewServer(cfg config.APIConfig, production bool, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewNoopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewNoopMetricsClient()
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "/api/v1"
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 10 << 20
	}
	logger := deps.Logger.WithPrefix("api")

	router := gin.New()
	router.MaxMultipartMemory = cfg.MaxUploadSize

	router.Use(middleware.Recovery(logger, production))
	router.Use(middleware.Tracing())
	if cfg.LogRequests {
		router.Use(middleware.RequestLogger(logger, deps.Metrics))
	}
	if cfg.EnableCORS {
		router.Use(middleware.CORS(cfg.CORSOrigins))
	}

	s := &Server{
		router:     router,
		config:     cfg,
		deps:       deps,
		production: production,
		started:    time.Now(),
		logger:     logger,
		metrics:    deps.Metrics,
	}
	if cfg.RateLimit.Enabled {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimit, logger, deps.Metrics)
	}
	s.server = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	s.setupRoutes()
	return s
}

// setupRoutes initializes all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ready", s.readyHandler)
	if s.deps.MetricsHandler != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.MetricsHandler))
	}

	// Rendered invitation pages
	s.router.GET("/invitation/:id", s.invitationPage)

	// Assets kept in process are served by the API itself
	if mem, ok := s.deps.Assets.(*storage.MemoryStore); ok {
		s.router.GET("/assets/*key", s.serveMemoryAsset(mem))
	}

	v1 := s.router.Group(strings.TrimRight(s.config.BasePath, "/"))
	if s.limiter != nil {
		v1.Use(s.limiter.Handler())
	}

	v1.GET("/templates", s.listTemplates)
	v1.GET("/templates/:idOrSlug", s.getTemplate)
	v1.GET("/templates/:idOrSlug/form", s.templateForm)
	v1.POST("/templates/:idOrSlug/preview", s.previewTemplate)

	v1.POST("/invitations", s.publishInvitation)
	v1.GET("/invitations/:id", s.getInvitation)

	v1.POST("/generate", s.generateContent)
	v1.GET("/features", s.listFeatures)

	admin := v1.Group("/admin")
	admin.Use(middleware.AdminAuth(s.deps.Verifier, s.logger))
	{
		admin.GET("/templates", s.adminListTemplates)
		admin.POST("/templates", s.createTemplate)
		admin.GET("/templates/:id", s.adminGetTemplate)
		admin.PUT("/templates/:id", s.updateTemplate)
		admin.DELETE("/templates/:id", s.deleteTemplate)
		admin.POST("/templates/:id/publish", s.publishTemplate)
		admin.POST("/templates/:id/unpublish", s.unpublishTemplate)
		admin.GET("/templates/:id/invitations", s.listTemplateInvitations)

		admin.POST("/assets", s.uploadAsset)

		admin.GET("/plugins", s.listPlugins)
		admin.PUT("/features/:name", s.setFeature)

		s.registerEditorRoutes(admin.Group("/editor/:id"))
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("API server listening", map[string]interface{}{"address": s.config.ListenAddress})
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the API server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.server.Shutdown(ctx)
}

// Close releases background resources without serving
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// healthHandler reports liveness
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// readyHandler runs every dependency check
func (s *Server) readyHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]string, len(s.deps.Checks))
	ready := true
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			components[name] = "unhealthy: " + err.Error()
			ready = false
			continue
		}
		components[name] = "healthy"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "components": components})
}
