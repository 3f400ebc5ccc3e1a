package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/example/projectcontrols/internal/observability"
)

// Server is the web HTTP server
type Server struct {
	addr     string
	handlers *Handlers
	engine   *gin.Engine
	metrics  *observability.Metrics
	log      zerolog.Logger
	srv      *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics exposes metrics at /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// NewServer creates a new web server
func NewServer(addr string, svc Services, opts ...Option) *Server {
	s := &Server{
		addr: addr,
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handlers = NewHandlers(svc, s.log)

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.requestLogger(), corsMiddleware())
	s.setupRoutes()

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	h := s.handlers
	api := s.engine.Group("/api/v1")

	entities := api.Group("/entities/:type")
	entities.GET("", h.ListEntities)
	entities.POST("", h.CreateEntity)
	entities.GET("/:id", h.GetEntity)
	entities.PUT("/:id", h.UpdateEntity)
	entities.DELETE("/:id", h.DeleteEntity)
	entities.POST("/:id/restore", h.RestoreEntity)
	entities.GET("/:id/history", h.EntityHistory)
	entities.GET("/:id/versions/:version", h.EntityVersion)

	api.GET("/view/:type", h.View)
	api.GET("/branches", h.ListBranches)

	cos := api.Group("/change-orders")
	cos.POST("", h.CreateChangeOrder)
	cos.GET("", h.ListChangeOrders)
	cos.GET("/:id", h.GetChangeOrder)
	cos.GET("/:id/diff", h.DiffChangeOrder)
	cos.POST("/:id/approve", h.ApproveChangeOrder)
	cos.POST("/:id/reopen", h.ReopenChangeOrder)
	cos.POST("/:id/execute", h.ExecuteChangeOrder)
	cos.POST("/:id/cancel", h.CancelChangeOrder)
}

// corsMiddleware adds CORS headers for the API.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Actor")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts the web server and blocks until it stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.addr).Msg("web server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
