// Package toolserver exposes an executor over a small HTTP API and the MCP
// streamable HTTP transport on one listener.
package toolserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/compeek/compeek/internal/common/constants"
	"github.com/compeek/compeek/internal/common/httpmw"
	"github.com/compeek/compeek/internal/common/logger"
	"github.com/compeek/compeek/internal/executor"
)

// Config holds the tool server settings.
type Config struct {
	Addr         string
	Token        string // empty disables bearer auth
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SessionIdle  time.Duration // 0 disables idle expiry
	MaxSessions  int
}

// Server is the container-side tool server.
type Server struct {
	cfg      Config
	exec     executor.Executor
	sessions *sessionRegistry
	router   *gin.Engine
	started  time.Time
	logger   *logger.Logger
}

// New wires routes for exec. MCP sessions each get a fresh MCP server over
// the same executor.
func New(cfg Config, exec executor.Executor, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 64
	}
	log = log.WithFields(zap.String("component", "tool-server"))

	s := &Server{
		cfg:     cfg,
		exec:    exec,
		started: time.Now(),
		logger:  log,
	}
	s.sessions = newSessionRegistry(func() *server.MCPServer {
		return NewMCPServer(exec, log)
	}, cfg.MaxSessions, log)
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmw.CORS())
	r.Use(httpmw.OtelTracing("compeek-tool-server"))
	r.Use(httpmw.RequestLogger(s.logger, "tool-server", "/api/health"))

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/info", s.handleInfo)

	authed := r.Group("", httpmw.BearerAuth(s.cfg.Token))
	authed.POST("/api/tool", s.handleTool)
	authed.POST("/api/bash", s.handleBash)

	mcpHandler := gin.WrapH(s.sessions)
	authed.POST("/mcp", mcpHandler)
	authed.GET("/mcp", mcpHandler)
	authed.DELETE("/mcp", mcpHandler)
	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	if s.cfg.SessionIdle > 0 {
		go s.expireSessions(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("tool server listening",
			zap.String("addr", s.cfg.Addr),
			zap.Bool("auth", s.cfg.Token != ""))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down tool server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	s.sessions.closeAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) expireSessions(ctx context.Context) {
	interval := s.cfg.SessionIdle / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.sessions.sweep(now, s.cfg.SessionIdle); n > 0 {
				s.logger.Debug("expired idle MCP sessions", zap.Int("count", n))
			}
		}
	}
}
