package runs

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/compeek/compeek/internal/common/constants"
	"github.com/compeek/compeek/internal/common/httpmw"
	"github.com/compeek/compeek/internal/common/logger"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

// Server is the HTTP front of a Manager.
type Server struct {
	addr    string
	manager *Manager
	router  *gin.Engine
	started time.Time
	logger  *logger.Logger
}

// NewServer wires the run API. An empty token disables bearer auth.
func NewServer(addr, token string, manager *Manager, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	s := &Server{
		addr:    addr,
		manager: manager,
		started: time.Now(),
		logger:  log.WithFields(zap.String("component", "run-server")),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmw.CORS())
	r.Use(httpmw.OtelTracing("compeek-runs"))
	r.Use(httpmw.RequestLogger(s.logger, "run-server", "/api/health"))
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, v1.HealthResponse{Status: "ok", Uptime: time.Since(s.started).Seconds()})
	})
	RegisterRoutes(r.Group("", httpmw.BearerAuth(token)), manager, s.logger)
	s.router = r
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then stops live runs and shuts down.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("run server listening", zap.String("addr", s.addr))
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

	s.logger.Info("shutting down run server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	if err := s.manager.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("runs did not stop in time", zap.Error(err))
	}
	return srv.Shutdown(shutdownCtx)
}
