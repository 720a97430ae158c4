package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/phuslu/log"

	"github.com/dyike/stella/config"
	"github.com/dyike/stella/internal/models"
	"github.com/dyike/stella/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// Runner answers queries. graph.Agent implements it.
type Runner interface {
	Run(ctx context.Context, req models.QueryRequest) string
	RunBatch(ctx context.Context, reqs []models.QueryRequest) []string
}

// HistoryLister pages through the query log.
type HistoryLister interface {
	List(ctx context.Context, cursor int64, limit int) ([]storage.QueryWithMeta, error)
}

type Server struct {
	cfg     config.ServerConfig
	runner  Runner
	history HistoryLister
	engine  *gin.Engine
}

// New builds the HTTP surface. history may be nil when the query log is
// disabled.
func New(cfg config.ServerConfig, runner Runner, history HistoryLister, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{cfg: cfg, runner: runner, history: history, engine: gin.New()}
	attachRoutes(s.engine, s)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info().Msg("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
