// Package server exposes a small read-only JSON API over the tool's state:
// the Q-table, the reward history in the episode log, recent runs and the
// current channel balance classes.
package server

import (
  "context"
  "errors"
  "net/http"
  "time"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/config"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/episodes"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/node"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/store"

  "github.com/go-chi/chi/v5"
  "github.com/go-chi/chi/v5/middleware"
)

type loggerLike interface {
  Printf(format string, v ...any)
}

type Server struct {
  cfg *config.Config
  logger loggerLike
  episodes *episodes.Log
  store *store.Store
  backend node.Backend
  metrics *metrics
}

// New builds the API. backend and st may be nil; the endpoints that need
// them answer 503. GET /metrics serves Prometheus gauges over the same files.
func New(cfg *config.Config, backend node.Backend, st *store.Store, logger loggerLike) *Server {
  s := &Server{
    cfg: cfg,
    logger: logger,
    episodes: episodes.Open(cfg.EpisodeLogPath(), logger),
    store: st,
    backend: backend,
  }
  s.metrics = s.newMetrics()
  return s
}

func (s *Server) Handler() http.Handler {
  return s.routes()
}

func (s *Server) routes() http.Handler {
  r := chi.NewRouter()
  r.Use(middleware.RequestID)
  r.Use(middleware.Recoverer)
  r.Use(s.metrics.instrument)
  r.Method(http.MethodGet, "/metrics", s.metrics.handler())
  r.Route("/api", func(r chi.Router) {
    r.Get("/health", s.handleHealth)
    r.Get("/qtable", s.handleQTable)
    r.Get("/qtable/{state}", s.handleQTableState)
    r.Get("/episodes/summary", s.handleEpisodeSummary)
    r.Get("/runs", s.handleRuns)
    r.Get("/channels", s.handleChannels)
  })
  return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
  httpServer := &http.Server{
    Addr: s.cfg.Server.Listen,
    Handler: s.routes(),
    ReadHeaderTimeout: 10 * time.Second,
  }

  errCh := make(chan error, 1)
  go func() {
    s.logger.Printf("listening on http://%s", s.cfg.Server.Listen)
    errCh <- httpServer.ListenAndServe()
  }()

  select {
  case err := <-errCh:
    if errors.Is(err, http.ErrServerClosed) {
      return nil
    }
    return err
  case <-ctx.Done():
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    return httpServer.Shutdown(shutdownCtx)
  }
}
