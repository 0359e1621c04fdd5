package server

import (
  "errors"
  "net/http"
  "strconv"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/qlearn"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/reports"

  "github.com/go-chi/chi/v5"
  "github.com/go-chi/chi/v5/middleware"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "channel_tools"

type metrics struct {
  registry *prometheus.Registry
  requests *prometheus.CounterVec
}

// newMetrics registers gauges that read the checkpoint and the episode log
// on every scrape.
func (s *Server) newMetrics() *metrics {
  m := &metrics{
    registry: prometheus.NewRegistry(),
    requests: prometheus.NewCounterVec(prometheus.CounterOpts{
      Namespace: metricsNamespace,
      Name: "api_requests_total",
      Help: "API requests by route pattern and status code.",
    }, []string{"route", "code"}),
  }
  m.registry.MustRegister(
    m.requests,
    prometheus.NewGaugeFunc(prometheus.GaugeOpts{
      Namespace: metricsNamespace,
      Name: "qtable_learned_states",
      Help: "Fee states with at least one non-zero Q-value.",
    }, func() float64 {
      tbl, err := qlearn.Load(s.cfg.QTablePath())
      if err != nil {
        if !errors.Is(err, qlearn.ErrNoCheckpoint) {
          s.logger.Printf("metrics: load q-table: %v", err)
        }
        return 0
      }
      return float64(len(tbl.NonZeroStates()))
    }),
    prometheus.NewGaugeFunc(prometheus.GaugeOpts{
      Namespace: metricsNamespace,
      Name: "episode_cumulative_reward",
      Help: "Sum of rewards over every run in the episode log.",
    }, func() float64 {
      rows, _, err := s.episodes.Read()
      if err != nil {
        s.logger.Printf("metrics: read episode log: %v", err)
        return 0
      }
      runs := reports.CumulativeRewards(rows)
      if len(runs) == 0 {
        return 0
      }
      return runs[len(runs)-1].Cumulative
    }),
  )
  return m
}

func (m *metrics) handler() http.Handler {
  return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) instrument(next http.Handler) http.Handler {
  return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
    ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
    next.ServeHTTP(ww, r)
    route := "unmatched"
    if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
      route = rctx.RoutePattern()
    }
    status := ww.Status()
    if status == 0 {
      status = http.StatusOK
    }
    m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
  })
}
