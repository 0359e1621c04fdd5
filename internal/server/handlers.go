package server

import (
  "context"
  "errors"
  "net/http"
  "strconv"
  "strings"
  "time"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/node"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/qlearn"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/rebalance"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/reports"

  "github.com/go-chi/chi/v5"
  "github.com/go-chi/chi/v5/middleware"
)

type qtableRow struct {
  State int `json:"state"`
  FeeRate float64 `json:"fee_rate"`
  Lower float64 `json:"lower"`
  Raise float64 `json:"raise"`
  Best string `json:"best"`
}

type qtableResponse struct {
  Checkpoint bool `json:"checkpoint"`
  Rows []qtableRow `json:"rows"`
}

type channelBalance struct {
  ChannelID uint64 `json:"chan_id"`
  Alias string `json:"alias"`
  LocalSat int64 `json:"local_sat"`
  RemoteSat int64 `json:"remote_sat"`
  Ratio float64 `json:"ratio"`
  Class string `json:"class"`
  FeeRate float64 `json:"fee_rate"`
  State int `json:"state"`
  Active bool `json:"active"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
  writeJSON(w, http.StatusOK, map[string]any{
    "status": "ok",
    "mode": s.cfg.Fee.Mode,
    "confirm": s.cfg.Confirm.Mode,
    "store": s.store != nil,
  })
}

func (s *Server) loadTable() (*qlearn.Table, bool, error) {
  tbl, err := qlearn.Load(s.cfg.QTablePath())
  if errors.Is(err, qlearn.ErrNoCheckpoint) {
    return qlearn.NewTable(), false, nil
  }
  if err != nil {
    return nil, false, err
  }
  return tbl, true, nil
}

func rowFor(tbl *qlearn.Table, state int) qtableRow {
  return qtableRow{
    State: state,
    FeeRate: float64(state) / 100,
    Lower: tbl.Value(state, qlearn.Lower),
    Raise: tbl.Value(state, qlearn.Raise),
    Best: tbl.BestAction(state).String(),
  }
}

func (s *Server) handleQTable(w http.ResponseWriter, r *http.Request) {
  tbl, ok, err := s.loadTable()
  if err != nil {
    s.logger.Printf("server [%s]: load q-table: %v", middleware.GetReqID(r.Context()), err)
    writeError(w, r, http.StatusInternalServerError, "failed to load q-table")
    return
  }
  all := r.URL.Query().Get("all") == "1"
  resp := qtableResponse{Checkpoint: ok, Rows: []qtableRow{}}
  if all {
    for state := 0; state < qlearn.NumStates; state++ {
      resp.Rows = append(resp.Rows, rowFor(tbl, state))
    }
  } else {
    for _, state := range tbl.NonZeroStates() {
      resp.Rows = append(resp.Rows, rowFor(tbl, state))
    }
  }
  writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQTableState(w http.ResponseWriter, r *http.Request) {
  state, err := strconv.Atoi(chi.URLParam(r, "state"))
  if err != nil || state < 0 || state > qlearn.MaxState {
    writeError(w, r, http.StatusBadRequest, "state must be an integer in [0, 100]")
    return
  }
  tbl, _, err := s.loadTable()
  if err != nil {
    writeError(w, r, http.StatusInternalServerError, "failed to load q-table")
    return
  }
  writeJSON(w, http.StatusOK, rowFor(tbl, state))
}

func (s *Server) handleEpisodeSummary(w http.ResponseWriter, r *http.Request) {
  rows, skipped, err := s.episodes.Read()
  if err != nil {
    s.logger.Printf("server [%s]: read episode log: %v", middleware.GetReqID(r.Context()), err)
    writeError(w, r, http.StatusInternalServerError, "failed to read episode log")
    return
  }
  writeJSON(w, http.StatusOK, map[string]any{
    "rows": len(rows),
    "skipped": skipped,
    "runs": reports.CumulativeRewards(rows),
  })
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
  if s.store == nil {
    writeError(w, r, http.StatusServiceUnavailable, "storage not configured")
    return
  }
  limit := 50
  if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
    n, err := strconv.Atoi(raw)
    if err != nil || n <= 0 || n > 1000 {
      writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 1000")
      return
    }
    limit = n
  }
  ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
  defer cancel()
  runs, err := s.store.RecentRuns(ctx, limit)
  if err != nil {
    s.logger.Printf("server [%s]: recent runs: %v", middleware.GetReqID(r.Context()), err)
    writeError(w, r, http.StatusInternalServerError, "failed to load runs")
    return
  }
  writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
  if s.backend == nil {
    writeError(w, r, http.StatusServiceUnavailable, "node backend not configured")
    return
  }
  ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
  defer cancel()
  channels, err := s.backend.ListChannels(ctx)
  if err != nil {
    status := http.StatusBadGateway
    if errors.Is(err, node.ErrBackendUnavailable) {
      status = http.StatusServiceUnavailable
    }
    writeError(w, r, status, err.Error())
    return
  }
  low, high := s.cfg.Rebalance.LowRatio, s.cfg.Rebalance.HighRatio
  out := make([]channelBalance, 0, len(channels))
  for _, ch := range channels {
    out = append(out, channelBalance{
      ChannelID: ch.ID,
      Alias: ch.Name(),
      LocalSat: ch.LocalBalanceSat,
      RemoteSat: ch.RemoteBalanceSat,
      Ratio: rebalance.Ratio(ch.LocalBalanceSat, ch.RemoteBalanceSat),
      Class: rebalance.ClassifyChannel(ch, low, high).String(),
      FeeRate: ch.FeeRate,
      State: qlearn.Encode(ch.FeeRate),
      Active: ch.Active,
    })
  }
  writeJSON(w, http.StatusOK, out)
}
