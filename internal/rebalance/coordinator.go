package rebalance

import (
  "context"
  "errors"
  "fmt"
  "time"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/config"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/logging"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/node"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/store"
)

const (
  StopMaxSucceeded = "max successes reached"
  StopMaxAttempts = "max attempts reached"
  StopNoCandidates = "no candidate pairs"
  StopDryRun = "dry run"
  StopDeclined = "declined by operator"
)

type Coordinator struct {
  backend node.Backend
  cfg config.RebalanceConfig
  store *store.Store
  logger logging.Logger
  now func() time.Time
}

func NewCoordinator(backend node.Backend, cfg config.RebalanceConfig, st *store.Store, logger logging.Logger) *Coordinator {
  if logger == nil {
    logger = logging.Discard
  }
  return &Coordinator{backend: backend, cfg: cfg, store: st, logger: logger, now: time.Now}
}

type Attempt struct {
  Iteration int
  From node.Channel
  To node.Channel
  Memo string
  FeeLimitSat int64
  // Paid is set once a payment actually left the node.
  Paid bool
  Succeeded bool
  FeeSat int64
  Err error
}

type Session struct {
  ID string
  Successes int
  // Attempts counts loop iterations; one iteration may try several pairs.
  Attempts int
  Payments []Attempt
  MovedSat int64
  FeeLimitSat int64
  StopReason string
}

// Run loops until enough rebalances succeeded, the attempt budget is spent,
// or no channel pair is left to try. Each iteration re-reads balances and
// walks the needing channels against the excess channels, first match wins.
func (c *Coordinator) Run(ctx context.Context) (Session, error) {
  limit := NewFeeLimit(c.cfg.FeeLimitStartSat, c.cfg.FeeLimitIncrementSat, c.cfg.FeeLimitDecrementSat)
  s := Session{ID: fmt.Sprintf("rb-%d", c.now().UnixNano())}

  for {
    if s.Successes >= c.cfg.MaxSucceeded {
      s.StopReason = StopMaxSucceeded
      break
    }
    if s.Attempts >= c.cfg.MaxAttempts {
      s.StopReason = StopMaxAttempts
      break
    }
    if err := ctx.Err(); err != nil {
      s.FeeLimitSat = limit.Current()
      return s, err
    }
    s.Attempts++
    c.logger.Printf("rebalance: iteration %d | successes %d (%d sat) | fee limit %d sat", s.Attempts, s.Successes, s.MovedSat, limit.Current())

    channels, err := c.backend.ListChannels(ctx)
    if err != nil {
      s.FeeLimitSat = limit.Current()
      return s, fmt.Errorf("rebalance: %w", err)
    }
    needing, excess := Classify(channels, c.cfg.LowRatio, c.cfg.HighRatio)
    for _, ch := range needing {
      logging.Debugf(c.logger, "rebalance: %d (%s) needs inbound, ratio %.3f", ch.ID, ch.Name(), Ratio(ch.LocalBalanceSat, ch.RemoteBalanceSat))
    }
    if len(needing) == 0 || len(excess) == 0 {
      s.StopReason = StopNoCandidates
      break
    }

    succeeded, err := c.iterate(ctx, &s, needing, excess, limit.Current())
    if errors.Is(err, node.ErrDryRun) {
      s.StopReason = StopDryRun
      break
    }
    if errors.Is(err, node.ErrDeclined) {
      s.StopReason = StopDeclined
      break
    }
    if succeeded {
      s.Successes++
      s.MovedSat += c.cfg.InvoiceSizeSat
      limit.RecordSuccess()
    } else {
      limit.RecordFailure()
    }
  }

  s.FeeLimitSat = limit.Current()
  c.logger.Printf("rebalance: session %s done (%s) | successes %d | attempts %d | moved %d sat | fee limit %d sat",
    s.ID, s.StopReason, s.Successes, s.Attempts, s.MovedSat, s.FeeLimitSat)
  return s, nil
}

// iterate tries pairs until one succeeds. When nothing was paid because the
// operator declined every pair it returns ErrDeclined, so the ceiling only
// moves after real payments.
func (c *Coordinator) iterate(ctx context.Context, s *Session, needing, excess []node.Channel, feeLimit int64) (bool, error) {
  paid, declined := false, false
  for _, low := range needing {
    for _, high := range excess {
      if high.ID == low.ID || high.Name() == low.Name() {
        continue
      }
      a := c.attempt(ctx, s.ID, s.Attempts, high, low, feeLimit)
      s.Payments = append(s.Payments, a)
      if errors.Is(a.Err, node.ErrDryRun) {
        return false, a.Err
      }
      if a.Succeeded {
        return true, nil
      }
      paid = paid || a.Paid
      declined = declined || errors.Is(a.Err, node.ErrDeclined)
    }
  }
  if declined && !paid {
    return false, node.ErrDeclined
  }
  return false, nil
}

func (c *Coordinator) attempt(ctx context.Context, sessionID string, iteration int, high, low node.Channel, feeLimit int64) Attempt {
  a := Attempt{Iteration: iteration, From: high, To: low, Memo: Memo(high.Name(), low.Name()), FeeLimitSat: feeLimit}
  c.logger.Printf("rebalance: trying %s -> %s (%s), fee limit %d sat", high.Name(), low.Name(), a.Memo, feeLimit)

  if err := c.cancelStale(ctx); errors.Is(err, node.ErrDryRun) {
    a.Err = err
    return a
  }

  inv, err := c.backend.CreateInvoice(ctx, c.cfg.InvoiceSizeSat, a.Memo)
  if err != nil {
    a.Err = err
    if node.Skipped(err) {
      return a
    }
    c.logger.Printf("rebalance: invoice for %s failed: %v", a.Memo, err)
    c.record(ctx, sessionID, a, "")
    return a
  }

  res, err := c.backend.PayInvoice(ctx, node.Payment{
    PaymentRequest: inv.PaymentRequest,
    FeeLimitSat: feeLimit,
    OutgoingChanID: high.ID,
    LastHopPubkey: low.RemotePubkey,
    Timeout: c.cfg.PaymentTimeout,
    Description: a.Memo,
  })
  a.Err = err
  if node.Skipped(err) {
    c.logger.Printf("rebalance: payment for %s skipped: %v", a.Memo, err)
    return a
  }
  a.Paid = true
  a.Succeeded = err == nil && res.Succeeded
  a.FeeSat = res.FeeSat
  switch {
  case a.Succeeded:
    c.logger.Printf("rebalance: %s succeeded, fee %d sat", a.Memo, res.FeeSat)
  case errors.Is(err, node.ErrNoRoute), errors.Is(err, node.ErrInsufficientBalance):
    c.logger.Printf("rebalance: %s failed: %v", a.Memo, err)
  case err != nil:
    c.logger.Printf("rebalance: %s payment error: %v", a.Memo, err)
  case err == nil:
    c.logger.Printf("rebalance: %s not settled: %s", a.Memo, res.Detail)
  }
  c.record(ctx, sessionID, a, res.Detail)
  return a
}

// cancelStale cancels open invoices left behind by earlier rebalances so
// they do not pile up on the node. Invoices that were not created by a
// rebalance are left alone.
func (c *Coordinator) cancelStale(ctx context.Context) error {
  pending, err := c.backend.ListPendingInvoices(ctx)
  if err != nil {
    c.logger.Printf("rebalance: list pending invoices failed: %v", err)
    return nil
  }
  for _, inv := range pending {
    if inv.AmountSat != c.cfg.InvoiceSizeSat || !isRebalanceMemo(inv.Memo) {
      continue
    }
    if err := c.backend.CancelInvoice(ctx, inv.PaymentHash); err != nil {
      if errors.Is(err, node.ErrDryRun) {
        return err
      }
      c.logger.Printf("rebalance: cancel invoice %s failed: %v", inv.PaymentHash, err)
      continue
    }
    logging.Debugf(c.logger, "rebalance: cancelled stale invoice %s (%s)", inv.PaymentHash, inv.Memo)
  }
  return nil
}

func (c *Coordinator) record(ctx context.Context, sessionID string, a Attempt, detail string) {
  if c.store == nil {
    return
  }
  if detail == "" && a.Err != nil {
    detail = a.Err.Error()
  }
  row := store.Attempt{
    SessionID: sessionID,
    AttemptedAt: c.now(),
    Iteration: a.Iteration,
    FromChanID: a.From.ID,
    ToChanID: a.To.ID,
    Memo: a.Memo,
    AmountSat: c.cfg.InvoiceSizeSat,
    FeeLimitSat: a.FeeLimitSat,
    Succeeded: a.Succeeded,
    Detail: detail,
  }
  if a.Succeeded {
    fee := a.FeeSat
    row.FeePaidSat = &fee
  }
  if err := c.store.InsertAttempt(ctx, row); err != nil {
    c.logger.Printf("rebalance: attempt insert failed: %v", err)
  }
}
