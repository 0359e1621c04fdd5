// Package autofee runs one fee adjustment cycle: read the node, decide per
// channel, push the new fee policies, score each channel and append the
// transitions to the episode log.
package autofee

import (
  "context"
  "errors"
  "fmt"
  "math"
  "math/rand"
  "time"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/config"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/episodes"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/logging"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/node"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/qlearn"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/store"
)

const (
  StatusApplied = "applied"
  StatusSkipped = "skipped"
  StatusInactive = "inactive"
  StatusError = "error"
)

type Options struct {
  Backend node.Backend
  Episodes *episodes.Log
  Store *store.Store
  Fee config.FeeConfig
  CheckpointPath string
  // Persist controls whether the trained table is written back. Dry runs
  // train in memory only.
  Persist bool
  Policy string
  Rand *rand.Rand
  Logger logging.Logger
}

type Controller struct {
  backend node.Backend
  episodes *episodes.Log
  store *store.Store
  cfg config.FeeConfig
  checkpointPath string
  persist bool
  policy string
  rand *rand.Rand
  logger logging.Logger
  now func() time.Time
}

func New(opts Options) (*Controller, error) {
  if opts.Backend == nil {
    return nil, errors.New("autofee: backend required")
  }
  if opts.Episodes == nil {
    return nil, errors.New("autofee: episode log required")
  }
  if opts.Rand == nil {
    opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
  }
  if opts.Logger == nil {
    opts.Logger = logging.Discard
  }
  return &Controller{
    backend: opts.Backend,
    episodes: opts.Episodes,
    store: opts.Store,
    cfg: opts.Fee,
    checkpointPath: opts.CheckpointPath,
    persist: opts.Persist,
    policy: opts.Policy,
    rand: opts.Rand,
    logger: opts.Logger,
    now: time.Now,
  }, nil
}

type Decision struct {
  ChannelID uint64
  Alias string
  State int
  Action qlearn.Action
  Reason string
  Adjustment float64
  CurrentRate float64
  NewRate float64
  NextState int
  Reward float64
  Status string
  Err error
}

type Summary struct {
  RunID string
  Mode string
  StartedAt time.Time
  FinishedAt time.Time
  Channels int
  Raised int
  Lowered int
  Skipped int
  Inactive int
  Errors int
  TotalReward float64
  Train qlearn.TrainStats
  Saved bool
  Decisions []Decision
}

type choice struct {
  action qlearn.Action
  reason string
}

// Run executes one cycle. Failing to list channels or forwards aborts the
// cycle before anything is changed; a failure on one channel only skips that
// channel.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
  started := c.now()
  summary := Summary{
    RunID: fmt.Sprintf("fee-%d", started.UnixNano()),
    Mode: c.cfg.Mode,
    StartedAt: started,
  }

  channels, err := c.backend.ListChannels(ctx)
  if err != nil {
    return summary, fmt.Errorf("autofee: %w", err)
  }
  forwards, err := c.backend.ForwardingHistory(ctx, c.cfg.AggregationDays)
  if err != nil {
    return summary, fmt.Errorf("autofee: %w", err)
  }
  summary.Channels = len(channels)
  c.logger.Printf("autofee: %d channels, %d forwards over %d days", len(channels), len(forwards), c.cfg.AggregationDays)

  active := make([]node.Channel, 0, len(channels))
  for _, ch := range channels {
    if !ch.Active {
      summary.Inactive++
      summary.Decisions = append(summary.Decisions, Decision{ChannelID: ch.ID, Alias: ch.Name(), Status: StatusInactive})
      c.logger.Printf("autofee: %d (%s) inactive, skipped", ch.ID, ch.Name())
      continue
    }
    active = append(active, ch)
  }

  var table *qlearn.Table
  choices := make(map[uint64]choice, len(active))
  if c.cfg.Mode == config.ModeRules {
    for id, d := range RuleActions(active, forwards) {
      choices[id] = choice{action: d.Action, reason: d.Reason}
    }
  } else {
    table = qlearn.LoadOrZero(c.checkpointPath, c.logger)
    trainer := qlearn.Trainer{Alpha: c.cfg.Alpha, Gamma: c.cfg.Gamma, RewardDivisor: c.cfg.RewardDivisor, Logger: c.logger}
    stats, err := trainer.Train(table, c.episodes)
    summary.Train = stats
    if err != nil {
      return summary, fmt.Errorf("autofee: %w", err)
    }
    c.logger.Printf("autofee: trained on %d rows (%d skipped)", stats.Applied, stats.Skipped)

    rates := make(map[uint64]float64, len(active))
    for _, ch := range active {
      rates[ch.ID] = ch.FeeRate
    }
    sel := qlearn.Selector{Epsilon: c.cfg.Epsilon, Rand: c.rand}
    for id, ch := range sel.Select(table, rates) {
      choices[id] = choice{action: ch.Action, reason: ch.Reason}
    }
  }

  var transitions []episodes.Transition
  for _, ch := range active {
    pick := choices[ch.ID]
    d := c.apply(ctx, ch, pick, forwards)
    summary.Decisions = append(summary.Decisions, d)
    switch d.Status {
    case StatusApplied:
      if d.Action == qlearn.Raise {
        summary.Raised++
      } else {
        summary.Lowered++
      }
      summary.TotalReward += d.Reward
      transitions = append(transitions, episodes.Transition{
        Date: started,
        State: d.State,
        ChannelID: d.ChannelID,
        Alias: d.Alias,
        Increase: d.Action.Increase(),
        Reason: d.Reason,
        AdjustmentAmount: d.Adjustment,
        Reward: d.Reward,
        NextState: d.NextState,
      })
    case StatusSkipped:
      summary.Skipped++
    case StatusError:
      summary.Errors++
    }
  }

  if err := c.episodes.Append(transitions); err != nil {
    return summary, fmt.Errorf("autofee: append episode log: %w", err)
  }

  if table != nil && c.persist {
    if err := qlearn.Save(c.checkpointPath, table); err != nil {
      return summary, fmt.Errorf("autofee: save q-table: %w", err)
    }
    summary.Saved = true
  }

  summary.FinishedAt = c.now()
  c.mirror(ctx, summary, transitions)
  c.logger.Printf("autofee: run %s done | up %d | down %d | skipped %d | inactive %d | errors %d | reward %.3f",
    summary.RunID, summary.Raised, summary.Lowered, summary.Skipped, summary.Inactive, summary.Errors, summary.TotalReward)
  return summary, nil
}

func (c *Controller) apply(ctx context.Context, ch node.Channel, pick choice, forwards []node.ForwardingEvent) Decision {
  d := Decision{
    ChannelID: ch.ID,
    Alias: ch.Name(),
    State: qlearn.Encode(ch.FeeRate),
    Action: pick.action,
    Reason: pick.reason,
    CurrentRate: ch.FeeRate,
  }
  d.NewRate, d.Adjustment = NextFeeRate(ch.FeeRate, pick.action, c.cfg.IncreaseStep, c.cfg.DecreaseStep)
  d.NextState = qlearn.Encode(d.NewRate)

  logging.Debugf(c.logger, "autofee: %d (%s) state %d %s by %g (%s): %g -> %g",
    ch.ID, d.Alias, d.State, d.Action, d.Adjustment, d.Reason, d.CurrentRate, d.NewRate)

  err := c.backend.UpdateFeePolicy(ctx, node.FeePolicyUpdate{
    ChannelID: ch.ID,
    ChannelPoint: ch.ChannelPoint,
    Alias: d.Alias,
    FeeRate: d.NewRate,
    BaseFeeMsat: ch.BaseFeeMsat,
    TimeLockDelta: ch.TimeLockDelta,
    MinHtlcMsat: c.cfg.MinHtlcMsat,
  })
  switch {
  case err == nil:
    d.Status = StatusApplied
  case node.Skipped(err):
    d.Status = StatusSkipped
    d.Err = err
    return d
  default:
    d.Status = StatusError
    d.Err = err
    c.logger.Printf("autofee: %d (%s) fee update failed: %v", ch.ID, d.Alias, err)
    return d
  }

  d.Reward = ChannelReward(ch.ID, forwards, c.cfg.VolumeNormalization)
  c.logger.Printf("autofee: %d (%s) %s %g -> %g (%s), reward %.3f", ch.ID, d.Alias, d.Action, d.CurrentRate, d.NewRate, d.Reason, d.Reward)
  return d
}

// NextFeeRate steps current up or down and rounds the result to what lnd
// can store (whole ppm). The returned adjustment is the configured step.
func NextFeeRate(current float64, action qlearn.Action, increaseStep, decreaseStep float64) (float64, float64) {
  if math.IsNaN(current) || current < 0 {
    current = 0
  }
  var next, step float64
  if action == qlearn.Raise {
    step = increaseStep
    next = current + step
  } else {
    step = decreaseStep
    next = math.Max(0, current-step)
  }
  return node.PpmToFeeRate(node.FeeRateToPpm(next)), step
}

func (c *Controller) mirror(ctx context.Context, summary Summary, transitions []episodes.Transition) {
  if c.store == nil {
    return
  }
  rows := make([]store.Transition, 0, len(transitions))
  for _, t := range transitions {
    rows = append(rows, store.Transition{
      RunID: summary.RunID,
      OccurredAt: t.Date,
      ChanID: t.ChannelID,
      Alias: t.Alias,
      State: t.State,
      Increase: t.Increase,
      Reason: t.Reason,
      AdjustmentAmount: t.AdjustmentAmount,
      Reward: t.Reward,
      NextState: t.NextState,
    })
  }
  if err := c.store.InsertTransitions(ctx, rows); err != nil {
    c.logger.Printf("autofee: transition insert failed: %v", err)
  }
  err := c.store.UpsertRun(ctx, store.Run{
    RunID: summary.RunID,
    StartedAt: summary.StartedAt,
    FinishedAt: summary.FinishedAt,
    Mode: summary.Mode,
    Policy: c.policy,
    Channels: summary.Channels,
    Raised: summary.Raised,
    Lowered: summary.Lowered,
    Skipped: summary.Skipped + summary.Inactive,
    Errors: summary.Errors,
    TotalReward: summary.TotalReward,
  })
  if err != nil {
    c.logger.Printf("autofee: run summary insert failed: %v", err)
  }
}
