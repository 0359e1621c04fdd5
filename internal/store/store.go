// Package store mirrors fee transitions, run summaries and rebalance
// attempts into Postgres when a DSN is configured. The CSV episode log stays
// the source of truth for training; every method is a no-op on a nil Store.
package store

import (
  "context"
  "fmt"
  "strings"
  "time"

  "github.com/jackc/pgx/v5"
  "github.com/jackc/pgx/v5/pgtype"
  "github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
  db *pgxpool.Pool
}

func Open(ctx context.Context, dsn string) (*Store, error) {
  if strings.TrimSpace(dsn) == "" {
    return nil, nil
  }
  pool, err := pgxpool.New(ctx, dsn)
  if err != nil {
    return nil, fmt.Errorf("store: %w", err)
  }
  if err := pool.Ping(ctx); err != nil {
    pool.Close()
    return nil, fmt.Errorf("store: ping: %w", err)
  }
  return &Store{db: pool}, nil
}

func (s *Store) Close() {
  if s == nil || s.db == nil {
    return
  }
  s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
  if s == nil || s.db == nil {
    return nil
  }
  _, err := s.db.Exec(ctx, `
create table if not exists fee_runs (
  run_id text primary key,
  started_at timestamptz not null,
  finished_at timestamptz not null,
  mode text not null,
  policy text not null,
  channels integer not null default 0,
  raised integer not null default 0,
  lowered integer not null default 0,
  skipped integer not null default 0,
  errors integer not null default 0,
  total_reward double precision not null default 0,
  created_at timestamptz not null default now()
);

create table if not exists fee_transitions (
  id bigserial primary key,
  run_id text not null,
  occurred_at timestamptz not null,
  chan_id bigint not null,
  alias text not null default '',
  state smallint not null,
  increase boolean not null,
  reason text not null default '',
  adjustment_amount double precision not null default 0,
  reward double precision not null default 0,
  next_state smallint not null
);

create index if not exists fee_transitions_run_idx on fee_transitions (run_id);
create index if not exists fee_transitions_chan_idx on fee_transitions (chan_id, occurred_at desc);

create table if not exists rebalance_attempts (
  id bigserial primary key,
  session_id text not null,
  attempted_at timestamptz not null,
  iteration integer not null,
  from_chan_id bigint not null,
  to_chan_id bigint not null,
  memo text not null default '',
  amount_sat bigint not null,
  fee_limit_sat bigint not null,
  fee_paid_sat bigint null,
  succeeded boolean not null,
  detail text not null default ''
);

create index if not exists rebalance_attempts_session_idx on rebalance_attempts (session_id);
`)
  return err
}

type Transition struct {
  RunID string
  OccurredAt time.Time
  ChanID uint64
  Alias string
  State int
  Increase bool
  Reason string
  AdjustmentAmount float64
  Reward float64
  NextState int
}

type Run struct {
  RunID string `json:"run_id"`
  StartedAt time.Time `json:"started_at"`
  FinishedAt time.Time `json:"finished_at"`
  Mode string `json:"mode"`
  Policy string `json:"policy"`
  Channels int `json:"channels"`
  Raised int `json:"raised"`
  Lowered int `json:"lowered"`
  Skipped int `json:"skipped"`
  Errors int `json:"errors"`
  TotalReward float64 `json:"total_reward"`
}

type Attempt struct {
  SessionID string
  AttemptedAt time.Time
  Iteration int
  FromChanID uint64
  ToChanID uint64
  Memo string
  AmountSat int64
  FeeLimitSat int64
  FeePaidSat *int64
  Succeeded bool
  Detail string
}

func (s *Store) InsertTransitions(ctx context.Context, rows []Transition) error {
  if s == nil || s.db == nil || len(rows) == 0 {
    return nil
  }
  batch := &pgx.Batch{}
  for _, row := range rows {
    query, args := buildInsertTransition(row)
    batch.Queue(query, args...)
  }
  br := s.db.SendBatch(ctx, batch)
  defer br.Close()
  for range rows {
    if _, err := br.Exec(); err != nil {
      return err
    }
  }
  return nil
}

func (s *Store) UpsertRun(ctx context.Context, run Run) error {
  if s == nil || s.db == nil {
    return nil
  }
  query, args := buildUpsertRun(run)
  _, err := s.db.Exec(ctx, query, args...)
  return err
}

func (s *Store) InsertAttempt(ctx context.Context, a Attempt) error {
  if s == nil || s.db == nil {
    return nil
  }
  query, args := buildInsertAttempt(a)
  _, err := s.db.Exec(ctx, query, args...)
  return err
}

// RecentRuns returns up to limit run summaries, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
  if s == nil || s.db == nil {
    return nil, nil
  }
  if limit <= 0 {
    limit = 50
  }
  rows, err := s.db.Query(ctx, `
select run_id, started_at, finished_at, mode, policy, channels, raised, lowered, skipped, errors, total_reward
from fee_runs
order by started_at desc
limit $1
`, limit)
  if err != nil {
    return nil, err
  }
  defer rows.Close()

  var items []Run
  for rows.Next() {
    var run Run
    var channels, raised, lowered, skipped, errs pgtype.Int4
    if err := rows.Scan(&run.RunID, &run.StartedAt, &run.FinishedAt, &run.Mode, &run.Policy, &channels, &raised, &lowered, &skipped, &errs, &run.TotalReward); err != nil {
      return nil, err
    }
    run.Channels = int(channels.Int32)
    run.Raised = int(raised.Int32)
    run.Lowered = int(lowered.Int32)
    run.Skipped = int(skipped.Int32)
    run.Errors = int(errs.Int32)
    items = append(items, run)
  }
  return items, rows.Err()
}

func buildInsertTransition(row Transition) (string, []any) {
  return `insert into fee_transitions (run_id, occurred_at, chan_id, alias, state, increase, reason, adjustment_amount, reward, next_state) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
    []any{
      row.RunID,
      row.OccurredAt.UTC(),
      int64(row.ChanID),
      row.Alias,
      int16(row.State),
      row.Increase,
      row.Reason,
      row.AdjustmentAmount,
      row.Reward,
      int16(row.NextState),
    }
}

func buildUpsertRun(run Run) (string, []any) {
  args := []any{
    run.RunID,
    run.StartedAt.UTC(),
    run.FinishedAt.UTC(),
    run.Mode,
    run.Policy,
    run.Channels,
    run.Raised,
    run.Lowered,
    run.Skipped,
    run.Errors,
    run.TotalReward,
  }
  query := `
insert into fee_runs (
  run_id,
  started_at,
  finished_at,
  mode,
  policy,
  channels,
  raised,
  lowered,
  skipped,
  errors,
  total_reward
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
on conflict (run_id) do update set
  finished_at = excluded.finished_at,
  channels = excluded.channels,
  raised = excluded.raised,
  lowered = excluded.lowered,
  skipped = excluded.skipped,
  errors = excluded.errors,
  total_reward = excluded.total_reward
`
  return query, args
}

func buildInsertAttempt(a Attempt) (string, []any) {
  return `insert into rebalance_attempts (session_id, attempted_at, iteration, from_chan_id, to_chan_id, memo, amount_sat, fee_limit_sat, fee_paid_sat, succeeded, detail) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
    []any{
      a.SessionID,
      a.AttemptedAt.UTC(),
      a.Iteration,
      int64(a.FromChanID),
      int64(a.ToChanID),
      a.Memo,
      a.AmountSat,
      a.FeeLimitSat,
      nullableInt64(a.FeePaidSat),
      a.Succeeded,
      a.Detail,
    }
}

func nullableInt64(v *int64) any {
  if v == nil {
    return nil
  }
  return *v
}
