// Package episodes is the append-only CSV record of fee decisions. Every fee
// cycle appends one row per adjusted channel and the trainer replays the
// whole file, oldest row first.
package episodes

import (
  "encoding/csv"
  "errors"
  "fmt"
  "io"
  "math"
  "os"
  "path/filepath"
  "strconv"
  "strings"
  "time"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/qlearn"
)

const DateLayout = "2006-01-02 15:04:05"

var Header = []string{"Date", "State", "Channel ID", "Alias", "Increase", "Reason", "Adjustment Amount", "Reward", "Next State"}

var ErrMalformedRow = errors.New("malformed episode row")

type Transition struct {
  Date time.Time
  State int
  ChannelID uint64
  Alias string
  Increase bool
  Reason string
  AdjustmentAmount float64
  Reward float64
  NextState int
}

func (t Transition) Action() qlearn.Action {
  return qlearn.ActionFromIncrease(t.Increase)
}

type RowError struct {
  Line int
  Reason string
}

func (e *RowError) Error() string {
  return fmt.Sprintf("%s at line %d: %s", ErrMalformedRow, e.Line, e.Reason)
}

func (e *RowError) Unwrap() error {
  return ErrMalformedRow
}

type loggerLike interface {
  Printf(format string, v ...any)
}

type Log struct {
  path string
  logger loggerLike
  loc *time.Location
}

func Open(path string, logger loggerLike) *Log {
  return &Log{path: path, logger: logger, loc: time.Local}
}

func (l *Log) Path() string {
  return l.path
}

// Append writes rows at the end of the log, creating it with a header when
// it does not exist yet.
func (l *Log) Append(rows []Transition) error {
  if len(rows) == 0 {
    return nil
  }
  if err := os.MkdirAll(filepath.Dir(l.path), 0750); err != nil {
    return fmt.Errorf("create episode log dir: %w", err)
  }
  f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
  if err != nil {
    return fmt.Errorf("open episode log: %w", err)
  }
  defer f.Close()

  info, err := f.Stat()
  if err != nil {
    return fmt.Errorf("stat episode log: %w", err)
  }
  w := csv.NewWriter(f)
  if info.Size() == 0 {
    if err := w.Write(Header); err != nil {
      return err
    }
  }
  for _, row := range rows {
    if err := w.Write(formatRow(row)); err != nil {
      return err
    }
  }
  w.Flush()
  if err := w.Error(); err != nil {
    return fmt.Errorf("write episode log: %w", err)
  }
  return f.Sync()
}

// Read parses every row in file order. Malformed rows are logged and
// counted, never returned. A missing file reads as empty.
func (l *Log) Read() ([]Transition, int, error) {
  var out []Transition
  skipped, err := l.each(func(t Transition) { out = append(out, t) })
  return out, skipped, err
}

// Samples feeds the log to the trainer.
func (l *Log) Samples(visit func(qlearn.Sample)) (int, error) {
  return l.each(func(t Transition) {
    visit(qlearn.Sample{State: t.State, Action: t.Action(), Reward: t.Reward, NextState: t.NextState})
  })
}

func (l *Log) each(visit func(Transition)) (int, error) {
  f, err := os.Open(l.path)
  if err != nil {
    if errors.Is(err, os.ErrNotExist) {
      return 0, nil
    }
    return 0, fmt.Errorf("open episode log: %w", err)
  }
  defer f.Close()
  return l.scan(f, visit)
}

func (l *Log) scan(r io.Reader, visit func(Transition)) (int, error) {
  reader := csv.NewReader(r)
  reader.FieldsPerRecord = -1

  header, err := reader.Read()
  if err == io.EOF {
    return 0, nil
  }
  if err != nil {
    return 0, fmt.Errorf("read episode log header: %w", err)
  }
  cols, err := columnIndex(header)
  if err != nil {
    return 0, err
  }

  skipped := 0
  for {
    record, err := reader.Read()
    if err == io.EOF {
      break
    }
    if err != nil {
      var perr *csv.ParseError
      if errors.As(err, &perr) {
        skipped++
        l.logf("episodes: skipping row: %v", &RowError{Line: perr.Line, Reason: perr.Err.Error()})
        continue
      }
      return skipped, fmt.Errorf("read episode log: %w", err)
    }
    line, _ := reader.FieldPos(0)
    t, err := parseRow(record, cols, l.loc)
    if err != nil {
      skipped++
      l.logf("episodes: skipping row: %v", &RowError{Line: line, Reason: err.Error()})
      continue
    }
    visit(t)
  }
  return skipped, nil
}

func (l *Log) logf(format string, v ...any) {
  if l.logger != nil {
    l.logger.Printf(format, v...)
  }
}

func formatRow(t Transition) []string {
  increase := "False"
  if t.Increase {
    increase = "True"
  }
  return []string{
    t.Date.Format(DateLayout),
    strconv.Itoa(qlearn.ClampState(t.State)),
    strconv.FormatUint(t.ChannelID, 10),
    t.Alias,
    increase,
    t.Reason,
    strconv.FormatFloat(t.AdjustmentAmount, 'g', -1, 64),
    strconv.FormatFloat(t.Reward, 'g', -1, 64),
    strconv.Itoa(qlearn.ClampState(t.NextState)),
  }
}

type columns map[string]int

func columnIndex(header []string) (columns, error) {
  cols := columns{}
  for i, name := range header {
    cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
  }
  for _, required := range []string{"State", "Increase", "Reward", "Next State"} {
    if _, ok := cols[required]; !ok {
      return nil, fmt.Errorf("episode log header lacks %q column", required)
    }
  }
  return cols, nil
}

func (c columns) get(record []string, name string) (string, bool) {
  i, ok := c[name]
  if !ok || i >= len(record) {
    return "", false
  }
  return strings.TrimSpace(record[i]), true
}

func parseRow(record []string, cols columns, loc *time.Location) (Transition, error) {
  var t Transition
  var err error

  stateRaw, ok := cols.get(record, "State")
  if !ok {
    return t, errors.New("missing State")
  }
  if t.State, err = parseState(stateRaw); err != nil {
    return t, fmt.Errorf("State: %w", err)
  }
  nextRaw, ok := cols.get(record, "Next State")
  if !ok {
    return t, errors.New("missing Next State")
  }
  if t.NextState, err = parseState(nextRaw); err != nil {
    return t, fmt.Errorf("Next State: %w", err)
  }
  incRaw, ok := cols.get(record, "Increase")
  if !ok {
    return t, errors.New("missing Increase")
  }
  if t.Increase, err = parseIncrease(incRaw); err != nil {
    return t, err
  }
  rewardRaw, ok := cols.get(record, "Reward")
  if !ok {
    return t, errors.New("missing Reward")
  }
  if t.Reward, err = parseFinite(rewardRaw); err != nil {
    return t, fmt.Errorf("Reward: %w", err)
  }

  if raw, ok := cols.get(record, "Date"); ok && raw != "" {
    if t.Date, err = time.ParseInLocation(DateLayout, raw, loc); err != nil {
      return t, fmt.Errorf("Date: %q", raw)
    }
  }
  if raw, ok := cols.get(record, "Channel ID"); ok && raw != "" {
    if t.ChannelID, err = strconv.ParseUint(raw, 10, 64); err != nil {
      return t, fmt.Errorf("Channel ID: %q", raw)
    }
  }
  t.Alias, _ = cols.get(record, "Alias")
  t.Reason, _ = cols.get(record, "Reason")
  if raw, ok := cols.get(record, "Adjustment Amount"); ok && raw != "" {
    if t.AdjustmentAmount, err = parseFinite(raw); err != nil {
      return t, fmt.Errorf("Adjustment Amount: %w", err)
    }
  }
  return t, nil
}

// parseState accepts a bucket index, or a decimal fee rate as older logs
// stored it, which is encoded into its bucket.
func parseState(raw string) (int, error) {
  if n, err := strconv.Atoi(raw); err == nil {
    return qlearn.ClampState(n), nil
  }
  f, err := parseFinite(raw)
  if err != nil {
    return 0, err
  }
  return qlearn.Encode(f), nil
}

func parseIncrease(raw string) (bool, error) {
  switch strings.ToLower(raw) {
  case "true", "1":
    return true, nil
  case "false", "0":
    return false, nil
  }
  return false, fmt.Errorf("Increase: %q", raw)
}

func parseFinite(raw string) (float64, error) {
  f, err := strconv.ParseFloat(raw, 64)
  if err != nil {
    return 0, fmt.Errorf("%q is not a number", raw)
  }
  if math.IsNaN(f) || math.IsInf(f, 0) {
    return 0, fmt.Errorf("%q is not finite", raw)
  }
  return f, nil
}
