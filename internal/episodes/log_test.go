package episodes

import (
  "bytes"
  "log"
  "math"
  "os"
  "path/filepath"
  "strings"
  "testing"
  "time"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/qlearn"
)

func TestAppendWritesHeaderOnce(t *testing.T) {
  path := filepath.Join(t.TempDir(), "data", "fee_adjustment_data.csv")
  l := Open(path, nil)
  when := time.Date(2024, 5, 1, 10, 30, 0, 0, time.Local)
  first := []Transition{{Date: when, State: 10, ChannelID: 123, Alias: "alpha, beta", Increase: true, Reason: "exploitation", AdjustmentAmount: 0.01, Reward: 1500.5, NextState: 11}}
  second := []Transition{{Date: when.Add(time.Hour), State: 11, ChannelID: 456, Alias: "gamma", Reason: "Inactive channel", AdjustmentAmount: 0.005, NextState: 10}}
  if err := l.Append(first); err != nil {
    t.Fatalf("Append: %v", err)
  }
  if err := l.Append(second); err != nil {
    t.Fatalf("Append: %v", err)
  }

  raw, err := os.ReadFile(path)
  if err != nil {
    t.Fatalf("read: %v", err)
  }
  lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
  if len(lines) != 3 {
    t.Fatalf("expected header + 2 rows, got %d lines:\n%s", len(lines), raw)
  }
  if lines[0] != strings.Join(Header, ",") {
    t.Fatalf("unexpected header %q", lines[0])
  }
  if !strings.HasPrefix(lines[1], "2024-05-01 10:30:00,10,123,\"alpha, beta\",True,exploitation,0.01,1500.5,11") {
    t.Fatalf("unexpected row %q", lines[1])
  }

  rows, skipped, err := l.Read()
  if err != nil || skipped != 0 {
    t.Fatalf("Read: %v skipped=%d", err, skipped)
  }
  if len(rows) != 2 {
    t.Fatalf("expected 2 rows, got %d", len(rows))
  }
  if rows[0].Alias != "alpha, beta" || !rows[0].Increase || rows[0].Reward != 1500.5 || !rows[0].Date.Equal(when) {
    t.Fatalf("row 0 = %+v", rows[0])
  }
  if rows[1].Increase || rows[1].ChannelID != 456 || rows[1].NextState != 10 {
    t.Fatalf("row 1 = %+v", rows[1])
  }
}

func TestMissingLogReadsEmpty(t *testing.T) {
  l := Open(filepath.Join(t.TempDir(), "absent.csv"), nil)
  rows, skipped, err := l.Read()
  if err != nil || skipped != 0 || len(rows) != 0 {
    t.Fatalf("Read = %v, %d, %v", rows, skipped, err)
  }
}

func TestMalformedRowsAreSkippedNotFatal(t *testing.T) {
  body := strings.Join([]string{
    strings.Join(Header, ","),
    "2024-05-01 10:00:00,10,1,a,True,exploitation,0.01,500000,12",
    "2024-05-01 10:00:00,ten,2,b,True,exploitation,0.01,100,12",
    "2024-05-01 10:00:00,10,3,c,maybe,exploitation,0.01,100,12",
    "2024-05-01 10:00:00,10,4,d,False",
    "2024-05-01 10:00:00,10,5,e,False,exploration,0.005,NaN,9",
    "2024-05-01 10:00:00,20,6,f,false,exploration,0.005,250000,19",
  }, "\n") + "\n"
  path := filepath.Join(t.TempDir(), "log.csv")
  if err := os.WriteFile(path, []byte(body), 0600); err != nil {
    t.Fatalf("write: %v", err)
  }
  var buf bytes.Buffer
  l := Open(path, log.New(&buf, "", 0))
  rows, skipped, err := l.Read()
  if err != nil {
    t.Fatalf("Read: %v", err)
  }
  if skipped != 4 {
    t.Fatalf("skipped = %d, want 4", skipped)
  }
  if len(rows) != 2 || rows[0].ChannelID != 1 || rows[1].ChannelID != 6 {
    t.Fatalf("unexpected rows %+v", rows)
  }
  if !strings.Contains(buf.String(), "line 3") {
    t.Fatalf("skip not logged with its line: %q", buf.String())
  }
}

func TestTrainingFromLog(t *testing.T) {
  body := strings.Join(Header, ",") + "\n" +
    "2024-05-01 10:00:00,10,1,a,True,exploitation,0.01,500000,12\n" +
    "garbage,row\n" +
    "2024-05-01 10:00:00,30,2,b,1,exploitation,0.01,1000000,31\n"
  path := filepath.Join(t.TempDir(), "log.csv")
  if err := os.WriteFile(path, []byte(body), 0600); err != nil {
    t.Fatalf("write: %v", err)
  }

  tbl := qlearn.NewTable()
  tr := qlearn.Trainer{Alpha: 0.1, Gamma: 0.9, RewardDivisor: 1000000}
  stats, err := tr.Train(tbl, Open(path, nil))
  if err != nil {
    t.Fatalf("Train: %v", err)
  }
  if stats.Applied != 2 || stats.Skipped != 1 {
    t.Fatalf("stats = %+v", stats)
  }
  if got := tbl.Value(10, qlearn.Raise); math.Abs(got-0.05) > 1e-12 {
    t.Fatalf("Q[10,raise] = %v, want 0.05", got)
  }
  if got := tbl.Value(30, qlearn.Raise); math.Abs(got-0.1) > 1e-12 {
    t.Fatalf("row after the malformed one not applied: Q[30,raise] = %v", got)
  }
}

func TestParseStateAcceptsLegacyFeeRates(t *testing.T) {
  tests := []struct {
    raw string
    want int
  }{
    {raw: "12", want: 12},
    {raw: "0.12", want: 12},
    {raw: "-5", want: 0},
    {raw: "300", want: 100},
    {raw: "1.5", want: 100},
  }
  for _, tc := range tests {
    got, err := parseState(tc.raw)
    if err != nil {
      t.Fatalf("parseState(%q): %v", tc.raw, err)
    }
    if got != tc.want {
      t.Fatalf("parseState(%q) = %d, want %d", tc.raw, got, tc.want)
    }
  }
}
