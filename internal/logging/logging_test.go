package logging

import (
  "bytes"
  "os"
  "path/filepath"
  "strings"
  "testing"

  "github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
  tests := []struct {
    in string
    want logrus.Level
    wantErr bool
  }{
    {in: "", want: logrus.InfoLevel},
    {in: "DEBUG", want: logrus.DebugLevel},
    {in: "warning", want: logrus.WarnLevel},
    {in: "error", want: logrus.ErrorLevel},
    {in: "loud", want: logrus.InfoLevel, wantErr: true},
  }
  for _, tc := range tests {
    got, err := ParseLevel(tc.in)
    if (err != nil) != tc.wantErr {
      t.Fatalf("ParseLevel(%q) err = %v", tc.in, err)
    }
    if got != tc.want {
      t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
    }
  }
}

func TestNewWritesJSONWhenNotATerminal(t *testing.T) {
  var buf bytes.Buffer
  logger, err := New(Options{Out: &buf})
  if err != nil {
    t.Fatalf("New: %v", err)
  }
  logger.Printf("autofee: %d channels", 3)
  if !strings.Contains(buf.String(), `"msg":"autofee: 3 channels"`) {
    t.Fatalf("expected json line, got %q", buf.String())
  }
}

func TestNewMirrorsToFile(t *testing.T) {
  path := filepath.Join(t.TempDir(), "tools.log")
  var buf bytes.Buffer
  logger, err := New(Options{Out: &buf, File: path, Format: "text"})
  if err != nil {
    t.Fatalf("New: %v", err)
  }
  logger.Printf("rebalance: session done")
  raw, err := os.ReadFile(path)
  if err != nil {
    t.Fatalf("read log file: %v", err)
  }
  if !strings.Contains(string(raw), "rebalance: session done") {
    t.Fatalf("log file missing line: %q", raw)
  }
}

func TestDebugfOnlyReachesLeveledLoggers(t *testing.T) {
  var buf bytes.Buffer
  logger, err := New(Options{Out: &buf, Level: "debug", Format: "json"})
  if err != nil {
    t.Fatalf("New: %v", err)
  }
  Debugf(logger, "train: row %d", 7)
  if !strings.Contains(buf.String(), "train: row 7") {
    t.Fatalf("debug line missing: %q", buf.String())
  }
  Debugf(Discard, "ignored")
  Debugf(nil, "ignored")
}
