// Package logging builds the process logger. Components only see the Printf
// style Logger interface so they can be handed a *logrus.Logger in production
// and a *log.Logger in tests.
package logging

import (
  "fmt"
  "io"
  "os"
  "strings"

  "github.com/rifflock/lfshook"
  "github.com/sirupsen/logrus"
  prefixed "github.com/x-cray/logrus-prefixed-formatter"
  "golang.org/x/term"
)

type Logger interface {
  Printf(format string, v ...any)
}

type Options struct {
  Level string
  File string
  // Format is "text", "json" or "auto" (text on a terminal, json otherwise).
  Format string
  Out io.Writer
}

func New(opts Options) (*logrus.Logger, error) {
  logger := logrus.New()
  out := opts.Out
  if out == nil {
    out = os.Stderr
  }
  logger.Out = out

  level, err := ParseLevel(opts.Level)
  if err != nil {
    return nil, err
  }
  logger.SetLevel(level)

  switch resolveFormat(opts.Format, out) {
  case "json":
    logger.Formatter = &logrus.JSONFormatter{}
  default:
    logger.Formatter = &prefixed.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"}
  }

  if path := strings.TrimSpace(opts.File); path != "" {
    f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
    if err != nil {
      return nil, fmt.Errorf("open log file: %w", err)
    }
    f.Close()
    logger.Hooks.Add(lfshook.NewHook(path, &logrus.TextFormatter{DisableColors: true, FullTimestamp: true}))
  }
  return logger, nil
}

func ParseLevel(l string) (logrus.Level, error) {
  switch strings.ToLower(strings.TrimSpace(l)) {
  case "", "info":
    return logrus.InfoLevel, nil
  case "debug":
    return logrus.DebugLevel, nil
  case "warn", "warning":
    return logrus.WarnLevel, nil
  case "error":
    return logrus.ErrorLevel, nil
  default:
    return logrus.InfoLevel, fmt.Errorf("unknown log level %q", l)
  }
}

// Debugf logs through the Debugf method when the logger has one and drops the
// line otherwise.
func Debugf(logger Logger, format string, v ...any) {
  if logger == nil {
    return
  }
  if d, ok := logger.(interface{ Debugf(string, ...any) }); ok {
    d.Debugf(format, v...)
  }
}

func resolveFormat(format string, out io.Writer) string {
  switch strings.ToLower(strings.TrimSpace(format)) {
  case "json":
    return "json"
  case "text":
    return "text"
  }
  if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
    return "text"
  }
  return "json"
}

type discard struct{}

func (discard) Printf(string, ...any) {}

// Discard drops every line.
var Discard Logger = discard{}
