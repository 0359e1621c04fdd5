package main

import (
  "context"
  "errors"
  "fmt"
  "os"
  "os/signal"
  "syscall"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/config"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/lndclient"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/logging"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/node"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/runlock"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/store"

  "github.com/sirupsen/logrus"
  "github.com/spf13/cobra"
  "github.com/spf13/pflag"
)

var version = "dev"

var (
  configPath string
  logLevel string
)

var RootCmd = &cobra.Command{
  Use: "channel-tools",
  Short: "Fee learning and rebalancing for an LND node",
  SilenceUsage: true,
}

var versionCmd = &cobra.Command{
  Use: "version",
  Short: "Print the version",
  Run: func(cmd *cobra.Command, args []string) {
    fmt.Fprintln(cmd.OutOrStdout(), version)
  },
}

func init() {
  RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (default $"+config.EnvConfigPath+" or "+config.DefaultPath+")")
  RootCmd.PersistentFlags().StringVar(&logLevel, "log", "", "Log level override: debug, info, warn, error")
  RootCmd.AddCommand(versionCmd, feeRunCmd, rebalanceRunCmd, trainCmd, qtableCmd, analyzeCmd, serveCmd)
}

func main() {
  if err := RootCmd.Execute(); err != nil {
    if errors.Is(err, runlock.ErrLocked) {
      os.Exit(2)
    }
    os.Exit(1)
  }
}

// env holds what every subcommand needs once the config is loaded.
type env struct {
  cfg *config.Config
  log *logrus.Logger
}

func loadEnv() (*env, error) {
  path := configPath
  if path == "" {
    path = config.ResolvePath()
  }
  cfg, err := config.Load(path)
  if err != nil {
    return nil, err
  }
  if logLevel != "" {
    cfg.Logging.Level = logLevel
  }
  logger, err := logging.New(logging.Options{
    Level: cfg.Logging.Level,
    File: cfg.Logging.File,
    Format: cfg.Logging.Format,
  })
  if err != nil {
    return nil, err
  }
  logging.Debugf(logger, "config loaded from %s", path)
  return &env{cfg: cfg, log: logger}, nil
}

func (e *env) lock() (*runlock.Lock, error) {
  return runlock.Acquire(e.cfg.Data.Dir)
}

func (e *env) release(l *runlock.Lock) {
  if err := l.Release(); err != nil {
    e.log.Warnf("release run lock: %v", err)
  }
}

// openStore connects the optional database mirror. A broken mirror never
// blocks a run; it is logged and dropped.
func (e *env) openStore(ctx context.Context) *store.Store {
  st, err := store.Open(ctx, e.cfg.Storage.PostgresDSN)
  if err != nil {
    e.log.Warnf("storage disabled: %v", err)
    return nil
  }
  if err := st.EnsureSchema(ctx); err != nil {
    e.log.Warnf("storage disabled: %v", err)
    st.Close()
    return nil
  }
  return st
}

func (e *env) lnd() *node.LND {
  client := lndclient.New(e.cfg.LND, e.log)
  return node.NewLND(client, node.LNDOptions{
    TimeLockDelta: e.cfg.Fee.TimeLockDelta,
    InvoiceExpirySec: e.cfg.Rebalance.InvoiceExpirySec,
  })
}

// guarded wraps the node backend with the configured confirm policy.
func (e *env) guarded() *node.Guard {
  policy := node.Policy(e.cfg.Confirm.Mode)
  var prompter node.Prompter
  if policy == node.PolicyConfirm {
    prompter = node.TerminalPrompter()
    if prompter == nil {
      e.log.Warnf("confirm mode without a terminal, every change will be declined")
    }
  }
  return node.NewGuard(e.lnd(), policy, prompter, e.log)
}

func signalContext() (context.Context, context.CancelFunc) {
  return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func addPolicyFlags(f *pflag.FlagSet, dryRun, confirm *bool, dryRunHelp string) {
  f.BoolVar(dryRun, "dry-run", false, dryRunHelp)
  f.BoolVar(confirm, "confirm", false, "Ask before every change on the node")
}

// applyPolicyFlags lets --dry-run and --confirm override the config file.
func applyPolicyFlags(cfg *config.Config, dryRun, confirm bool) error {
  if dryRun && confirm {
    return errors.New("--dry-run and --confirm are mutually exclusive")
  }
  switch {
  case dryRun:
    cfg.Confirm.Mode = config.ConfirmDryRun
  case confirm:
    cfg.Confirm.Mode = config.ConfirmPrompt
  }
  return cfg.Validate()
}
