package main

import (
  "fmt"
  "io"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/autofee"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/config"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/episodes"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/qlearn"

  "github.com/logrusorgru/aurora"
  "github.com/spf13/cobra"
)

var feeRunFlags struct {
  dryRun bool
  confirm bool
  mode string
  epsilon float64
}

var feeRunCmd = &cobra.Command{
  Use: "fee-run",
  Short: "Run one fee adjustment cycle over all active channels",
  RunE: runFee,
}

func init() {
  f := feeRunCmd.Flags()
  addPolicyFlags(f, &feeRunFlags.dryRun, &feeRunFlags.confirm, "Decide and log but change nothing")
  f.StringVar(&feeRunFlags.mode, "mode", "", "Decision mode: learning or rules")
  f.Float64Var(&feeRunFlags.epsilon, "epsilon", 0, "Exploration probability for learning mode")
}

func runFee(cmd *cobra.Command, args []string) error {
  e, err := loadEnv()
  if err != nil {
    return err
  }
  if feeRunFlags.mode != "" {
    e.cfg.Fee.Mode = feeRunFlags.mode
  }
  if cmd.Flags().Changed("epsilon") {
    e.cfg.Fee.Epsilon = feeRunFlags.epsilon
  }
  if err := applyPolicyFlags(e.cfg, feeRunFlags.dryRun, feeRunFlags.confirm); err != nil {
    return err
  }

  lock, err := e.lock()
  if err != nil {
    return err
  }
  defer e.release(lock)

  ctx, cancel := signalContext()
  defer cancel()

  st := e.openStore(ctx)
  defer st.Close()

  ctrl, err := autofee.New(autofee.Options{
    Backend: e.guarded(),
    Episodes: episodes.Open(e.cfg.EpisodeLogPath(), e.log),
    Store: st,
    Fee: e.cfg.Fee,
    CheckpointPath: e.cfg.QTablePath(),
    Persist: e.cfg.Confirm.Mode != config.ConfirmDryRun,
    Policy: e.cfg.Confirm.Mode,
    Logger: e.log,
  })
  if err != nil {
    return err
  }
  summary, err := ctrl.Run(ctx)
  if err != nil {
    return err
  }
  printFeeSummary(cmd.OutOrStdout(), summary)
  return nil
}

func printFeeSummary(w io.Writer, s autofee.Summary) {
  for _, d := range s.Decisions {
    switch d.Status {
    case autofee.StatusInactive:
      fmt.Fprintf(w, "%-20d %-24s %s\n", d.ChannelID, d.Alias, aurora.Gray(12, "inactive"))
    case autofee.StatusError:
      fmt.Fprintf(w, "%-20d %-24s %s %v\n", d.ChannelID, d.Alias, aurora.Red("error"), d.Err)
    case autofee.StatusSkipped:
      fmt.Fprintf(w, "%-20d %-24s %s %.3f -> %.3f (%s)\n", d.ChannelID, d.Alias, aurora.Yellow("skipped"), d.CurrentRate, d.NewRate, d.Reason)
    default:
      verb := aurora.Cyan(d.Action.String())
      if d.Action == qlearn.Raise {
        verb = aurora.Green(d.Action.String())
      }
      fmt.Fprintf(w, "%-20d %-24s %s %.3f -> %.3f reward %.3f (%s)\n", d.ChannelID, d.Alias, verb, d.CurrentRate, d.NewRate, d.Reward, d.Reason)
    }
  }
  fmt.Fprintf(w, "%s mode=%s up=%d down=%d skipped=%d inactive=%d errors=%d reward=%.3f saved=%t\n",
    aurora.Bold("summary"), s.Mode, s.Raised, s.Lowered, s.Skipped, s.Inactive, s.Errors, s.TotalReward, s.Saved)
}
