package main

import (
  "fmt"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/rebalance"

  "github.com/logrusorgru/aurora"
  "github.com/spf13/cobra"
)

var rebalanceFlags struct {
  dryRun bool
  confirm bool
  maxSucceeded int
  maxAttempts int
}

var rebalanceRunCmd = &cobra.Command{
  Use: "rebalance-run",
  Short: "Move liquidity from full channels into drained ones with circular payments",
  RunE: runRebalance,
}

func init() {
  f := rebalanceRunCmd.Flags()
  addPolicyFlags(f, &rebalanceFlags.dryRun, &rebalanceFlags.confirm, "Classify channels and stop before paying")
  f.IntVar(&rebalanceFlags.maxSucceeded, "max-succeeded", 0, "Stop after this many successful payments")
  f.IntVar(&rebalanceFlags.maxAttempts, "max-attempts", 0, "Stop after this many iterations")
}

func runRebalance(cmd *cobra.Command, args []string) error {
  e, err := loadEnv()
  if err != nil {
    return err
  }
  if cmd.Flags().Changed("max-succeeded") {
    e.cfg.Rebalance.MaxSucceeded = rebalanceFlags.maxSucceeded
  }
  if cmd.Flags().Changed("max-attempts") {
    e.cfg.Rebalance.MaxAttempts = rebalanceFlags.maxAttempts
  }
  if err := applyPolicyFlags(e.cfg, rebalanceFlags.dryRun, rebalanceFlags.confirm); err != nil {
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

  coord := rebalance.NewCoordinator(e.guarded(), e.cfg.Rebalance, st, e.log)
  session, err := coord.Run(ctx)
  if err != nil {
    return err
  }

  w := cmd.OutOrStdout()
  for _, a := range session.Payments {
    status := aurora.Red("failed")
    if a.Succeeded {
      status = aurora.Green("ok")
    }
    fmt.Fprintf(w, "#%-4d %s -> %s fee %d/%d sat %s\n", a.Iteration, a.From.Name(), a.To.Name(), a.FeeSat, a.FeeLimitSat, status)
  }
  fmt.Fprintf(w, "%s %d succeeded, %d iterations, %d sat moved, stopped: %s\n",
    aurora.Bold("rebalance"), session.Successes, session.Attempts, session.MovedSat, session.StopReason)
  return nil
}
