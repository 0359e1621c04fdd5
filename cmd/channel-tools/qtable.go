package main

import (
  "errors"
  "fmt"
  "io"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/node"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/qlearn"

  "github.com/logrusorgru/aurora"
  "github.com/spf13/cobra"
)

var qtableFlags struct {
  all bool
  yes bool
}

var qtableCmd = &cobra.Command{
  Use: "qtable",
  Short: "Inspect or reset the learned Q-table",
}

var qtableShowCmd = &cobra.Command{
  Use: "show",
  Short: "Print learned values per fee state",
  RunE: runQTableShow,
}

var qtableResetCmd = &cobra.Command{
  Use: "reset",
  Short: "Overwrite the checkpoint with a zero table",
  RunE: runQTableReset,
}

func init() {
  qtableShowCmd.Flags().BoolVar(&qtableFlags.all, "all", false, "Include states that were never visited")
  qtableResetCmd.Flags().BoolVar(&qtableFlags.yes, "yes", false, "Do not ask for confirmation")
  qtableCmd.AddCommand(qtableShowCmd, qtableResetCmd)
}

func runQTableShow(cmd *cobra.Command, args []string) error {
  e, err := loadEnv()
  if err != nil {
    return err
  }
  tbl, err := qlearn.Load(e.cfg.QTablePath())
  if errors.Is(err, qlearn.ErrNoCheckpoint) {
    fmt.Fprintf(cmd.OutOrStdout(), "no checkpoint at %s\n", e.cfg.QTablePath())
    return nil
  }
  if err != nil {
    return err
  }

  states := tbl.NonZeroStates()
  if qtableFlags.all {
    states = states[:0]
    for s := 0; s < qlearn.NumStates; s++ {
      states = append(states, s)
    }
  }
  printTable(cmd.OutOrStdout(), tbl, states)
  return nil
}

func printTable(w io.Writer, tbl *qlearn.Table, states []int) {
  fmt.Fprintf(w, "%-6s %-9s %12s %12s\n", "state", "fee_rate", "lower", "raise")
  for _, s := range states {
    lower := aurora.Reset(fmt.Sprintf("%12.6f", tbl.Value(s, qlearn.Lower)))
    raise := aurora.Reset(fmt.Sprintf("%12.6f", tbl.Value(s, qlearn.Raise)))
    if tbl.BestAction(s) == qlearn.Raise {
      raise = aurora.Bold(aurora.Green(fmt.Sprintf("%12.6f", tbl.Value(s, qlearn.Raise))))
    } else {
      lower = aurora.Bold(aurora.Cyan(fmt.Sprintf("%12.6f", tbl.Value(s, qlearn.Lower))))
    }
    fmt.Fprintf(w, "%-6d %-9.2f %s %s\n", s, float64(s)/100, lower, raise)
  }
}

func runQTableReset(cmd *cobra.Command, args []string) error {
  e, err := loadEnv()
  if err != nil {
    return err
  }
  if !qtableFlags.yes {
    prompter := node.TerminalPrompter()
    if prompter == nil {
      return errors.New("refusing to reset without a terminal; pass --yes")
    }
    ok, err := prompter.Confirm(fmt.Sprintf("Reset the Q-table at %s?", e.cfg.QTablePath()))
    if err != nil {
      return err
    }
    if !ok {
      fmt.Fprintln(cmd.OutOrStdout(), "aborted")
      return nil
    }
  }

  lock, err := e.lock()
  if err != nil {
    return err
  }
  defer e.release(lock)

  if err := qlearn.Save(e.cfg.QTablePath(), qlearn.NewTable()); err != nil {
    return err
  }
  e.log.Infof("q-table at %s reset", e.cfg.QTablePath())
  return nil
}
