package main

import (
  "fmt"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/episodes"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/qlearn"

  "github.com/spf13/cobra"
)

var trainFlags struct {
  dryRun bool
  fresh bool
}

var trainCmd = &cobra.Command{
  Use: "train",
  Short: "Replay the episode log into the Q-table without touching the node",
  RunE: runTrain,
}

func init() {
  trainCmd.Flags().BoolVar(&trainFlags.dryRun, "dry-run", false, "Train in memory and do not save")
  trainCmd.Flags().BoolVar(&trainFlags.fresh, "fresh", false, "Start from a zero table instead of the checkpoint")
}

func runTrain(cmd *cobra.Command, args []string) error {
  e, err := loadEnv()
  if err != nil {
    return err
  }
  lock, err := e.lock()
  if err != nil {
    return err
  }
  defer e.release(lock)

  tbl := qlearn.NewTable()
  if !trainFlags.fresh {
    tbl = qlearn.LoadOrZero(e.cfg.QTablePath(), e.log)
  }
  trainer := qlearn.Trainer{
    Alpha: e.cfg.Fee.Alpha,
    Gamma: e.cfg.Fee.Gamma,
    RewardDivisor: e.cfg.Fee.RewardDivisor,
    Logger: e.log,
  }
  stats, err := trainer.Train(tbl, episodes.Open(e.cfg.EpisodeLogPath(), e.log))
  if err != nil {
    return err
  }
  fmt.Fprintf(cmd.OutOrStdout(), "trained on %d rows, %d skipped, %d states learned\n", stats.Applied, stats.Skipped, len(tbl.NonZeroStates()))
  if trainFlags.dryRun {
    return nil
  }
  if err := qlearn.Save(e.cfg.QTablePath(), tbl); err != nil {
    return err
  }
  e.log.Infof("q-table saved to %s", e.cfg.QTablePath())
  return nil
}
