package main

import (
  "fmt"
  "os"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/episodes"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/reports"

  "github.com/logrusorgru/aurora"
  "github.com/spf13/cobra"
)

var analyzeFlags struct {
  noChart bool
}

var analyzeCmd = &cobra.Command{
  Use: "analyze",
  Short: "Summarize reward per fee run from the episode log",
  RunE: runAnalyze,
}

func init() {
  analyzeCmd.Flags().BoolVar(&analyzeFlags.noChart, "no-chart", false, "Skip the HTML chart")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
  e, err := loadEnv()
  if err != nil {
    return err
  }
  rows, skipped, err := episodes.Open(e.cfg.EpisodeLogPath(), e.log).Read()
  if err != nil {
    return err
  }
  if skipped > 0 {
    e.log.Warnf("analyze: %d malformed rows skipped", skipped)
  }
  runs := reports.CumulativeRewards(rows)

  w := cmd.OutOrStdout()
  for _, r := range runs {
    diff := aurora.Green(fmt.Sprintf("%+.4f", r.Difference))
    if r.Difference < 0 {
      diff = aurora.Red(fmt.Sprintf("%+.4f", r.Difference))
    }
    fmt.Fprintf(w, "%s  rows %-4d reward %10.4f  cumulative %12.4f  %s\n", r.Run.Format(reports.RunLayout), r.Rows, r.Reward, r.Cumulative, diff)
  }

  csvPath := e.cfg.Path(e.cfg.Data.AnalysisCSV)
  if err := writeFile(csvPath, func(f *os.File) error { return reports.WriteCSV(f, runs) }); err != nil {
    return err
  }
  e.log.Infof("analysis written to %s", csvPath)

  if analyzeFlags.noChart {
    return nil
  }
  chartPath := e.cfg.Path(e.cfg.Data.AnalysisChart)
  if err := writeFile(chartPath, func(f *os.File) error { return reports.RenderChart(f, runs) }); err != nil {
    return err
  }
  e.log.Infof("chart written to %s", chartPath)
  return nil
}

func writeFile(path string, write func(*os.File) error) error {
  f, err := os.Create(path)
  if err != nil {
    return err
  }
  if err := write(f); err != nil {
    f.Close()
    return fmt.Errorf("write %s: %w", path, err)
  }
  return f.Close()
}
