// Package reports summarizes the episode log: reward per fee run, the
// running total, and how much each run added.
package reports

import (
  "encoding/csv"
  "io"
  "sort"
  "strconv"
  "time"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/episodes"
)

const RunLayout = "2006-01-02 15:04"

type RunReward struct {
  Run time.Time `json:"run"`
  Rows int `json:"rows"`
  Reward float64 `json:"reward"`
  Cumulative float64 `json:"cumulative_reward"`
  Difference float64 `json:"difference_from_previous_run"`
}

// FloorHour truncates t to the start of its hour in t's own location.
func FloorHour(t time.Time) time.Time {
  return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// CumulativeRewards groups rows into runs by the hour they were written in.
// Rows without a date are ignored. The first run's difference is zero.
func CumulativeRewards(rows []episodes.Transition) []RunReward {
  byRun := map[time.Time]*RunReward{}
  for _, row := range rows {
    if row.Date.IsZero() {
      continue
    }
    key := FloorHour(row.Date)
    rr, ok := byRun[key]
    if !ok {
      rr = &RunReward{Run: key}
      byRun[key] = rr
    }
    rr.Rows++
    rr.Reward += row.Reward
  }

  out := make([]RunReward, 0, len(byRun))
  for _, rr := range byRun {
    out = append(out, *rr)
  }
  sort.Slice(out, func(i, j int) bool { return out[i].Run.Before(out[j].Run) })

  var total float64
  for i := range out {
    total += out[i].Reward
    out[i].Cumulative = total
    if i > 0 {
      out[i].Difference = out[i].Cumulative - out[i-1].Cumulative
    }
  }
  return out
}

func WriteCSV(w io.Writer, runs []RunReward) error {
  cw := csv.NewWriter(w)
  if err := cw.Write([]string{"Run", "Cumulative Reward", "Difference from Previous Run"}); err != nil {
    return err
  }
  for _, r := range runs {
    record := []string{
      r.Run.Format(episodes.DateLayout),
      strconv.FormatFloat(r.Cumulative, 'f', -1, 64),
      strconv.FormatFloat(r.Difference, 'f', -1, 64),
    }
    if err := cw.Write(record); err != nil {
      return err
    }
  }
  cw.Flush()
  return cw.Error()
}
