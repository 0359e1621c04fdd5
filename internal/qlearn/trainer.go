package qlearn

import "fmt"

// Sample is one logged transition as the trainer consumes it.
type Sample struct {
  State int
  Action Action
  Reward float64
  NextState int
}

// Source yields samples oldest first. Implementations skip rows they cannot
// parse and report how many they skipped.
type Source interface {
  Samples(visit func(Sample)) (skipped int, err error)
}

type TrainStats struct {
  Applied int
  Skipped int
}

type Trainer struct {
  Alpha float64
  Gamma float64
  // RewardDivisor scales logged rewards down before they enter the table.
  RewardDivisor float64
  Logger logger
}

func (tr Trainer) Train(t *Table, src Source) (TrainStats, error) {
  if t == nil {
    return TrainStats{}, fmt.Errorf("train: nil table")
  }
  divisor := tr.RewardDivisor
  if divisor <= 0 {
    divisor = 1
  }
  var stats TrainStats
  skipped, err := src.Samples(func(s Sample) {
    reward := s.Reward / divisor
    old, updated := t.Update(s.State, s.Action, reward, s.NextState, tr.Alpha, tr.Gamma)
    stats.Applied++
    if d, ok := tr.Logger.(interface{ Debugf(string, ...any) }); ok {
      d.Debugf("train: state %d action %d reward %g next %d q %g -> %g", ClampState(s.State), s.Action, reward, ClampState(s.NextState), old, updated)
    }
  })
  stats.Skipped = skipped
  if err != nil {
    return stats, fmt.Errorf("train: %w", err)
  }
  return stats, nil
}

// SliceSource replays an in-memory list of samples.
type SliceSource []Sample

func (s SliceSource) Samples(visit func(Sample)) (int, error) {
  for _, sample := range s {
    visit(sample)
  }
  return 0, nil
}
