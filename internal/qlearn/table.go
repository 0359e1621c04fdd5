// Package qlearn holds the tabular value function that drives fee changes:
// fee rate buckets, the two fee actions, the temporal-difference update and
// the epsilon-greedy selection over it.
package qlearn

import (
  "fmt"
  "math"
)

const (
  NumStates = 101
  NumActions = 2
  MaxState = NumStates - 1
)

type Action int

const (
  Lower Action = 0
  Raise Action = 1
)

func (a Action) Increase() bool {
  return a == Raise
}

func (a Action) String() string {
  if a == Raise {
    return "raise"
  }
  return "lower"
}

func ActionFromIncrease(increase bool) Action {
  if increase {
    return Raise
  }
  return Lower
}

// Encode maps a fee rate onto its state bucket: round(rate*100) clamped into
// [0, MaxState]. NaN and negative rates land in bucket 0.
func Encode(feeRate float64) int {
  if math.IsNaN(feeRate) || feeRate <= 0 {
    return 0
  }
  scaled := math.Round(feeRate * 100)
  if scaled >= MaxState {
    return MaxState
  }
  return int(scaled)
}

// ClampState forces an arbitrary index into the table range.
func ClampState(s int) int {
  if s < 0 {
    return 0
  }
  if s > MaxState {
    return MaxState
  }
  return s
}

type Table struct {
  q [NumStates][NumActions]float64
}

func NewTable() *Table {
  return &Table{}
}

func (t *Table) Reset() {
  t.q = [NumStates][NumActions]float64{}
}

func (t *Table) Value(state int, action Action) float64 {
  return t.q[ClampState(state)][clampAction(action)]
}

func (t *Table) Set(state int, action Action, v float64) {
  t.q[ClampState(state)][clampAction(action)] = v
}

func (t *Table) Row(state int) [NumActions]float64 {
  return t.q[ClampState(state)]
}

// BestAction returns the argmax action for state. Ties go to the lower action
// index, so an untrained state always lowers.
func (t *Table) BestAction(state int) Action {
  row := t.q[ClampState(state)]
  best := 0
  for a := 1; a < NumActions; a++ {
    if row[a] > row[best] {
      best = a
    }
  }
  return Action(best)
}

func (t *Table) MaxValue(state int) float64 {
  row := t.q[ClampState(state)]
  m := row[0]
  for a := 1; a < NumActions; a++ {
    if row[a] > m {
      m = row[a]
    }
  }
  return m
}

// Update applies Q[s,a] <- (1-alpha)*Q[s,a] + alpha*(reward + gamma*max Q[next]).
// It returns the previous and the new value.
func (t *Table) Update(state int, action Action, reward float64, next int, alpha, gamma float64) (float64, float64) {
  s := ClampState(state)
  a := clampAction(action)
  old := t.q[s][a]
  nextMax := t.MaxValue(next)
  updated := (1-alpha)*old + alpha*(reward+gamma*nextMax)
  t.q[s][a] = updated
  return old, updated
}

func (t *Table) Equal(other *Table) bool {
  if other == nil {
    return false
  }
  return t.q == other.q
}

func (t *Table) Clone() *Table {
  cp := *t
  return &cp
}

// NonZeroStates lists the states with at least one non-zero value, ascending.
func (t *Table) NonZeroStates() []int {
  var out []int
  for s := 0; s < NumStates; s++ {
    for a := 0; a < NumActions; a++ {
      if t.q[s][a] != 0 {
        out = append(out, s)
        break
      }
    }
  }
  return out
}

func (t *Table) values() []float64 {
  out := make([]float64, 0, NumStates*NumActions)
  for s := 0; s < NumStates; s++ {
    out = append(out, t.q[s][:]...)
  }
  return out
}

func (t *Table) setValues(values []float64) error {
  if len(values) != NumStates*NumActions {
    return fmt.Errorf("q-table needs %d values, got %d", NumStates*NumActions, len(values))
  }
  for s := 0; s < NumStates; s++ {
    for a := 0; a < NumActions; a++ {
      t.q[s][a] = values[s*NumActions+a]
    }
  }
  return nil
}

func clampAction(a Action) int {
  if a == Raise {
    return 1
  }
  return 0
}
