package qlearn

import (
  "math/rand"
  "sort"
)

const (
  ReasonExploration = "exploration"
  ReasonExploitation = "exploitation"
)

type Choice struct {
  State int
  Action Action
  Reason string
}

// Selector picks epsilon-greedy actions. Each channel draws one uniform
// sample; below Epsilon the action is uniform random, otherwise greedy.
type Selector struct {
  Epsilon float64
  Rand *rand.Rand
}

func (sel Selector) Choose(t *Table, state int) Choice {
  state = ClampState(state)
  if sel.Rand.Float64() < sel.Epsilon {
    return Choice{State: state, Action: Action(sel.Rand.Intn(NumActions)), Reason: ReasonExploration}
  }
  return Choice{State: state, Action: t.BestAction(state), Reason: ReasonExploitation}
}

// Select encodes each channel's fee rate and chooses an action for it.
// Channels are visited in ascending id order so a seeded Rand reproduces
// the same choices.
func (sel Selector) Select(t *Table, feeRates map[uint64]float64) map[uint64]Choice {
  ids := make([]uint64, 0, len(feeRates))
  for id := range feeRates {
    ids = append(ids, id)
  }
  sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
  out := make(map[uint64]Choice, len(ids))
  for _, id := range ids {
    out[id] = sel.Choose(t, Encode(feeRates[id]))
  }
  return out
}
