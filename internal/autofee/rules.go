package autofee

import (
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/node"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/qlearn"
)

const (
  ReasonMoreOutgoing = "More outgoing transactions"
  ReasonMoreIncoming = "More incoming transactions"
  ReasonInactive = "Inactive channel"
)

type RuleDecision struct {
  Action qlearn.Action
  Reason string
  // Tally is incoming minus outgoing forwards seen on the channel.
  Tally int
}

// RuleActions is the heuristic used when learning is off: channels that
// forward out more than they receive get pricier, everything else cheaper.
func RuleActions(channels []node.Channel, forwards []node.ForwardingEvent) map[uint64]RuleDecision {
  tally := make(map[uint64]int, len(channels))
  for _, ch := range channels {
    tally[ch.ID] = 0
  }
  for _, f := range forwards {
    if _, ok := tally[f.ChanIDIn]; ok {
      tally[f.ChanIDIn]++
    }
    if _, ok := tally[f.ChanIDOut]; ok {
      tally[f.ChanIDOut]--
    }
  }

  out := make(map[uint64]RuleDecision, len(tally))
  for id, n := range tally {
    switch {
    case n < 0:
      out[id] = RuleDecision{Action: qlearn.Raise, Reason: ReasonMoreOutgoing, Tally: n}
    case n > 0:
      out[id] = RuleDecision{Action: qlearn.Lower, Reason: ReasonMoreIncoming, Tally: n}
    default:
      out[id] = RuleDecision{Action: qlearn.Lower, Reason: ReasonInactive, Tally: n}
    }
  }
  return out
}
