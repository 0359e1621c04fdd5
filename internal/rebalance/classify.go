// Package rebalance moves liquidity between channels with circular self
// payments: out of a channel with too much local balance, back in through a
// channel that has too little.
package rebalance

import (
  "strings"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/node"
)

type Class int

const (
  Balanced Class = iota
  NeedsInbound
  ExcessLocal
)

func (c Class) String() string {
  switch c {
  case NeedsInbound:
    return "needs-liquidity-inbound"
  case ExcessLocal:
    return "has-excess-local"
  default:
    return "balanced"
  }
}

// Ratio is (local+1)/(remote+1); the +1 keeps empty sides finite.
func Ratio(localSat, remoteSat int64) float64 {
  return float64(localSat+1) / float64(remoteSat+1)
}

func ClassifyChannel(ch node.Channel, low, high float64) Class {
  r := Ratio(ch.LocalBalanceSat, ch.RemoteBalanceSat)
  switch {
  case r < low:
    return NeedsInbound
  case r > high:
    return ExcessLocal
  default:
    return Balanced
  }
}

// Classify splits channels into those needing local liquidity and those with
// local liquidity to spare, both in backend order.
func Classify(channels []node.Channel, low, high float64) (needing []node.Channel, excess []node.Channel) {
  for _, ch := range channels {
    switch ClassifyChannel(ch, low, high) {
    case NeedsInbound:
      needing = append(needing, ch)
    case ExcessLocal:
      excess = append(excess, ch)
    }
  }
  return needing, excess
}

// Memo names a rebalance "<from>_to_<to>" with spaces replaced.
func Memo(from, to string) string {
  return strings.ReplaceAll(from+" to "+to, " ", "_")
}

func isRebalanceMemo(memo string) bool {
  return strings.Contains(memo, "_to_")
}
