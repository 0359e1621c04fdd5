package autofee

import "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/node"

// ChannelReward scores a channel over the aggregation window: fees earned on
// forwards leaving through it, plus the msat volume it carried in either
// direction divided by volumeFactor.
func ChannelReward(chanID uint64, forwards []node.ForwardingEvent, volumeFactor float64) float64 {
  if volumeFactor <= 0 {
    volumeFactor = 1
  }
  var fees, volume int64
  for _, f := range forwards {
    if f.ChanIDOut == chanID {
      fees += f.FeeMsat
      volume += f.AmtOutMsat
    }
    if f.ChanIDIn == chanID {
      volume += f.AmtInMsat
    }
  }
  return float64(fees) + float64(volume)/volumeFactor
}
