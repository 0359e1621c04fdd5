// Package node is the boundary to the Lightning node. The fee and rebalance
// loops only ever talk to a Backend; the lnd adapter and the confirm guard
// are two implementations layered on each other.
package node

import (
  "context"
  "errors"
  "time"
)

var (
  ErrBackendUnavailable = errors.New("node backend unavailable")
  ErrBackendRejected = errors.New("node backend rejected request")
  ErrNoRoute = errors.New("no payment route found")
  ErrInsufficientBalance = errors.New("insufficient balance")
  ErrDeclined = errors.New("operator declined")
  ErrDryRun = errors.New("dry run")
)

type Channel struct {
  ID uint64
  ChannelPoint string
  RemotePubkey string
  Alias string
  Active bool
  // FeeRate is the local fee_rate_milli_msat divided by 1000.
  FeeRate float64
  BaseFeeMsat int64
  TimeLockDelta int64
  LocalBalanceSat int64
  RemoteBalanceSat int64
}

// Name is the alias when the peer has one, the pubkey otherwise.
func (c Channel) Name() string {
  if c.Alias != "" {
    return c.Alias
  }
  return c.RemotePubkey
}

type ForwardingEvent struct {
  Timestamp time.Time
  ChanIDIn uint64
  ChanIDOut uint64
  FeeMsat int64
  AmtInMsat int64
  AmtOutMsat int64
}

type FeePolicyUpdate struct {
  ChannelID uint64
  ChannelPoint string
  Alias string
  FeeRate float64
  BaseFeeMsat int64
  TimeLockDelta int64
  MinHtlcMsat uint64
}

type Invoice struct {
  PaymentRequest string
  PaymentHash string
  Memo string
  AmountSat int64
  CreatedAt time.Time
}

type Payment struct {
  PaymentRequest string
  FeeLimitSat int64
  OutgoingChanID uint64
  LastHopPubkey string
  Timeout time.Duration
  Description string
}

type PaymentResult struct {
  Succeeded bool
  FeeSat int64
  Detail string
}

type Backend interface {
  ListChannels(ctx context.Context) ([]Channel, error)
  ForwardingHistory(ctx context.Context, days int) ([]ForwardingEvent, error)
  UpdateFeePolicy(ctx context.Context, update FeePolicyUpdate) error
  CreateInvoice(ctx context.Context, amountSat int64, memo string) (Invoice, error)
  PayInvoice(ctx context.Context, payment Payment) (PaymentResult, error)
  ListPendingInvoices(ctx context.Context) ([]Invoice, error)
  CancelInvoice(ctx context.Context, paymentHash string) error
}

// FeeRateToPpm converts a fee rate back to the ppm value lnd stores.
func FeeRateToPpm(rate float64) int64 {
  if rate <= 0 {
    return 0
  }
  return int64(rate*1000 + 0.5)
}

func PpmToFeeRate(ppm int64) float64 {
  if ppm <= 0 {
    return 0
  }
  return float64(ppm) / 1000
}

// Skipped reports whether err means the call was intentionally not made.
func Skipped(err error) bool {
  return errors.Is(err, ErrDeclined) || errors.Is(err, ErrDryRun)
}
