package node

import (
  "context"
  "errors"
  "fmt"
  "time"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/lndclient"
)

// LND adapts the gRPC client to Backend and maps its failures onto the
// package error taxonomy.
type LND struct {
  client *lndclient.Client
  timeLockDelta int64
  invoiceExpirySec int64
  now func() time.Time
}

type LNDOptions struct {
  // TimeLockDelta is used when the channel's current policy is unknown.
  TimeLockDelta int64
  InvoiceExpirySec int64
}

func NewLND(client *lndclient.Client, opts LNDOptions) *LND {
  if opts.TimeLockDelta <= 0 {
    opts.TimeLockDelta = 40
  }
  return &LND{client: client, timeLockDelta: opts.TimeLockDelta, invoiceExpirySec: opts.InvoiceExpirySec, now: time.Now}
}

func (l *LND) ListChannels(ctx context.Context) ([]Channel, error) {
  infos, err := l.client.ListChannels(ctx)
  if err != nil {
    return nil, classify("list channels", err)
  }
  out := make([]Channel, 0, len(infos))
  for _, info := range infos {
    tld := info.TimeLockDelta
    if !info.PolicyKnown || tld <= 0 {
      tld = l.timeLockDelta
    }
    out = append(out, Channel{
      ID: info.ChannelID,
      ChannelPoint: info.ChannelPoint,
      RemotePubkey: info.RemotePubkey,
      Alias: info.PeerAlias,
      Active: info.Active && !info.LocalDisabled,
      FeeRate: PpmToFeeRate(info.FeeRatePpm),
      BaseFeeMsat: info.BaseFeeMsat,
      TimeLockDelta: tld,
      LocalBalanceSat: info.LocalBalanceSat,
      RemoteBalanceSat: info.RemoteBalanceSat,
    })
  }
  return out, nil
}

func (l *LND) ForwardingHistory(ctx context.Context, days int) ([]ForwardingEvent, error) {
  end := l.now()
  start := end.Add(-time.Duration(days) * 24 * time.Hour)
  forwards, err := l.client.ForwardingHistory(ctx, start, end)
  if err != nil {
    return nil, classify("forwarding history", err)
  }
  out := make([]ForwardingEvent, 0, len(forwards))
  for _, f := range forwards {
    out = append(out, ForwardingEvent{
      Timestamp: f.Timestamp,
      ChanIDIn: f.ChanIDIn,
      ChanIDOut: f.ChanIDOut,
      FeeMsat: f.FeeMsat,
      AmtInMsat: f.AmtInMsat,
      AmtOutMsat: f.AmtOutMsat,
    })
  }
  return out, nil
}

func (l *LND) UpdateFeePolicy(ctx context.Context, update FeePolicyUpdate) error {
  tld := update.TimeLockDelta
  if tld <= 0 {
    tld = l.timeLockDelta
  }
  params := lndclient.UpdateChannelPolicyParams{
    ChannelPoint: update.ChannelPoint,
    BaseFeeMsat: update.BaseFeeMsat,
    FeeRatePpm: FeeRateToPpm(update.FeeRate),
    TimeLockDelta: tld,
  }
  if update.MinHtlcMsat > 0 {
    minHtlc := update.MinHtlcMsat
    params.MinHtlcMsat = &minHtlc
  }
  if err := l.client.UpdateChannelPolicy(ctx, params); err != nil {
    return classify(fmt.Sprintf("update policy %d", update.ChannelID), err)
  }
  return nil
}

func (l *LND) CreateInvoice(ctx context.Context, amountSat int64, memo string) (Invoice, error) {
  inv, err := l.client.CreateInvoice(ctx, amountSat, memo, l.invoiceExpirySec)
  if err != nil {
    return Invoice{}, classify("create invoice", err)
  }
  return Invoice{
    PaymentRequest: inv.PaymentRequest,
    PaymentHash: inv.PaymentHash,
    Memo: memo,
    AmountSat: amountSat,
    CreatedAt: l.now(),
  }, nil
}

func (l *LND) PayInvoice(ctx context.Context, payment Payment) (PaymentResult, error) {
  timeoutSec := int32(payment.Timeout / time.Second)
  if timeoutSec <= 0 {
    timeoutSec = 15
  }
  paid, err := l.client.SendPaymentWithConstraints(ctx, payment.PaymentRequest, payment.OutgoingChanID, payment.LastHopPubkey, payment.FeeLimitSat*1000, timeoutSec, 1)
  if err != nil {
    var failure lndclient.PaymentFailureError
    if errors.As(err, &failure) {
      return PaymentResult{Detail: failure.Reason.String()}, paymentError(failure)
    }
    return PaymentResult{Detail: err.Error()}, classify("pay invoice", err)
  }
  return PaymentResult{Succeeded: true, FeeSat: paid.FeeSat, Detail: paid.Status.String()}, nil
}

func (l *LND) ListPendingInvoices(ctx context.Context) ([]Invoice, error) {
  pending, err := l.client.ListPendingInvoices(ctx)
  if err != nil {
    return nil, classify("list invoices", err)
  }
  out := make([]Invoice, 0, len(pending))
  for _, p := range pending {
    out = append(out, Invoice{
      PaymentRequest: p.PaymentRequest,
      PaymentHash: p.PaymentHash,
      Memo: p.Memo,
      AmountSat: p.ValueSat,
      CreatedAt: p.CreatedAt,
    })
  }
  return out, nil
}

func (l *LND) CancelInvoice(ctx context.Context, paymentHash string) error {
  if err := l.client.CancelInvoice(ctx, paymentHash); err != nil {
    return classify("cancel invoice", err)
  }
  return nil
}

func paymentError(failure lndclient.PaymentFailureError) error {
  switch {
  case failure.NoRoute():
    return fmt.Errorf("%w: %v", ErrNoRoute, failure)
  case failure.InsufficientBalance():
    return fmt.Errorf("%w: %v", ErrInsufficientBalance, failure)
  default:
    return fmt.Errorf("%w: %v", ErrBackendRejected, failure)
  }
}

func classify(op string, err error) error {
  if lndclient.IsUnavailable(err) {
    return fmt.Errorf("%s: %w: %v", op, ErrBackendUnavailable, err)
  }
  return fmt.Errorf("%s: %w: %v", op, ErrBackendRejected, err)
}
