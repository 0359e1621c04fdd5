package rebalance

import (
  "context"
  "errors"
  "fmt"
  "testing"
  "time"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/config"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/node"
)

type fakeNode struct {
  channels []node.Channel
  listErr error
  pending []node.Invoice
  cancelled []string
  invoices []string
  payments []node.Payment
  // outcomes is consumed one per PayInvoice; missing entries fail with no route.
  outcomes []bool
  onSuccess func(p node.Payment)
}

func (f *fakeNode) ListChannels(ctx context.Context) ([]node.Channel, error) {
  return f.channels, f.listErr
}

func (f *fakeNode) ForwardingHistory(ctx context.Context, days int) ([]node.ForwardingEvent, error) {
  return nil, nil
}

func (f *fakeNode) UpdateFeePolicy(ctx context.Context, u node.FeePolicyUpdate) error {
  return nil
}

func (f *fakeNode) CreateInvoice(ctx context.Context, amountSat int64, memo string) (node.Invoice, error) {
  f.invoices = append(f.invoices, memo)
  return node.Invoice{PaymentRequest: fmt.Sprintf("lnbc-%d", len(f.invoices)), PaymentHash: fmt.Sprintf("%064d", len(f.invoices)), Memo: memo, AmountSat: amountSat}, nil
}

func (f *fakeNode) PayInvoice(ctx context.Context, p node.Payment) (node.PaymentResult, error) {
  f.payments = append(f.payments, p)
  ok := false
  if len(f.outcomes) > 0 {
    ok = f.outcomes[0]
    f.outcomes = f.outcomes[1:]
  }
  if !ok {
    return node.PaymentResult{Detail: "FAILURE_REASON_NO_ROUTE"}, fmt.Errorf("%w: payment failed", node.ErrNoRoute)
  }
  if f.onSuccess != nil {
    f.onSuccess(p)
  }
  return node.PaymentResult{Succeeded: true, FeeSat: 12, Detail: "SUCCEEDED"}, nil
}

func (f *fakeNode) ListPendingInvoices(ctx context.Context) ([]node.Invoice, error) {
  return f.pending, nil
}

func (f *fakeNode) CancelInvoice(ctx context.Context, hash string) error {
  f.cancelled = append(f.cancelled, hash)
  return nil
}

func rebalanceConfig() config.RebalanceConfig {
  cfg := config.Default().Rebalance
  cfg.MaxAttempts = 5
  cfg.MaxSucceeded = 2
  return cfg
}

func unbalanced() []node.Channel {
  return []node.Channel{
    {ID: 1, Alias: "drained one", RemotePubkey: "02aa", LocalBalanceSat: 10, RemoteBalanceSat: 1000},
    {ID: 2, Alias: "full", RemotePubkey: "02bb", LocalBalanceSat: 1000, RemoteBalanceSat: 10},
    {ID: 3, Alias: "fuller", RemotePubkey: "02cc", LocalBalanceSat: 5000, RemoteBalanceSat: 10},
  }
}

func TestRunStopsAtMaxSucceeded(t *testing.T) {
  f := &fakeNode{channels: unbalanced(), outcomes: []bool{true, true, true}}
  c := NewCoordinator(f, rebalanceConfig(), nil, nil)
  s, err := c.Run(context.Background())
  if err != nil {
    t.Fatalf("Run: %v", err)
  }
  if s.Successes != 2 || s.Attempts != 2 || s.StopReason != StopMaxSucceeded {
    t.Fatalf("session = %+v", s)
  }
  if s.MovedSat != 1000000 {
    t.Fatalf("moved = %d", s.MovedSat)
  }
  if s.FeeLimitSat != 140 {
    t.Fatalf("fee limit = %d, want 150-5-5", s.FeeLimitSat)
  }
  p := f.payments[0]
  if p.OutgoingChanID != 2 || p.LastHopPubkey != "02aa" || p.FeeLimitSat != 150 || p.Timeout != 15*time.Second {
    t.Fatalf("payment = %+v", p)
  }
  if f.invoices[0] != "full_to_drained_one" {
    t.Fatalf("memo = %q", f.invoices[0])
  }
}

func TestRunTriesNextExcessChannelAndRaisesCeiling(t *testing.T) {
  // iteration 1: 2 fails, 3 fails -> ceiling +10
  // iteration 2: 2 fails, 3 succeeds -> ceiling -5
  f := &fakeNode{channels: unbalanced(), outcomes: []bool{false, false, false, true}}
  cfg := rebalanceConfig()
  cfg.MaxSucceeded = 1
  c := NewCoordinator(f, cfg, nil, nil)
  s, err := c.Run(context.Background())
  if err != nil {
    t.Fatalf("Run: %v", err)
  }
  if s.Attempts != 2 || s.Successes != 1 || len(s.Payments) != 4 {
    t.Fatalf("session = %+v", s)
  }
  if f.payments[2].FeeLimitSat != 160 {
    t.Fatalf("second iteration fee limit = %d, want 160", f.payments[2].FeeLimitSat)
  }
  if f.payments[3].OutgoingChanID != 3 {
    t.Fatalf("expected fallback to the second excess channel")
  }
  if s.FeeLimitSat != 155 {
    t.Fatalf("final fee limit = %d", s.FeeLimitSat)
  }
  if !errors.Is(s.Payments[0].Err, node.ErrNoRoute) {
    t.Fatalf("failed payment error = %v", s.Payments[0].Err)
  }
}

func TestRunStopsAtMaxAttempts(t *testing.T) {
  f := &fakeNode{channels: unbalanced()}
  c := NewCoordinator(f, rebalanceConfig(), nil, nil)
  s, err := c.Run(context.Background())
  if err != nil {
    t.Fatalf("Run: %v", err)
  }
  if s.Attempts != 5 || s.Successes != 0 || s.StopReason != StopMaxAttempts {
    t.Fatalf("session = %+v", s)
  }
  if s.FeeLimitSat != 200 {
    t.Fatalf("fee limit = %d, want 150+5*10", s.FeeLimitSat)
  }
}

func TestRunStopsWithoutCandidates(t *testing.T) {
  f := &fakeNode{channels: []node.Channel{{ID: 1, LocalBalanceSat: 500, RemoteBalanceSat: 500}}}
  c := NewCoordinator(f, rebalanceConfig(), nil, nil)
  s, err := c.Run(context.Background())
  if err != nil {
    t.Fatalf("Run: %v", err)
  }
  if s.StopReason != StopNoCandidates || len(f.payments) != 0 {
    t.Fatalf("session = %+v", s)
  }
}

func TestRunCancelsOnlyRebalanceInvoices(t *testing.T) {
  f := &fakeNode{
    channels: unbalanced(),
    outcomes: []bool{true},
    pending: []node.Invoice{
      {PaymentHash: "old", Memo: "full_to_drained_one", AmountSat: 500000},
      {PaymentHash: "shop", Memo: "coffee", AmountSat: 500000},
      {PaymentHash: "other", Memo: "x_to_y", AmountSat: 1000},
    },
  }
  cfg := rebalanceConfig()
  cfg.MaxSucceeded = 1
  c := NewCoordinator(f, cfg, nil, nil)
  if _, err := c.Run(context.Background()); err != nil {
    t.Fatalf("Run: %v", err)
  }
  if len(f.cancelled) != 1 || f.cancelled[0] != "old" {
    t.Fatalf("cancelled = %v", f.cancelled)
  }
}

func TestRunDryRunStopsBeforePaying(t *testing.T) {
  f := &fakeNode{channels: unbalanced(), outcomes: []bool{true}}
  g := node.NewGuard(f, node.PolicyDryRun, nil, nil)
  c := NewCoordinator(g, rebalanceConfig(), nil, nil)
  s, err := c.Run(context.Background())
  if err != nil {
    t.Fatalf("Run: %v", err)
  }
  if s.StopReason != StopDryRun || len(f.invoices) != 0 || len(f.payments) != 0 {
    t.Fatalf("dry run touched the node: %+v", s)
  }
}

func TestRunAbortsWhenListingFails(t *testing.T) {
  f := &fakeNode{listErr: node.ErrBackendUnavailable}
  c := NewCoordinator(f, rebalanceConfig(), nil, nil)
  if _, err := c.Run(context.Background()); !errors.Is(err, node.ErrBackendUnavailable) {
    t.Fatalf("err = %v", err)
  }
}

// scriptedPrompter answers confirmations in order and declines once the
// script runs out.
type scriptedPrompter struct {
  answers []bool
  asked int
}

func (p *scriptedPrompter) Confirm(question string) (bool, error) {
  p.asked++
  if len(p.answers) == 0 {
    return false, nil
  }
  ok := p.answers[0]
  p.answers = p.answers[1:]
  return ok, nil
}

func TestRunDeclinedKeepsCeilingAndStops(t *testing.T) {
  f := &fakeNode{channels: unbalanced(), outcomes: []bool{true}}
  p := &scriptedPrompter{}
  g := node.NewGuard(f, node.PolicyConfirm, p, nil)
  c := NewCoordinator(g, rebalanceConfig(), nil, nil)
  s, err := c.Run(context.Background())
  if err != nil {
    t.Fatalf("Run: %v", err)
  }
  if s.StopReason != StopDeclined {
    t.Fatalf("stop = %q, want %q", s.StopReason, StopDeclined)
  }
  if s.Attempts != 1 || s.FeeLimitSat != 150 {
    t.Fatalf("declines must not spend budget or raise the ceiling: %+v", s)
  }
  if len(f.invoices) != 0 || len(f.payments) != 0 {
    t.Fatalf("declined session touched the node: invoices %v payments %v", f.invoices, f.payments)
  }
  if p.asked != 2 {
    t.Fatalf("asked %d times, want one per pair", p.asked)
  }
}

func TestRunWithoutPromptDeclines(t *testing.T) {
  f := &fakeNode{channels: unbalanced()}
  g := node.NewGuard(f, node.PolicyConfirm, nil, nil)
  s, err := NewCoordinator(g, rebalanceConfig(), nil, nil).Run(context.Background())
  if err != nil {
    t.Fatalf("Run: %v", err)
  }
  if s.StopReason != StopDeclined || s.FeeLimitSat != 150 || len(f.payments) != 0 {
    t.Fatalf("session = %+v", s)
  }
}

func TestRunPartialDeclineStillCountsFailedPayment(t *testing.T) {
  f := &fakeNode{channels: unbalanced()}
  // decline the first invoice, accept the second pair's invoice and payment
  p := &scriptedPrompter{answers: []bool{false, true, true}}
  g := node.NewGuard(f, node.PolicyConfirm, p, nil)
  cfg := rebalanceConfig()
  cfg.MaxAttempts = 1
  s, err := NewCoordinator(g, cfg, nil, nil).Run(context.Background())
  if err != nil {
    t.Fatalf("Run: %v", err)
  }
  if len(f.payments) != 1 || f.payments[0].OutgoingChanID != 3 {
    t.Fatalf("payments = %+v", f.payments)
  }
  if s.StopReason != StopMaxAttempts || s.FeeLimitSat != 160 {
    t.Fatalf("failed payment must raise the ceiling: %+v", s)
  }
}
