package node

import (
  "bufio"
  "context"
  "fmt"
  "io"
  "os"
  "strings"
  "sync"

  "golang.org/x/term"
)

type Policy string

const (
  PolicyApply Policy = "apply"
  PolicyConfirm Policy = "confirm"
  PolicyDryRun Policy = "dry-run"
)

type Prompter interface {
  Confirm(question string) (bool, error)
}

type loggerLike interface {
  Printf(format string, v ...any)
}

// Guard consults the confirm policy before every call that changes node
// state. Reads pass through untouched.
type Guard struct {
  Backend
  policy Policy
  prompter Prompter
  logger loggerLike
}

func NewGuard(backend Backend, policy Policy, prompter Prompter, logger loggerLike) *Guard {
  if policy == "" {
    policy = PolicyApply
  }
  return &Guard{Backend: backend, policy: policy, prompter: prompter, logger: logger}
}

func (g *Guard) Policy() Policy {
  return g.policy
}

func (g *Guard) allow(action string) error {
  switch g.policy {
  case PolicyApply:
    return nil
  case PolicyDryRun:
    g.logf("dry-run: skipped %s", action)
    return ErrDryRun
  case PolicyConfirm:
    if g.prompter == nil {
      return fmt.Errorf("%w: no prompt available for %s", ErrDeclined, action)
    }
    ok, err := g.prompter.Confirm(fmt.Sprintf("%s?", action))
    if err != nil {
      return fmt.Errorf("%w: %v", ErrDeclined, err)
    }
    if !ok {
      g.logf("confirm: skipped %s", action)
      return ErrDeclined
    }
    return nil
  default:
    return fmt.Errorf("unknown confirm policy %q", g.policy)
  }
}

func (g *Guard) UpdateFeePolicy(ctx context.Context, update FeePolicyUpdate) error {
  action := fmt.Sprintf("set fee rate of %d (%s) to %d ppm", update.ChannelID, update.Alias, FeeRateToPpm(update.FeeRate))
  if err := g.allow(action); err != nil {
    return err
  }
  return g.Backend.UpdateFeePolicy(ctx, update)
}

func (g *Guard) CreateInvoice(ctx context.Context, amountSat int64, memo string) (Invoice, error) {
  if err := g.allow(fmt.Sprintf("create invoice for %d sat (%s)", amountSat, memo)); err != nil {
    return Invoice{}, err
  }
  return g.Backend.CreateInvoice(ctx, amountSat, memo)
}

func (g *Guard) PayInvoice(ctx context.Context, payment Payment) (PaymentResult, error) {
  action := fmt.Sprintf("pay %s out of %d with fee limit %d sat", payment.Description, payment.OutgoingChanID, payment.FeeLimitSat)
  if err := g.allow(action); err != nil {
    return PaymentResult{}, err
  }
  return g.Backend.PayInvoice(ctx, payment)
}

func (g *Guard) CancelInvoice(ctx context.Context, paymentHash string) error {
  if err := g.allow("cancel pending invoice " + paymentHash); err != nil {
    return err
  }
  return g.Backend.CancelInvoice(ctx, paymentHash)
}

func (g *Guard) logf(format string, v ...any) {
  if g.logger != nil {
    g.logger.Printf(format, v...)
  }
}

// LinePrompter asks yes/no questions on a line based stream. Only an exact
// "yes" (any case) confirms.
type LinePrompter struct {
  mu sync.Mutex
  in *bufio.Reader
  out io.Writer
}

func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
  return &LinePrompter{in: bufio.NewReader(in), out: out}
}

func (p *LinePrompter) Confirm(question string) (bool, error) {
  p.mu.Lock()
  defer p.mu.Unlock()
  fmt.Fprintf(p.out, "%s (yes/no): ", question)
  line, err := p.in.ReadString('\n')
  if err != nil && (err != io.EOF || line == "") {
    return false, err
  }
  return strings.EqualFold(strings.TrimSpace(line), "yes"), nil
}

// TerminalPrompter returns a prompter on stdin/stdout, or nil when stdin is
// not a terminal. A nil prompter makes the confirm policy decline.
func TerminalPrompter() Prompter {
  if !term.IsTerminal(int(os.Stdin.Fd())) {
    return nil
  }
  return NewLinePrompter(os.Stdin, os.Stdout)
}
