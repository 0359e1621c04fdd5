package node

import (
  "bytes"
  "context"
  "errors"
  "strings"
  "testing"
)

type recordingBackend struct {
  Backend
  updates []FeePolicyUpdate
  cancelled []string
}

func (r *recordingBackend) UpdateFeePolicy(ctx context.Context, update FeePolicyUpdate) error {
  r.updates = append(r.updates, update)
  return nil
}

func (r *recordingBackend) CancelInvoice(ctx context.Context, hash string) error {
  r.cancelled = append(r.cancelled, hash)
  return nil
}

func (r *recordingBackend) ListChannels(ctx context.Context) ([]Channel, error) {
  return []Channel{{ID: 1}}, nil
}

type scriptedPrompter struct {
  answers []bool
  asked []string
}

func (p *scriptedPrompter) Confirm(q string) (bool, error) {
  p.asked = append(p.asked, q)
  if len(p.answers) == 0 {
    return false, nil
  }
  a := p.answers[0]
  p.answers = p.answers[1:]
  return a, nil
}

func TestGuardPolicies(t *testing.T) {
  ctx := context.Background()
  update := FeePolicyUpdate{ChannelID: 7, Alias: "peer", FeeRate: 0.015}

  t.Run("apply", func(t *testing.T) {
    rb := &recordingBackend{}
    g := NewGuard(rb, PolicyApply, nil, nil)
    if err := g.UpdateFeePolicy(ctx, update); err != nil {
      t.Fatalf("UpdateFeePolicy: %v", err)
    }
    if len(rb.updates) != 1 {
      t.Fatalf("update not forwarded")
    }
  })

  t.Run("dry-run", func(t *testing.T) {
    rb := &recordingBackend{}
    g := NewGuard(rb, PolicyDryRun, nil, nil)
    err := g.UpdateFeePolicy(ctx, update)
    if !errors.Is(err, ErrDryRun) || !Skipped(err) {
      t.Fatalf("err = %v, want dry run", err)
    }
    if len(rb.updates) != 0 {
      t.Fatalf("dry run forwarded an update")
    }
    if chans, err := g.ListChannels(ctx); err != nil || len(chans) != 1 {
      t.Fatalf("reads must pass through: %v %v", chans, err)
    }
  })

  t.Run("confirm", func(t *testing.T) {
    rb := &recordingBackend{}
    p := &scriptedPrompter{answers: []bool{true, false}}
    g := NewGuard(rb, PolicyConfirm, p, nil)
    if err := g.UpdateFeePolicy(ctx, update); err != nil {
      t.Fatalf("confirmed update: %v", err)
    }
    if err := g.CancelInvoice(ctx, "ab"); !errors.Is(err, ErrDeclined) {
      t.Fatalf("declined cancel err = %v", err)
    }
    if len(rb.updates) != 1 || len(rb.cancelled) != 0 {
      t.Fatalf("updates=%d cancelled=%d", len(rb.updates), len(rb.cancelled))
    }
    if !strings.Contains(p.asked[0], "15 ppm") {
      t.Fatalf("prompt lacks the new rate: %q", p.asked[0])
    }
  })

  t.Run("confirm without terminal", func(t *testing.T) {
    rb := &recordingBackend{}
    g := NewGuard(rb, PolicyConfirm, nil, nil)
    if err := g.UpdateFeePolicy(ctx, update); !errors.Is(err, ErrDeclined) {
      t.Fatalf("err = %v, want declined", err)
    }
  })
}

func TestLinePrompter(t *testing.T) {
  var out bytes.Buffer
  p := NewLinePrompter(strings.NewReader("YES\nno\ny\nyes"), &out)
  want := []bool{true, false, false, true}
  for i, w := range want {
    got, err := p.Confirm("apply")
    if err != nil {
      t.Fatalf("answer %d: %v", i, err)
    }
    if got != w {
      t.Fatalf("answer %d = %v, want %v", i, got, w)
    }
  }
  if _, err := p.Confirm("apply"); err == nil {
    t.Fatalf("expected EOF error once input is exhausted")
  }
  if !strings.Contains(out.String(), "(yes/no)") {
    t.Fatalf("prompt not written")
  }
}

func TestFeeRateConversions(t *testing.T) {
  tests := []struct {
    rate float64
    ppm int64
  }{
    {rate: 0, ppm: 0},
    {rate: -0.2, ppm: 0},
    {rate: 0.015, ppm: 15},
    {rate: 1.005, ppm: 1005},
    {rate: 0.0104, ppm: 10},
  }
  for _, tc := range tests {
    if got := FeeRateToPpm(tc.rate); got != tc.ppm {
      t.Fatalf("FeeRateToPpm(%v) = %d, want %d", tc.rate, got, tc.ppm)
    }
  }
  if got := PpmToFeeRate(250); got != 0.25 {
    t.Fatalf("PpmToFeeRate(250) = %v", got)
  }
}
