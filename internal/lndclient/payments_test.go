package lndclient

import (
  "context"
  "errors"
  "testing"
  "time"

  "github.com/lightningnetwork/lnd/lnrpc"
  "google.golang.org/grpc/codes"
  "google.golang.org/grpc/status"
)

type fakePaymentStream struct {
  ctx context.Context
  updates []*lnrpc.Payment
  err error
}

// Recv replays updates, then returns err or blocks until ctx ends the way a
// grpc stream does.
func (s *fakePaymentStream) Recv() (*lnrpc.Payment, error) {
  if len(s.updates) > 0 {
    next := s.updates[0]
    s.updates = s.updates[1:]
    return next, nil
  }
  if s.err != nil {
    return nil, s.err
  }
  <-s.ctx.Done()
  return nil, status.Error(codes.DeadlineExceeded, "context deadline exceeded")
}

func TestAwaitPaymentTimesOutOnSilentStream(t *testing.T) {
  ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
  defer cancel()

  stream := &fakePaymentStream{
    ctx: ctx,
    updates: []*lnrpc.Payment{{Status: lnrpc.Payment_IN_FLIGHT}},
  }
  done := make(chan error, 1)
  go func() {
    _, err := awaitPayment(ctx, stream)
    done <- err
  }()

  select {
  case err := <-done:
    if !errors.Is(err, ErrPaymentTimeout) {
      t.Fatalf("expected ErrPaymentTimeout, got %v", err)
    }
  case <-time.After(5 * time.Second):
    t.Fatalf("awaitPayment did not return after the deadline")
  }
}

func TestAwaitPaymentOutcomes(t *testing.T) {
  streamErr := errors.New("stream reset")
  tests := []struct {
    name string
    updates []*lnrpc.Payment
    err error
    wantStatus lnrpc.Payment_PaymentStatus
    wantErr func(error) bool
  }{
    {
      name: "succeeded after in-flight",
      updates: []*lnrpc.Payment{nil, {Status: lnrpc.Payment_IN_FLIGHT}, {Status: lnrpc.Payment_SUCCEEDED}},
      wantStatus: lnrpc.Payment_SUCCEEDED,
      wantErr: func(err error) bool { return err == nil },
    },
    {
      name: "failed no route",
      updates: []*lnrpc.Payment{{Status: lnrpc.Payment_FAILED, FailureReason: lnrpc.PaymentFailureReason_FAILURE_REASON_NO_ROUTE}},
      wantStatus: lnrpc.Payment_FAILED,
      wantErr: func(err error) bool {
        var pf PaymentFailureError
        return errors.As(err, &pf) && pf.NoRoute()
      },
    },
    {
      name: "stream error passes through",
      err: streamErr,
      wantErr: func(err error) bool { return errors.Is(err, streamErr) && !errors.Is(err, ErrPaymentTimeout) },
    },
  }

  for _, tc := range tests {
    tc := tc
    t.Run(tc.name, func(t *testing.T) {
      ctx := context.Background()
      payment, err := awaitPayment(ctx, &fakePaymentStream{ctx: ctx, updates: tc.updates, err: tc.err})
      if !tc.wantErr(err) {
        t.Fatalf("unexpected error %v", err)
      }
      if tc.wantStatus != lnrpc.Payment_UNKNOWN {
        if payment == nil || payment.Status != tc.wantStatus {
          t.Fatalf("expected status %v, got %+v", tc.wantStatus, payment)
        }
      }
    })
  }
}
