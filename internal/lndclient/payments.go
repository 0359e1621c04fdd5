package lndclient

import (
  "context"
  "encoding/hex"
  "errors"
  "fmt"
  "strings"
  "time"

  "github.com/lightningnetwork/lnd/lnrpc"
  "github.com/lightningnetwork/lnd/lnrpc/routerrpc"
)

// PaymentFailureError is returned when lnd reports the payment FAILED.
type PaymentFailureError struct {
  Reason lnrpc.PaymentFailureReason
}

func (e PaymentFailureError) Error() string {
  if e.Reason != lnrpc.PaymentFailureReason_FAILURE_REASON_NONE {
    return fmt.Sprintf("payment failed: %s", e.Reason.String())
  }
  return "payment failed"
}

func (e PaymentFailureError) NoRoute() bool {
  return e.Reason == lnrpc.PaymentFailureReason_FAILURE_REASON_NO_ROUTE
}

func (e PaymentFailureError) InsufficientBalance() bool {
  return e.Reason == lnrpc.PaymentFailureReason_FAILURE_REASON_INSUFFICIENT_BALANCE
}

var ErrPaymentTimeout = errors.New("payment timeout")

const paymentGrace = 5 * time.Second

// SendPaymentWithConstraints pays a request out of one channel with a fixed
// last hop, which is how a circular self payment moves liquidity.
func (c *Client) SendPaymentWithConstraints(ctx context.Context, paymentRequest string, outgoingChanID uint64, lastHopPubkey string, feeLimitMsat int64, timeoutSec int32, maxParts uint32) (*lnrpc.Payment, error) {
  trimmed := strings.TrimSpace(paymentRequest)
  if trimmed == "" {
    return nil, errors.New("payment_request required")
  }

  if timeoutSec <= 0 {
    timeoutSec = 60
  }
  if maxParts == 0 {
    maxParts = 1
  }

  req := &routerrpc.SendPaymentRequest{
    PaymentRequest: trimmed,
    TimeoutSeconds: timeoutSec,
    AllowSelfPayment: true,
    MaxParts: maxParts,
    NoInflightUpdates: true,
    FeeLimitMsat: feeLimitMsat,
  }
  if outgoingChanID > 0 {
    req.OutgoingChanId = outgoingChanID
  }
  if trimmedHop := strings.TrimSpace(lastHopPubkey); trimmedHop != "" {
    hopBytes, err := hex.DecodeString(trimmedHop)
    if err != nil {
      return nil, fmt.Errorf("invalid last hop pubkey")
    }
    req.LastHopPubkey = hopBytes
  }

  // lnd gives up after timeoutSec; the extra margin lets its final update
  // arrive before the stream is cut.
  ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second+paymentGrace)
  defer cancel()

  conn, err := c.dial(ctx, true)
  if err != nil {
    return nil, err
  }
  defer conn.Close()

  router := routerrpc.NewRouterClient(conn)
  stream, err := router.SendPaymentV2(ctx, req)
  if err != nil {
    if errors.Is(ctx.Err(), context.DeadlineExceeded) {
      return nil, ErrPaymentTimeout
    }
    return nil, err
  }
  return awaitPayment(ctx, stream)
}

type paymentStream interface {
  Recv() (*lnrpc.Payment, error)
}

// awaitPayment reads status updates until the payment settles or fails. A
// stream cut by the deadline on ctx reports ErrPaymentTimeout.
func awaitPayment(ctx context.Context, stream paymentStream) (*lnrpc.Payment, error) {
  for {
    payment, err := stream.Recv()
    if err != nil {
      if errors.Is(ctx.Err(), context.DeadlineExceeded) {
        return nil, ErrPaymentTimeout
      }
      return nil, err
    }
    if payment == nil {
      continue
    }
    switch payment.Status {
    case lnrpc.Payment_SUCCEEDED:
      return payment, nil
    case lnrpc.Payment_FAILED:
      return payment, PaymentFailureError{Reason: payment.FailureReason}
    default:
    }
  }
}
