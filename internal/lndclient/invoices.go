package lndclient

import (
  "context"
  "encoding/hex"
  "errors"
  "strings"
  "time"

  "github.com/lightningnetwork/lnd/lnrpc"
  "github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
)

const invoicesPageSize = 1000

type CreatedInvoice struct {
  PaymentRequest string
  PaymentHash string
}

type PendingInvoice struct {
  PaymentRequest string
  PaymentHash string
  Memo string
  ValueSat int64
  CreatedAt time.Time
}

func (c *Client) CreateInvoice(ctx context.Context, amountSat int64, memo string, expirySeconds int64) (CreatedInvoice, error) {
  ctx, cancel := c.withTimeout(ctx)
  defer cancel()
  conn, err := c.dial(ctx, true)
  if err != nil {
    return CreatedInvoice{}, err
  }
  defer conn.Close()

  client := lnrpc.NewLightningClient(conn)

  if expirySeconds <= 0 {
    expirySeconds = 3600
  }

  resp, err := client.AddInvoice(ctx, &lnrpc.Invoice{
    Memo: memo,
    Value: amountSat,
    Expiry: expirySeconds,
  })
  if err != nil {
    return CreatedInvoice{}, err
  }

  return CreatedInvoice{
    PaymentRequest: resp.PaymentRequest,
    PaymentHash: strings.ToLower(hex.EncodeToString(resp.RHash)),
  }, nil
}

// ListPendingInvoices pages through the open invoices.
func (c *Client) ListPendingInvoices(ctx context.Context) ([]PendingInvoice, error) {
  ctx, cancel := c.withTimeout(ctx)
  defer cancel()
  conn, err := c.dial(ctx, true)
  if err != nil {
    return nil, err
  }
  defer conn.Close()

  client := lnrpc.NewLightningClient(conn)

  var offset uint64
  var out []PendingInvoice
  for {
    resp, err := client.ListInvoices(ctx, &lnrpc.ListInvoiceRequest{
      PendingOnly: true,
      IndexOffset: offset,
      NumMaxInvoices: invoicesPageSize,
    })
    if err != nil {
      return nil, err
    }
    if resp == nil || len(resp.Invoices) == 0 {
      break
    }
    for _, inv := range resp.Invoices {
      if inv == nil || inv.State != lnrpc.Invoice_OPEN {
        continue
      }
      out = append(out, PendingInvoice{
        PaymentRequest: inv.PaymentRequest,
        PaymentHash: strings.ToLower(hex.EncodeToString(inv.RHash)),
        Memo: inv.Memo,
        ValueSat: inv.Value,
        CreatedAt: time.Unix(inv.CreationDate, 0),
      })
    }
    if resp.LastIndexOffset <= offset || len(resp.Invoices) < invoicesPageSize {
      break
    }
    offset = resp.LastIndexOffset
  }
  return out, nil
}

func (c *Client) CancelInvoice(ctx context.Context, paymentHash string) error {
  hash, err := hex.DecodeString(strings.TrimSpace(paymentHash))
  if err != nil || len(hash) != 32 {
    return errors.New("invalid payment hash")
  }

  ctx, cancel := c.withTimeout(ctx)
  defer cancel()
  conn, err := c.dial(ctx, true)
  if err != nil {
    return err
  }
  defer conn.Close()

  client := invoicesrpc.NewInvoicesClient(conn)
  _, err = client.CancelInvoice(ctx, &invoicesrpc.CancelInvoiceMsg{PaymentHash: hash})
  return err
}
