package lndclient

import (
  "context"
  "time"

  "github.com/lightningnetwork/lnd/lnrpc"
)

const forwardingPageSize = 50000

type Forward struct {
  Timestamp time.Time
  ChanIDIn uint64
  ChanIDOut uint64
  FeeMsat int64
  AmtInMsat int64
  AmtOutMsat int64
}

// ForwardingHistory returns every forward settled in [start, end].
func (c *Client) ForwardingHistory(ctx context.Context, start time.Time, end time.Time) ([]Forward, error) {
  ctx, cancel := c.withTimeout(ctx)
  defer cancel()
  conn, err := c.dial(ctx, true)
  if err != nil {
    return nil, err
  }
  defer conn.Close()

  client := lnrpc.NewLightningClient(conn)

  var offset uint32
  var out []Forward
  for {
    resp, err := client.ForwardingHistory(ctx, &lnrpc.ForwardingHistoryRequest{
      StartTime: uint64(start.Unix()),
      EndTime: uint64(end.Unix()),
      IndexOffset: offset,
      NumMaxEvents: forwardingPageSize,
    })
    if err != nil {
      return nil, err
    }
    if resp == nil || len(resp.ForwardingEvents) == 0 {
      break
    }

    for _, evt := range resp.ForwardingEvents {
      if evt == nil {
        continue
      }
      out = append(out, forwardFromEvent(evt))
    }

    if resp.LastOffsetIndex <= offset {
      break
    }
    offset = resp.LastOffsetIndex
    if len(resp.ForwardingEvents) < forwardingPageSize {
      break
    }
  }

  return out, nil
}

func forwardFromEvent(evt *lnrpc.ForwardingEvent) Forward {
  ts := time.Unix(int64(evt.Timestamp), 0)
  if evt.TimestampNs > 0 {
    ts = time.Unix(0, int64(evt.TimestampNs))
  }
  feeMsat := int64(evt.FeeMsat)
  if feeMsat == 0 && evt.Fee > 0 {
    feeMsat = int64(evt.Fee) * 1000
  }
  amtIn := int64(evt.AmtInMsat)
  if amtIn == 0 && evt.AmtIn > 0 {
    amtIn = int64(evt.AmtIn) * 1000
  }
  amtOut := int64(evt.AmtOutMsat)
  if amtOut == 0 && evt.AmtOut > 0 {
    amtOut = int64(evt.AmtOut) * 1000
  }
  return Forward{
    Timestamp: ts,
    ChanIDIn: evt.ChanIdIn,
    ChanIDOut: evt.ChanIdOut,
    FeeMsat: feeMsat,
    AmtInMsat: amtIn,
    AmtOutMsat: amtOut,
  }
}
