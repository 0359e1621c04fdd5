package lndclient

import (
  "testing"

  "github.com/lightningnetwork/lnd/lnrpc"
)

func TestForwardFromEventPrefersMsatFields(t *testing.T) {
  evt := &lnrpc.ForwardingEvent{
    Timestamp: 1700000000,
    ChanIdIn: 11,
    ChanIdOut: 22,
    Fee: 1,
    FeeMsat: 1234,
    AmtIn: 100,
    AmtInMsat: 100500,
    AmtOut: 99,
    AmtOutMsat: 99266,
  }
  got := forwardFromEvent(evt)
  if got.ChanIDIn != 11 || got.ChanIDOut != 22 {
    t.Fatalf("unexpected channel ids %+v", got)
  }
  if got.FeeMsat != 1234 || got.AmtInMsat != 100500 || got.AmtOutMsat != 99266 {
    t.Fatalf("unexpected amounts %+v", got)
  }
  if got.Timestamp.Unix() != 1700000000 {
    t.Fatalf("unexpected timestamp %v", got.Timestamp)
  }
}

func TestForwardFromEventFallsBackToSat(t *testing.T) {
  got := forwardFromEvent(&lnrpc.ForwardingEvent{Fee: 2, AmtIn: 10, AmtOut: 8, TimestampNs: 1700000000123000000})
  if got.FeeMsat != 2000 || got.AmtInMsat != 10000 || got.AmtOutMsat != 8000 {
    t.Fatalf("unexpected amounts %+v", got)
  }
  if got.Timestamp.UnixNano() != 1700000000123000000 {
    t.Fatalf("nanosecond timestamp not used: %v", got.Timestamp)
  }
}
