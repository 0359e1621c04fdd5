package lndclient

import (
  "context"
  "crypto/x509"
  "encoding/hex"
  "errors"
  "fmt"
  "log"
  "os"
  "strconv"
  "strings"
  "sync"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/config"

  "github.com/lightningnetwork/lnd/lnrpc"
  "google.golang.org/grpc"
  "google.golang.org/grpc/codes"
  "google.golang.org/grpc/credentials"
  "google.golang.org/grpc/status"
)

const maxGRPCMsgSize = 32 * 1024 * 1024

var ErrUnavailable = errors.New("lnd unavailable")

type loggerLike interface {
  Printf(format string, v ...any)
}

type Client struct {
  cfg config.LNDConfig
  logger loggerLike
  pubkeyMu sync.Mutex
  pubkey string
}

func New(cfg config.LNDConfig, logger loggerLike) *Client {
  if logger == nil {
    logger = log.New(os.Stderr, "", log.LstdFlags)
  }
  return &Client{cfg: cfg, logger: logger}
}

type macaroonCredential struct {
  macaroon string
}

func (m macaroonCredential) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
  return map[string]string{"macaroon": m.macaroon}, nil
}

func (m macaroonCredential) RequireTransportSecurity() bool {
  return true
}

type ChannelInfo struct {
  ChannelPoint string
  ChannelID uint64
  RemotePubkey string
  PeerAlias string
  Active bool
  LocalDisabled bool
  LocalBalanceSat int64
  RemoteBalanceSat int64
  BaseFeeMsat int64
  FeeRatePpm int64
  TimeLockDelta int64
  PolicyKnown bool
}

type UpdateChannelPolicyParams struct {
  ChannelPoint string
  BaseFeeMsat int64
  FeeRatePpm int64
  TimeLockDelta int64
  MinHtlcMsat *uint64
}

// PolicyUpdateError carries the per-channel failures lnd reports inside an
// otherwise successful UpdateChannelPolicy response.
type PolicyUpdateError struct {
  ChannelPoint string
  Reasons []string
}

func (e PolicyUpdateError) Error() string {
  return fmt.Sprintf("policy update failed for %s: %s", e.ChannelPoint, strings.Join(e.Reasons, "; "))
}

// withTimeout bounds one unary call by lnd.timeout. A zero timeout leaves
// ctx as is.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
  if c.cfg.Timeout <= 0 {
    return context.WithCancel(ctx)
  }
  return context.WithTimeout(ctx, c.cfg.Timeout)
}

func (c *Client) dial(ctx context.Context, withMacaroon bool) (*grpc.ClientConn, error) {
  tlsCert, err := os.ReadFile(c.cfg.TLSCertPath)
  if err != nil {
    return nil, fmt.Errorf("%w: read tls cert: %v", ErrUnavailable, err)
  }
  certPool := x509.NewCertPool()
  if ok := certPool.AppendCertsFromPEM(tlsCert); !ok {
    return nil, fmt.Errorf("%w: failed to parse LND TLS cert", ErrUnavailable)
  }

  creds := credentials.NewClientTLSFromCert(certPool, "")
  opts := []grpc.DialOption{
    grpc.WithTransportCredentials(creds),
    grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxGRPCMsgSize)),
  }

  if withMacaroon {
    macBytes, err := os.ReadFile(c.cfg.MacaroonPath)
    if err != nil {
      return nil, fmt.Errorf("%w: read macaroon: %v", ErrUnavailable, err)
    }
    macCred := macaroonCredential{hex.EncodeToString(macBytes)}
    opts = append(opts, grpc.WithPerRPCCredentials(macCred))
  }

  conn, err := grpc.DialContext(ctx, c.cfg.GRPCHost, opts...)
  if err != nil {
    return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
  }
  return conn, nil
}

func (c *Client) SelfPubkey(ctx context.Context) (string, error) {
  c.pubkeyMu.Lock()
  cached := c.pubkey
  c.pubkeyMu.Unlock()
  if cached != "" {
    return cached, nil
  }

  ctx, cancel := c.withTimeout(ctx)
  defer cancel()
  conn, err := c.dial(ctx, true)
  if err != nil {
    return "", err
  }
  defer conn.Close()

  client := lnrpc.NewLightningClient(conn)
  info, err := client.GetInfo(ctx, &lnrpc.GetInfoRequest{})
  if err != nil {
    return "", err
  }
  pubkey := strings.TrimSpace(info.IdentityPubkey)
  c.pubkeyMu.Lock()
  c.pubkey = pubkey
  c.pubkeyMu.Unlock()
  return pubkey, nil
}

// ListChannels returns every open channel with our side of its routing
// policy resolved through GetChanInfo.
func (c *Client) ListChannels(ctx context.Context) ([]ChannelInfo, error) {
  ctx, cancel := c.withTimeout(ctx)
  defer cancel()
  conn, err := c.dial(ctx, true)
  if err != nil {
    return nil, err
  }
  defer conn.Close()

  client := lnrpc.NewLightningClient(conn)

  resp, err := client.ListChannels(ctx, &lnrpc.ListChannelsRequest{PeerAliasLookup: true})
  if err != nil {
    return nil, err
  }

  channels := make([]ChannelInfo, 0, len(resp.Channels))
  for _, ch := range resp.Channels {
    info := ChannelInfo{
      ChannelPoint: ch.ChannelPoint,
      ChannelID: ch.ChanId,
      RemotePubkey: ch.RemotePubkey,
      PeerAlias: ch.PeerAlias,
      Active: ch.Active,
      LocalDisabled: isLocalChanDisabledFlags(ch.ChanStatusFlags),
      LocalBalanceSat: ch.LocalBalance,
      RemoteBalanceSat: ch.RemoteBalance,
    }

    edge, err := client.GetChanInfo(ctx, &lnrpc.ChanInfoRequest{ChanId: ch.ChanId})
    if err != nil {
      c.logger.Printf("lndclient: chan info %d unavailable: %v", ch.ChanId, err)
    } else if policy := localPolicy(edge, ch.RemotePubkey); policy != nil {
      info.BaseFeeMsat = policy.FeeBaseMsat
      info.FeeRatePpm = policy.FeeRateMilliMsat
      info.TimeLockDelta = int64(policy.TimeLockDelta)
      info.PolicyKnown = true
      if policy.Disabled {
        info.LocalDisabled = true
      }
    }
    channels = append(channels, info)
  }

  return channels, nil
}

func localPolicy(edge *lnrpc.ChannelEdge, remotePubkey string) *lnrpc.RoutingPolicy {
  if edge == nil {
    return nil
  }
  if remotePubkey != "" {
    if edge.Node1Pub == remotePubkey {
      return edge.Node2Policy
    }
    if edge.Node2Pub == remotePubkey {
      return edge.Node1Policy
    }
  }
  return edge.Node1Policy
}

func (c *Client) UpdateChannelPolicy(ctx context.Context, params UpdateChannelPolicyParams) error {
  cp, err := parseChannelPoint(params.ChannelPoint)
  if err != nil {
    return err
  }
  if params.FeeRatePpm < 0 {
    params.FeeRatePpm = 0
  }

  ctx, cancel := c.withTimeout(ctx)
  defer cancel()
  conn, err := c.dial(ctx, true)
  if err != nil {
    return err
  }
  defer conn.Close()

  req := &lnrpc.PolicyUpdateRequest{
    BaseFeeMsat: params.BaseFeeMsat,
    FeeRatePpm: uint32(params.FeeRatePpm),
    TimeLockDelta: uint32(params.TimeLockDelta),
    Scope: &lnrpc.PolicyUpdateRequest_ChanPoint{ChanPoint: cp},
  }
  if params.MinHtlcMsat != nil {
    req.MinHtlcMsat = *params.MinHtlcMsat
    req.MinHtlcMsatSpecified = true
  }

  client := lnrpc.NewLightningClient(conn)
  resp, err := client.UpdateChannelPolicy(ctx, req)
  if err != nil {
    return err
  }
  if resp != nil && len(resp.FailedUpdates) > 0 {
    reasons := make([]string, 0, len(resp.FailedUpdates))
    for _, failed := range resp.FailedUpdates {
      if failed == nil {
        continue
      }
      reason := failed.Reason.String()
      if msg := strings.TrimSpace(failed.UpdateError); msg != "" {
        reason += ": " + msg
      }
      reasons = append(reasons, reason)
    }
    return PolicyUpdateError{ChannelPoint: params.ChannelPoint, Reasons: reasons}
  }
  return nil
}

// IsUnavailable reports whether err means lnd could not be reached at all,
// as opposed to lnd answering with a failure.
func IsUnavailable(err error) bool {
  if err == nil {
    return false
  }
  if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
    return true
  }
  if st, ok := status.FromError(err); ok {
    switch st.Code() {
    case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
      return true
    }
  }
  return isTimeoutError(err)
}

func isTimeoutError(err error) bool {
  if err == nil {
    return false
  }
  msg := strings.ToLower(err.Error())
  return strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "context deadline exceeded")
}

func isLocalChanDisabledFlags(flags string) bool {
  trimmed := strings.TrimSpace(flags)
  if trimmed == "" {
    return false
  }
  normalized := strings.ToLower(trimmed)
  split := func(r rune) bool {
    switch r {
    case '|', ',', ';', ' ':
      return true
    default:
      return false
    }
  }
  for _, token := range strings.FieldsFunc(normalized, split) {
    tok := strings.TrimSpace(token)
    if tok == "" || strings.Contains(tok, "remote") {
      continue
    }
    if strings.Contains(tok, "localchandisabled") || strings.Contains(tok, "local_chan_disabled") {
      return true
    }
    if strings.Contains(tok, "disabled") && (strings.Contains(tok, "local") || strings.Contains(tok, "chanstatusdisabled") || tok == "disabled") {
      return true
    }
  }
  return false
}

func parseChannelPoint(point string) (*lnrpc.ChannelPoint, error) {
  trimmed := strings.TrimSpace(point)
  if trimmed == "" {
    return nil, errors.New("channel_point required")
  }
  parts := strings.Split(trimmed, ":")
  if len(parts) != 2 {
    return nil, errors.New("channel_point must be txid:index")
  }
  idx, err := strconv.ParseUint(parts[1], 10, 32)
  if err != nil {
    return nil, errors.New("invalid channel_point index")
  }
  return &lnrpc.ChannelPoint{
    FundingTxid: &lnrpc.ChannelPoint_FundingTxidStr{FundingTxidStr: parts[0]},
    OutputIndex: uint32(idx),
  }, nil
}
