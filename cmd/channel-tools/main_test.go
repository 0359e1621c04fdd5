package main

import (
  "bytes"
  "errors"
  "strings"
  "testing"

  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/autofee"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/config"
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/qlearn"
)

func TestApplyPolicyFlags(t *testing.T) {
  cases := []struct {
    name string
    dryRun bool
    confirm bool
    want string
    wantErr bool
  }{
    {name: "config default", want: config.ConfirmApply},
    {name: "dry run", dryRun: true, want: config.ConfirmDryRun},
    {name: "confirm", confirm: true, want: config.ConfirmPrompt},
    {name: "both", dryRun: true, confirm: true, wantErr: true},
  }
  for _, tc := range cases {
    tc := tc
    t.Run(tc.name, func(t *testing.T) {
      cfg := config.Default()
      err := applyPolicyFlags(cfg, tc.dryRun, tc.confirm)
      if tc.wantErr {
        if err == nil {
          t.Fatalf("expected error")
        }
        return
      }
      if err != nil {
        t.Fatalf("unexpected error: %v", err)
      }
      if cfg.Confirm.Mode != tc.want {
        t.Fatalf("mode = %q, want %q", cfg.Confirm.Mode, tc.want)
      }
    })
  }
}

func TestPrintFeeSummary(t *testing.T) {
  var buf bytes.Buffer
  printFeeSummary(&buf, autofee.Summary{
    Mode: config.ModeLearning,
    Raised: 1,
    Errors: 1,
    Inactive: 1,
    Decisions: []autofee.Decision{
      {ChannelID: 1, Alias: "alpha", Status: autofee.StatusApplied, Action: qlearn.Raise, CurrentRate: 0.1, NewRate: 0.11, Reason: "exploitation"},
      {ChannelID: 2, Alias: "beta", Status: autofee.StatusError, Err: errors.New("boom")},
      {ChannelID: 3, Alias: "gamma", Status: autofee.StatusInactive},
    },
  })
  out := buf.String()
  for _, want := range []string{"alpha", "0.100 -> 0.110", "boom", "gamma", "inactive", "up=1", "errors=1"} {
    if !strings.Contains(out, want) {
      t.Fatalf("output missing %q:\n%s", want, out)
    }
  }
}

func TestCommandTree(t *testing.T) {
  want := []string{"version", "fee-run", "rebalance-run", "train", "qtable", "analyze", "serve"}
  for _, name := range want {
    cmd, _, err := RootCmd.Find([]string{name})
    if err != nil || cmd.Name() != name {
      t.Fatalf("command %q not registered", name)
    }
  }
  if cmd, _, err := RootCmd.Find([]string{"qtable", "reset"}); err != nil || cmd.Name() != "reset" {
    t.Fatalf("qtable reset not registered")
  }
}
