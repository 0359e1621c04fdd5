package main

import (
  "github.com/Fulmine-Labs/lightning-node-channel-tools/internal/server"

  "github.com/spf13/cobra"
)

var serveListen string

var serveCmd = &cobra.Command{
  Use: "serve",
  Short: "Serve the read-only JSON API",
  RunE: runServe,
}

func init() {
  serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
  e, err := loadEnv()
  if err != nil {
    return err
  }
  if serveListen != "" {
    e.cfg.Server.Listen = serveListen
  }

  ctx, cancel := signalContext()
  defer cancel()

  st := e.openStore(ctx)
  defer st.Close()

  return server.New(e.cfg, e.lnd(), st, e.log).Run(ctx)
}
