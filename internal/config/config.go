package config

import (
  "errors"
  "fmt"
  "math"
  "os"
  "path/filepath"
  "strings"
  "time"

  "gopkg.in/yaml.v3"
)

const (
  ModeLearning = "learning"
  ModeRules = "rules"

  ConfirmApply = "apply"
  ConfirmPrompt = "confirm"
  ConfirmDryRun = "dry-run"

  EnvConfigPath = "CHANNEL_TOOLS_CONFIG"
  DefaultPath = "/etc/channel-tools/config.yaml"
)

type Config struct {
  LND LNDConfig `yaml:"lnd"`
  Data DataConfig `yaml:"data"`
  Fee FeeConfig `yaml:"fee"`
  Rebalance RebalanceConfig `yaml:"rebalance"`
  Confirm ConfirmConfig `yaml:"confirm"`
  Logging LoggingConfig `yaml:"logging"`
  Storage StorageConfig `yaml:"storage"`
  Server ServerConfig `yaml:"server"`
}

type LNDConfig struct {
  GRPCHost string `yaml:"grpc_host"`
  TLSCertPath string `yaml:"tls_cert_path"`
  MacaroonPath string `yaml:"macaroon_path"`
  Timeout time.Duration `yaml:"timeout"`
}

type DataConfig struct {
  Dir string `yaml:"dir"`
  EpisodeLog string `yaml:"episode_log"`
  QTablePath string `yaml:"qtable_path"`
  AnalysisCSV string `yaml:"analysis_csv"`
  AnalysisChart string `yaml:"analysis_chart"`
}

type FeeConfig struct {
  Mode string `yaml:"mode"`
  Alpha float64 `yaml:"alpha"`
  Gamma float64 `yaml:"gamma"`
  Epsilon float64 `yaml:"epsilon"`
  AggregationDays int `yaml:"aggregation_days"`
  IncreaseStep float64 `yaml:"increase_step"`
  DecreaseStep float64 `yaml:"decrease_step"`
  RewardDivisor float64 `yaml:"reward_divisor"`
  VolumeNormalization float64 `yaml:"volume_normalization"`
  TimeLockDelta int64 `yaml:"time_lock_delta"`
  MinHtlcMsat uint64 `yaml:"min_htlc_msat"`
}

type RebalanceConfig struct {
  FeeLimitStartSat int64 `yaml:"fee_limit_start_sat"`
  FeeLimitIncrementSat int64 `yaml:"fee_limit_increment_sat"`
  FeeLimitDecrementSat int64 `yaml:"fee_limit_decrement_sat"`
  InvoiceSizeSat int64 `yaml:"invoice_size_sat"`
  InvoiceExpirySec int64 `yaml:"invoice_expiry_sec"`
  PaymentTimeout time.Duration `yaml:"payment_timeout"`
  MaxSucceeded int `yaml:"max_succeeded"`
  MaxAttempts int `yaml:"max_attempts"`
  HighRatio float64 `yaml:"high_ratio"`
  LowRatio float64 `yaml:"low_ratio"`
}

type ConfirmConfig struct {
  Mode string `yaml:"mode"`
}

type LoggingConfig struct {
  Level string `yaml:"level"`
  File string `yaml:"file"`
  Format string `yaml:"format"`
}

type StorageConfig struct {
  PostgresDSN string `yaml:"postgres_dsn"`
}

type ServerConfig struct {
  Listen string `yaml:"listen"`
}

func Default() *Config {
  return &Config{
    LND: LNDConfig{
      GRPCHost: "127.0.0.1:10009",
      TLSCertPath: "/root/.lnd/tls.cert",
      MacaroonPath: "/root/.lnd/data/chain/bitcoin/mainnet/admin.macaroon",
      Timeout: 30 * time.Second,
    },
    Data: DataConfig{
      Dir: "/var/lib/channel-tools",
      EpisodeLog: "fee_adjustment_data.csv",
      QTablePath: "q_table.cbor",
      AnalysisCSV: "cumulative_rewards_analysis.csv",
      AnalysisChart: "cumulative_rewards.html",
    },
    Fee: FeeConfig{
      Mode: ModeLearning,
      Alpha: 0.1,
      Gamma: 0.9,
      Epsilon: 0.1,
      AggregationDays: 7,
      IncreaseStep: 0.01,
      DecreaseStep: 0.005,
      RewardDivisor: 1000000,
      VolumeNormalization: 10000,
      TimeLockDelta: 40,
      MinHtlcMsat: 1000,
    },
    Rebalance: RebalanceConfig{
      FeeLimitStartSat: 150,
      FeeLimitIncrementSat: 10,
      FeeLimitDecrementSat: 5,
      InvoiceSizeSat: 500000,
      InvoiceExpirySec: 3600,
      PaymentTimeout: 15 * time.Second,
      MaxSucceeded: 20,
      MaxAttempts: 250,
      HighRatio: 3,
      LowRatio: 0.33,
    },
    Confirm: ConfirmConfig{Mode: ConfirmApply},
    Logging: LoggingConfig{Level: "info", Format: "auto"},
    Server: ServerConfig{Listen: "127.0.0.1:8089"},
  }
}

// Load reads the YAML file at path over the defaults. A missing file is not an
// error; the defaults are returned as is.
func Load(path string) (*Config, error) {
  cfg := Default()
  path = strings.TrimSpace(path)
  if path == "" {
    path = ResolvePath()
  }
  raw, err := os.ReadFile(path)
  if err != nil {
    if errors.Is(err, os.ErrNotExist) {
      return cfg, cfg.Validate()
    }
    return nil, err
  }
  if err := yaml.Unmarshal(raw, cfg); err != nil {
    return nil, fmt.Errorf("parse %s: %w", path, err)
  }
  if err := cfg.Validate(); err != nil {
    return nil, err
  }
  return cfg, nil
}

func ResolvePath() string {
  if env := strings.TrimSpace(os.Getenv(EnvConfigPath)); env != "" {
    return env
  }
  return DefaultPath
}

// Validate clamps numeric settings into their usable ranges and rejects
// settings that contradict each other.
func (c *Config) Validate() error {
  c.Fee.Mode = strings.ToLower(strings.TrimSpace(c.Fee.Mode))
  switch c.Fee.Mode {
  case "":
    c.Fee.Mode = ModeLearning
  case ModeLearning, ModeRules:
  default:
    return fmt.Errorf("fee.mode must be %q or %q", ModeLearning, ModeRules)
  }
  c.Confirm.Mode = strings.ToLower(strings.TrimSpace(c.Confirm.Mode))
  switch c.Confirm.Mode {
  case "":
    c.Confirm.Mode = ConfirmApply
  case ConfirmApply, ConfirmPrompt, ConfirmDryRun:
  default:
    return fmt.Errorf("confirm.mode must be one of apply, confirm, dry-run")
  }

  c.Fee.Alpha = clampUnit(c.Fee.Alpha)
  c.Fee.Gamma = clampUnit(c.Fee.Gamma)
  c.Fee.Epsilon = clampUnit(c.Fee.Epsilon)
  if c.Fee.AggregationDays < 1 {
    c.Fee.AggregationDays = 1
  }
  if c.Fee.AggregationDays > 365 {
    c.Fee.AggregationDays = 365
  }
  if c.Fee.IncreaseStep < 0 || math.IsNaN(c.Fee.IncreaseStep) {
    c.Fee.IncreaseStep = 0
  }
  if c.Fee.DecreaseStep < 0 || math.IsNaN(c.Fee.DecreaseStep) {
    c.Fee.DecreaseStep = 0
  }
  if c.Fee.RewardDivisor <= 0 {
    return errors.New("fee.reward_divisor must be positive")
  }
  if c.Fee.VolumeNormalization <= 0 {
    return errors.New("fee.volume_normalization must be positive")
  }
  if c.Fee.TimeLockDelta <= 0 {
    c.Fee.TimeLockDelta = 40
  }

  r := &c.Rebalance
  if r.FeeLimitStartSat < 0 {
    r.FeeLimitStartSat = 0
  }
  if r.FeeLimitIncrementSat < 0 {
    r.FeeLimitIncrementSat = 0
  }
  if r.FeeLimitDecrementSat < 0 {
    r.FeeLimitDecrementSat = 0
  }
  if r.InvoiceSizeSat <= 0 {
    return errors.New("rebalance.invoice_size_sat must be positive")
  }
  if r.InvoiceExpirySec <= 0 {
    r.InvoiceExpirySec = 3600
  }
  if r.PaymentTimeout < time.Second {
    r.PaymentTimeout = time.Second
  }
  if r.MaxSucceeded < 1 {
    r.MaxSucceeded = 1
  }
  if r.MaxAttempts < 1 {
    r.MaxAttempts = 1
  }
  if r.LowRatio <= 0 || r.HighRatio <= 0 {
    return errors.New("rebalance ratios must be positive")
  }
  if r.LowRatio >= r.HighRatio {
    return fmt.Errorf("rebalance.low_ratio (%g) must be below rebalance.high_ratio (%g)", r.LowRatio, r.HighRatio)
  }

  if c.LND.Timeout <= 0 {
    c.LND.Timeout = 30 * time.Second
  }
  if strings.TrimSpace(c.Data.Dir) == "" {
    c.Data.Dir = "."
  }
  return nil
}

// Path resolves a data file name against the data directory.
func (c *Config) Path(name string) string {
  if name == "" || filepath.IsAbs(name) {
    return name
  }
  return filepath.Join(c.Data.Dir, name)
}

func (c *Config) EpisodeLogPath() string {
  return c.Path(c.Data.EpisodeLog)
}

func (c *Config) QTablePath() string {
  return c.Path(c.Data.QTablePath)
}

func clampUnit(v float64) float64 {
  if math.IsNaN(v) || v < 0 {
    return 0
  }
  if v > 1 {
    return 1
  }
  return v
}
