package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nexto0/dip-arbiter/internal/domain"
)

// Config is the complete configuration for cmd/dipengine.
type Config struct {
	Engine    domain.EngineConfig   `yaml:"engine"`
	Rotation  domain.RotationConfig `yaml:"rotation"`
	Discovery DiscoveryConfig       `yaml:"discovery"`
	Transport TransportConfig       `yaml:"transport"`
	CLOB      CLOBConfig            `yaml:"clob"`
	Chain     ChainConfig           `yaml:"chain"`
	Storage   StorageConfig         `yaml:"storage"`
	Log       LogConfig             `yaml:"log"`

	// RotationDuration/RotationSettleStrategy carry domain.RotationConfig's
	// yaml:"-" fields as plain strings, resolved in setDefaults.
	RotationDuration       string `yaml:"rotation_duration"`
	RotationSettleStrategy string `yaml:"rotation_settle_strategy"` // "redeem" | "sell"
}

// DiscoveryConfig parameterizes the Market Discovery Service's scan
// loop (§4.4): which underlyings and round durations to watch.
type DiscoveryConfig struct {
	Coins              []string `yaml:"coins"`
	Durations          []string `yaml:"durations"` // e.g. "5m", "15m" — parsed via domain.ParseDuration
	MinMinutesUntilEnd float64  `yaml:"min_minutes_until_end"`
	MaxMinutesUntilEnd float64  `yaml:"max_minutes_until_end"`
	Limit              int      `yaml:"limit"`
}

// TransportConfig configures the Realtime Transport's WebSocket
// connection (§4.5).
type TransportConfig struct {
	WSURL string `yaml:"ws_url"`
}

// CLOBConfig configures the CLOB HTTP adapter (§4.3, §4.6): REST bases,
// the Gamma market-data base used by discovery, and the signing key
// used to derive L2 API credentials.
type CLOBConfig struct {
	Base          string `yaml:"base"`
	GammaBase     string `yaml:"gamma_base"`
	PrivateKeyHex string `yaml:"-"` // CLOB_PRIVATE_KEY env only, never on disk
}

// ChainConfig configures the on-chain Settlement adapter (§4.1
// "settle", §4.2 redemption).
type ChainConfig struct {
	RPCURL        string `yaml:"rpc_url"`
	PrivateKeyHex string `yaml:"-"` // CHAIN_PRIVATE_KEY env only, never on disk
}

// StorageConfig controls where the pending-redemption queue persists.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // path to the SQLite file, or ":memory:"
}

// LogConfig controls logging level and handler format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file at path, applies an optional .env file and
// environment overrides, then fills in defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	cfg := Config{Engine: domain.DefaultEngineConfig(), Rotation: domain.DefaultRotationConfig()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// ParsedDurations resolves DiscoveryConfig.Durations into domain.Duration
// values, skipping any tag that fails to parse.
func (d DiscoveryConfig) ParsedDurations() []domain.Duration {
	out := make([]domain.Duration, 0, len(d.Durations))
	for _, tag := range d.Durations {
		dur, ok := domain.ParseDuration(tag)
		if !ok {
			continue
		}
		out = append(out, dur)
	}
	return out
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("CLOB_BASE"); v != "" {
		cfg.CLOB.Base = v
	}
	if v := os.Getenv("GAMMA_BASE"); v != "" {
		cfg.CLOB.GammaBase = v
	}
	if v := os.Getenv("CLOB_PRIVATE_KEY"); v != "" {
		cfg.CLOB.PrivateKeyHex = v
	}
	if v := os.Getenv("CHAIN_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("CHAIN_PRIVATE_KEY"); v != "" {
		cfg.Chain.PrivateKeyHex = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("AUTO_EXECUTE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Engine.AutoExecute = b
		}
	}
}

func setDefaults(cfg *Config) {
	defaultEngine := domain.DefaultEngineConfig()
	if cfg.Engine.Shares <= 0 {
		cfg.Engine.Shares = defaultEngine.Shares
	}
	if cfg.Engine.SumTarget <= 0 {
		cfg.Engine.SumTarget = defaultEngine.SumTarget
	}
	if cfg.Engine.DipThreshold <= 0 {
		cfg.Engine.DipThreshold = defaultEngine.DipThreshold
	}
	if cfg.Engine.SurgeThreshold <= 0 {
		cfg.Engine.SurgeThreshold = defaultEngine.SurgeThreshold
	}
	if cfg.Engine.SlidingWindow <= 0 {
		cfg.Engine.SlidingWindow = defaultEngine.SlidingWindow
	}
	if cfg.Engine.WindowMinutes <= 0 {
		cfg.Engine.WindowMinutes = defaultEngine.WindowMinutes
	}
	if cfg.Engine.MaxSlippage <= 0 {
		cfg.Engine.MaxSlippage = defaultEngine.MaxSlippage
	}
	if cfg.Engine.MinProfitRate <= 0 {
		cfg.Engine.MinProfitRate = defaultEngine.MinProfitRate
	}
	if cfg.Engine.Leg2Timeout <= 0 {
		cfg.Engine.Leg2Timeout = defaultEngine.Leg2Timeout
	}
	if cfg.Engine.ExecutionCooldown <= 0 {
		cfg.Engine.ExecutionCooldown = defaultEngine.ExecutionCooldown
	}

	defaultRotation := domain.DefaultRotationConfig()
	if cfg.Rotation.PreloadMinutes <= 0 {
		cfg.Rotation.PreloadMinutes = defaultRotation.PreloadMinutes
	}
	if cfg.Rotation.RedeemWaitMinutes <= 0 {
		cfg.Rotation.RedeemWaitMinutes = defaultRotation.RedeemWaitMinutes
	}
	if cfg.Rotation.RedeemRetryInterval <= 0 {
		cfg.Rotation.RedeemRetryInterval = defaultRotation.RedeemRetryInterval
	}
	if len(cfg.Rotation.Underlyings) == 0 {
		cfg.Rotation.Underlyings = []string{"BTC", "ETH"}
	}
	if dur, ok := domain.ParseDuration(cfg.RotationDuration); ok {
		cfg.Rotation.Duration = dur
	} else {
		cfg.Rotation.Duration = domain.Duration5m
	}
	if cfg.RotationSettleStrategy == "sell" {
		cfg.Rotation.SettleStrategy = domain.SettleSell
	} else {
		cfg.Rotation.SettleStrategy = domain.SettleRedeem
	}

	if cfg.Discovery.Limit <= 0 {
		cfg.Discovery.Limit = 50
	}
	if len(cfg.Discovery.Coins) == 0 {
		cfg.Discovery.Coins = cfg.Rotation.Underlyings
	}
	if len(cfg.Discovery.Durations) == 0 {
		cfg.Discovery.Durations = []string{"5m", "15m"}
	}

	if cfg.Transport.WSURL == "" {
		cfg.Transport.WSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if cfg.CLOB.Base == "" {
		cfg.CLOB.Base = "https://clob.polymarket.com"
	}
	if cfg.CLOB.GammaBase == "" {
		cfg.CLOB.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Chain.RPCURL == "" {
		cfg.Chain.RPCURL = "https://polygon-rpc.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "dipengine.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// RedeemWait returns the post-expiry grace period before a round's
// redemption is first attempted.
func (c *Config) RedeemWait() time.Duration {
	return time.Duration(c.Rotation.RedeemWaitMinutes * float64(time.Minute))
}
