package domain

import "time"

// EngineConfig is the immutable configuration snapshot applied to one
// Arbitrage Engine instance. Replaced atomically via Engine.Configure
// (§4.1 configure(opts)).
type EngineConfig struct {
	Shares              float64       `yaml:"shares"`
	SumTarget           float64       `yaml:"sum_target"`
	DipThreshold        float64       `yaml:"dip_threshold"`
	SurgeThreshold      float64       `yaml:"surge_threshold"`
	SlidingWindow       time.Duration `yaml:"sliding_window"`
	WindowMinutes       float64       `yaml:"window_minutes"`
	MaxSlippage         float64       `yaml:"max_slippage"`
	MinProfitRate       float64       `yaml:"min_profit_rate"`
	Leg2Timeout         time.Duration `yaml:"leg2_timeout"`
	ExecutionCooldown   time.Duration `yaml:"execution_cooldown"`
	AutoExecute         bool          `yaml:"auto_execute"`
	EnableSurge         bool          `yaml:"enable_surge"`
	AutoMerge           bool          `yaml:"auto_merge"`
	Debug               bool          `yaml:"debug"`
}

// DefaultEngineConfig returns the defaults enumerated in §4.1.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Shares:            20,
		SumTarget:         0.95,
		DipThreshold:      0.15,
		SurgeThreshold:    0.15,
		SlidingWindow:     3000 * time.Millisecond,
		WindowMinutes:     2,
		MaxSlippage:       0.02,
		MinProfitRate:     0.03,
		Leg2Timeout:       300 * time.Second,
		ExecutionCooldown: 3000 * time.Millisecond,
		AutoExecute:       false,
		EnableSurge:       true,
		AutoMerge:         true,
	}
}

// SettleStrategy enumerates the Supervisor's end-of-market disposition.
type SettleStrategy int

const (
	SettleRedeem SettleStrategy = iota
	SettleSell
)

// RotationConfig configures the Auto-Rotation Supervisor (§4.2).
type RotationConfig struct {
	Underlyings               []string      `yaml:"underlyings"`
	Duration                  Duration      `yaml:"-"`
	PreloadMinutes            float64       `yaml:"preload_minutes"`
	AutoSettle                bool          `yaml:"auto_settle"`
	SettleStrategy            SettleStrategy `yaml:"-"`
	RedeemWaitMinutes         float64       `yaml:"redeem_wait_minutes"`
	RedeemRetryInterval       time.Duration `yaml:"redeem_retry_interval"`
}

// DefaultRotationConfig returns the defaults enumerated in §4.2.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		PreloadMinutes:      2,
		AutoSettle:          true,
		SettleStrategy:      SettleRedeem,
		RedeemWaitMinutes:   5,
		RedeemRetryInterval: 30 * time.Second,
	}
}

// SortBy enumerates Discovery Service result ordering.
type SortBy int

const (
	SortByEndDate SortBy = iota
	SortByVolume
	SortByLiquidity
)

// DiscoveryQuery parameterizes Market Discovery Service scans (§4.4).
type DiscoveryQuery struct {
	Coins              []string
	Durations          []Duration
	MinMinutesUntilEnd float64
	MaxMinutesUntilEnd float64
	Limit              int
	SortBy             SortBy
	Exclude            map[string]bool // conditionIDs to exclude (rotation)
}
