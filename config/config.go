package config

import (
	"math/big"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"lendcore/auction"
	"lendcore/pool"
)

// Config is the top-level TOML document: one auction and oracle policy
// shared by the deployment plus one block per isolated market.
type Config struct {
	Oracle  OracleConfig   `toml:"oracle"`
	Auction AuctionConfig  `toml:"auction"`
	Markets []MarketConfig `toml:"markets"`
}

// OracleConfig bounds price freshness and source agreement.
type OracleConfig struct {
	MaxStalenessSeconds  uint64 `toml:"MaxStalenessSeconds"`
	TwapWindowSeconds    uint64 `toml:"TwapWindowSeconds"`
	MaxDeviationBps      uint64 `toml:"MaxDeviationBps"`
	LivenessGraceSeconds uint64 `toml:"LivenessGraceSeconds"`
}

// MaxStaleness returns the round-feed freshness bound.
func (o OracleConfig) MaxStaleness() time.Duration {
	return time.Duration(o.MaxStalenessSeconds) * time.Second
}

// TwapWindow returns the fallback observation window.
func (o OracleConfig) TwapWindow() time.Duration {
	return time.Duration(o.TwapWindowSeconds) * time.Second
}

// LivenessGrace returns the post-recovery hold-off.
func (o OracleConfig) LivenessGrace() time.Duration {
	return time.Duration(o.LivenessGraceSeconds) * time.Second
}

// AuctionConfig shapes the Dutch price decay.
type AuctionConfig struct {
	StartPremiumBps uint64 `toml:"StartPremiumBps"`
	EndDiscountBps  uint64 `toml:"EndDiscountBps"`
	DurationSeconds uint64 `toml:"DurationSeconds"`
}

// Params converts the basis-point configuration into auction parameters:
// the premium is added on top of par, the discount subtracted from it.
func (a AuctionConfig) Params() auction.Params {
	return auction.Params{
		StartPremium: bpsToWad(10_000 + a.StartPremiumBps),
		EndDiscount:  bpsToWad(10_000 - a.EndDiscountBps),
		Duration:     time.Duration(a.DurationSeconds) * time.Second,
	}
}

// MarketConfig declares one isolated market and its risk surface. All
// ratios are basis points.
type MarketConfig struct {
	ID                 string `toml:"ID"`
	BorrowSymbol       string `toml:"BorrowSymbol"`
	BorrowDecimals     uint8  `toml:"BorrowDecimals"`
	CollateralSymbol   string `toml:"CollateralSymbol"`
	CollateralDecimals uint8  `toml:"CollateralDecimals"`

	MaxLTVBps               uint64 `toml:"MaxLTVBps"`
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps"`
	LiquidationPenaltyBps   uint64 `toml:"LiquidationPenaltyBps"`
	CloseFactorBps          uint64 `toml:"CloseFactorBps"`
	ReserveFactorBps        uint64 `toml:"ReserveFactorBps"`

	BaseRateBps   uint64 `toml:"BaseRateBps"`
	SlopeBelowBps uint64 `toml:"SlopeBelowBps"`
	SlopeAboveBps uint64 `toml:"SlopeAboveBps"`
	KinkBps       uint64 `toml:"KinkBps"`

	BorrowCapTotal    string `toml:"BorrowCapTotal,omitempty"`
	UtilizationCapBps uint64 `toml:"UtilizationCapBps,omitempty"`

	PauseSupply    bool `toml:"PauseSupply,omitempty"`
	PauseBorrow    bool `toml:"PauseBorrow,omitempty"`
	PauseRepay     bool `toml:"PauseRepay,omitempty"`
	PauseLiquidate bool `toml:"PauseLiquidate,omitempty"`
}

// RiskParameters converts the basis-point risk surface to WAD parameters.
func (m MarketConfig) RiskParameters() pool.RiskParameters {
	return pool.RiskParameters{
		MaxLTV:               bpsToWad(m.MaxLTVBps),
		LiquidationThreshold: bpsToWad(m.LiquidationThresholdBps),
		LiquidationPenalty:   bpsToWad(m.LiquidationPenaltyBps),
		CloseFactor:          bpsToWad(m.CloseFactorBps),
		ReserveFactor:        bpsToWad(m.ReserveFactorBps),
	}
}

// InterestModel builds the kinked rate model for the market.
func (m MarketConfig) InterestModel() (*pool.InterestModel, error) {
	return pool.NewInterestModel(
		bpsToWad(m.BaseRateBps),
		bpsToWad(m.SlopeBelowBps),
		bpsToWad(m.SlopeAboveBps),
		bpsToWad(m.KinkBps),
	)
}

// BorrowCaps parses the optional cap block. The total cap is a decimal
// string in native borrow-token units so large caps survive TOML integers.
func (m MarketConfig) BorrowCaps() (pool.BorrowCaps, error) {
	caps := pool.BorrowCaps{UtilizationBps: m.UtilizationCapBps}
	if m.BorrowCapTotal != "" {
		total, ok := new(big.Int).SetString(m.BorrowCapTotal, 10)
		if !ok || total.Sign() < 0 {
			return pool.BorrowCaps{}, errBorrowCap(m.ID, m.BorrowCapTotal)
		}
		caps.Total = total
	}
	return caps, nil
}

// Pauses returns the per-action pause switches.
func (m MarketConfig) Pauses() pool.ActionPauses {
	return pool.ActionPauses{
		Supply:    m.PauseSupply,
		Borrow:    m.PauseBorrow,
		Repay:     m.PauseRepay,
		Liquidate: m.PauseLiquidate,
	}
}

// Load reads and validates the configuration at path. A missing file is
// an error; deployments ship an explicit config.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.EnsureDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnsureDefaults fills conservative defaults for omitted policy fields.
func (c *Config) EnsureDefaults() {
	if c.Oracle.MaxStalenessSeconds == 0 {
		c.Oracle.MaxStalenessSeconds = 3600
	}
	if c.Oracle.TwapWindowSeconds == 0 {
		c.Oracle.TwapWindowSeconds = 1800
	}
	if c.Oracle.MaxDeviationBps == 0 {
		c.Oracle.MaxDeviationBps = 500
	}
	if c.Auction.StartPremiumBps == 0 {
		c.Auction.StartPremiumBps = 500
	}
	if c.Auction.EndDiscountBps == 0 {
		c.Auction.EndDiscountBps = 500
	}
	if c.Auction.DurationSeconds == 0 {
		c.Auction.DurationSeconds = 1200
	}
}

func bpsToWad(bps uint64) *big.Int {
	out := new(big.Int).SetUint64(bps)
	return out.Mul(out, big.NewInt(100_000_000_000_000))
}
