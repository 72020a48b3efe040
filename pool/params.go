package pool

import (
	"math/big"

	"lendcore/fpmath"
)

// RiskParameters groups the safety limits governing one market. All ratio
// fields are WAD scaled.
type RiskParameters struct {
	// MaxLTV caps new borrowing as a fraction of collateral value.
	MaxLTV *big.Int
	// LiquidationThreshold is the health-factor collateral ratio; must be at
	// least MaxLTV.
	LiquidationThreshold *big.Int
	// LiquidationPenalty is the collateral bonus fraction awarded to
	// liquidators on top of the repaid debt value.
	LiquidationPenalty *big.Int
	// CloseFactor bounds the debt fraction liquidatable per auction.
	CloseFactor *big.Int
	// ReserveFactor is the accrued-interest fraction kept by the protocol.
	ReserveFactor *big.Int
}

// Validate rejects parameter sets that would make the market unsafe.
func (p RiskParameters) Validate() error {
	for _, v := range []*big.Int{p.MaxLTV, p.LiquidationThreshold, p.LiquidationPenalty, p.CloseFactor, p.ReserveFactor} {
		if v == nil || v.Sign() < 0 {
			return ErrInvalidRiskParameters
		}
	}
	if p.MaxLTV.Cmp(fpmath.Wad) > 0 || p.LiquidationThreshold.Cmp(fpmath.Wad) > 0 {
		return ErrInvalidRiskParameters
	}
	if p.MaxLTV.Cmp(p.LiquidationThreshold) > 0 {
		return ErrInvalidRiskParameters
	}
	if p.CloseFactor.Cmp(fpmath.Wad) > 0 || p.ReserveFactor.Cmp(fpmath.Wad) > 0 {
		return ErrInvalidRiskParameters
	}
	return nil
}

// Clone returns a deep copy of the risk parameters.
func (p RiskParameters) Clone() RiskParameters {
	return RiskParameters{
		MaxLTV:               cloneInt(p.MaxLTV),
		LiquidationThreshold: cloneInt(p.LiquidationThreshold),
		LiquidationPenalty:   cloneInt(p.LiquidationPenalty),
		CloseFactor:          cloneInt(p.CloseFactor),
		ReserveFactor:        cloneInt(p.ReserveFactor),
	}
}

// ActionPauses exposes fine-grained switches for halting individual flows
// during incident response. Paused flows fail with ErrPaused.
type ActionPauses struct {
	Supply    bool
	Borrow    bool
	Repay     bool
	Liquidate bool
}

// BorrowCaps throttles borrow growth. Zero values disable a cap.
type BorrowCaps struct {
	// Total constrains the aggregate outstanding borrow exposure.
	Total *big.Int
	// UtilizationBps bounds borrow utilisation relative to supplied
	// liquidity, in basis points.
	UtilizationBps uint64
}

// Clone returns a deep copy of the borrow caps.
func (c BorrowCaps) Clone() BorrowCaps {
	clone := BorrowCaps{UtilizationBps: c.UtilizationBps}
	if c.Total != nil {
		clone.Total = new(big.Int).Set(c.Total)
	}
	return clone
}
