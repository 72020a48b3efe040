package auction

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"lendcore/fpmath"
)

// Status tracks the auction lifecycle.
type Status int

const (
	StatusActive Status = iota
	StatusCompleted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Auction is one Dutch sale of locked collateral against outstanding debt.
// Prices are WAD ratios of collateral value to borrow value: the number of
// borrow tokens (value-normalised) one collateral token costs. The price
// decays linearly from StartPrice to EndPrice over the window.
type Auction struct {
	ID     uuid.UUID
	PoolID string
	User   common.Address

	// DebtToRepay and CollateralForSale are the remaining amounts, in
	// borrow and collateral token units; fills reduce both.
	DebtToRepay       *big.Int
	CollateralForSale *big.Int

	StartTime  time.Time
	EndTime    time.Time
	StartPrice *big.Int
	EndPrice   *big.Int

	Status Status
}

// Clone returns a deep copy safe for callers to hold.
func (a *Auction) Clone() Auction {
	return Auction{
		ID:                a.ID,
		PoolID:            a.PoolID,
		User:              a.User,
		DebtToRepay:       new(big.Int).Set(a.DebtToRepay),
		CollateralForSale: new(big.Int).Set(a.CollateralForSale),
		StartTime:         a.StartTime,
		EndTime:           a.EndTime,
		StartPrice:        new(big.Int).Set(a.StartPrice),
		EndPrice:          new(big.Int).Set(a.EndPrice),
		Status:            a.Status,
	}
}

// priceAt interpolates the decayed price at the given instant, clamped to
// the window endpoints.
func (a *Auction) priceAt(now time.Time) *big.Int {
	if !now.After(a.StartTime) {
		return new(big.Int).Set(a.StartPrice)
	}
	if !now.Before(a.EndTime) {
		return new(big.Int).Set(a.EndPrice)
	}
	elapsed := big.NewInt(int64(now.Sub(a.StartTime) / time.Second))
	duration := big.NewInt(int64(a.EndTime.Sub(a.StartTime) / time.Second))
	span := new(big.Int).Sub(a.StartPrice, a.EndPrice)
	drop, err := fpmath.MulDiv(span, elapsed, duration, fpmath.RoundDown)
	if err != nil {
		return new(big.Int).Set(a.EndPrice)
	}
	return new(big.Int).Sub(a.StartPrice, drop)
}

// Params shapes every auction the liquidator starts: the opening premium
// and closing discount are WAD multipliers applied to the oracle reference
// price (for example 1.05 and 0.95), the duration fixes the decay window.
type Params struct {
	StartPremium *big.Int
	EndDiscount  *big.Int
	Duration     time.Duration
}

// Validate rejects configurations that cannot produce a decaying price.
func (p Params) Validate() error {
	if p.StartPremium == nil || p.EndDiscount == nil {
		return ErrInvalidParams
	}
	if p.StartPremium.Cmp(fpmath.Wad) < 0 {
		return ErrInvalidParams
	}
	if p.EndDiscount.Sign() <= 0 || p.EndDiscount.Cmp(fpmath.Wad) > 0 {
		return ErrInvalidParams
	}
	if p.StartPremium.Cmp(p.EndDiscount) <= 0 {
		return ErrInvalidParams
	}
	if p.Duration <= 0 {
		return ErrInvalidParams
	}
	return nil
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	out := Params{Duration: p.Duration}
	if p.StartPremium != nil {
		out.StartPremium = new(big.Int).Set(p.StartPremium)
	}
	if p.EndDiscount != nil {
		out.EndDiscount = new(big.Int).Set(p.EndDiscount)
	}
	return out
}
