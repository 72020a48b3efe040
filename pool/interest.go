package pool

import (
	"math/big"

	"lendcore/fpmath"
)

// InterestModel is the kinked utilisation curve shaping borrow rates. All
// fields are WAD-scaled annual rates; Kink is a WAD utilisation ratio. The
// model is stateless.
type InterestModel struct {
	base       *big.Int
	slopeBelow *big.Int
	slopeAbove *big.Int
	kink       *big.Int
}

// NewInterestModel constructs the model. Construction fails when the kink
// exceeds 1.0 utilisation; there are no other failure modes.
func NewInterestModel(base, slopeBelow, slopeAbove, kink *big.Int) (*InterestModel, error) {
	model := &InterestModel{
		base:       cloneInt(base),
		slopeBelow: cloneInt(slopeBelow),
		slopeAbove: cloneInt(slopeAbove),
		kink:       cloneInt(kink),
	}
	if model.kink.Cmp(fpmath.Wad) > 0 {
		return nil, ErrKinkAboveOne
	}
	return model, nil
}

// Utilization computes U = totalBorrows / totalSupply as a WAD ratio. An
// empty market has zero utilisation.
func (m *InterestModel) Utilization(totalSupply, totalBorrows *big.Int) *big.Int {
	if totalSupply == nil || totalSupply.Sign() == 0 || totalBorrows == nil || totalBorrows.Sign() == 0 {
		return big.NewInt(0)
	}
	utilisation, err := fpmath.WadDiv(totalBorrows, totalSupply, fpmath.RoundDown)
	if err != nil {
		return big.NewInt(0)
	}
	return utilisation
}

// BorrowRate derives the annual borrow rate at the current utilisation:
// linear in the slope below the kink, steeper above it.
func (m *InterestModel) BorrowRate(totalSupply, totalBorrows *big.Int) *big.Int {
	utilisation := m.Utilization(totalSupply, totalBorrows)
	rate := cloneInt(m.base)
	if utilisation.Cmp(m.kink) <= 0 {
		rate.Add(rate, fpmath.WadMul(m.slopeBelow, utilisation, fpmath.RoundDown))
		return rate
	}
	rate.Add(rate, fpmath.WadMul(m.slopeBelow, m.kink, fpmath.RoundDown))
	excess := new(big.Int).Sub(utilisation, m.kink)
	rate.Add(rate, fpmath.WadMul(m.slopeAbove, excess, fpmath.RoundDown))
	return rate
}

// SupplyRate derives the rate passed through to suppliers:
// borrowRate * utilisation * (1 - reserveFactor).
func (m *InterestModel) SupplyRate(totalSupply, totalBorrows, reserveFactor *big.Int) *big.Int {
	borrowRate := m.BorrowRate(totalSupply, totalBorrows)
	if borrowRate.Sign() == 0 {
		return big.NewInt(0)
	}
	utilisation := m.Utilization(totalSupply, totalBorrows)
	if utilisation.Sign() == 0 {
		return big.NewInt(0)
	}
	oneMinusReserve := new(big.Int).Sub(fpmath.Wad, reserveFactor)
	if oneMinusReserve.Sign() < 0 {
		oneMinusReserve.SetInt64(0)
	}
	rate := fpmath.WadMul(borrowRate, utilisation, fpmath.RoundDown)
	return fpmath.WadMul(rate, oneMinusReserve, fpmath.RoundDown)
}
