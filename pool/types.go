package pool

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/fpmath"
	"lendcore/token"
)

// Asset pairs a fungible token with the address identifying it in the price
// oracle and the token ledgers.
type Asset struct {
	Token token.Token
	Addr  common.Address
}

// Market is the global accounting state for one isolated market. All amounts
// are native token units held as big integers; BorrowIndex is WAD scaled.
type Market struct {
	// TotalSupplyAssets is the borrow-asset liquidity owned by suppliers,
	// including interest passed through to them.
	TotalSupplyAssets *big.Int
	// TotalSupplyShares is the outstanding supply share count.
	TotalSupplyShares *big.Int
	// TotalBorrowAssets is the outstanding debt including accrued interest.
	TotalBorrowAssets *big.Int
	// TotalBorrowShares is the outstanding borrow share count.
	TotalBorrowShares *big.Int
	// BorrowIndex is the cumulative per-share interest multiplier since the
	// market was created. Never decreases.
	BorrowIndex *big.Int
	// TotalCollateral is the aggregate collateral pledged by borrowers.
	TotalCollateral *big.Int
	// TotalReserves is accrued interest retained by the protocol.
	TotalReserves *big.Int
	// LastAccrual records when the indexes were last refreshed.
	LastAccrual time.Time
}

func newMarket() Market {
	return Market{
		TotalSupplyAssets: big.NewInt(0),
		TotalSupplyShares: big.NewInt(0),
		TotalBorrowAssets: big.NewInt(0),
		TotalBorrowShares: big.NewInt(0),
		BorrowIndex:       new(big.Int).Set(fpmath.Wad),
		TotalCollateral:   big.NewInt(0),
		TotalReserves:     big.NewInt(0),
	}
}

// Clone returns a deep copy of the market state.
func (m *Market) Clone() Market {
	clone := Market{LastAccrual: m.LastAccrual}
	clone.TotalSupplyAssets = cloneInt(m.TotalSupplyAssets)
	clone.TotalSupplyShares = cloneInt(m.TotalSupplyShares)
	clone.TotalBorrowAssets = cloneInt(m.TotalBorrowAssets)
	clone.TotalBorrowShares = cloneInt(m.TotalBorrowShares)
	clone.BorrowIndex = cloneInt(m.BorrowIndex)
	clone.TotalCollateral = cloneInt(m.TotalCollateral)
	clone.TotalReserves = cloneInt(m.TotalReserves)
	return clone
}

// Position is the per-user borrower state within one market. Created on the
// first collateral deposit or borrow; zeroed but never deleted.
type Position struct {
	CollateralAmount *big.Int
	BorrowShares     *big.Int
}

func newPosition() *Position {
	return &Position{CollateralAmount: big.NewInt(0), BorrowShares: big.NewInt(0)}
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() Position {
	return Position{
		CollateralAmount: cloneInt(p.CollateralAmount),
		BorrowShares:     cloneInt(p.BorrowShares),
	}
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
