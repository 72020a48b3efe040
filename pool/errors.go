package pool

import "errors"

// Failure kinds are exported sentinels so automated callers (liquidation
// bots in particular) can branch on the exact cause with errors.Is.
var (
	ErrZeroAmount                 = errors.New("pool: amount must be positive")
	ErrZeroAddress                = errors.New("pool: zero address")
	ErrSameToken                  = errors.New("pool: collateral and borrow asset must differ")
	ErrMarketNotInitialized       = errors.New("pool: market not initialised")
	ErrInsufficientLiquidity      = errors.New("pool: insufficient liquidity")
	ErrInsufficientBalance        = errors.New("pool: insufficient balance")
	ErrInsufficientCollateral     = errors.New("pool: insufficient free collateral")
	ErrWouldBeUndercollateralized = errors.New("pool: health factor would drop below one")
	ErrNoDebt                     = errors.New("pool: no outstanding debt")
	ErrOnlyLiquidator             = errors.New("pool: caller is not the configured liquidator")
	ErrOnlyOwner                  = errors.New("pool: caller is not the owner")
	ErrPaused                     = errors.New("pool: action paused")
	ErrBorrowCapExceeded          = errors.New("pool: borrow cap exceeded")
	ErrReentrantCall              = errors.New("pool: reentrant call")
	ErrKinkAboveOne               = errors.New("pool: interest model kink above 1.0")
	ErrInvalidRiskParameters      = errors.New("pool: invalid risk parameters")
)
