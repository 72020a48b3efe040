package auction

import (
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"lendcore/fpmath"
	"lendcore/observability"
	"lendcore/observability/logging"
	"lendcore/pool"
)

// Liquidator runs Dutch auctions over unhealthy positions across the pools
// registered with it. It is the single principal each pool authorizes for
// its liquidation hooks: it locks collateral when an auction opens, settles
// fills through the pool and releases whatever the auction did not sell.
type Liquidator struct {
	entered atomic.Bool

	addr   common.Address
	params Params
	pools  map[string]*pool.Pool

	auctions map[uuid.UUID]*Auction
	// active maps poolID/user to the live auction so a position can be in
	// at most one auction at a time.
	active map[string]uuid.UUID

	clock func() time.Time
	log   *slog.Logger
}

// NewLiquidator constructs the auction engine with the given price-decay
// parameters.
func NewLiquidator(params Params) (*Liquidator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Liquidator{
		addr:     common.BytesToAddress(crypto.Keccak256([]byte("lendcore/liquidator"))[12:]),
		params:   params.Clone(),
		pools:    make(map[string]*pool.Pool),
		auctions: make(map[uuid.UUID]*Auction),
		active:   make(map[string]uuid.UUID),
		clock:    time.Now,
		log:      logging.Nop(),
	}, nil
}

// Addr returns the liquidator principal pools must authorize and fillers
// must approve for payment pulls.
func (l *Liquidator) Addr() common.Address { return l.addr }

// RegisterPool adds a market to the liquidator's watch set.
func (l *Liquidator) RegisterPool(p *pool.Pool) {
	if p != nil {
		l.pools[p.ID()] = p
	}
}

// SetClock overrides the time source. Intended for tests.
func (l *Liquidator) SetClock(clock func() time.Time) {
	if clock != nil {
		l.clock = clock
	}
}

// SetLogger wires a structured logger.
func (l *Liquidator) SetLogger(log *slog.Logger) {
	if log != nil {
		l.log = log
	}
}

func (l *Liquidator) enter() error {
	if !l.entered.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (l *Liquidator) exit() { l.entered.Store(false) }

// StartAuction opens a Dutch auction over an unhealthy position. The debt
// slice is the pool's close factor applied to the outstanding debt; the
// collateral offered covers that slice plus the liquidation penalty at the
// oracle reference price, capped at the user's unlocked collateral (in
// which case the debt slice shrinks to match). The offered collateral is
// locked in the pool until the auction fills, completes or is cancelled.
func (l *Liquidator) StartAuction(poolID string, user common.Address) (Auction, error) {
	if err := l.enter(); err != nil {
		return Auction{}, err
	}
	defer l.exit()

	p, ok := l.pools[poolID]
	if !ok {
		return Auction{}, ErrUnknownPool
	}
	if user == (common.Address{}) {
		return Auction{}, ErrZeroAddress
	}
	if _, exists := l.active[activeKey(poolID, user)]; exists {
		return Auction{}, ErrAuctionExists
	}
	liquidatable, err := p.IsLiquidatable(user)
	if err != nil {
		return Auction{}, err
	}
	if !liquidatable {
		return Auction{}, ErrHealthyPosition
	}

	totalDebt, err := p.DebtOf(user)
	if err != nil {
		return Auction{}, err
	}
	risk := p.Params()
	debtToRepay := fpmath.WadMul(totalDebt, risk.CloseFactor, fpmath.RoundDown)
	if debtToRepay.Sign() == 0 {
		return Auction{}, ErrNothingToLiquidate
	}

	ref, err := l.referencePrice(p)
	if err != nil {
		return Auction{}, err
	}
	penaltyFactor := new(big.Int).Add(fpmath.Wad, risk.LiquidationPenalty)
	repayWithPenalty := fpmath.WadMul(debtToRepay, penaltyFactor, fpmath.RoundDown)
	collateralForSale, err := l.toCollateral(p, repayWithPenalty, ref, fpmath.RoundDown)
	if err != nil {
		return Auction{}, err
	}

	// Cap at the collateral actually free; when the cap binds, the debt
	// slice is recomputed downward so the penalty ratio holds.
	position := p.PositionOf(user)
	free := new(big.Int).Sub(position.CollateralAmount, p.LockedCollateralOf(user))
	if collateralForSale.Cmp(free) > 0 {
		collateralForSale = free
		capped, err := l.toBorrow(p, collateralForSale, ref, fpmath.RoundDown)
		if err != nil {
			return Auction{}, err
		}
		debtToRepay, err = fpmath.WadDiv(capped, penaltyFactor, fpmath.RoundDown)
		if err != nil {
			return Auction{}, err
		}
	}
	if collateralForSale.Sign() == 0 || debtToRepay.Sign() == 0 {
		return Auction{}, ErrNothingToLiquidate
	}

	if err := p.LockCollateralForLiquidation(l.addr, user, collateralForSale); err != nil {
		return Auction{}, err
	}

	now := l.clock()
	a := &Auction{
		ID:                uuid.New(),
		PoolID:            poolID,
		User:              user,
		DebtToRepay:       debtToRepay,
		CollateralForSale: collateralForSale,
		StartTime:         now,
		EndTime:           now.Add(l.params.Duration),
		StartPrice:        fpmath.WadMul(ref, l.params.StartPremium, fpmath.RoundDown),
		EndPrice:          fpmath.WadMul(ref, l.params.EndDiscount, fpmath.RoundDown),
		Status:            StatusActive,
	}
	l.auctions[a.ID] = a
	l.active[activeKey(poolID, user)] = a.ID

	observability.Engine().ObserveAuction(poolID, "started")
	l.log.Info("auction started",
		slog.String("auction", a.ID.String()),
		slog.String("market", poolID),
		slog.String("user", user.Hex()),
		slog.String("debt", debtToRepay.String()),
		slog.String("collateral", collateralForSale.String()))
	return a.Clone(), nil
}

// GetCurrentPrice reports the decayed price of an active auction: a WAD
// ratio of borrow value per collateral token, clamped to the end price once
// the window closes.
func (l *Liquidator) GetCurrentPrice(id uuid.UUID) (*big.Int, error) {
	a, ok := l.auctions[id]
	if !ok {
		return nil, ErrUnknownAuction
	}
	if a.Status != StatusActive {
		return nil, ErrAuctionNotActive
	}
	return a.priceAt(l.clock()), nil
}

// Liquidate fills an active auction. The filler pays up to repayAmount of
// the borrow asset at the current decayed price and receives the matching
// collateral; the fill is capped at what the auction still offers, and a
// collateral-bound fill recomputes the payment downward. Returns the debt
// actually repaid and the collateral bought.
func (l *Liquidator) Liquidate(id uuid.UUID, filler common.Address, repayAmount *big.Int) (*big.Int, *big.Int, error) {
	if err := l.enter(); err != nil {
		return nil, nil, err
	}
	defer l.exit()

	a, ok := l.auctions[id]
	if !ok {
		return nil, nil, ErrUnknownAuction
	}
	if a.Status != StatusActive {
		return nil, nil, ErrAuctionNotActive
	}
	now := l.clock()
	if now.After(a.EndTime) {
		return nil, nil, ErrAuctionExpired
	}
	if filler == (common.Address{}) {
		return nil, nil, ErrZeroAddress
	}
	if repayAmount == nil || repayAmount.Sign() <= 0 {
		return nil, nil, ErrZeroAmount
	}
	p := l.pools[a.PoolID]

	price := a.priceAt(now)
	repay := fpmath.Min(repayAmount, a.DebtToRepay)
	collateralOut, err := l.toCollateral(p, repay, price, fpmath.RoundDown)
	if err != nil {
		return nil, nil, err
	}
	if collateralOut.Cmp(a.CollateralForSale) > 0 {
		collateralOut = new(big.Int).Set(a.CollateralForSale)
		repay, err = l.toBorrow(p, collateralOut, price, fpmath.RoundDown)
		if err != nil {
			return nil, nil, err
		}
	}
	if repay.Sign() == 0 || collateralOut.Sign() == 0 {
		return nil, nil, ErrZeroAmount
	}

	// Payment goes straight into the pool treasury, then the pool settles
	// the fill.
	borrowToken := p.BorrowAsset().Token
	if err := borrowToken.TransferFrom(l.addr, filler, p.Addr(), repay); err != nil {
		return nil, nil, err
	}
	if err := p.ExecuteLiquidation(l.addr, a.User, filler, repay, collateralOut); err != nil {
		_ = borrowToken.Transfer(p.Addr(), filler, repay)
		return nil, nil, err
	}

	a.DebtToRepay = new(big.Int).Sub(a.DebtToRepay, repay)
	a.CollateralForSale = new(big.Int).Sub(a.CollateralForSale, collateralOut)
	observability.Engine().ObserveAuction(a.PoolID, "filled")
	l.log.Info("auction filled",
		slog.String("auction", a.ID.String()),
		slog.String("filler", filler.Hex()),
		slog.String("repaid", repay.String()),
		slog.String("collateral", collateralOut.String()))

	if a.DebtToRepay.Sign() == 0 || a.CollateralForSale.Sign() == 0 {
		l.close(a, StatusCompleted)
	}
	return repay, collateralOut, nil
}

// CancelExpiredAuction cancels an auction whose window closed without
// selling out and releases the remaining collateral lock.
func (l *Liquidator) CancelExpiredAuction(id uuid.UUID) error {
	if err := l.enter(); err != nil {
		return err
	}
	defer l.exit()

	a, ok := l.auctions[id]
	if !ok {
		return ErrUnknownAuction
	}
	if a.Status != StatusActive {
		return ErrAuctionNotActive
	}
	if !l.clock().After(a.EndTime) {
		return ErrAuctionNotExpired
	}
	l.close(a, StatusCancelled)
	l.log.Info("auction cancelled", slog.String("auction", a.ID.String()))
	return nil
}

// CalculateProfit estimates a filler's gain on a fill of repayAmount at the
// current decayed price: the oracle value of the collateral received minus
// the payment, as a WAD USD amount. Negative while the price is above
// market.
func (l *Liquidator) CalculateProfit(id uuid.UUID, repayAmount *big.Int) (*big.Int, error) {
	a, ok := l.auctions[id]
	if !ok {
		return nil, ErrUnknownAuction
	}
	if a.Status != StatusActive {
		return nil, ErrAuctionNotActive
	}
	if repayAmount == nil || repayAmount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	p := l.pools[a.PoolID]

	price := a.priceAt(l.clock())
	repay := fpmath.Min(repayAmount, a.DebtToRepay)
	collateralOut, err := l.toCollateral(p, repay, price, fpmath.RoundDown)
	if err != nil {
		return nil, err
	}
	if collateralOut.Cmp(a.CollateralForSale) > 0 {
		collateralOut = new(big.Int).Set(a.CollateralForSale)
		repay, err = l.toBorrow(p, collateralOut, price, fpmath.RoundDown)
		if err != nil {
			return nil, err
		}
	}

	collPx, err := p.Oracle().GetPrice(p.CollateralAsset().Addr)
	if err != nil {
		return nil, err
	}
	borrowPx, err := p.Oracle().GetPrice(p.BorrowAsset().Addr)
	if err != nil {
		return nil, err
	}
	collValue, err := fpmath.MulDiv(collateralOut, collPx.Price, fpmath.Pow10(p.CollateralAsset().Token.Decimals()), fpmath.RoundDown)
	if err != nil {
		return nil, err
	}
	repayValue, err := fpmath.MulDiv(repay, borrowPx.Price, fpmath.Pow10(p.BorrowAsset().Token.Decimals()), fpmath.RoundUp)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(collValue, repayValue), nil
}

// AuctionOf returns a copy of the auction record.
func (l *Liquidator) AuctionOf(id uuid.UUID) (Auction, error) {
	a, ok := l.auctions[id]
	if !ok {
		return Auction{}, ErrUnknownAuction
	}
	return a.Clone(), nil
}

// ActiveAuctionFor reports the live auction over a user's position, if any.
func (l *Liquidator) ActiveAuctionFor(poolID string, user common.Address) (Auction, bool) {
	id, ok := l.active[activeKey(poolID, user)]
	if !ok {
		return Auction{}, false
	}
	return l.auctions[id].Clone(), true
}

// close finalizes an auction, releasing whatever collateral is still locked.
func (l *Liquidator) close(a *Auction, status Status) {
	if a.CollateralForSale.Sign() > 0 {
		if p, ok := l.pools[a.PoolID]; ok {
			if err := p.UnlockCollateralAfterLiquidation(l.addr, a.User, a.CollateralForSale); err != nil {
				l.log.Error("unlock failed",
					slog.String("auction", a.ID.String()),
					slog.String("error", err.Error()))
			}
		}
	}
	a.Status = status
	delete(l.active, activeKey(a.PoolID, a.User))
	observability.Engine().ObserveAuction(a.PoolID, status.String())
}

// referencePrice derives the WAD collateral/borrow value ratio from the
// oracle.
func (l *Liquidator) referencePrice(p *pool.Pool) (*big.Int, error) {
	collPx, err := p.Oracle().GetPrice(p.CollateralAsset().Addr)
	if err != nil {
		return nil, err
	}
	borrowPx, err := p.Oracle().GetPrice(p.BorrowAsset().Addr)
	if err != nil {
		return nil, err
	}
	return fpmath.WadDiv(collPx.Price, borrowPx.Price, fpmath.RoundDown)
}

// toCollateral converts a borrow-token amount to collateral tokens at the
// given WAD price ratio, adjusting for the token decimal gap.
func (l *Liquidator) toCollateral(p *pool.Pool, borrowAmount, price *big.Int, rounding fpmath.Rounding) (*big.Int, error) {
	scale := new(big.Int).Mul(fpmath.Pow10(p.CollateralAsset().Token.Decimals()), fpmath.Wad)
	denom := new(big.Int).Mul(price, fpmath.Pow10(p.BorrowAsset().Token.Decimals()))
	return fpmath.MulDiv(borrowAmount, scale, denom, rounding)
}

// toBorrow is the inverse of toCollateral.
func (l *Liquidator) toBorrow(p *pool.Pool, collateralAmount, price *big.Int, rounding fpmath.Rounding) (*big.Int, error) {
	scale := new(big.Int).Mul(price, fpmath.Pow10(p.BorrowAsset().Token.Decimals()))
	denom := new(big.Int).Mul(fpmath.Wad, fpmath.Pow10(p.CollateralAsset().Token.Decimals()))
	return fpmath.MulDiv(collateralAmount, scale, denom, rounding)
}

func activeKey(poolID string, user common.Address) string {
	return poolID + "/" + user.Hex()
}
