package pool

import (
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"lendcore/fpmath"
	"lendcore/observability"
	"lendcore/observability/logging"
	"lendcore/oracle"
	"lendcore/token"
)

const secondsPerYear = 31_536_000

// HealthInfinity is the sentinel health factor reported for debt-free
// positions.
var HealthInfinity = new(big.Int).Lsh(big.NewInt(1), 255)

// Pool is the ledger for one isolated market: share-based supply and borrow
// accounting, continuous interest accrual, collateral tracking and the
// liquidation hooks consumed by the Dutch auction liquidator. Each market is
// its own Pool instance; nothing is shared across markets except read-only
// price lookups.
type Pool struct {
	guard reentrancyGuard

	id         string
	addr       common.Address
	owner      common.Address
	factory    common.Address
	liquidator common.Address

	borrow     Asset
	collateral Asset
	receipt    token.Receipt
	px         *oracle.Oracle
	model      *InterestModel

	params RiskParameters
	pauses ActionPauses
	caps   BorrowCaps

	market    Market
	positions map[common.Address]*Position
	// locked tracks collateral reserved for an in-flight auction per user so
	// it cannot be withdrawn or double-counted by a second auction.
	locked map[common.Address]*big.Int

	clock func() time.Time
	log   *slog.Logger
}

// DeriveAddr computes the deterministic treasury address a pool with the
// given market identifier will own. Receipt tokens are minted against this
// principal, so callers constructing the receipt ledger first need it too.
func DeriveAddr(id string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("lendcore/pool/" + id))[12:])
}

// New constructs the ledger for one market. The pool derives its own
// treasury address from the market identifier; the owner principal may later
// wire the liquidator and factory principals.
func New(id string, owner common.Address, borrow, collateral Asset, receipt token.Receipt, px *oracle.Oracle, model *InterestModel, params RiskParameters) (*Pool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrMarketNotInitialized
	}
	if owner == (common.Address{}) || borrow.Addr == (common.Address{}) || collateral.Addr == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if borrow.Token == nil || collateral.Token == nil || receipt == nil || px == nil || model == nil {
		return nil, ErrMarketNotInitialized
	}
	if borrow.Addr == collateral.Addr {
		return nil, ErrSameToken
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Pool{
		id:         id,
		addr:       DeriveAddr(id),
		owner:      owner,
		borrow:     borrow,
		collateral: collateral,
		receipt:    receipt,
		px:         px,
		model:      model,
		params:     params.Clone(),
		market:     newMarket(),
		positions:  make(map[common.Address]*Position),
		locked:     make(map[common.Address]*big.Int),
		clock:      time.Now,
		log:        logging.Nop(),
	}, nil
}

// ID returns the opaque market identifier.
func (p *Pool) ID() string { return p.id }

// Addr returns the pool's treasury address within the token ledgers.
func (p *Pool) Addr() common.Address { return p.addr }

// BorrowAsset returns the borrow-side asset binding.
func (p *Pool) BorrowAsset() Asset { return p.borrow }

// CollateralAsset returns the collateral-side asset binding.
func (p *Pool) CollateralAsset() Asset { return p.collateral }

// Oracle returns the price oracle serving this market.
func (p *Pool) Oracle() *oracle.Oracle { return p.px }

// Params returns a copy of the market risk parameters.
func (p *Pool) Params() RiskParameters { return p.params.Clone() }

// SetLiquidator wires the single authorized liquidator principal. Owner only.
func (p *Pool) SetLiquidator(caller, liquidator common.Address) error {
	if caller != p.owner {
		return ErrOnlyOwner
	}
	if liquidator == (common.Address{}) {
		return ErrZeroAddress
	}
	p.liquidator = liquidator
	return nil
}

// SetFactory wires the factory principal recorded at initialization.
func (p *Pool) SetFactory(caller, factory common.Address) error {
	if caller != p.owner {
		return ErrOnlyOwner
	}
	if factory == (common.Address{}) {
		return ErrZeroAddress
	}
	p.factory = factory
	return nil
}

// SetPauses replaces the per-action pause switches. Owner only.
func (p *Pool) SetPauses(caller common.Address, pauses ActionPauses) error {
	if caller != p.owner {
		return ErrOnlyOwner
	}
	p.pauses = pauses
	return nil
}

// SetBorrowCaps replaces the borrow throttles. Owner only.
func (p *Pool) SetBorrowCaps(caller common.Address, caps BorrowCaps) error {
	if caller != p.owner {
		return ErrOnlyOwner
	}
	p.caps = caps.Clone()
	return nil
}

// SetClock overrides the time source. Intended for tests.
func (p *Pool) SetClock(clock func() time.Time) {
	if clock != nil {
		p.clock = clock
	}
}

// SetLogger wires a structured logger.
func (p *Pool) SetLogger(log *slog.Logger) {
	if log != nil {
		p.log = log.With(slog.String("market", p.id))
	}
}

// AccrueInterest advances the ledger to the current time, applying the
// per-call linear interest factor to the borrow side and splitting the
// accrued amount between suppliers and protocol reserves.
func (p *Pool) AccrueInterest() error {
	if err := p.guard.enter(); err != nil {
		return err
	}
	defer p.guard.exit()
	p.accrue()
	return nil
}

// accrue assumes the guard is held. It is deliberately linear per call
// (1 + rate*elapsed); frequent calls approximate compounding.
func (p *Pool) accrue() {
	now := p.clock()
	if p.market.LastAccrual.IsZero() {
		p.market.LastAccrual = now
		return
	}
	elapsed := int64(now.Sub(p.market.LastAccrual) / time.Second)
	if elapsed <= 0 {
		return
	}
	p.market.LastAccrual = now
	if p.market.TotalBorrowAssets.Sign() == 0 {
		return
	}
	rate := p.model.BorrowRate(p.market.TotalSupplyAssets, p.market.TotalBorrowAssets)
	if rate.Sign() == 0 {
		return
	}
	delta, err := fpmath.MulDiv(rate, big.NewInt(elapsed), big.NewInt(secondsPerYear), fpmath.RoundDown)
	if err != nil || delta.Sign() == 0 {
		return
	}
	accrued := fpmath.WadMul(p.market.TotalBorrowAssets, delta, fpmath.RoundDown)
	if accrued.Sign() == 0 {
		return
	}
	reservePart := fpmath.WadMul(accrued, p.params.ReserveFactor, fpmath.RoundDown)
	supplyPart := new(big.Int).Sub(accrued, reservePart)

	factor := new(big.Int).Add(fpmath.Wad, delta)
	p.market.BorrowIndex = fpmath.WadMul(p.market.BorrowIndex, factor, fpmath.RoundDown)
	p.market.TotalBorrowAssets = new(big.Int).Add(p.market.TotalBorrowAssets, accrued)
	p.market.TotalSupplyAssets = new(big.Int).Add(p.market.TotalSupplyAssets, supplyPart)
	p.market.TotalReserves = new(big.Int).Add(p.market.TotalReserves, reservePart)

	observability.Engine().ObserveAccrual(p.id)
	p.log.Debug("accrued interest",
		slog.Int64("elapsed_seconds", elapsed),
		slog.String("accrued", accrued.String()),
		slog.String("reserves", reservePart.String()))
}

// Deposit pulls assets from the supplier and mints supply shares, rounding
// the minted shares down. Returns the minted share count.
func (p *Pool) Deposit(supplier common.Address, assets *big.Int) (shares *big.Int, err error) {
	if err := p.guard.enter(); err != nil {
		return nil, err
	}
	defer p.guard.exit()
	defer func() { observability.Engine().ObserveOperation(p.id, "deposit", err) }()

	if p.pauses.Supply {
		return nil, ErrPaused
	}
	if supplier == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if assets == nil || assets.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	p.accrue()

	shares = p.toSupplyShares(assets, fpmath.RoundDown)
	if shares.Sign() == 0 {
		return nil, ErrZeroAmount
	}

	// Pull strictly before internal mutation.
	if err := p.borrow.Token.TransferFrom(p.addr, supplier, p.addr, assets); err != nil {
		return nil, err
	}
	p.market.TotalSupplyAssets = new(big.Int).Add(p.market.TotalSupplyAssets, assets)
	p.market.TotalSupplyShares = new(big.Int).Add(p.market.TotalSupplyShares, shares)
	if err := p.receipt.Mint(p.addr, supplier, shares); err != nil {
		p.market.TotalSupplyAssets.Sub(p.market.TotalSupplyAssets, assets)
		p.market.TotalSupplyShares.Sub(p.market.TotalSupplyShares, shares)
		_ = p.borrow.Token.Transfer(p.addr, supplier, assets)
		return nil, err
	}
	p.log.Info("deposit", slog.String("supplier", supplier.Hex()), slog.String("assets", assets.String()), slog.String("shares", shares.String()))
	return shares, nil
}

// Withdraw burns supply shares for the requested asset amount, rounding the
// burned shares up, and pushes the assets to the supplier. Withdrawals are
// limited to liquidity not currently lent out.
func (p *Pool) Withdraw(supplier common.Address, assets *big.Int) (shares *big.Int, err error) {
	if err := p.guard.enter(); err != nil {
		return nil, err
	}
	defer p.guard.exit()
	defer func() { observability.Engine().ObserveOperation(p.id, "withdraw", err) }()

	if p.pauses.Supply {
		return nil, ErrPaused
	}
	if supplier == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if assets == nil || assets.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	p.accrue()

	if p.market.TotalSupplyShares.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	if assets.Cmp(p.availableLiquidity()) > 0 {
		return nil, ErrInsufficientLiquidity
	}
	shares = p.toSupplyShares(assets, fpmath.RoundUp)
	if p.receipt.BalanceOf(supplier).Cmp(shares) < 0 {
		return nil, ErrInsufficientBalance
	}

	if err := p.receipt.Burn(p.addr, supplier, shares); err != nil {
		return nil, err
	}
	p.market.TotalSupplyShares = new(big.Int).Sub(p.market.TotalSupplyShares, shares)
	p.market.TotalSupplyAssets = new(big.Int).Sub(p.market.TotalSupplyAssets, assets)

	// Push strictly after internal mutation; restore on failure.
	if err := p.borrow.Token.Transfer(p.addr, supplier, assets); err != nil {
		p.market.TotalSupplyShares.Add(p.market.TotalSupplyShares, shares)
		p.market.TotalSupplyAssets.Add(p.market.TotalSupplyAssets, assets)
		_ = p.receipt.Mint(p.addr, supplier, shares)
		return nil, err
	}
	p.sweepSupplyDust()
	p.log.Info("withdraw", slog.String("supplier", supplier.Hex()), slog.String("assets", assets.String()), slog.String("shares", shares.String()))
	return shares, nil
}

// DepositCollateral pulls collateral from the user into the market.
func (p *Pool) DepositCollateral(user common.Address, amount *big.Int) (err error) {
	if err := p.guard.enter(); err != nil {
		return err
	}
	defer p.guard.exit()
	defer func() { observability.Engine().ObserveOperation(p.id, "deposit_collateral", err) }()

	if user == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if err := p.collateral.Token.TransferFrom(p.addr, user, p.addr, amount); err != nil {
		return err
	}
	pos := p.ensurePosition(user)
	pos.CollateralAmount = new(big.Int).Add(pos.CollateralAmount, amount)
	p.market.TotalCollateral = new(big.Int).Add(p.market.TotalCollateral, amount)
	p.log.Info("deposit collateral", slog.String("user", user.Hex()), slog.String("amount", amount.String()))
	return nil
}

// WithdrawCollateral releases unlocked collateral back to the user, provided
// the remaining position stays healthy. The health check is skipped when the
// user has no debt.
func (p *Pool) WithdrawCollateral(user common.Address, amount *big.Int) (err error) {
	if err := p.guard.enter(); err != nil {
		return err
	}
	defer p.guard.exit()
	defer func() { observability.Engine().ObserveOperation(p.id, "withdraw_collateral", err) }()

	if user == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	p.accrue()

	pos := p.ensurePosition(user)
	if p.freeCollateral(user, pos).Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	remaining := new(big.Int).Sub(pos.CollateralAmount, amount)
	debt := p.debtOf(pos, fpmath.RoundUp)
	if debt.Sign() > 0 {
		health, err := p.healthFactor(remaining, debt)
		if err != nil {
			return err
		}
		if health.Cmp(fpmath.Wad) < 0 {
			return ErrWouldBeUndercollateralized
		}
	}

	pos.CollateralAmount = remaining
	p.market.TotalCollateral = new(big.Int).Sub(p.market.TotalCollateral, amount)
	if err := p.collateral.Token.Transfer(p.addr, user, amount); err != nil {
		pos.CollateralAmount = new(big.Int).Add(pos.CollateralAmount, amount)
		p.market.TotalCollateral.Add(p.market.TotalCollateral, amount)
		return err
	}
	p.log.Info("withdraw collateral", slog.String("user", user.Hex()), slog.String("amount", amount.String()))
	return nil
}

// Borrow mints borrow shares for the requested amount (rounded up, so the
// borrower owes at least the amount) and pushes the assets out. Fails when
// the post-borrow health factor would drop below one.
func (p *Pool) Borrow(borrower common.Address, amount *big.Int) (err error) {
	if err := p.guard.enter(); err != nil {
		return err
	}
	defer p.guard.exit()
	defer func() { observability.Engine().ObserveOperation(p.id, "borrow", err) }()

	if p.pauses.Borrow {
		return ErrPaused
	}
	if borrower == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	p.accrue()

	if amount.Cmp(p.availableLiquidity()) > 0 {
		return ErrInsufficientLiquidity
	}
	newTotalBorrow := new(big.Int).Add(p.market.TotalBorrowAssets, amount)
	if err := p.checkBorrowCaps(newTotalBorrow); err != nil {
		return err
	}

	pos := p.ensurePosition(borrower)
	shares := p.toBorrowShares(amount, fpmath.RoundUp)
	newPosShares := new(big.Int).Add(pos.BorrowShares, shares)
	newTotalShares := new(big.Int).Add(p.market.TotalBorrowShares, shares)

	// Health check against the post-borrow share total.
	projectedDebt, err := fpmath.MulDiv(newPosShares, newTotalBorrow, newTotalShares, fpmath.RoundUp)
	if err != nil {
		return err
	}
	health, err := p.healthFactor(pos.CollateralAmount, projectedDebt)
	if err != nil {
		return err
	}
	if health.Cmp(fpmath.Wad) < 0 {
		return ErrWouldBeUndercollateralized
	}

	pos.BorrowShares = newPosShares
	p.market.TotalBorrowShares = newTotalShares
	p.market.TotalBorrowAssets = newTotalBorrow
	if err := p.borrow.Token.Transfer(p.addr, borrower, amount); err != nil {
		pos.BorrowShares = new(big.Int).Sub(pos.BorrowShares, shares)
		p.market.TotalBorrowShares.Sub(p.market.TotalBorrowShares, shares)
		p.market.TotalBorrowAssets.Sub(p.market.TotalBorrowAssets, amount)
		return err
	}
	p.log.Info("borrow", slog.String("borrower", borrower.Hex()), slog.String("amount", amount.String()), slog.String("shares", shares.String()))
	return nil
}

// Repay pulls payment from the payer and burns the borrower's borrow shares,
// capped at the outstanding debt. Third parties may repay on a borrower's
// behalf. Returns the amount actually applied.
func (p *Pool) Repay(payer, onBehalfOf common.Address, amount *big.Int) (repaid *big.Int, err error) {
	if err := p.guard.enter(); err != nil {
		return nil, err
	}
	defer p.guard.exit()
	defer func() { observability.Engine().ObserveOperation(p.id, "repay", err) }()

	if p.pauses.Repay {
		return nil, ErrPaused
	}
	if payer == (common.Address{}) || onBehalfOf == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	p.accrue()

	pos := p.ensurePosition(onBehalfOf)
	debt := p.debtOf(pos, fpmath.RoundUp)
	if debt.Sign() == 0 {
		return nil, ErrNoDebt
	}
	repaid = fpmath.Min(amount, debt)
	repaid = fpmath.Min(repaid, p.market.TotalBorrowAssets)

	// Pull strictly before internal mutation.
	if err := p.borrow.Token.TransferFrom(p.addr, payer, p.addr, repaid); err != nil {
		return nil, err
	}
	p.reduceDebt(pos, repaid, debt)
	p.log.Info("repay",
		slog.String("payer", payer.Hex()),
		slog.String("borrower", onBehalfOf.Hex()),
		slog.String("repaid", repaid.String()))
	return repaid, nil
}

// HealthFactor accrues interest and reports the user's WAD health factor.
// Debt-free positions report HealthInfinity.
func (p *Pool) HealthFactor(user common.Address) (*big.Int, error) {
	if err := p.guard.enter(); err != nil {
		return nil, err
	}
	defer p.guard.exit()
	p.accrue()
	pos := p.ensurePosition(user)
	return p.healthFactor(pos.CollateralAmount, p.debtOf(pos, fpmath.RoundUp))
}

// IsLiquidatable reports whether the user's health factor is below one.
func (p *Pool) IsLiquidatable(user common.Address) (bool, error) {
	health, err := p.HealthFactor(user)
	if err != nil {
		return false, err
	}
	return health.Cmp(fpmath.Wad) < 0, nil
}

// MaxBorrow reports the remaining borrow headroom in borrow-token units at
// the loan-to-value ratio, capped by available pool liquidity.
func (p *Pool) MaxBorrow(user common.Address) (*big.Int, error) {
	if err := p.guard.enter(); err != nil {
		return nil, err
	}
	defer p.guard.exit()
	p.accrue()

	pos := p.ensurePosition(user)
	collateralValue, err := p.assetValue(p.collateral, pos.CollateralAmount, fpmath.RoundDown)
	if err != nil {
		return nil, err
	}
	debtValue, err := p.assetValue(p.borrow, p.debtOf(pos, fpmath.RoundUp), fpmath.RoundUp)
	if err != nil {
		return nil, err
	}
	headroom := fpmath.WadMul(collateralValue, p.params.MaxLTV, fpmath.RoundDown)
	headroom.Sub(headroom, debtValue)
	if headroom.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	price, err := p.px.GetPrice(p.borrow.Addr)
	if err != nil {
		return nil, err
	}
	tokens, err := fpmath.MulDiv(headroom, fpmath.Pow10(p.borrow.Token.Decimals()), price.Price, fpmath.RoundDown)
	if err != nil {
		return nil, err
	}
	return fpmath.Min(tokens, p.availableLiquidity()), nil
}

// DebtOf accrues interest and reports the user's current debt in borrow
// token units, rounded up.
func (p *Pool) DebtOf(user common.Address) (*big.Int, error) {
	if err := p.guard.enter(); err != nil {
		return nil, err
	}
	defer p.guard.exit()
	p.accrue()
	return p.debtOf(p.ensurePosition(user), fpmath.RoundUp), nil
}

// PositionOf returns a copy of the user's position.
func (p *Pool) PositionOf(user common.Address) Position {
	if pos, ok := p.positions[user]; ok {
		return pos.Clone()
	}
	return Position{CollateralAmount: big.NewInt(0), BorrowShares: big.NewInt(0)}
}

// LockedCollateralOf reports the collateral currently reserved for an
// auction.
func (p *Pool) LockedCollateralOf(user common.Address) *big.Int {
	return cloneInt(p.locked[user])
}

// MarketSnapshot returns a copy of the ledger state.
func (p *Pool) MarketSnapshot() Market {
	return p.market.Clone()
}

// LockCollateralForLiquidation reserves collateral for an auction so it can
// be neither withdrawn nor claimed twice. Liquidator principal only.
func (p *Pool) LockCollateralForLiquidation(caller, user common.Address, amount *big.Int) (err error) {
	if caller != p.liquidator || p.liquidator == (common.Address{}) {
		return ErrOnlyLiquidator
	}
	if err := p.guard.enter(); err != nil {
		return err
	}
	defer p.guard.exit()
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	pos := p.ensurePosition(user)
	if p.freeCollateral(user, pos).Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	p.locked[user] = new(big.Int).Add(cloneInt(p.locked[user]), amount)
	return nil
}

// UnlockCollateralAfterLiquidation releases reserved collateral back to the
// position, used when an auction is cancelled or closes with a remainder.
func (p *Pool) UnlockCollateralAfterLiquidation(caller, user common.Address, amount *big.Int) (err error) {
	if caller != p.liquidator || p.liquidator == (common.Address{}) {
		return ErrOnlyLiquidator
	}
	if err := p.guard.enter(); err != nil {
		return err
	}
	defer p.guard.exit()
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	held := cloneInt(p.locked[user])
	if held.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	p.locked[user] = held.Sub(held, amount)
	return nil
}

// ExecuteLiquidation settles one auction fill: it burns the share-equivalent
// of the repaid debt, releases the seized collateral to the recipient and
// updates the aggregate ledger. The repayment itself is pulled into the pool
// treasury by the liquidator before this call. No post-liquidation health
// check is performed; liquidation is the mechanism that restores health.
func (p *Pool) ExecuteLiquidation(caller, user, recipient common.Address, debtRepaid, collateralSeized *big.Int) (err error) {
	if caller != p.liquidator || p.liquidator == (common.Address{}) {
		return ErrOnlyLiquidator
	}
	if err := p.guard.enter(); err != nil {
		return err
	}
	defer p.guard.exit()
	defer func() { observability.Engine().ObserveOperation(p.id, "execute_liquidation", err) }()

	if p.pauses.Liquidate {
		return ErrPaused
	}
	if recipient == (common.Address{}) {
		return ErrZeroAddress
	}
	if debtRepaid == nil || debtRepaid.Sign() <= 0 || collateralSeized == nil || collateralSeized.Sign() <= 0 {
		return ErrZeroAmount
	}
	p.accrue()

	pos := p.ensurePosition(user)
	debt := p.debtOf(pos, fpmath.RoundUp)
	if debt.Sign() == 0 {
		return ErrNoDebt
	}
	held := cloneInt(p.locked[user])
	if held.Cmp(collateralSeized) < 0 || pos.CollateralAmount.Cmp(collateralSeized) < 0 {
		return ErrInsufficientCollateral
	}
	repaid := fpmath.Min(debtRepaid, debt)
	repaid = fpmath.Min(repaid, p.market.TotalBorrowAssets)

	before := p.market.Clone()
	posBefore := pos.Clone()
	lockedBefore := cloneInt(p.locked[user])

	p.reduceDebt(pos, repaid, debt)
	pos.CollateralAmount = new(big.Int).Sub(pos.CollateralAmount, collateralSeized)
	p.locked[user] = held.Sub(held, collateralSeized)
	p.market.TotalCollateral = new(big.Int).Sub(p.market.TotalCollateral, collateralSeized)

	// Push seized collateral strictly after internal mutation.
	if err := p.collateral.Token.Transfer(p.addr, recipient, collateralSeized); err != nil {
		p.market = before
		*pos = Position{CollateralAmount: posBefore.CollateralAmount, BorrowShares: posBefore.BorrowShares}
		p.locked[user] = lockedBefore
		return err
	}
	p.log.Info("liquidation executed",
		slog.String("user", user.Hex()),
		slog.String("recipient", recipient.Hex()),
		slog.String("debt_repaid", repaid.String()),
		slog.String("collateral_seized", collateralSeized.String()))
	return nil
}

// WithdrawReserves sends accrued protocol reserves to the recipient. Owner
// only; limited to the treasury's spare token balance.
func (p *Pool) WithdrawReserves(caller, recipient common.Address, amount *big.Int) (err error) {
	if caller != p.owner {
		return ErrOnlyOwner
	}
	if err := p.guard.enter(); err != nil {
		return err
	}
	defer p.guard.exit()
	if recipient == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	p.accrue()
	if p.market.TotalReserves.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if p.borrow.Token.BalanceOf(p.addr).Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}
	p.market.TotalReserves = new(big.Int).Sub(p.market.TotalReserves, amount)
	if err := p.borrow.Token.Transfer(p.addr, recipient, amount); err != nil {
		p.market.TotalReserves.Add(p.market.TotalReserves, amount)
		return err
	}
	return nil
}

// --- internal helpers, guard assumed held ---

func (p *Pool) ensurePosition(user common.Address) *Position {
	pos, ok := p.positions[user]
	if !ok {
		pos = newPosition()
		p.positions[user] = pos
	}
	return pos
}

func (p *Pool) availableLiquidity() *big.Int {
	liquidity := new(big.Int).Sub(p.market.TotalSupplyAssets, p.market.TotalBorrowAssets)
	if liquidity.Sign() < 0 {
		return big.NewInt(0)
	}
	return liquidity
}

func (p *Pool) freeCollateral(user common.Address, pos *Position) *big.Int {
	free := new(big.Int).Sub(pos.CollateralAmount, cloneInt(p.locked[user]))
	if free.Sign() < 0 {
		return big.NewInt(0)
	}
	return free
}

func (p *Pool) toSupplyShares(assets *big.Int, rounding fpmath.Rounding) *big.Int {
	if p.market.TotalSupplyShares.Sign() == 0 {
		return new(big.Int).Set(assets)
	}
	shares, err := fpmath.MulDiv(assets, p.market.TotalSupplyShares, p.market.TotalSupplyAssets, rounding)
	if err != nil {
		return big.NewInt(0)
	}
	return shares
}

func (p *Pool) toBorrowShares(amount *big.Int, rounding fpmath.Rounding) *big.Int {
	if p.market.TotalBorrowShares.Sign() == 0 {
		return new(big.Int).Set(amount)
	}
	shares, err := fpmath.MulDiv(amount, p.market.TotalBorrowShares, p.market.TotalBorrowAssets, rounding)
	if err != nil {
		return big.NewInt(0)
	}
	return shares
}

// debtOf converts the position's borrow shares to borrow-token units.
func (p *Pool) debtOf(pos *Position, rounding fpmath.Rounding) *big.Int {
	if pos.BorrowShares.Sign() == 0 || p.market.TotalBorrowShares.Sign() == 0 {
		return big.NewInt(0)
	}
	debt, err := fpmath.MulDiv(pos.BorrowShares, p.market.TotalBorrowAssets, p.market.TotalBorrowShares, rounding)
	if err != nil {
		return big.NewInt(0)
	}
	return debt
}

// reduceDebt burns the share-equivalent of the applied repayment. A full
// repayment burns the entire share balance so no dust shares survive.
func (p *Pool) reduceDebt(pos *Position, repaid, debt *big.Int) {
	var shares *big.Int
	if repaid.Cmp(debt) >= 0 {
		shares = new(big.Int).Set(pos.BorrowShares)
	} else {
		// Round the burned shares down: remaining debt never understates.
		shares, _ = fpmath.MulDiv(repaid, p.market.TotalBorrowShares, p.market.TotalBorrowAssets, fpmath.RoundDown)
		if shares.Cmp(pos.BorrowShares) > 0 {
			shares = new(big.Int).Set(pos.BorrowShares)
		}
	}
	pos.BorrowShares = new(big.Int).Sub(pos.BorrowShares, shares)
	p.market.TotalBorrowShares = new(big.Int).Sub(p.market.TotalBorrowShares, shares)
	p.market.TotalBorrowAssets = new(big.Int).Sub(p.market.TotalBorrowAssets, repaid)
	if p.market.TotalBorrowShares.Sign() == 0 && p.market.TotalBorrowAssets.Sign() > 0 {
		// Rounding dust with no shares left backs no position; treat it as
		// repaid in full.
		p.market.TotalBorrowAssets = big.NewInt(0)
	}
}

// sweepSupplyDust keeps the zero-shares/zero-assets invariant: assets left
// behind by rounding after the last share is burned go to reserves.
func (p *Pool) sweepSupplyDust() {
	if p.market.TotalSupplyShares.Sign() == 0 && p.market.TotalSupplyAssets.Sign() > 0 {
		p.market.TotalReserves = new(big.Int).Add(p.market.TotalReserves, p.market.TotalSupplyAssets)
		p.market.TotalSupplyAssets = big.NewInt(0)
	}
}

// assetValue converts a native token amount to a WAD USD value.
func (p *Pool) assetValue(asset Asset, amount *big.Int, rounding fpmath.Rounding) (*big.Int, error) {
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	price, err := p.px.GetPrice(asset.Addr)
	if err != nil {
		return nil, err
	}
	return fpmath.MulDiv(amount, price.Price, fpmath.Pow10(asset.Token.Decimals()), rounding)
}

// healthFactor computes risk-adjusted collateral value over debt value.
func (p *Pool) healthFactor(collateralAmount, debt *big.Int) (*big.Int, error) {
	if debt.Sign() == 0 {
		return new(big.Int).Set(HealthInfinity), nil
	}
	collateralValue, err := p.assetValue(p.collateral, collateralAmount, fpmath.RoundDown)
	if err != nil {
		return nil, err
	}
	debtValue, err := p.assetValue(p.borrow, debt, fpmath.RoundUp)
	if err != nil {
		return nil, err
	}
	adjusted := fpmath.WadMul(collateralValue, p.params.LiquidationThreshold, fpmath.RoundDown)
	return fpmath.WadDiv(adjusted, debtValue, fpmath.RoundDown)
}

func (p *Pool) checkBorrowCaps(newTotalBorrow *big.Int) error {
	if p.caps.Total != nil && p.caps.Total.Sign() > 0 && newTotalBorrow.Cmp(p.caps.Total) > 0 {
		return ErrBorrowCapExceeded
	}
	if p.caps.UtilizationBps > 0 {
		lhs := new(big.Int).Mul(newTotalBorrow, big.NewInt(10_000))
		rhs := new(big.Int).Mul(p.market.TotalSupplyAssets, new(big.Int).SetUint64(p.caps.UtilizationBps))
		if lhs.Cmp(rhs) > 0 {
			return ErrBorrowCapExceeded
		}
	}
	return nil
}
