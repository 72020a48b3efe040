package pool

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/fpmath"
	"lendcore/oracle"
	"lendcore/token"
)

func makeAddress(b byte) common.Address {
	var addr common.Address
	for i := range addr {
		addr[i] = b
	}
	return addr
}

var (
	ownerAddr      = makeAddress(0x01)
	aliceAddr      = makeAddress(0xaa)
	bobAddr        = makeAddress(0xbb)
	liquidatorAddr = makeAddress(0x1d)
	usdcAddr       = makeAddress(0xa1)
	wethAddr       = makeAddress(0xe1)
)

func wadPct(pct int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(pct), big.NewInt(10_000_000_000_000_000))
}

func usdc(amount int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(amount), big.NewInt(1_000_000))
}

func eth(amount int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(amount), fpmath.Wad)
}

type poolFixture struct {
	pool     *Pool
	usdc     *token.Ledger
	weth     *token.Ledger
	receipt  *token.ReceiptLedger
	usdcFeed *oracle.ManualFeed
	wethFeed *oracle.ManualFeed
	now      time.Time
}

func (f *poolFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// newFixture wires a USDC/WETH market: USDC at $1, WETH at $2000, 80% max
// LTV, 85% liquidation threshold, 10% reserve factor, and a zero-base kinked
// rate of 4% at the 80% kink. Alice holds USDC to supply; Bob holds WETH to
// collateralize.
func newFixture(t *testing.T) *poolFixture {
	t.Helper()
	f := &poolFixture{now: time.Unix(1_700_000_000, 0)}
	clock := func() time.Time { return f.now }

	f.usdc = token.NewLedger("USDC", 6)
	f.weth = token.NewLedger("WETH", 18)
	poolAddr := DeriveAddr("usdc-weth")
	f.receipt = token.NewReceiptLedger("lcUSDC", poolAddr)

	f.usdcFeed = oracle.NewManualFeed(8)
	f.usdcFeed.SetAnswer(big.NewInt(100_000_000), f.now)
	f.wethFeed = oracle.NewManualFeed(8)
	f.wethFeed.SetAnswer(big.NewInt(2_000 * 100_000_000), f.now)

	px := oracle.New()
	px.SetClock(clock)
	px.Configure(usdcAddr, oracle.Config{Primary: f.usdcFeed, MaxStaleness: 100_000 * time.Hour})
	px.Configure(wethAddr, oracle.Config{Primary: f.wethFeed, MaxStaleness: 100_000 * time.Hour})

	model, err := NewInterestModel(big.NewInt(0), wadPct(4), wadPct(75), wadPct(80))
	if err != nil {
		t.Fatalf("interest model: %v", err)
	}
	params := RiskParameters{
		MaxLTV:               wadPct(80),
		LiquidationThreshold: wadPct(85),
		LiquidationPenalty:   wadPct(5),
		CloseFactor:          wadPct(50),
		ReserveFactor:        wadPct(10),
	}
	p, err := New("usdc-weth", ownerAddr,
		Asset{Token: f.usdc, Addr: usdcAddr},
		Asset{Token: f.weth, Addr: wethAddr},
		f.receipt, px, model, params)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	p.SetClock(clock)
	if err := p.SetLiquidator(ownerAddr, liquidatorAddr); err != nil {
		t.Fatalf("set liquidator: %v", err)
	}
	f.pool = p

	f.usdc.Mint(aliceAddr, usdc(1_000_000))
	f.usdc.Approve(aliceAddr, poolAddr, usdc(1_000_000))
	f.weth.Mint(bobAddr, eth(100))
	f.weth.Approve(bobAddr, poolAddr, eth(100))
	f.usdc.Mint(bobAddr, usdc(100_000))
	f.usdc.Approve(bobAddr, poolAddr, usdc(100_000))
	return f
}

func (f *poolFixture) supply(t *testing.T, amount *big.Int) {
	t.Helper()
	if _, err := f.pool.Deposit(aliceAddr, amount); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func (f *poolFixture) collateralize(t *testing.T, amount *big.Int) {
	t.Helper()
	if err := f.pool.DepositCollateral(bobAddr, amount); err != nil {
		t.Fatalf("deposit collateral: %v", err)
	}
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	f := newFixture(t)
	balanceBefore := f.usdc.BalanceOf(aliceAddr)

	shares, err := f.pool.Deposit(aliceAddr, usdc(1_000))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if shares.Cmp(usdc(1_000)) != 0 {
		t.Fatalf("first deposit must mint 1:1, got %s", shares)
	}
	if got := f.receipt.BalanceOf(aliceAddr); got.Cmp(shares) != 0 {
		t.Fatalf("receipt balance = %s, want %s", got, shares)
	}

	burned, err := f.pool.Withdraw(aliceAddr, usdc(1_000))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if burned.Cmp(shares) != 0 {
		t.Fatalf("burned %s shares, want %s", burned, shares)
	}
	if got := f.usdc.BalanceOf(aliceAddr); got.Cmp(balanceBefore) != 0 {
		t.Fatalf("alice balance = %s, want %s", got, balanceBefore)
	}
	market := f.pool.MarketSnapshot()
	if market.TotalSupplyAssets.Sign() != 0 || market.TotalSupplyShares.Sign() != 0 {
		t.Fatalf("market not empty after full withdrawal: assets=%s shares=%s",
			market.TotalSupplyAssets, market.TotalSupplyShares)
	}
}

func TestDepositRejectsZeroAndPaused(t *testing.T) {
	f := newFixture(t)
	if _, err := f.pool.Deposit(aliceAddr, big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("zero deposit: got %v, want %v", err, ErrZeroAmount)
	}
	if err := f.pool.SetPauses(ownerAddr, ActionPauses{Supply: true}); err != nil {
		t.Fatalf("set pauses: %v", err)
	}
	if _, err := f.pool.Deposit(aliceAddr, usdc(1)); !errors.Is(err, ErrPaused) {
		t.Fatalf("paused deposit: got %v, want %v", err, ErrPaused)
	}
	if _, err := f.pool.Withdraw(aliceAddr, usdc(1)); !errors.Is(err, ErrPaused) {
		t.Fatalf("paused withdraw: got %v, want %v", err, ErrPaused)
	}
}

func TestWithdrawLimitedToIdleLiquidity(t *testing.T) {
	f := newFixture(t)
	f.supply(t, usdc(1_000))
	f.collateralize(t, eth(10))
	if err := f.pool.Borrow(bobAddr, usdc(600)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := f.pool.Withdraw(aliceAddr, usdc(500)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("withdraw over liquidity: got %v, want %v", err, ErrInsufficientLiquidity)
	}
	if _, err := f.pool.Withdraw(aliceAddr, usdc(400)); err != nil {
		t.Fatalf("withdraw within liquidity: %v", err)
	}
}

func TestAccrualIncreasesDebtOnce(t *testing.T) {
	f := newFixture(t)
	f.supply(t, usdc(1_000))
	f.collateralize(t, eth(10))
	if err := f.pool.Borrow(bobAddr, usdc(500)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	f.advance(365 * 24 * time.Hour)
	if err := f.pool.AccrueInterest(); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	// Utilization 0.5 below the 0.8 kink: rate = 0.04 * 0.5 = 2%.
	debt, err := f.pool.DebtOf(bobAddr)
	if err != nil {
		t.Fatalf("debt: %v", err)
	}
	if debt.Cmp(usdc(510)) != 0 {
		t.Fatalf("debt after one year = %s, want %s", debt, usdc(510))
	}

	market := f.pool.MarketSnapshot()
	wantReserves := big.NewInt(1_000_000)
	if market.TotalReserves.Cmp(wantReserves) != 0 {
		t.Fatalf("reserves = %s, want %s", market.TotalReserves, wantReserves)
	}
	wantSupply := new(big.Int).Add(usdc(1_000), big.NewInt(9_000_000))
	if market.TotalSupplyAssets.Cmp(wantSupply) != 0 {
		t.Fatalf("supply assets = %s, want %s", market.TotalSupplyAssets, wantSupply)
	}
	if market.BorrowIndex.Cmp(fpmath.Wad) <= 0 {
		t.Fatalf("borrow index did not grow: %s", market.BorrowIndex)
	}

	// Accruing again at the same timestamp must be a no-op.
	if err := f.pool.AccrueInterest(); err != nil {
		t.Fatalf("second accrue: %v", err)
	}
	after := f.pool.MarketSnapshot()
	if after.TotalBorrowAssets.Cmp(market.TotalBorrowAssets) != 0 {
		t.Fatalf("accrual not idempotent at same timestamp: %s then %s",
			market.TotalBorrowAssets, after.TotalBorrowAssets)
	}
}

func TestBorrowHealthGate(t *testing.T) {
	f := newFixture(t)
	f.supply(t, usdc(100_000))
	f.collateralize(t, eth(1))

	// $2000 collateral at 85% threshold backs at most $1700 of debt.
	if err := f.pool.Borrow(bobAddr, usdc(1_701)); !errors.Is(err, ErrWouldBeUndercollateralized) {
		t.Fatalf("over-borrow: got %v, want %v", err, ErrWouldBeUndercollateralized)
	}
	if err := f.pool.Borrow(bobAddr, usdc(1_600)); err != nil {
		t.Fatalf("borrow within threshold: %v", err)
	}
	health, err := f.pool.HealthFactor(bobAddr)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Cmp(fpmath.Wad) < 0 {
		t.Fatalf("healthy borrower reports health %s", health)
	}
}

func TestHealthFactorInfiniteWithoutDebt(t *testing.T) {
	f := newFixture(t)
	f.collateralize(t, eth(1))
	health, err := f.pool.HealthFactor(bobAddr)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Cmp(HealthInfinity) != 0 {
		t.Fatalf("debt-free health = %s, want sentinel", health)
	}
}

func TestPriceDropMakesPositionLiquidatable(t *testing.T) {
	f := newFixture(t)
	f.supply(t, usdc(100_000))
	f.collateralize(t, eth(1))
	if err := f.pool.Borrow(bobAddr, usdc(1_600)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	liquidatable, err := f.pool.IsLiquidatable(bobAddr)
	if err != nil {
		t.Fatalf("is liquidatable: %v", err)
	}
	if liquidatable {
		t.Fatal("fresh borrow should be healthy")
	}

	// WETH drops to $1800: 1800*0.85 = 1530 < 1600 debt.
	f.wethFeed.SetAnswer(big.NewInt(1_800*100_000_000), f.now)
	liquidatable, err = f.pool.IsLiquidatable(bobAddr)
	if err != nil {
		t.Fatalf("is liquidatable: %v", err)
	}
	if !liquidatable {
		t.Fatal("position should be liquidatable after price drop")
	}
}

func TestRepayCapsAtOutstandingDebt(t *testing.T) {
	f := newFixture(t)
	f.supply(t, usdc(10_000))
	f.collateralize(t, eth(1))
	if err := f.pool.Borrow(bobAddr, usdc(1_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	repaid, err := f.pool.Repay(bobAddr, bobAddr, usdc(5_000))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if repaid.Cmp(usdc(1_000)) != 0 {
		t.Fatalf("repaid %s, want %s", repaid, usdc(1_000))
	}
	debt, err := f.pool.DebtOf(bobAddr)
	if err != nil {
		t.Fatalf("debt: %v", err)
	}
	if debt.Sign() != 0 {
		t.Fatalf("debt after full repay = %s, want 0", debt)
	}
	market := f.pool.MarketSnapshot()
	if market.TotalBorrowShares.Sign() != 0 || market.TotalBorrowAssets.Sign() != 0 {
		t.Fatalf("borrow side not empty: assets=%s shares=%s",
			market.TotalBorrowAssets, market.TotalBorrowShares)
	}

	if _, err := f.pool.Repay(bobAddr, bobAddr, usdc(1)); !errors.Is(err, ErrNoDebt) {
		t.Fatalf("repay with no debt: got %v, want %v", err, ErrNoDebt)
	}
}

func TestThirdPartyRepay(t *testing.T) {
	f := newFixture(t)
	f.supply(t, usdc(10_000))
	f.collateralize(t, eth(1))
	if err := f.pool.Borrow(bobAddr, usdc(1_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	aliceBefore := f.usdc.BalanceOf(aliceAddr)
	repaid, err := f.pool.Repay(aliceAddr, bobAddr, usdc(400))
	if err != nil {
		t.Fatalf("third-party repay: %v", err)
	}
	if repaid.Cmp(usdc(400)) != 0 {
		t.Fatalf("repaid %s, want %s", repaid, usdc(400))
	}
	wantAlice := new(big.Int).Sub(aliceBefore, usdc(400))
	if got := f.usdc.BalanceOf(aliceAddr); got.Cmp(wantAlice) != 0 {
		t.Fatalf("payer balance = %s, want %s", got, wantAlice)
	}
	debt, err := f.pool.DebtOf(bobAddr)
	if err != nil {
		t.Fatalf("debt: %v", err)
	}
	if debt.Cmp(usdc(600)) != 0 {
		t.Fatalf("debt = %s, want %s", debt, usdc(600))
	}
}

func TestWithdrawCollateralHealthGate(t *testing.T) {
	f := newFixture(t)
	f.supply(t, usdc(10_000))
	f.collateralize(t, eth(2))
	if err := f.pool.Borrow(bobAddr, usdc(1_600)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// Dropping to 0.5 WETH leaves $1000 * 0.85 < $1600 of debt.
	if err := f.pool.WithdrawCollateral(bobAddr, new(big.Int).Rsh(eth(3), 1)); !errors.Is(err, ErrWouldBeUndercollateralized) {
		t.Fatalf("unsafe collateral withdrawal: got %v, want %v", err, ErrWouldBeUndercollateralized)
	}
	// Down to 1 WETH is still $2000 * 0.85 >= $1600.
	if err := f.pool.WithdrawCollateral(bobAddr, eth(1)); err != nil {
		t.Fatalf("safe collateral withdrawal: %v", err)
	}
	// With no debt the remainder is freely withdrawable.
	if _, err := f.pool.Repay(bobAddr, bobAddr, usdc(2_000)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if err := f.pool.WithdrawCollateral(bobAddr, eth(1)); err != nil {
		t.Fatalf("withdraw after repay: %v", err)
	}
	if got := f.weth.BalanceOf(bobAddr); got.Cmp(eth(100)) != 0 {
		t.Fatalf("bob WETH balance = %s, want %s", got, eth(100))
	}
}

func TestMaxBorrowUsesLoanToValue(t *testing.T) {
	f := newFixture(t)
	f.supply(t, usdc(100_000))
	f.collateralize(t, eth(1))
	// $2000 at 80% LTV.
	max, err := f.pool.MaxBorrow(bobAddr)
	if err != nil {
		t.Fatalf("max borrow: %v", err)
	}
	if max.Cmp(usdc(1_600)) != 0 {
		t.Fatalf("max borrow = %s, want %s", max, usdc(1_600))
	}
	// Shrinks once debt is taken.
	if err := f.pool.Borrow(bobAddr, usdc(1_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	max, err = f.pool.MaxBorrow(bobAddr)
	if err != nil {
		t.Fatalf("max borrow: %v", err)
	}
	if max.Cmp(usdc(600)) != 0 {
		t.Fatalf("max borrow after debt = %s, want %s", max, usdc(600))
	}
}

func TestBorrowCaps(t *testing.T) {
	f := newFixture(t)
	f.supply(t, usdc(10_000))
	f.collateralize(t, eth(10))

	if err := f.pool.SetBorrowCaps(ownerAddr, BorrowCaps{Total: usdc(500)}); err != nil {
		t.Fatalf("set caps: %v", err)
	}
	if err := f.pool.Borrow(bobAddr, usdc(600)); !errors.Is(err, ErrBorrowCapExceeded) {
		t.Fatalf("over total cap: got %v, want %v", err, ErrBorrowCapExceeded)
	}
	if err := f.pool.Borrow(bobAddr, usdc(500)); err != nil {
		t.Fatalf("borrow at cap: %v", err)
	}

	// A 10% utilization ceiling on 10k supplied allows 1k outstanding.
	if err := f.pool.SetBorrowCaps(ownerAddr, BorrowCaps{UtilizationBps: 1_000}); err != nil {
		t.Fatalf("set caps: %v", err)
	}
	if err := f.pool.Borrow(bobAddr, usdc(600)); !errors.Is(err, ErrBorrowCapExceeded) {
		t.Fatalf("over utilization cap: got %v, want %v", err, ErrBorrowCapExceeded)
	}
	if err := f.pool.Borrow(bobAddr, usdc(400)); err != nil {
		t.Fatalf("borrow within utilization cap: %v", err)
	}
}

func TestOwnerGatedSetters(t *testing.T) {
	f := newFixture(t)
	if err := f.pool.SetLiquidator(aliceAddr, liquidatorAddr); !errors.Is(err, ErrOnlyOwner) {
		t.Fatalf("set liquidator: got %v, want %v", err, ErrOnlyOwner)
	}
	if err := f.pool.SetPauses(aliceAddr, ActionPauses{}); !errors.Is(err, ErrOnlyOwner) {
		t.Fatalf("set pauses: got %v, want %v", err, ErrOnlyOwner)
	}
	if err := f.pool.SetBorrowCaps(aliceAddr, BorrowCaps{}); !errors.Is(err, ErrOnlyOwner) {
		t.Fatalf("set caps: got %v, want %v", err, ErrOnlyOwner)
	}
	if err := f.pool.WithdrawReserves(aliceAddr, aliceAddr, usdc(1)); !errors.Is(err, ErrOnlyOwner) {
		t.Fatalf("withdraw reserves: got %v, want %v", err, ErrOnlyOwner)
	}
}

func TestLiquidationHooksRequireLiquidator(t *testing.T) {
	f := newFixture(t)
	f.collateralize(t, eth(1))
	if err := f.pool.LockCollateralForLiquidation(aliceAddr, bobAddr, eth(1)); !errors.Is(err, ErrOnlyLiquidator) {
		t.Fatalf("lock: got %v, want %v", err, ErrOnlyLiquidator)
	}
	if err := f.pool.UnlockCollateralAfterLiquidation(aliceAddr, bobAddr, eth(1)); !errors.Is(err, ErrOnlyLiquidator) {
		t.Fatalf("unlock: got %v, want %v", err, ErrOnlyLiquidator)
	}
	if err := f.pool.ExecuteLiquidation(aliceAddr, bobAddr, aliceAddr, usdc(1), eth(1)); !errors.Is(err, ErrOnlyLiquidator) {
		t.Fatalf("execute: got %v, want %v", err, ErrOnlyLiquidator)
	}
}

func TestLockedCollateralBlocksWithdrawal(t *testing.T) {
	f := newFixture(t)
	f.collateralize(t, eth(2))
	if err := f.pool.LockCollateralForLiquidation(liquidatorAddr, bobAddr, eth(1)); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := f.pool.WithdrawCollateral(bobAddr, eth(2)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("withdraw locked: got %v, want %v", err, ErrInsufficientCollateral)
	}
	if err := f.pool.WithdrawCollateral(bobAddr, eth(1)); err != nil {
		t.Fatalf("withdraw free half: %v", err)
	}
	if err := f.pool.LockCollateralForLiquidation(liquidatorAddr, bobAddr, eth(1)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("double lock: got %v, want %v", err, ErrInsufficientCollateral)
	}
	if err := f.pool.UnlockCollateralAfterLiquidation(liquidatorAddr, bobAddr, eth(1)); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := f.pool.WithdrawCollateral(bobAddr, eth(1)); err != nil {
		t.Fatalf("withdraw after unlock: %v", err)
	}
}

func TestExecuteLiquidationSettlesFill(t *testing.T) {
	f := newFixture(t)
	f.supply(t, usdc(10_000))
	f.collateralize(t, eth(1))
	if err := f.pool.Borrow(bobAddr, usdc(1_600)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	f.wethFeed.SetAnswer(big.NewInt(1_800*100_000_000), f.now)
	healthBefore, err := f.pool.HealthFactor(bobAddr)
	if err != nil {
		t.Fatalf("health: %v", err)
	}

	halfEth := new(big.Int).Rsh(eth(1), 1)
	if err := f.pool.LockCollateralForLiquidation(liquidatorAddr, bobAddr, halfEth); err != nil {
		t.Fatalf("lock: %v", err)
	}
	// The liquidator routes the filler payment into the pool treasury before
	// settling.
	f.usdc.Mint(f.pool.Addr(), usdc(800))
	if err := f.pool.ExecuteLiquidation(liquidatorAddr, bobAddr, aliceAddr, usdc(800), halfEth); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if got := f.weth.BalanceOf(aliceAddr); got.Cmp(halfEth) != 0 {
		t.Fatalf("recipient collateral = %s, want %s", got, halfEth)
	}
	debt, err := f.pool.DebtOf(bobAddr)
	if err != nil {
		t.Fatalf("debt: %v", err)
	}
	if debt.Cmp(usdc(800)) != 0 {
		t.Fatalf("debt after fill = %s, want %s", debt, usdc(800))
	}
	pos := f.pool.PositionOf(bobAddr)
	if pos.CollateralAmount.Cmp(halfEth) != 0 {
		t.Fatalf("remaining collateral = %s, want %s", pos.CollateralAmount, halfEth)
	}
	if f.pool.LockedCollateralOf(bobAddr).Sign() != 0 {
		t.Fatalf("lock not consumed: %s", f.pool.LockedCollateralOf(bobAddr))
	}
	healthAfter, err := f.pool.HealthFactor(bobAddr)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if healthAfter.Cmp(healthBefore) < 0 {
		t.Fatalf("liquidation lowered health: %s -> %s", healthBefore, healthAfter)
	}
}

func TestWithdrawReserves(t *testing.T) {
	f := newFixture(t)
	f.supply(t, usdc(1_000))
	f.collateralize(t, eth(10))
	if err := f.pool.Borrow(bobAddr, usdc(500)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	f.advance(365 * 24 * time.Hour)
	if err := f.pool.AccrueInterest(); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	market := f.pool.MarketSnapshot()
	if market.TotalReserves.Sign() == 0 {
		t.Fatal("expected accrued reserves")
	}
	over := new(big.Int).Add(market.TotalReserves, big.NewInt(1))
	if err := f.pool.WithdrawReserves(ownerAddr, ownerAddr, over); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("over-withdraw reserves: got %v, want %v", err, ErrInsufficientBalance)
	}
	if err := f.pool.WithdrawReserves(ownerAddr, ownerAddr, market.TotalReserves); err != nil {
		t.Fatalf("withdraw reserves: %v", err)
	}
	if got := f.usdc.BalanceOf(ownerAddr); got.Cmp(market.TotalReserves) != 0 {
		t.Fatalf("owner balance = %s, want %s", got, market.TotalReserves)
	}
}

func TestBorrowSharesConserved(t *testing.T) {
	f := newFixture(t)
	f.supply(t, usdc(100_000))
	f.collateralize(t, eth(10))
	f.weth.Mint(aliceAddr, eth(10))
	f.weth.Approve(aliceAddr, f.pool.Addr(), eth(10))
	if err := f.pool.DepositCollateral(aliceAddr, eth(10)); err != nil {
		t.Fatalf("deposit collateral: %v", err)
	}

	if err := f.pool.Borrow(bobAddr, usdc(1_000)); err != nil {
		t.Fatalf("bob borrow: %v", err)
	}
	f.advance(30 * 24 * time.Hour)
	if err := f.pool.Borrow(aliceAddr, usdc(777)); err != nil {
		t.Fatalf("alice borrow: %v", err)
	}
	f.advance(30 * 24 * time.Hour)
	if _, err := f.pool.Repay(bobAddr, bobAddr, usdc(300)); err != nil {
		t.Fatalf("repay: %v", err)
	}

	market := f.pool.MarketSnapshot()
	sum := new(big.Int).Add(f.pool.PositionOf(bobAddr).BorrowShares, f.pool.PositionOf(aliceAddr).BorrowShares)
	if sum.Cmp(market.TotalBorrowShares) != 0 {
		t.Fatalf("share conservation broken: positions=%s total=%s", sum, market.TotalBorrowShares)
	}
	if market.TotalBorrowAssets.Cmp(market.TotalSupplyAssets) > 0 {
		t.Fatalf("borrows exceed supply: %s > %s", market.TotalBorrowAssets, market.TotalSupplyAssets)
	}
}
