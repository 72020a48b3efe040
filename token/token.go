package token

import (
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrInvalidAmount         = errors.New("token: amount must be positive")
	ErrNotOwner              = errors.New("token: caller is not the owner")
)

// Token is the fungible asset interface the lending engine consumes for both
// the borrow asset and the collateral asset. Implementations are untrusted:
// a transfer may fail or synchronously call back into the engine, so callers
// move tokens strictly before or strictly after their own state mutation.
type Token interface {
	Transfer(from, to common.Address, amount *big.Int) error
	TransferFrom(spender, from, to common.Address, amount *big.Int) error
	BalanceOf(addr common.Address) *big.Int
	Decimals() uint8
}

// Receipt is the tokenized claim minted to suppliers against the supply side
// of a market ledger. Mint and Burn are restricted to the owning pool.
type Receipt interface {
	Mint(caller, to common.Address, amount *big.Int) error
	Burn(caller, from common.Address, amount *big.Int) error
	BalanceOf(addr common.Address) *big.Int
	TotalSupply() *big.Int
}

// Ledger is an in-memory fungible token used as the reference implementation
// and as the default test double. It follows allowance semantics so the pull
// path (TransferFrom) can be exercised the same way a real asset would be.
type Ledger struct {
	mu         sync.Mutex
	symbol     string
	decimals   uint8
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

// NewLedger constructs an empty token ledger with the given symbol and
// decimal precision.
func NewLedger(symbol string, decimals uint8) *Ledger {
	return &Ledger{
		symbol:     strings.TrimSpace(symbol),
		decimals:   decimals,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Symbol returns the token symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Decimals returns the token precision.
func (l *Ledger) Decimals() uint8 { return l.decimals }

// Mint credits freshly created units to the target address. Test setup only;
// a production asset would arrive through the host environment instead.
func (l *Ledger) Mint(to common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(to, amount)
}

// Approve authorises the spender to move up to amount units owned by owner.
func (l *Ledger) Approve(owner, spender common.Address, amount *big.Int) {
	if amount == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	perOwner, ok := l.allowances[owner]
	if !ok {
		perOwner = make(map[common.Address]*big.Int)
		l.allowances[owner] = perOwner
	}
	perOwner[spender] = new(big.Int).Set(amount)
}

// Allowance reports the remaining spend authorisation.
func (l *Ledger) Allowance(owner, spender common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if perOwner, ok := l.allowances[owner]; ok {
		if v, ok := perOwner[spender]; ok {
			return new(big.Int).Set(v)
		}
	}
	return big.NewInt(0)
}

// Transfer moves amount from one holder to another.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

// TransferFrom moves amount out of from using spender's allowance.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	perOwner := l.allowances[from]
	allowance := perOwner[spender]
	if allowance == nil || allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	perOwner[spender] = new(big.Int).Sub(allowance, amount)
	return nil
}

// BalanceOf reports the holder's balance.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.balances[addr]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (l *Ledger) move(from, to common.Address, amount *big.Int) error {
	balance := l.balances[from]
	if balance == nil || balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.balances[from] = new(big.Int).Sub(balance, amount)
	l.credit(to, amount)
	return nil
}

func (l *Ledger) credit(to common.Address, amount *big.Int) {
	current := l.balances[to]
	if current == nil {
		current = big.NewInt(0)
	}
	l.balances[to] = new(big.Int).Add(current, amount)
}
