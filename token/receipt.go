package token

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ReceiptLedger is the in-memory supply-claim token. The owner address is
// fixed at construction; only calls carrying that principal may mint or burn.
type ReceiptLedger struct {
	mu       sync.Mutex
	symbol   string
	owner    common.Address
	total    *big.Int
	balances map[common.Address]*big.Int
}

// NewReceiptLedger constructs a receipt token owned by the given pool
// principal.
func NewReceiptLedger(symbol string, owner common.Address) *ReceiptLedger {
	return &ReceiptLedger{
		symbol:   symbol,
		owner:    owner,
		total:    big.NewInt(0),
		balances: make(map[common.Address]*big.Int),
	}
}

// Symbol returns the receipt token symbol.
func (r *ReceiptLedger) Symbol() string { return r.symbol }

// Mint credits supply shares to the target. Only the owning pool may call.
func (r *ReceiptLedger) Mint(caller, to common.Address, amount *big.Int) error {
	if caller != r.owner {
		return ErrNotOwner
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.balances[to]
	if current == nil {
		current = big.NewInt(0)
	}
	r.balances[to] = new(big.Int).Add(current, amount)
	r.total = new(big.Int).Add(r.total, amount)
	return nil
}

// Burn destroys supply shares held by from. Only the owning pool may call.
func (r *ReceiptLedger) Burn(caller, from common.Address, amount *big.Int) error {
	if caller != r.owner {
		return ErrNotOwner
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.balances[from]
	if current == nil || current.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	r.balances[from] = new(big.Int).Sub(current, amount)
	r.total = new(big.Int).Sub(r.total, amount)
	return nil
}

// BalanceOf reports the share balance of the holder.
func (r *ReceiptLedger) BalanceOf(addr common.Address) *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.balances[addr]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

// TotalSupply reports the outstanding share count.
func (r *ReceiptLedger) TotalSupply() *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return new(big.Int).Set(r.total)
}
