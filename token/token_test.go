package token

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func addr(b byte) common.Address {
	var a common.Address
	a[common.AddressLength-1] = b
	return a
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ledger := NewLedger("USDQ", 6)
	owner := addr(0x01)
	spender := addr(0x02)
	sink := addr(0x03)

	ledger.Mint(owner, big.NewInt(1_000))
	ledger.Approve(owner, spender, big.NewInt(600))

	if err := ledger.TransferFrom(spender, owner, sink, big.NewInt(400)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if got := ledger.Allowance(owner, spender); got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("unexpected allowance remainder: %s", got)
	}
	if got := ledger.BalanceOf(sink); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("unexpected sink balance: %s", got)
	}

	if err := ledger.TransferFrom(spender, owner, sink, big.NewInt(300)); err != ErrInsufficientAllowance {
		t.Fatalf("expected allowance error, got %v", err)
	}
}

func TestTransferRejectsOverdraft(t *testing.T) {
	ledger := NewLedger("WETH", 18)
	from := addr(0x04)
	to := addr(0x05)
	ledger.Mint(from, big.NewInt(10))

	if err := ledger.Transfer(from, to, big.NewInt(11)); err != ErrInsufficientBalance {
		t.Fatalf("expected balance error, got %v", err)
	}
	if err := ledger.Transfer(from, to, big.NewInt(0)); err != ErrInvalidAmount {
		t.Fatalf("expected amount error, got %v", err)
	}
	if got := ledger.BalanceOf(from); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("failed transfer mutated balance: %s", got)
	}
}

func TestReceiptMintBurnOwnerGated(t *testing.T) {
	pool := addr(0x10)
	stranger := addr(0x11)
	holder := addr(0x12)

	receipt := NewReceiptLedger("lUSDQ", pool)
	if err := receipt.Mint(stranger, holder, big.NewInt(5)); err != ErrNotOwner {
		t.Fatalf("expected owner error, got %v", err)
	}
	if err := receipt.Mint(pool, holder, big.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := receipt.TotalSupply(); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("unexpected total supply: %s", got)
	}
	if err := receipt.Burn(pool, holder, big.NewInt(6)); err != ErrInsufficientBalance {
		t.Fatalf("expected balance error, got %v", err)
	}
	if err := receipt.Burn(pool, holder, big.NewInt(5)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := receipt.BalanceOf(holder); got.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", got)
	}
}
