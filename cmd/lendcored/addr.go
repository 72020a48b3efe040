package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// tokenOwner wraps the operator principal so wiring code reads clearly at
// the call sites.
type tokenOwner struct {
	addr common.Address
}

// resolveOwner parses the operator address from the environment. Without an
// explicit owner the daemon derives a stable local principal, which is only
// useful for development setups.
func resolveOwner(raw string) (tokenOwner, error) {
	if raw == "" {
		return tokenOwner{addr: deriveAddr("lendcore/owner/dev")}, nil
	}
	if !common.IsHexAddress(raw) {
		return tokenOwner{}, fmt.Errorf("invalid owner address %q", raw)
	}
	return tokenOwner{addr: common.HexToAddress(raw)}, nil
}

// tokenAddr derives a stable address identifying a token within a market's
// oracle and ledger wiring.
func tokenAddr(marketID, symbol string) common.Address {
	return deriveAddr("lendcore/token/" + marketID + "/" + symbol)
}

func deriveAddr(seed string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(seed))[12:])
}
