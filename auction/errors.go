package auction

import "errors"

var (
	// ErrUnknownPool indicates the market identifier is not registered.
	ErrUnknownPool = errors.New("auction: unknown pool")
	// ErrUnknownAuction indicates no auction exists under the identifier.
	ErrUnknownAuction = errors.New("auction: unknown auction")
	// ErrAuctionNotActive indicates the auction already completed or was
	// cancelled.
	ErrAuctionNotActive = errors.New("auction: not active")
	// ErrAuctionExpired indicates the auction window has closed.
	ErrAuctionExpired = errors.New("auction: expired")
	// ErrAuctionNotExpired indicates a cancellation before the window closed.
	ErrAuctionNotExpired = errors.New("auction: not expired")
	// ErrAuctionExists indicates the user already has a live auction in the
	// market.
	ErrAuctionExists = errors.New("auction: active auction exists for user")
	// ErrHealthyPosition indicates the target position is not liquidatable.
	ErrHealthyPosition = errors.New("auction: position is healthy")
	// ErrNothingToLiquidate indicates the close factor or collateral cap
	// produced an empty auction.
	ErrNothingToLiquidate = errors.New("auction: nothing to liquidate")
	// ErrZeroAmount rejects empty fills.
	ErrZeroAmount = errors.New("auction: amount must be positive")
	// ErrZeroAddress rejects the zero principal.
	ErrZeroAddress = errors.New("auction: zero address")
	// ErrInvalidParams rejects a premium/discount/duration configuration
	// that cannot produce a decaying price.
	ErrInvalidParams = errors.New("auction: invalid parameters")
	// ErrReentrantCall is returned when a call re-enters the liquidator.
	ErrReentrantCall = errors.New("auction: reentrant call")
)
