package domain

import "errors"

// Operation errors. Validation failures leave all market state untouched;
// callers may retry with corrected input.
var (
	// ErrZeroAmount is returned when an operation amount is zero or negative.
	ErrZeroAmount = errors.New("amount must be positive")

	// ErrInsufficientCollateral is returned when the caller cannot cover the
	// base-asset transfer a mint (or a buy's payment) requires.
	ErrInsufficientCollateral = errors.New("insufficient collateral")

	// ErrInsufficientBalance is returned when a redeem exceeds the caller's
	// market-token balance.
	ErrInsufficientBalance = errors.New("insufficient token balance")

	// ErrMarketNotInitialized is returned when a market's downstream wiring
	// (router, rewarder) has not been set, or the market does not exist.
	ErrMarketNotInitialized = errors.New("market not initialized")

	// ErrPriceExceeded is returned when the current auction price is above
	// the buyer's max price. No state change.
	ErrPriceExceeded = errors.New("auction price exceeds max price")

	// ErrEmptyLot is returned when a buy finds nothing to sell. No state change.
	ErrEmptyLot = errors.New("auction lot is empty")

	// ErrSlippage is returned when a mint produces fewer tokens than the
	// caller's stated minimum.
	ErrSlippage = errors.New("minted amount below minimum")

	// ErrExpired is returned when an operation's deadline has passed.
	ErrExpired = errors.New("deadline expired")

	// ErrRoutingFailed is returned when the proceeds push to the distribution
	// router fails. The entire purchase is rolled back.
	ErrRoutingFailed = errors.New("proceeds routing failed")

	// ErrMarketHalted is returned for any mutating operation on a market that
	// previously detected an invariant breach.
	ErrMarketHalted = errors.New("market halted pending manual intervention")
)

// ErrReserveUnderfunded indicates the reserve cannot cover a redeem. It is
// unreachable while the reserve invariant holds; if it fires, a prior
// accounting bug exists and the market halts.
var ErrReserveUnderfunded = errors.New("reserve underfunded: accounting invariant violated")
