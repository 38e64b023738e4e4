// Package bank provides the asset ledger backing all balance movements:
// vault collateral, fee accumulation, auction payments and payouts.
package bank

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Ledger errors.
var (
	// ErrInsufficientFunds is returned when a withdraw or transfer exceeds
	// the source account's balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount is returned when an amount is not strictly positive.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Bank tracks per-asset, per-account balances. Amounts are always positive;
// balances never go negative.
type Bank interface {
	// Balance returns the current balance. Unknown accounts hold zero.
	Balance(asset, account string) decimal.Decimal

	// Deposit credits amount to account, creating it if needed.
	Deposit(asset, account string, amount decimal.Decimal) error

	// Withdraw debits amount from account. Returns ErrInsufficientFunds
	// if the balance is short.
	Withdraw(asset, account string, amount decimal.Decimal) error

	// Transfer moves amount from one account to another atomically.
	Transfer(asset, from, to string, amount decimal.Decimal) error
}
