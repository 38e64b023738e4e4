package bank

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Memory is an in-memory Bank. Safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	balances map[string]map[string]decimal.Decimal // asset -> account -> balance
}

// NewMemory creates an empty in-memory bank.
func NewMemory() *Memory {
	return &Memory{balances: make(map[string]map[string]decimal.Decimal)}
}

// Compile-time interface check.
var _ Bank = (*Memory)(nil)

// Balance returns the current balance. Unknown accounts hold zero.
func (b *Memory) Balance(asset, account string) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if accounts, ok := b.balances[asset]; ok {
		if bal, ok := accounts[account]; ok {
			return bal
		}
	}
	return decimal.Zero
}

// Deposit credits amount to account, creating it if needed.
func (b *Memory) Deposit(asset, account string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.credit(asset, account, amount)
	return nil
}

// Withdraw debits amount from account.
func (b *Memory) Withdraw(asset, account string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.debit(asset, account, amount)
}

// Transfer moves amount from one account to another atomically.
func (b *Memory) Transfer(asset, from, to string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.debit(asset, from, amount); err != nil {
		return err
	}
	b.credit(asset, to, amount)
	return nil
}

// credit assumes the lock is held.
func (b *Memory) credit(asset, account string, amount decimal.Decimal) {
	accounts, ok := b.balances[asset]
	if !ok {
		accounts = make(map[string]decimal.Decimal)
		b.balances[asset] = accounts
	}
	accounts[account] = accounts[account].Add(amount)
}

// debit assumes the lock is held.
func (b *Memory) debit(asset, account string, amount decimal.Decimal) error {
	accounts, ok := b.balances[asset]
	if !ok {
		return ErrInsufficientFunds
	}
	bal := accounts[account]
	if bal.LessThan(amount) {
		return ErrInsufficientFunds
	}
	accounts[account] = bal.Sub(amount)
	return nil
}
