// Package rewarder tracks staked market tokens and pro-rata entitlement to
// routed proceeds, using a global accumulator index per reward asset.
package rewarder

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"relay-market-core/internal/bank"
	"relay-market-core/internal/domain"
)

// Ledger is one market's staking ledger. Entitlement follows the index
// pattern: each Notify advances a per-asset global index by
// amount/totalStaked, and a staker's claim is
// staked * (index - lastSeenIndex) on top of previously settled accrual.
// Safe for concurrent use.
type Ledger struct {
	mu sync.Mutex

	marketID     string
	stakingAsset string
	bank         bank.Bank

	totalStaked decimal.Decimal
	stakes      map[string]decimal.Decimal // account -> staked

	index     map[string]decimal.Decimal            // asset -> global index
	userIndex map[string]map[string]decimal.Decimal // asset -> account -> index at last settle
	accrued   map[string]map[string]decimal.Decimal // asset -> account -> settled entitlement

	// Proceeds notified while nothing is staked park here until the first
	// stake exists, then fold into the index.
	parked map[string]decimal.Decimal
}

// NewLedger creates the reward ledger for one market. stakingAsset is the
// market token.
func NewLedger(marketID, stakingAsset string, b bank.Bank) *Ledger {
	return &Ledger{
		marketID:     marketID,
		stakingAsset: stakingAsset,
		bank:         b,
		totalStaked:  decimal.Zero,
		stakes:       make(map[string]decimal.Decimal),
		index:        make(map[string]decimal.Decimal),
		userIndex:    make(map[string]map[string]decimal.Decimal),
		accrued:      make(map[string]map[string]decimal.Decimal),
		parked:       make(map[string]decimal.Decimal),
	}
}

// Account returns the bank account holding staked tokens and undistributed
// rewards.
func (l *Ledger) Account() string {
	return "rewarder:" + l.marketID
}

// Stake moves amount of the staking asset from account into the ledger.
func (l *Ledger) Stake(account string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return domain.ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.bank.Transfer(l.stakingAsset, account, l.Account(), amount); err != nil {
		return fmt.Errorf("stake transfer: %w", err)
	}

	l.settle(account)
	l.stakes[account] = l.stakes[account].Add(amount)
	l.totalStaked = l.totalStaked.Add(amount)
	l.unpark()
	return nil
}

// Withdraw returns amount of staked tokens to account.
func (l *Ledger) Withdraw(account string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return domain.ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stakes[account].LessThan(amount) {
		return domain.ErrInsufficientBalance
	}

	l.settle(account)
	if err := l.bank.Transfer(l.stakingAsset, l.Account(), account, amount); err != nil {
		return fmt.Errorf("withdraw transfer: %w", err)
	}
	l.stakes[account] = l.stakes[account].Sub(amount)
	l.totalStaked = l.totalStaked.Sub(amount)
	return nil
}

// Notify credits amount of a reward asset to all current stakers pro-rata.
// The funds themselves must already sit in the ledger's bank account (the
// router moves them before calling).
func (l *Ledger) Notify(asset string, amount decimal.Decimal) {
	if amount.Sign() <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.totalStaked.IsZero() {
		l.parked[asset] = l.parked[asset].Add(amount)
		return
	}
	l.index[asset] = l.index[asset].Add(indexAdvance(amount, l.totalStaked))
}

// Earned returns account's unclaimed entitlement in asset.
func (l *Ledger) Earned(account, asset string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	pending := l.stakes[account].Mul(l.index[asset].Sub(l.seenIndex(asset, account)))
	return l.accruedFor(asset, account).Add(pending)
}

// Claim pays out account's full entitlement in asset.
func (l *Ledger) Claim(account, asset string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.settleAsset(asset, account)
	owed := l.accruedFor(asset, account)
	if owed.Sign() <= 0 {
		return decimal.Zero, nil
	}

	if err := l.bank.Transfer(asset, l.Account(), account, owed); err != nil {
		return decimal.Zero, fmt.Errorf("claim transfer: %w", err)
	}
	l.accrued[asset][account] = decimal.Zero
	return owed, nil
}

// Staked returns account's current stake.
func (l *Ledger) Staked(account string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stakes[account]
}

// TotalStaked returns the ledger-wide stake.
func (l *Ledger) TotalStaked() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalStaked
}

// settle folds every asset's index delta into account's accrued balance.
// Assumes the lock is held.
func (l *Ledger) settle(account string) {
	for asset := range l.index {
		l.settleAsset(asset, account)
	}
}

// settleAsset folds one asset's index delta into account's accrued balance.
// Assumes the lock is held.
func (l *Ledger) settleAsset(asset, account string) {
	idx := l.index[asset]
	pending := l.stakes[account].Mul(idx.Sub(l.seenIndex(asset, account)))
	if pending.Sign() > 0 {
		if l.accrued[asset] == nil {
			l.accrued[asset] = make(map[string]decimal.Decimal)
		}
		l.accrued[asset][account] = l.accrued[asset][account].Add(pending)
	}
	if l.userIndex[asset] == nil {
		l.userIndex[asset] = make(map[string]decimal.Decimal)
	}
	l.userIndex[asset][account] = idx
}

// unpark folds parked proceeds into the index once stake exists.
// Assumes the lock is held.
func (l *Ledger) unpark() {
	if l.totalStaked.IsZero() {
		return
	}
	for asset, amount := range l.parked {
		if amount.Sign() > 0 {
			l.index[asset] = l.index[asset].Add(indexAdvance(amount, l.totalStaked))
		}
		delete(l.parked, asset)
	}
}

// indexPrecision bounds the per-share index. The advance is truncated, not
// rounded: totalStaked * advance <= amount, so the sum of entitlements never
// exceeds what was notified. The sub-precision residue stays in the pool.
const indexPrecision = 18

func indexAdvance(amount, totalStaked decimal.Decimal) decimal.Decimal {
	q, _ := amount.QuoRem(totalStaked, indexPrecision)
	return q
}

func (l *Ledger) seenIndex(asset, account string) decimal.Decimal {
	if m := l.userIndex[asset]; m != nil {
		return m[account]
	}
	return decimal.Zero
}

func (l *Ledger) accruedFor(asset, account string) decimal.Decimal {
	if m := l.accrued[asset]; m != nil {
		return m[account]
	}
	return decimal.Zero
}
