package bank

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestMemory_DepositAndBalance(t *testing.T) {
	b := NewMemory()

	if err := b.Deposit("HONEY", "user0", dec("100")); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	if got := b.Balance("HONEY", "user0"); !got.Equal(dec("100")) {
		t.Errorf("Balance = %s, want 100", got)
	}

	// Unknown asset/account reads as zero
	if got := b.Balance("HONEY", "user1"); !got.IsZero() {
		t.Errorf("unknown account Balance = %s, want 0", got)
	}
	if got := b.Balance("BERO", "user0"); !got.IsZero() {
		t.Errorf("unknown asset Balance = %s, want 0", got)
	}
}

func TestMemory_Withdraw(t *testing.T) {
	b := NewMemory()
	if err := b.Deposit("HONEY", "user0", dec("50")); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	if err := b.Withdraw("HONEY", "user0", dec("20")); err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if got := b.Balance("HONEY", "user0"); !got.Equal(dec("30")) {
		t.Errorf("Balance = %s, want 30", got)
	}

	// Overdraw fails and leaves the balance untouched
	err := b.Withdraw("HONEY", "user0", dec("31"))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Withdraw error = %v, want ErrInsufficientFunds", err)
	}
	if got := b.Balance("HONEY", "user0"); !got.Equal(dec("30")) {
		t.Errorf("Balance after failed withdraw = %s, want 30", got)
	}
}

func TestMemory_Transfer(t *testing.T) {
	b := NewMemory()
	if err := b.Deposit("HONEY", "user0", dec("10")); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	if err := b.Transfer("HONEY", "user0", "user1", dec("4")); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if got := b.Balance("HONEY", "user0"); !got.Equal(dec("6")) {
		t.Errorf("sender balance = %s, want 6", got)
	}
	if got := b.Balance("HONEY", "user1"); !got.Equal(dec("4")) {
		t.Errorf("recipient balance = %s, want 4", got)
	}

	err := b.Transfer("HONEY", "user0", "user1", dec("7"))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Transfer error = %v, want ErrInsufficientFunds", err)
	}
}

func TestMemory_RejectsNonPositiveAmounts(t *testing.T) {
	b := NewMemory()

	for _, amount := range []decimal.Decimal{decimal.Zero, dec("-1")} {
		if err := b.Deposit("HONEY", "user0", amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Deposit(%s) error = %v, want ErrInvalidAmount", amount, err)
		}
		if err := b.Withdraw("HONEY", "user0", amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Withdraw(%s) error = %v, want ErrInvalidAmount", amount, err)
		}
		if err := b.Transfer("HONEY", "user0", "user1", amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Transfer(%s) error = %v, want ErrInvalidAmount", amount, err)
		}
	}
}
