package feeflow

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPriceAt_HalfLifeDecay(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	startPrice := dec("1000")
	floor := dec("10")
	halfLife := time.Hour

	// At one half-life the price has halved exactly.
	got := PriceAt(startPrice, floor, start, halfLife, start.Add(time.Hour))
	if !got.Equal(dec("500")) {
		t.Errorf("price at t=halfLife = %s, want 500", got)
	}

	// At two half-lives it has quartered.
	got = PriceAt(startPrice, floor, start, halfLife, start.Add(2*time.Hour))
	if !got.Equal(dec("250")) {
		t.Errorf("price at t=2*halfLife = %s, want 250", got)
	}

	// Far out the floor holds: 1000 * 2^-10 < 1 < 10.
	got = PriceAt(startPrice, floor, start, halfLife, start.Add(10*time.Hour))
	if !got.Equal(floor) {
		t.Errorf("price at t=10*halfLife = %s, want floor %s", got, floor)
	}
}

func TestPriceAt_AtStartAndBefore(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)

	got := PriceAt(dec("1000"), dec("10"), start, time.Hour, start)
	if !got.Equal(dec("1000")) {
		t.Errorf("price at t=0 = %s, want 1000", got)
	}

	// Clock skew before the epoch start clamps to the start price.
	got = PriceAt(dec("1000"), dec("10"), start, time.Hour, start.Add(-time.Minute))
	if !got.Equal(dec("1000")) {
		t.Errorf("price before start = %s, want 1000", got)
	}
}

func TestPriceAt_MonotonicallyNonIncreasing(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	startPrice := dec("1000")
	floor := dec("10")
	halfLife := 30 * time.Minute

	prev := PriceAt(startPrice, floor, start, halfLife, start)
	for i := 1; i <= 200; i++ {
		now := start.Add(time.Duration(i) * time.Minute)
		p := PriceAt(startPrice, floor, start, halfLife, now)
		if p.GreaterThan(prev) {
			t.Fatalf("price increased at t=%dm: %s > %s", i, p, prev)
		}
		if p.LessThan(floor) {
			t.Fatalf("price below floor at t=%dm: %s < %s", i, p, floor)
		}
		prev = p
	}
}

func TestPriceAt_ZeroFloor(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)

	got := PriceAt(dec("1000"), decimal.Zero, start, time.Second, start.Add(100*time.Second))
	if got.Sign() < 0 {
		t.Errorf("price went negative: %s", got)
	}
}
