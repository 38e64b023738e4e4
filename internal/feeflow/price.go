package feeflow

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// PriceAt returns the auction price at now for an epoch that started at
// startTime with startPrice:
//
//	max(priceFloor, startPrice * 2^(-(now-startTime)/halfLife))
//
// Pure function of the stored epoch parameters and the caller-observed time;
// no background task updates it. Monotonically non-increasing in now and
// never below priceFloor.
func PriceAt(startPrice, priceFloor decimal.Decimal, startTime time.Time, halfLife time.Duration, now time.Time) decimal.Decimal {
	if halfLife <= 0 {
		return priceFloor
	}

	elapsed := now.Sub(startTime)
	if elapsed < 0 {
		elapsed = 0
	}

	// The decay exponent is computed in float64; decimal has no fractional
	// power. The factor is in (0, 1] so the product cannot overflow.
	factor := math.Exp2(-elapsed.Seconds() / halfLife.Seconds())
	price := startPrice.Mul(decimal.NewFromFloat(factor))

	return decimal.Max(priceFloor, price)
}
