package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market represents one deployed relay market.
// Corresponds to the markets table in PostgreSQL.
type Market struct {
	MarketID        string // PRIMARY KEY, uuid
	BaseAsset       string // collateral asset accepted by the vault
	SettlementAsset string // asset auction buyers pay with
	TokenName       string
	TokenSymbol     string

	// Fixed at creation, immutable for the market's lifetime.
	ExchangeRate         decimal.Decimal // base units per market-token unit
	FeeFraction          decimal.Decimal // skim on each mint, [0, 1)
	InitialReserveTarget decimal.Decimal // bootstrap bookkeeping only
	Auction              AuctionParams

	// Mutable financials. ReserveBalance >= MintedSupply * ExchangeRate
	// at rest; rounding dust only ever adds slack.
	ReserveBalance decimal.Decimal
	MintedSupply   decimal.Decimal

	// Halted is set when an invariant breach is detected. All mutating
	// operations on a halted market fail until manual intervention.
	Halted bool

	CreatedAt time.Time
}

// AuctionParams are the fee-flow auction parameters, fixed at market creation.
type AuctionParams struct {
	StartPrice      decimal.Decimal // first epoch's starting price
	PriceFloor      decimal.Decimal // price never decays below this
	HalfLife        time.Duration   // price halves every HalfLife
	ResetMultiplier decimal.Decimal // next start price = price paid * multiplier
}

// TokenAsset returns the bank asset identifier of the market token.
func (m *Market) TokenAsset() string {
	return "relay:" + m.MarketID
}
