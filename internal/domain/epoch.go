package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionEpoch is one lifecycle of the fee-flow auction, from one settlement
// to the next. LotAmount is snapshotted at epoch start and never changes for
// the epoch's lifetime; fees accrued during the epoch buffer in
// PendingAccrual and become the next epoch's lot.
// Corresponds to the auction_epochs table in PostgreSQL (one row per market).
type AuctionEpoch struct {
	MarketID       string
	EpochID        int64 // increments on every reset
	LotAmount      decimal.Decimal
	StartPrice     decimal.Decimal
	StartTime      time.Time
	PendingAccrual decimal.Decimal
}

// Settlement records one successful auction purchase.
// Corresponds to the settlements table in PostgreSQL. Append-only.
type Settlement struct {
	SettlementID string // PRIMARY KEY, uuid
	MarketID     string
	EpochID      int64
	Buyer        string
	LotAmount    decimal.Decimal // base asset delivered to the buyer
	PricePaid    decimal.Decimal // settlement asset routed downstream
	SettledAt    time.Time
}
