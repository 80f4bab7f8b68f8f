package models

import (
	"github.com/shopspring/decimal"
)

// AssetPosition is the derived valuation of one held asset
type AssetPosition struct {
	Asset         string
	Quantity      decimal.Decimal
	AvgCost       decimal.Decimal
	Price         decimal.Decimal
	MarketValue   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	// PriceAvailable is false when the price lookup failed and Price was set to zero.
	PriceAvailable bool
}

// CompositionEntry is one asset's share of the portfolio
type CompositionEntry struct {
	Symbol     string
	Value      decimal.Decimal
	Percentage decimal.Decimal
}

// Composition is the portfolio ordered by value, largest first
type Composition struct {
	Entries []CompositionEntry
	Total   decimal.Decimal
}
