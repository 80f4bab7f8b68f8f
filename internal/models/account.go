package models

import (
	"github.com/shopspring/decimal"
)

// Balance is the holding of one asset. Free and Locked are never negative.
type Balance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

// Total is free plus locked
func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// IsZero reports whether nothing is held
func (b Balance) IsZero() bool {
	return b.Total().IsZero()
}

// Ticker is the latest price of a pair
type Ticker struct {
	Pair  string          `json:"pair"`
	Price decimal.Decimal `json:"price"`
}

// SymbolInfo is exchange metadata for a listed pair
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
	Status     string `json:"status"`
}

// IsTrading reports whether the pair currently accepts orders
func (s SymbolInfo) IsTrading() bool {
	return s.Status == "TRADING"
}

// OpenOrder is a resting order on the exchange
type OpenOrder struct {
	OrderID  int64           `json:"orderId"`
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Type     string          `json:"type"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Status   string          `json:"status"`
}
