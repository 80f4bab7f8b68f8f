package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade or order
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is an executed fill on one trading pair. Quantity and Price are never negative.
type Trade struct {
	ID        int64           `json:"id"`
	Pair      string          `json:"pair"`
	Side      Side            `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"`
	// Source is the pair variant the trade was fetched from.
	Source string `json:"source"`
}

// Notional is quantity times price
func (t Trade) Notional() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

// Time converts the millisecond timestamp to UTC
func (t Trade) Time() time.Time {
	return time.UnixMilli(t.Timestamp).UTC()
}

// IsBuy reports whether the trade bought the base asset
func (t Trade) IsBuy() bool {
	return t.Side == SideBuy
}

// TradeSummary aggregates the trade history of one asset across pair variants
type TradeSummary struct {
	Asset string
	// Trades is ordered newest first.
	Trades []Trade
	// Pairs lists the variants that returned history, in probe order.
	Pairs []string

	TotalTrades  int
	BuyTrades    int
	SellTrades   int
	BoughtQty    decimal.Decimal
	SoldQty      decimal.Decimal
	BuyNotional  decimal.Decimal
	SellNotional decimal.Decimal
	AvgBuyPrice  decimal.Decimal
	AvgSellPrice decimal.Decimal
	NetPosition  decimal.Decimal
}

// Recent returns at most n of the newest trades for display
func (s *TradeSummary) Recent(n int) []Trade {
	if n < 0 || n >= len(s.Trades) {
		return s.Trades
	}
	return s.Trades[:n]
}

// RealizedPnL is sell notional minus the cost basis of the sold quantity
func (s *TradeSummary) RealizedPnL() decimal.Decimal {
	return s.SellNotional.Sub(s.SoldQty.Mul(s.AvgBuyPrice))
}
