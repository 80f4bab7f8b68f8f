package service

import (
	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/models"
)

// PriceLookup is the result of asking for an asset's current price
type PriceLookup struct {
	Price decimal.Decimal
	// Err is set when the lookup failed; the valuer then uses a price of zero.
	Err error
}

// PositionValuer turns a balance and its trade summary into an AssetPosition
type PositionValuer struct {
	stable map[string]struct{}
}

// NewPositionValuer creates a valuer pinning stableAssets at a price of one
func NewPositionValuer(stableAssets []string) *PositionValuer {
	stable := make(map[string]struct{}, len(stableAssets))
	for _, a := range stableAssets {
		stable[a] = struct{}{}
	}
	return &PositionValuer{stable: stable}
}

// IsStable reports whether asset bypasses pricing and trade aggregation
func (v *PositionValuer) IsStable(asset string) bool {
	_, ok := v.stable[asset]
	return ok
}

// Value values one balance. summary may be nil. ok is false for a zero balance,
// which must not appear in any output.
func (v *PositionValuer) Value(balance models.Balance, summary *models.TradeSummary, lookup PriceLookup) (models.AssetPosition, bool) {
	qty := balance.Total()
	if qty.IsZero() {
		return models.AssetPosition{}, false
	}

	if v.IsStable(balance.Asset) {
		one := decimal.NewFromInt(1)
		return models.AssetPosition{
			Asset:          balance.Asset,
			Quantity:       qty,
			AvgCost:        one,
			Price:          one,
			MarketValue:    qty,
			UnrealizedPnL:  decimal.Zero,
			RealizedPnL:    decimal.Zero,
			PriceAvailable: true,
		}, true
	}

	price := lookup.Price
	if lookup.Err != nil {
		price = decimal.Zero
	}

	avgBuy, net, realized := decimal.Zero, decimal.Zero, decimal.Zero
	if summary != nil {
		avgBuy = summary.AvgBuyPrice
		net = summary.NetPosition
		realized = summary.RealizedPnL()
	}

	marketValue := qty.Mul(price)
	return models.AssetPosition{
		Asset:          balance.Asset,
		Quantity:       qty,
		AvgCost:        avgBuy,
		Price:          price,
		MarketValue:    marketValue,
		UnrealizedPnL:  marketValue.Sub(net.Mul(avgBuy)),
		RealizedPnL:    realized,
		PriceAvailable: lookup.Err == nil,
	}, true
}
