package service

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

var hundred = decimal.NewFromInt(100)

// Compose sums market values and orders positions by value, largest first.
// Percentages are zero for every entry when the total is not positive.
func Compose(positions []models.AssetPosition) models.Composition {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.MarketValue)
	}

	ordered := append([]models.AssetPosition(nil), positions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].MarketValue.GreaterThan(ordered[j].MarketValue)
	})

	entries := make([]models.CompositionEntry, 0, len(ordered))
	for _, p := range ordered {
		pct := decimal.Zero
		if total.IsPositive() {
			pct = p.MarketValue.Div(total).Mul(hundred)
		}
		entries = append(entries, models.CompositionEntry{
			Symbol:     p.Asset,
			Value:      p.MarketValue,
			Percentage: pct,
		})
	}

	return models.Composition{Entries: entries, Total: total}
}

// ToTotalList converts a composition to the total-value query payload
func ToTotalList(c models.Composition) *types.TotalList {
	items := make([]types.TotalItem, 0, len(c.Entries))
	for _, e := range c.Entries {
		items = append(items, types.TotalItem{
			Symbol:     e.Symbol,
			ValueUSD:   e.Value,
			Percentage: e.Percentage,
		})
	}
	return &types.TotalList{Items: items}
}
