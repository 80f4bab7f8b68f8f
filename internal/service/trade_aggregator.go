package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
)

// TradeSource returns the account's fills on one pair
type TradeSource interface {
	Trades(ctx context.Context, pair string) ([]models.Trade, error)
}

// PairFetch is the outcome of fetching one pair variant
type PairFetch struct {
	Pair   string
	Trades []models.Trade
	// NotTraded is set when the exchange does not list the pair.
	NotTraded bool
}

// TradeAggregator merges an asset's history across its pair variants
type TradeAggregator struct {
	source TradeSource
	logger *logging.Logger
}

// NewTradeAggregator creates a new trade aggregator
func NewTradeAggregator(source TradeSource, logger *logging.Logger) *TradeAggregator {
	return &TradeAggregator{
		source: source,
		logger: logger.WithField("component", "trade_aggregator"),
	}
}

// BaseAsset strips one known quote suffix from symbol, longest suffix first.
// A symbol that is nothing but a suffix is returned unchanged.
func BaseAsset(symbol string, quoteSuffixes []string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	suffixes := append([]string(nil), quoteSuffixes...)
	sort.SliceStable(suffixes, func(i, j int) bool { return len(suffixes[i]) > len(suffixes[j]) })

	for _, suffix := range suffixes {
		if len(symbol) > len(suffix) && strings.HasSuffix(symbol, suffix) {
			return strings.TrimSuffix(symbol, suffix)
		}
	}
	return symbol
}

// CandidatePairs builds base+quote for each quote, in order, skipping base==quote and duplicates
func CandidatePairs(base string, quotes []string) []string {
	seen := make(map[string]struct{}, len(quotes))
	pairs := make([]string, 0, len(quotes))
	for _, quote := range quotes {
		if quote == base {
			continue
		}
		pair := base + quote
		if _, ok := seen[pair]; ok {
			continue
		}
		seen[pair] = struct{}{}
		pairs = append(pairs, pair)
	}
	return pairs
}

// Aggregate resolves symbol to its base asset and summarizes its history across quotes
func (a *TradeAggregator) Aggregate(ctx context.Context, symbol string, quoteSuffixes, quotes []string) (*models.TradeSummary, error) {
	base := BaseAsset(symbol, quoteSuffixes)
	return a.AggregatePairs(ctx, base, CandidatePairs(base, quotes))
}

// AggregatePairs fetches pairs in order and summarizes the merged history of asset
func (a *TradeAggregator) AggregatePairs(ctx context.Context, asset string, pairs []string) (*models.TradeSummary, error) {
	fetches, err := a.FetchPairs(ctx, pairs)
	if err != nil {
		return nil, err
	}
	return Summarize(asset, fetches), nil
}

// FetchPairs fetches each pair sequentially. Pairs the exchange does not list
// are reported as NotTraded; any other failure aborts the whole fetch.
func (a *TradeAggregator) FetchPairs(ctx context.Context, pairs []string) ([]PairFetch, error) {
	fetches := make([]PairFetch, 0, len(pairs))
	for _, pair := range pairs {
		trades, err := a.source.Trades(ctx, pair)
		if err != nil {
			if apperrors.IsInvalidSymbol(err) {
				a.logger.WithField("pair", pair).Debug("pair not traded")
				fetches = append(fetches, PairFetch{Pair: pair, NotTraded: true})
				continue
			}
			return nil, fmt.Errorf("failed to fetch trades for %s: %w", pair, err)
		}

		tagged := make([]models.Trade, len(trades))
		for i, t := range trades {
			t.Source = pair
			tagged[i] = t
		}
		fetches = append(fetches, PairFetch{Pair: pair, Trades: tagged})
	}
	return fetches, nil
}

// MergeTrades concatenates fetches in order and sorts newest first, keeping fetch order on ties
func MergeTrades(fetches []PairFetch) []models.Trade {
	var merged []models.Trade
	for _, f := range fetches {
		merged = append(merged, f.Trades...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp > merged[j].Timestamp
	})
	return merged
}

// Summarize derives counts, volumes and average prices from the merged history
func Summarize(asset string, fetches []PairFetch) *models.TradeSummary {
	summary := &models.TradeSummary{
		Asset:        asset,
		Trades:       MergeTrades(fetches),
		BoughtQty:    decimal.Zero,
		SoldQty:      decimal.Zero,
		BuyNotional:  decimal.Zero,
		SellNotional: decimal.Zero,
		AvgBuyPrice:  decimal.Zero,
		AvgSellPrice: decimal.Zero,
		NetPosition:  decimal.Zero,
	}

	for _, f := range fetches {
		if len(f.Trades) > 0 {
			summary.Pairs = append(summary.Pairs, f.Pair)
		}
	}

	for _, t := range summary.Trades {
		if t.IsBuy() {
			summary.BuyTrades++
			summary.BoughtQty = summary.BoughtQty.Add(t.Quantity)
			summary.BuyNotional = summary.BuyNotional.Add(t.Notional())
		} else {
			summary.SellTrades++
			summary.SoldQty = summary.SoldQty.Add(t.Quantity)
			summary.SellNotional = summary.SellNotional.Add(t.Notional())
		}
	}

	summary.TotalTrades = len(summary.Trades)
	summary.AvgBuyPrice = weightedAverage(summary.BuyNotional, summary.BoughtQty)
	summary.AvgSellPrice = weightedAverage(summary.SellNotional, summary.SoldQty)
	summary.NetPosition = summary.BoughtQty.Sub(summary.SoldQty)

	return summary
}

func weightedAverage(notional, qty decimal.Decimal) decimal.Decimal {
	if qty.IsZero() {
		return decimal.Zero
	}
	return notional.Div(qty)
}
