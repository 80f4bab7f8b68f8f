package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

// ExchangeSource is the read-only exchange surface the valuation engine consumes
type ExchangeSource interface {
	TradeSource
	Balances(ctx context.Context) ([]models.Balance, error)
	Price(ctx context.Context, pair string) (decimal.Decimal, error)
	Symbols(ctx context.Context) ([]models.SymbolInfo, error)
	OpenOrders(ctx context.Context) ([]models.OpenOrder, error)
}

// Cache stores JSON-serializable query results
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Invalidate(ctx context.Context, keys ...string) error
}

// TotalCacheKey holds the last computed total-value payload
const TotalCacheKey = "portfolio:total"

// PnLReport is the profit and loss breakdown of one asset
type PnLReport struct {
	Symbol      string
	Summary     *models.TradeSummary
	BuyCost     decimal.Decimal
	SellRevenue decimal.Decimal
	RealizedPnL decimal.Decimal
	// RealizedPct is realized P&L relative to buy cost, zero without buys.
	RealizedPct decimal.Decimal

	// Set only when a positive net position remains and its price is known.
	HasCurrentValue bool
	Price           decimal.Decimal
	CurrentValue    decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	TotalPnL        decimal.Decimal
}

// PortfolioService answers portfolio questions from live exchange data
type PortfolioService struct {
	source     ExchangeSource
	aggregator *TradeAggregator
	valuer     *PositionValuer
	cfg        config.ValuationConfig
	cache      Cache
	monitor    *QueryMonitor
	logger     *logging.Logger
}

// NewPortfolioService creates a new portfolio service. cache may be nil.
func NewPortfolioService(source ExchangeSource, cfg config.ValuationConfig, cache Cache, logger *logging.Logger) *PortfolioService {
	return &PortfolioService{
		source:     source,
		aggregator: NewTradeAggregator(source, logger),
		valuer:     NewPositionValuer(cfg.StableAssets),
		cfg:        cfg,
		cache:      cache,
		monitor:    NewQueryMonitor(5 * time.Second),
		logger:     logger.WithField("component", "portfolio_service"),
	}
}

// QueryStats reports latency and cache effectiveness of the total-value query
func (s *PortfolioService) QueryStats() QueryStats {
	return s.monitor.Stats()
}

// Settings returns the valuation settings in use
func (s *PortfolioService) Settings() config.ValuationConfig {
	return s.cfg
}

// NormalizeSymbol upper-cases input and appends the price quote when it carries no known quote
func (s *PortfolioService) NormalizeSymbol(input string) string {
	symbol := strings.ToUpper(strings.TrimSpace(input))
	if symbol == "" {
		return ""
	}
	for _, q := range s.knownQuotes() {
		if len(symbol) > len(q) && strings.HasSuffix(symbol, q) {
			return symbol
		}
	}
	return symbol + s.cfg.PriceQuote
}

func (s *PortfolioService) knownQuotes() []string {
	seen := map[string]struct{}{}
	var quotes []string
	for _, list := range [][]string{s.cfg.ProbeQuotes, s.cfg.QuoteSuffixes} {
		for _, q := range list {
			if _, ok := seen[q]; !ok {
				seen[q] = struct{}{}
				quotes = append(quotes, q)
			}
		}
	}
	return quotes
}

// heldBalances returns balances with a positive total, in exchange order
func (s *PortfolioService) heldBalances(ctx context.Context) ([]models.Balance, error) {
	balances, err := s.source.Balances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}
	held := make([]models.Balance, 0, len(balances))
	for _, b := range balances {
		if !b.IsZero() {
			held = append(held, b)
		}
	}
	return held, nil
}

// lookupPrice prices asset against the configured quote. Failures are logged and returned in the lookup.
func (s *PortfolioService) lookupPrice(ctx context.Context, asset string) PriceLookup {
	pair := asset + s.cfg.PriceQuote
	price, err := s.source.Price(ctx, pair)
	if err != nil {
		s.logger.WithFields(map[string]interface{}{
			"asset": asset,
			"pair":  pair,
		}).WithError(err).Warn("price lookup failed, valuing asset at zero")
		return PriceLookup{Err: err}
	}
	return PriceLookup{Price: price}
}

// Composition values every held asset at its current price
func (s *PortfolioService) Composition(ctx context.Context) (models.Composition, error) {
	held, err := s.heldBalances(ctx)
	if err != nil {
		return models.Composition{}, err
	}

	positions := make([]models.AssetPosition, 0, len(held))
	for _, b := range held {
		var lookup PriceLookup
		if !s.valuer.IsStable(b.Asset) {
			lookup = s.lookupPrice(ctx, b.Asset)
		}
		if pos, ok := s.valuer.Value(b, nil, lookup); ok {
			positions = append(positions, pos)
		}
	}

	return Compose(positions), nil
}

// TotalList serves the total-value query, from cache when a fresh copy exists
func (s *PortfolioService) TotalList(ctx context.Context) (*types.TotalList, error) {
	start := time.Now()
	if s.cache != nil {
		var cached types.TotalList
		hit, err := s.cache.Get(ctx, TotalCacheKey, &cached)
		if err != nil {
			s.logger.WithError(err).Warn("total cache read failed")
		} else if hit {
			s.monitor.Record(time.Since(start), true)
			return &cached, nil
		}
	}

	composition, err := s.Composition(ctx)
	if err != nil {
		s.monitor.RecordFailure()
		return nil, err
	}
	list := ToTotalList(composition)
	s.monitor.Record(time.Since(start), false)

	if s.cache != nil {
		if err := s.cache.Set(ctx, TotalCacheKey, list); err != nil {
			s.logger.WithError(err).Warn("total cache write failed")
		}
	}
	return list, nil
}

// Wallet values each held asset with its cost basis from the configured cost-basis quotes
func (s *PortfolioService) Wallet(ctx context.Context) ([]models.AssetPosition, error) {
	held, err := s.heldBalances(ctx)
	if err != nil {
		return nil, err
	}

	positions := make([]models.AssetPosition, 0, len(held))
	for _, b := range held {
		if s.valuer.IsStable(b.Asset) {
			if pos, ok := s.valuer.Value(b, nil, PriceLookup{}); ok {
				positions = append(positions, pos)
			}
			continue
		}

		summary, err := s.aggregator.AggregatePairs(ctx, b.Asset, CandidatePairs(b.Asset, s.cfg.CostBasisQuotes))
		if err != nil {
			// cost basis unknown; still value the holding
			s.logger.WithField("asset", b.Asset).WithError(err).Warn("cost basis unavailable")
			summary = nil
		}

		if pos, ok := s.valuer.Value(b, summary, s.lookupPrice(ctx, b.Asset)); ok {
			positions = append(positions, pos)
		}
	}
	return positions, nil
}

// TradeHistory summarizes symbol's history across the probe quotes
func (s *PortfolioService) TradeHistory(ctx context.Context, symbol string) (*models.TradeSummary, error) {
	return s.aggregator.Aggregate(ctx, symbol, s.cfg.QuoteSuffixes, s.cfg.ProbeQuotes)
}

// TradeActivity summarizes up to the configured number of held assets.
// Assets whose history cannot be fetched are skipped.
func (s *PortfolioService) TradeActivity(ctx context.Context) ([]*models.TradeSummary, error) {
	held, err := s.heldBalances(ctx)
	if err != nil {
		return nil, err
	}

	var assets []string
	for _, b := range held {
		if s.cfg.IsActivityExcluded(b.Asset) {
			continue
		}
		assets = append(assets, b.Asset)
		if len(assets) >= s.cfg.ActivityAssetLimit {
			break
		}
	}

	var summaries []*models.TradeSummary
	for _, asset := range assets {
		summary, err := s.TradeHistory(ctx, asset+s.cfg.PriceQuote)
		if err != nil {
			s.logger.WithField("asset", asset).WithError(err).Warn("skipping asset in activity summary")
			continue
		}
		if summary.TotalTrades > 0 {
			summaries = append(summaries, summary)
		}
	}
	return summaries, nil
}

// PnL reports realized and, when a position remains, unrealized profit for symbol
func (s *PortfolioService) PnL(ctx context.Context, symbol string) (*PnLReport, error) {
	symbol = s.NormalizeSymbol(symbol)
	summary, err := s.TradeHistory(ctx, symbol)
	if err != nil {
		return nil, err
	}

	report := &PnLReport{
		Symbol:      symbol,
		Summary:     summary,
		BuyCost:     summary.BuyNotional,
		SellRevenue: summary.SellNotional,
		RealizedPnL: summary.RealizedPnL(),
		RealizedPct: decimal.Zero,
	}
	if summary.BuyNotional.IsPositive() {
		report.RealizedPct = report.RealizedPnL.Div(summary.BuyNotional).Mul(hundred)
	}

	if summary.TotalTrades == 0 || !summary.NetPosition.IsPositive() {
		return report, nil
	}

	// Priced against the symbol asked for, not the configured price quote.
	price, err := s.source.Price(ctx, symbol)
	if err != nil {
		s.logger.WithField("pair", symbol).WithError(err).Warn("price lookup failed, showing remaining quantity only")
		return report, nil
	}

	report.HasCurrentValue = true
	report.Price = price
	report.CurrentValue = summary.NetPosition.Mul(price)
	report.UnrealizedPnL = report.CurrentValue.Sub(summary.NetPosition.Mul(summary.AvgBuyPrice))
	report.TotalPnL = report.RealizedPnL.Add(report.UnrealizedPnL)
	return report, nil
}

// LastTrades returns the newest trades across the watch list
func (s *PortfolioService) LastTrades(ctx context.Context) ([]models.Trade, error) {
	fetches, err := s.aggregator.FetchPairs(ctx, s.cfg.WatchList)
	if err != nil {
		return nil, err
	}
	trades := MergeTrades(fetches)
	if len(trades) > s.cfg.LastTradesLimit {
		trades = trades[:s.cfg.LastTradesLimit]
	}
	return trades, nil
}

// TradesBySide lists fills of one side across the account's price-quote pairs, newest first.
// limit <= 0 returns everything.
func (s *PortfolioService) TradesBySide(ctx context.Context, side models.Side, limit int) ([]models.Trade, error) {
	pairs, err := s.tradedPairs(ctx)
	if err != nil {
		return nil, err
	}

	fetches, err := s.aggregator.FetchPairs(ctx, pairs)
	if err != nil {
		return nil, err
	}

	var trades []models.Trade
	for _, t := range MergeTrades(fetches) {
		if t.Side == side {
			trades = append(trades, t)
		}
	}
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return trades, nil
}

// tradedPairs lists listed pairs quoted in the price quote whose base asset
// appears on the account, sorted by symbol.
func (s *PortfolioService) tradedPairs(ctx context.Context) ([]string, error) {
	balances, err := s.source.Balances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}
	onAccount := make(map[string]struct{}, len(balances))
	for _, b := range balances {
		onAccount[b.Asset] = struct{}{}
	}

	symbols, err := s.source.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange symbols: %w", err)
	}

	var pairs []string
	for _, sym := range symbols {
		if sym.QuoteAsset != s.cfg.PriceQuote {
			continue
		}
		if _, ok := onAccount[sym.BaseAsset]; ok {
			pairs = append(pairs, sym.Symbol)
		}
	}
	sort.Strings(pairs)
	return pairs, nil
}

// OpenOrders lists resting orders
func (s *PortfolioService) OpenOrders(ctx context.Context) ([]models.OpenOrder, error) {
	orders, err := s.source.OpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load open orders: %w", err)
	}
	return orders, nil
}
