package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/models"
)

func portfolioExchange() *fakeExchange {
	ex := newFakeExchange()
	ex.balances = []models.Balance{
		{Asset: "USDT", Free: d("1000")},
		{Asset: "BTC", Free: d("0.4"), Locked: d("0.1")},
		{Asset: "DOGE", Free: d("0")},
		{Asset: "ETH", Free: d("2")},
	}
	ex.prices["BTCUSDT"] = d("50000")
	ex.priceErrs["ETHUSDT"] = apperrors.NewUpstreamUnavailableError("binance", errors.New("timeout"))
	return ex
}

func TestPortfolioService_NormalizeSymbol(t *testing.T) {
	svc := NewPortfolioService(newFakeExchange(), testValuationConfig(), nil, testLogger())

	assert.Equal(t, "BTCUSDT", svc.NormalizeSymbol("btc"))
	assert.Equal(t, "ETHUSDT", svc.NormalizeSymbol("ETH"))
	assert.Equal(t, "ETHBTC", svc.NormalizeSymbol("ethbtc"))
	assert.Equal(t, "SOLUSDC", svc.NormalizeSymbol(" SOLUSDC "))
	assert.Equal(t, "", svc.NormalizeSymbol("  "))
}

func TestPortfolioService_CompositionSurvivesFailedPrice(t *testing.T) {
	ex := portfolioExchange()
	svc := NewPortfolioService(ex, testValuationConfig(), nil, testLogger())

	c, err := svc.Composition(context.Background())
	require.NoError(t, err)

	require.Len(t, c.Entries, 3)
	assert.Equal(t, "BTC", c.Entries[0].Symbol)
	assert.True(t, c.Entries[0].Value.Equal(d("25000")))
	assert.Equal(t, "USDT", c.Entries[1].Symbol)
	assert.Equal(t, "ETH", c.Entries[2].Symbol)
	assert.True(t, c.Entries[2].Value.IsZero())
	assert.True(t, c.Total.Equal(d("26000")))

	// stable assets are never priced and zero balances never appear
	assert.NotContains(t, ex.priceCalls, "USDTUSDT")
	assert.NotContains(t, ex.priceCalls, "DOGEUSDT")
}

func TestPortfolioService_CompositionBalanceFailure(t *testing.T) {
	ex := newFakeExchange()
	ex.balanceErr = apperrors.NewUpstreamUnavailableError("binance", errors.New("dial tcp: refused"))
	svc := NewPortfolioService(ex, testValuationConfig(), nil, testLogger())

	_, err := svc.TotalList(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	assert.Equal(t, int64(1), svc.QueryStats().Failures)
}

func TestPortfolioService_TotalListUsesCache(t *testing.T) {
	ex := portfolioExchange()
	cache := newMemoryCache()
	svc := NewPortfolioService(ex, testValuationConfig(), cache, testLogger())
	ctx := context.Background()

	first, err := svc.TotalList(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	calls := len(ex.priceCalls)
	second, err := svc.TotalList(ctx)
	require.NoError(t, err)
	assert.Equal(t, calls, len(ex.priceCalls), "cached answer must not hit the exchange")
	assert.Equal(t, first.Items, second.Items)

	stats := svc.QueryStats()
	assert.Equal(t, int64(2), stats.TotalQueries)
	assert.Equal(t, int64(1), stats.CacheHits)
}

func TestPortfolioService_TotalListIgnoresCacheErrors(t *testing.T) {
	cache := newMemoryCache()
	cache.getErr = apperrors.NewCacheError("get", errors.New("connection reset"))
	svc := NewPortfolioService(portfolioExchange(), testValuationConfig(), cache, testLogger())

	list, err := svc.TotalList(context.Background())
	require.NoError(t, err)
	assert.True(t, list.Total().Equal(d("26000")))
}

func TestPortfolioService_Wallet(t *testing.T) {
	ex := portfolioExchange()
	ex.trades["BTCUSDT"] = []models.Trade{
		trade(1, "BTCUSDT", models.SideBuy, "0.5", "40000", 10),
	}
	ex.trades["BTCUSDC"] = []models.Trade{}
	ex.tradeErrs["ETHUSDT"] = apperrors.NewUpstreamUnavailableError("binance", errors.New("timeout"))

	svc := NewPortfolioService(ex, testValuationConfig(), nil, testLogger())
	positions, err := svc.Wallet(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 3)

	byAsset := map[string]models.AssetPosition{}
	for _, p := range positions {
		byAsset[p.Asset] = p
	}

	btc := byAsset["BTC"]
	assert.True(t, btc.AvgCost.Equal(d("40000")))
	assert.True(t, btc.UnrealizedPnL.Equal(d("5000")))

	eth := byAsset["ETH"]
	assert.True(t, eth.AvgCost.IsZero())
	assert.False(t, eth.PriceAvailable)

	assert.True(t, byAsset["USDT"].MarketValue.Equal(d("1000")))
	assert.NotContains(t, ex.tradeCalls, "BTCBTC")
}

func TestPortfolioService_PnL(t *testing.T) {
	ex := newFakeExchange()
	ex.trades["BTCUSDT"] = []models.Trade{
		trade(1, "BTCUSDT", models.SideBuy, "1.0", "100", 1000),
		trade(2, "BTCUSDT", models.SideBuy, "1.0", "200", 2000),
		trade(3, "BTCUSDT", models.SideSell, "1.0", "150", 3000),
	}
	ex.prices["BTCUSDT"] = d("180")
	svc := NewPortfolioService(ex, testValuationConfig(), nil, testLogger())

	report, err := svc.PnL(context.Background(), "btc")
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", report.Symbol)
	assert.True(t, report.BuyCost.Equal(d("300")))
	assert.True(t, report.SellRevenue.Equal(d("150")))
	assert.True(t, report.RealizedPnL.IsZero())
	assert.True(t, report.HasCurrentValue)
	assert.True(t, report.CurrentValue.Equal(d("180")))
	assert.True(t, report.UnrealizedPnL.Equal(d("30")))
	assert.True(t, report.TotalPnL.Equal(d("30")))
}

func TestPortfolioService_PnLPricesRequestedPair(t *testing.T) {
	ex := newFakeExchange()
	ex.trades["ETHUSDC"] = []models.Trade{trade(1, "ETHUSDC", models.SideBuy, "2", "2500", 1000)}
	ex.prices["ETHUSDC"] = d("3100")
	ex.prices["ETHUSDT"] = d("3000")
	svc := NewPortfolioService(ex, testValuationConfig(), nil, testLogger())

	report, err := svc.PnL(context.Background(), "ethusdc")
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDC", report.Symbol)
	assert.Equal(t, []string{"ETHUSDC"}, ex.priceCalls)
	assert.True(t, report.HasCurrentValue)
	assert.True(t, report.Price.Equal(d("3100")))
	assert.True(t, report.CurrentValue.Equal(d("6200")))
	assert.True(t, report.UnrealizedPnL.Equal(d("1200")))
}

func TestPortfolioService_PnLWithoutPrice(t *testing.T) {
	ex := newFakeExchange()
	ex.trades["ABCUSDT"] = []models.Trade{trade(1, "ABCUSDT", models.SideBuy, "5", "2", 1)}
	svc := NewPortfolioService(ex, testValuationConfig(), nil, testLogger())

	report, err := svc.PnL(context.Background(), "ABCUSDT")
	require.NoError(t, err)
	assert.False(t, report.HasCurrentValue)
	assert.True(t, report.Summary.NetPosition.Equal(d("5")))
}

func TestPortfolioService_TradeActivity(t *testing.T) {
	ex := newFakeExchange()
	ex.balances = []models.Balance{
		{Asset: "USDT", Free: d("10")},
		{Asset: "BTC", Free: d("1")},
		{Asset: "ETH", Free: d("1")},
		{Asset: "SOL", Free: d("1")},
	}
	ex.trades["BTCUSDT"] = []models.Trade{trade(1, "BTCUSDT", models.SideBuy, "1", "100", 1)}
	ex.tradeErrs["SOLUSDT"] = apperrors.NewUpstreamUnavailableError("binance", errors.New("timeout"))

	svc := NewPortfolioService(ex, testValuationConfig(), nil, testLogger())
	summaries, err := svc.TradeActivity(context.Background())
	require.NoError(t, err)

	require.Len(t, summaries, 1)
	assert.Equal(t, "BTC", summaries[0].Asset)
	assert.NotContains(t, ex.tradeCalls, "USDTUSDC")
}

func TestPortfolioService_LastTradesCapped(t *testing.T) {
	ex := newFakeExchange()
	var trades []models.Trade
	for i := 0; i < 60; i++ {
		trades = append(trades, trade(int64(i), "ETHUSDT", models.SideBuy, "1", "1", int64(i)))
	}
	ex.trades["ETHUSDT"] = trades

	svc := NewPortfolioService(ex, testValuationConfig(), nil, testLogger())
	last, err := svc.LastTrades(context.Background())
	require.NoError(t, err)
	require.Len(t, last, 50)
	assert.Equal(t, int64(59), last[0].ID)
}

func TestPortfolioService_TradesBySide(t *testing.T) {
	ex := newFakeExchange()
	ex.balances = []models.Balance{{Asset: "BTC"}, {Asset: "ETH"}}
	ex.symbols = []models.SymbolInfo{
		{Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT"},
		{Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT"},
		{Symbol: "ETHBTC", BaseAsset: "ETH", QuoteAsset: "BTC"},
		{Symbol: "SOLUSDT", BaseAsset: "SOL", QuoteAsset: "USDT"},
	}
	ex.trades["BTCUSDT"] = []models.Trade{
		trade(1, "BTCUSDT", models.SideBuy, "1", "100", 10),
		trade(2, "BTCUSDT", models.SideSell, "1", "110", 20),
	}
	ex.trades["ETHUSDT"] = []models.Trade{trade(3, "ETHUSDT", models.SideBuy, "1", "10", 30)}

	svc := NewPortfolioService(ex, testValuationConfig(), nil, testLogger())
	buys, err := svc.TradesBySide(context.Background(), models.SideBuy, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, ex.tradeCalls)
	require.Len(t, buys, 2)
	assert.Equal(t, int64(3), buys[0].ID)
	assert.Equal(t, int64(1), buys[1].ID)
}
