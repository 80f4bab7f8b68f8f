package service

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/models"
)

func TestBaseAsset(t *testing.T) {
	suffixes := []string{"USDT", "USDC", "BNB"}

	tests := []struct {
		input string
		want  string
	}{
		{"BTCUSDT", "BTC"},
		{"ethusdc", "ETH"},
		{"  SOLBNB ", "SOL"},
		{"BTC", "BTC"},
		{"USDT", "USDT"},
		{"BNBUSDT", "BNB"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, BaseAsset(tt.input, suffixes))
		})
	}
}

func TestCandidatePairs(t *testing.T) {
	assert.Equal(t,
		[]string{"BTCUSDT", "BTCUSDC", "BTCETH"},
		CandidatePairs("BTC", []string{"USDT", "USDC", "BTC", "ETH", "USDT"}))
	assert.Empty(t, CandidatePairs("USDT", []string{"USDT"}))
}

func TestAggregate_WorkedExample(t *testing.T) {
	ex := newFakeExchange()
	ex.trades["BTCUSDT"] = []models.Trade{
		trade(1, "BTCUSDT", models.SideBuy, "1.0", "100", 1000),
		trade(2, "BTCUSDT", models.SideBuy, "1.0", "200", 2000),
		trade(3, "BTCUSDT", models.SideSell, "1.0", "150", 3000),
	}

	agg := NewTradeAggregator(ex, testLogger())
	summary, err := agg.Aggregate(context.Background(), "BTCUSDT", []string{"USDT", "USDC", "BNB"}, []string{"USDT", "USDC", "BTC", "ETH"})
	require.NoError(t, err)

	assert.Equal(t, "BTC", summary.Asset)
	assert.Equal(t, []string{"BTCUSDT", "BTCUSDC", "BTCETH"}, ex.tradeCalls)
	assert.Equal(t, []string{"BTCUSDT"}, summary.Pairs)
	assert.Equal(t, 3, summary.TotalTrades)
	assert.Equal(t, 2, summary.BuyTrades)
	assert.Equal(t, 1, summary.SellTrades)
	assert.True(t, summary.AvgBuyPrice.Equal(d("150")), "avg buy %s", summary.AvgBuyPrice)
	assert.True(t, summary.BoughtQty.Equal(d("2")))
	assert.True(t, summary.SoldQty.Equal(d("1")))
	assert.True(t, summary.NetPosition.Equal(d("1")))
	assert.True(t, summary.SellNotional.Equal(d("150")))
	assert.True(t, summary.RealizedPnL().IsZero())

	// newest first
	assert.Equal(t, int64(3), summary.Trades[0].ID)
	assert.Equal(t, "BTCUSDT", summary.Trades[0].Source)
}

func TestAggregate_MergesAcrossPairs(t *testing.T) {
	ex := newFakeExchange()
	ex.trades["ETHUSDT"] = []models.Trade{trade(1, "ETHUSDT", models.SideBuy, "1", "2000", 100)}
	ex.trades["ETHBTC"] = []models.Trade{trade(7, "ETHBTC", models.SideSell, "0.5", "0.05", 300)}
	ex.trades["ETHUSDC"] = []models.Trade{trade(4, "ETHUSDC", models.SideBuy, "2", "2100", 200)}

	agg := NewTradeAggregator(ex, testLogger())
	summary, err := agg.Aggregate(context.Background(), "ETH", []string{"USDT"}, []string{"USDT", "USDC", "BTC", "ETH"})
	require.NoError(t, err)

	require.Len(t, summary.Trades, 3)
	assert.Equal(t, []int64{7, 4, 1}, []int64{summary.Trades[0].ID, summary.Trades[1].ID, summary.Trades[2].ID})
	assert.Equal(t, []string{"ETHUSDT", "ETHUSDC", "ETHBTC"}, summary.Pairs)
	assert.True(t, summary.NetPosition.Equal(d("2.5")))
}

func TestAggregate_NoBuysHasZeroAverage(t *testing.T) {
	ex := newFakeExchange()
	ex.trades["XRPUSDT"] = []models.Trade{trade(1, "XRPUSDT", models.SideSell, "10", "0.5", 1)}

	summary, err := NewTradeAggregator(ex, testLogger()).AggregatePairs(context.Background(), "XRP", []string{"XRPUSDT"})
	require.NoError(t, err)
	assert.True(t, summary.AvgBuyPrice.IsZero())
	assert.True(t, summary.NetPosition.Equal(d("-10")))
}

func TestFetchPairs_UnexpectedErrorPropagates(t *testing.T) {
	ex := newFakeExchange()
	ex.trades["BTCUSDT"] = nil
	ex.tradeErrs["BTCUSDC"] = apperrors.NewUpstreamUnavailableError("binance", errors.New("timeout"))

	_, err := NewTradeAggregator(ex, testLogger()).FetchPairs(context.Background(), []string{"BTCUSDT", "BTCUSDC", "BTCETH"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "BTCUSDC")
	assert.Equal(t, []string{"BTCUSDT", "BTCUSDC"}, ex.tradeCalls)
}

func TestFetchPairs_UnlistedPairsAreNotTraded(t *testing.T) {
	ex := newFakeExchange()
	ex.trades["BTCUSDT"] = []models.Trade{}

	fetches, err := NewTradeAggregator(ex, testLogger()).FetchPairs(context.Background(), []string{"BTCUSDT", "BTCXYZ"})
	require.NoError(t, err)
	require.Len(t, fetches, 2)
	assert.False(t, fetches[0].NotTraded)
	assert.True(t, fetches[1].NotTraded)
}

func TestMergeTrades_TiesKeepFetchOrder(t *testing.T) {
	merged := MergeTrades([]PairFetch{
		{Pair: "A", Trades: []models.Trade{{ID: 1, Timestamp: 5}, {ID: 2, Timestamp: 9}}},
		{Pair: "B", Trades: []models.Trade{{ID: 3, Timestamp: 5}}},
	})
	ids := make([]int64, len(merged))
	for i, tr := range merged {
		ids[i] = tr.ID
	}
	assert.Equal(t, []int64{2, 1, 3}, ids)
}

func TestTradeSummary_Recent(t *testing.T) {
	s := &models.TradeSummary{Trades: make([]models.Trade, 30)}
	assert.Len(t, s.Recent(20), 20)
	assert.Len(t, s.Recent(50), 30)
}

// genTrades generates fills with small positive quantities and prices
func genTrades() gopter.Gen {
	return gen.SliceOf(gopter.CombineGens(
		gen.Bool(),
		gen.IntRange(1, 100000),
		gen.IntRange(1, 1000000),
		gen.Int64Range(1, 1<<40),
	).Map(func(v []interface{}) models.Trade {
		side := models.SideSell
		if v[0].(bool) {
			side = models.SideBuy
		}
		return models.Trade{
			Pair:      "BTCUSDT",
			Side:      side,
			Quantity:  decimal.New(int64(v[1].(int)), -3),
			Price:     decimal.New(int64(v[2].(int)), -2),
			Timestamp: v[3].(int64),
		}
	}))
}

func TestSummarize_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("net position is bought minus sold", prop.ForAll(
		func(trades []models.Trade) bool {
			s := Summarize("BTC", []PairFetch{{Pair: "BTCUSDT", Trades: trades}})
			return s.NetPosition.Equal(s.BoughtQty.Sub(s.SoldQty))
		},
		genTrades(),
	))

	properties.Property("avg buy price times bought qty is buy notional", prop.ForAll(
		func(trades []models.Trade) bool {
			s := Summarize("BTC", []PairFetch{{Pair: "BTCUSDT", Trades: trades}})
			if s.BoughtQty.IsZero() {
				return s.AvgBuyPrice.IsZero()
			}
			diff := s.AvgBuyPrice.Mul(s.BoughtQty).Sub(s.BuyNotional).Abs()
			return diff.LessThan(d("0.0001"))
		},
		genTrades(),
	))

	properties.Property("counts add up and history is newest first", prop.ForAll(
		func(trades []models.Trade) bool {
			s := Summarize("BTC", []PairFetch{{Pair: "BTCUSDT", Trades: trades}})
			if s.TotalTrades != len(trades) || s.BuyTrades+s.SellTrades != s.TotalTrades {
				return false
			}
			for i := 1; i < len(s.Trades); i++ {
				if s.Trades[i-1].Timestamp < s.Trades[i].Timestamp {
					return false
				}
			}
			return true
		},
		genTrades(),
	))

	properties.TestingRun(t)
}
