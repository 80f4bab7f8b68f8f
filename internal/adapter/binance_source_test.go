package adapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/ratelimit"
)

func testLogger() *logging.Logger {
	return logging.NewLoggerWithOutput(logging.LevelError, logging.FormatJSON, io.Discard)
}

// newTestSource points a real go-binance client at handler
func newTestSource(t *testing.T, handler http.HandlerFunc) *BinanceSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := binance.NewClient("key", "secret")
	client.BaseURL = srv.URL
	client.HTTPClient = srv.Client()

	return NewBinanceSourceWithClient(client, nil, testLogger())
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestBinanceSource_Trades(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/myTrades", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		writeJSON(w, http.StatusOK, `[
			{"id":1,"symbol":"ETHUSDT","price":"100.5","qty":"2","quoteQty":"201","time":1700000000000,"isBuyer":true},
			{"id":2,"symbol":"ETHUSDT","price":"150","qty":"0.5","quoteQty":"75","time":1700000100000,"isBuyer":false}
		]`)
	})

	trades, err := src.Trades(context.Background(), "ethusdt")
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, models.SideBuy, trades[0].Side)
	assert.True(t, decimal.RequireFromString("100.5").Equal(trades[0].Price))
	assert.True(t, decimal.NewFromInt(2).Equal(trades[0].Quantity))
	assert.Equal(t, "ETHUSDT", trades[0].Source)
	assert.Equal(t, int64(1700000000000), trades[0].Timestamp)
	assert.Equal(t, models.SideSell, trades[1].Side)
	assert.Equal(t, int64(1), src.Health().SuccessfulReqs)
}

func TestBinanceSource_InvalidSymbol(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"code":-1121,"msg":"Invalid symbol."}`)
	})

	_, err := src.Trades(context.Background(), "ZROBTC")
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidSymbol(err))

	health := src.Health()
	assert.Equal(t, int64(0), health.FailedReqs)
	assert.True(t, health.IsHealthy)
}

func TestBinanceSource_OtherAPIErrorIsUpstream(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, `{"code":-1003,"msg":"Too many requests."}`)
	})

	_, err := src.Trades(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.False(t, apperrors.IsInvalidSymbol(err))
	assert.True(t, errors.Is(err, apperrors.ErrUpstreamUnavailable))
	assert.Equal(t, int64(1), src.Health().FailedReqs)
}

func TestBinanceSource_RejectsMalformedTrade(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"non numeric price", `[{"id":1,"symbol":"BTCUSDT","price":"abc","qty":"1","time":1700000000000,"isBuyer":true}]`},
		{"negative quantity", `[{"id":1,"symbol":"BTCUSDT","price":"1","qty":"-1","time":1700000000000,"isBuyer":true}]`},
		{"missing time", `[{"id":1,"symbol":"BTCUSDT","price":"1","qty":"1","time":0,"isBuyer":true}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tt.body)
			})

			_, err := src.Trades(context.Background(), "BTCUSDT")
			require.Error(t, err)
			assert.Equal(t, "MALFORMED_RECORD", apperrors.Categorize(err).Code)
		})
	}
}

func TestBinanceSource_Balances(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/account", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"balances":[
			{"asset":"BTC","free":"0.5","locked":"0.1"},
			{"asset":"USDT","free":"1000","locked":"0"},
			{"asset":"DOGE","free":"0","locked":"0"}
		]}`)
	})

	balances, err := src.Balances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 3)
	assert.Equal(t, "BTC", balances[0].Asset)
	assert.True(t, decimal.RequireFromString("0.6").Equal(balances[0].Total()))
	assert.True(t, balances[2].IsZero())
}

func TestBinanceSource_Price(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"symbol":"BTCUSDT","price":"50000.00"}`)
	})

	price, err := src.Price(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(50000).Equal(price))
}

func TestBinanceSource_SymbolsAndOpenOrders(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/exchangeInfo":
			writeJSON(w, http.StatusOK, `{"symbols":[
				{"symbol":"ETHUSDT","status":"TRADING","baseAsset":"ETH","quoteAsset":"USDT"},
				{"symbol":"LUNAUSDT","status":"BREAK","baseAsset":"LUNA","quoteAsset":"USDT"}
			]}`)
		case "/api/v3/openOrders":
			writeJSON(w, http.StatusOK, `[{"symbol":"ETHUSDT","orderId":7,"price":"2000","origQty":"0.3","status":"NEW","type":"LIMIT","side":"BUY"}]`)
		default:
			http.NotFound(w, r)
		}
	})

	symbols, err := src.Symbols(context.Background())
	require.NoError(t, err)
	require.Len(t, symbols, 2)
	assert.True(t, symbols[0].IsTrading())
	assert.False(t, symbols[1].IsTrading())

	orders, err := src.OpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.SideBuy, orders[0].Side)
	assert.Equal(t, int64(7), orders[0].OrderID)
	assert.True(t, decimal.RequireFromString("0.3").Equal(orders[0].Quantity))
}

type recordingBudget struct {
	weights []int
	err     error
}

func (b *recordingBudget) Wait(ctx context.Context, weight int) error {
	b.weights = append(b.weights, weight)
	return b.err
}

func TestBinanceSource_ChargesRequestWeight(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"symbol":"BTCUSDT","price":"50000"}`)
	})
	budget := &recordingBudget{}
	src.WithWeightBudget(budget)

	_, err := src.Price(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, []int{ratelimit.WeightTickerPrice}, budget.weights)
}

func TestBinanceSource_ExhaustedBudgetIsUpstream(t *testing.T) {
	hits := 0
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		writeJSON(w, http.StatusOK, `[]`)
	})
	src.WithWeightBudget(&recordingBudget{err: ratelimit.ErrBudgetExhausted})

	_, err := src.Trades(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	assert.Zero(t, hits)
}

func TestBinanceSource_BudgetStoreDownDoesNotBlock(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[]`)
	})
	src.WithWeightBudget(&recordingBudget{err: errors.New("dial tcp: connection refused")})

	trades, err := src.Trades(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Empty(t, trades)
}
