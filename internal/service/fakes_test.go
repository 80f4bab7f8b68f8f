package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/config"
	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelError, logging.FormatJSON)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func trade(id int64, pair string, side models.Side, qty, price string, ts int64) models.Trade {
	return models.Trade{
		ID:        id,
		Pair:      pair,
		Side:      side,
		Quantity:  d(qty),
		Price:     d(price),
		Timestamp: ts,
	}
}

// fakeExchange answers from canned data. Pairs missing from trades and
// prices are reported as unlisted.
type fakeExchange struct {
	mu sync.Mutex

	trades     map[string][]models.Trade
	tradeErrs  map[string]error
	balances   []models.Balance
	balanceErr error
	prices     map[string]decimal.Decimal
	priceErrs  map[string]error
	symbols    []models.SymbolInfo
	orders     []models.OpenOrder

	tradeCalls []string
	priceCalls []string
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		trades:    map[string][]models.Trade{},
		tradeErrs: map[string]error{},
		prices:    map[string]decimal.Decimal{},
		priceErrs: map[string]error{},
	}
}

func (f *fakeExchange) Trades(ctx context.Context, pair string) ([]models.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tradeCalls = append(f.tradeCalls, pair)

	if err, ok := f.tradeErrs[pair]; ok {
		return nil, err
	}
	trades, ok := f.trades[pair]
	if !ok {
		return nil, apperrors.NewInvalidSymbolError(pair, errors.New("Invalid symbol."))
	}
	return append([]models.Trade(nil), trades...), nil
}

func (f *fakeExchange) Balances(ctx context.Context) ([]models.Balance, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return f.balances, nil
}

func (f *fakeExchange) Price(ctx context.Context, pair string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceCalls = append(f.priceCalls, pair)

	if err, ok := f.priceErrs[pair]; ok {
		return decimal.Zero, err
	}
	price, ok := f.prices[pair]
	if !ok {
		return decimal.Zero, apperrors.NewInvalidSymbolError(pair, nil)
	}
	return price, nil
}

func (f *fakeExchange) Symbols(ctx context.Context) ([]models.SymbolInfo, error) {
	return f.symbols, nil
}

func (f *fakeExchange) OpenOrders(ctx context.Context) ([]models.OpenOrder, error) {
	return f.orders, nil
}

// memoryCache is an in-process Cache storing values by reference
type memoryCache struct {
	values map[string]*types.TotalList
	getErr error
	sets   int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]*types.TotalList{}}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if c.getErr != nil {
		return false, c.getErr
	}
	v, ok := c.values[key]
	if !ok {
		return false, nil
	}
	*(dest.(*types.TotalList)) = *v
	return true, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}) error {
	c.sets++
	c.values[key] = value.(*types.TotalList)
	return nil
}

func (c *memoryCache) Invalidate(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.values, k)
	}
	return nil
}

// fakeFetcher returns a canned total or error
type fakeFetcher struct {
	list  *types.TotalList
	err   error
	calls int
}

func (f *fakeFetcher) FetchTotal(ctx context.Context) (*types.TotalList, error) {
	f.calls++
	return f.list, f.err
}

// memoryStore keeps one value per date
type memoryStore struct {
	mu      sync.Mutex
	rows    map[string]decimal.Decimal
	fail    bool
	upserts int
	now     func() time.Time
}

func newMemoryStore(now func() time.Time) *memoryStore {
	return &memoryStore{rows: map[string]decimal.Decimal{}, now: now}
}

func (s *memoryStore) Upsert(ctx context.Context, date time.Time, value decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.fail {
		return false
	}
	s.rows[models.UTCDate(date).Format(models.SnapshotDateLayout)] = value
	return true
}

func (s *memoryStore) Recent(ctx context.Context, days int) ([]models.PortfolioSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := models.UTCDate(s.now()).AddDate(0, 0, -days)
	var out []models.PortfolioSnapshot
	for key, v := range s.rows {
		date, _ := time.Parse(models.SnapshotDateLayout, key)
		if !date.Before(cutoff) {
			out = append(out, models.PortfolioSnapshot{Date: date, TotalUSD: v})
		}
	}
	sortSnapshotsDesc(out)
	return out, nil
}

func sortSnapshotsDesc(s []models.PortfolioSnapshot) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Date.After(s[j-1].Date); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func testValuationConfig() config.ValuationConfig {
	return config.DefaultValuationConfig()
}
