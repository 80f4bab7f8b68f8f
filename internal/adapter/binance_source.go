package adapter

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/portfolio-tracker/internal/config"
	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/ratelimit"
)

// Binance answers -1121 for a pair it does not list.
const codeInvalidSymbol = -1121

// tradeHistoryLimit is the largest page the trade history endpoint returns.
const tradeHistoryLimit = 1000

// BinanceSource is a read-only view of a Binance spot account.
// Every payload is validated into models types before it leaves this type.
type BinanceSource struct {
	client  *binance.Client
	limiter *rate.Limiter
	budget  WeightBudget
	weights *ratelimit.WeightRegistry
	health  *healthTracker
	logger  *logging.Logger
}

// WeightBudget charges request weight shared with other processes using the same key
type WeightBudget interface {
	Wait(ctx context.Context, weight int) error
}

// NewBinanceSource builds a source from exchange credentials
func NewBinanceSource(cfg config.BinanceConfig, logger *logging.Logger) *BinanceSource {
	client := binance.NewClient(cfg.APIKey, cfg.APISecret)
	client.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	perSec := cfg.RequestsPerSec
	if perSec <= 0 {
		perSec = 10
	}

	return NewBinanceSourceWithClient(client, rate.NewLimiter(rate.Limit(perSec), 1), logger)
}

// NewBinanceSourceWithClient wraps an existing client. A nil limiter disables pacing.
func NewBinanceSourceWithClient(client *binance.Client, limiter *rate.Limiter, logger *logging.Logger) *BinanceSource {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &BinanceSource{
		client:  client,
		limiter: limiter,
		weights: ratelimit.NewWeightRegistry(nil),
		health:  newHealthTracker("binance"),
		logger:  logger.WithField("component", "binance_source"),
	}
}

// WithWeightBudget charges every request against budget before it is sent
func (s *BinanceSource) WithWeightBudget(budget WeightBudget) *BinanceSource {
	s.budget = budget
	return s
}

// Health returns request statistics for the exchange
func (s *BinanceSource) Health() SourceHealth {
	return s.health.snapshot()
}

// Balances returns every balance on the spot account, zero balances included
func (s *BinanceSource) Balances(ctx context.Context) ([]models.Balance, error) {
	var account *binance.Account
	err := s.call(ctx, ratelimit.EndpointAccount, "", func(ctx context.Context) (err error) {
		account, err = s.client.NewGetAccountService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	balances := make([]models.Balance, 0, len(account.Balances))
	for _, b := range account.Balances {
		free, err := parseAmount("balance", "free", b.Free)
		if err != nil {
			return nil, err
		}
		locked, err := parseAmount("balance", "locked", b.Locked)
		if err != nil {
			return nil, err
		}
		balances = append(balances, models.Balance{
			Asset:  strings.ToUpper(b.Asset),
			Free:   free,
			Locked: locked,
		})
	}

	return balances, nil
}

// Trades returns the account's fills on pair, tagged with pair as their source
func (s *BinanceSource) Trades(ctx context.Context, pair string) ([]models.Trade, error) {
	pair = strings.ToUpper(pair)

	var raw []*binance.TradeV3
	err := s.call(ctx, ratelimit.EndpointMyTrades, pair, func(ctx context.Context) (err error) {
		raw, err = s.client.NewListTradesService().Symbol(pair).Limit(tradeHistoryLimit).Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	trades := make([]models.Trade, 0, len(raw))
	for _, t := range raw {
		trade, err := convertTrade(t, pair)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	return trades, nil
}

// Price returns the latest traded price of pair
func (s *BinanceSource) Price(ctx context.Context, pair string) (decimal.Decimal, error) {
	pair = strings.ToUpper(pair)

	var prices []*binance.SymbolPrice
	err := s.call(ctx, ratelimit.EndpointTickerPrice, pair, func(ctx context.Context) (err error) {
		prices, err = s.client.NewListPricesService().Symbol(pair).Do(ctx)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	for _, p := range prices {
		if strings.EqualFold(p.Symbol, pair) {
			return parseAmount("ticker", "price", p.Price)
		}
	}

	return decimal.Zero, apperrors.NewUpstreamUnavailableError("binance",
		errors.Errorf("ticker response has no price for %s", pair))
}

// Symbols returns exchange metadata for all listed pairs
func (s *BinanceSource) Symbols(ctx context.Context) ([]models.SymbolInfo, error) {
	var info *binance.ExchangeInfo
	err := s.call(ctx, ratelimit.EndpointExchangeInfo, "", func(ctx context.Context) (err error) {
		info, err = s.client.NewExchangeInfoService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	symbols := make([]models.SymbolInfo, 0, len(info.Symbols))
	for _, sym := range info.Symbols {
		symbols = append(symbols, models.SymbolInfo{
			Symbol:     sym.Symbol,
			BaseAsset:  sym.BaseAsset,
			QuoteAsset: sym.QuoteAsset,
			Status:     sym.Status,
		})
	}

	return symbols, nil
}

// OpenOrders returns resting orders across all pairs
func (s *BinanceSource) OpenOrders(ctx context.Context) ([]models.OpenOrder, error) {
	var raw []*binance.Order
	err := s.call(ctx, ratelimit.EndpointOpenOrders, "", func(ctx context.Context) (err error) {
		raw, err = s.client.NewListOpenOrdersService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	orders := make([]models.OpenOrder, 0, len(raw))
	for _, o := range raw {
		price, err := parseAmount("order", "price", o.Price)
		if err != nil {
			return nil, err
		}
		qty, err := parseAmount("order", "origQty", o.OrigQuantity)
		if err != nil {
			return nil, err
		}
		orders = append(orders, models.OpenOrder{
			OrderID:  o.OrderID,
			Symbol:   o.Symbol,
			Side:     models.Side(o.Side),
			Type:     string(o.Type),
			Price:    price,
			Quantity: qty,
			Status:   string(o.Status),
		})
	}

	return orders, nil
}

// call paces the request, records its outcome and classifies its error
func (s *BinanceSource) call(ctx context.Context, op, symbol string, fn func(context.Context) error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return apperrors.NewUpstreamUnavailableError("binance", errors.Wrapf(err, "%s: rate limiter", op))
	}
	if s.budget != nil {
		if err := s.budget.Wait(ctx, s.weights.Weight(op)); err != nil {
			if errors.Is(err, ratelimit.ErrBudgetExhausted) {
				return apperrors.NewUpstreamUnavailableError("binance", errors.Wrapf(err, "%s: request weight", op))
			}
			// budget store unreachable; the local limiter still applies
			s.logger.WithError(err).Warn("request weight budget unavailable")
		}
	}

	start := time.Now()
	err := fn(ctx)
	if err == nil {
		s.health.recordSuccess(time.Since(start))
		return nil
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeInvalidSymbol {
		// a listing answer, not an outage
		s.health.recordSuccess(time.Since(start))
		return apperrors.NewInvalidSymbolError(symbol, err)
	}

	s.health.recordFailure(err)
	s.logger.WithFields(map[string]interface{}{
		"operation": op,
		"symbol":    symbol,
	}).WithError(err).Warn("binance request failed")

	return apperrors.NewUpstreamUnavailableError("binance", errors.Wrapf(err, "%s %s", op, symbol))
}

func convertTrade(t *binance.TradeV3, source string) (models.Trade, error) {
	price, err := parseAmount("trade", "price", t.Price)
	if err != nil {
		return models.Trade{}, err
	}
	qty, err := parseAmount("trade", "qty", t.Quantity)
	if err != nil {
		return models.Trade{}, err
	}
	if t.Time <= 0 {
		return models.Trade{}, apperrors.NewMalformedRecordError("trade", "time", decimal.NewFromInt(t.Time).String())
	}

	side := models.SideSell
	if t.IsBuyer {
		side = models.SideBuy
	}

	pair := t.Symbol
	if pair == "" {
		pair = source
	}

	return models.Trade{
		ID:        t.ID,
		Pair:      pair,
		Side:      side,
		Quantity:  qty,
		Price:     price,
		Timestamp: t.Time,
		Source:    source,
	}, nil
}

// parseAmount parses a non-negative decimal string from an exchange payload
func parseAmount(kind, field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, apperrors.NewMalformedRecordError(kind, field, value)
	}
	if d.IsNegative() {
		return decimal.Zero, apperrors.NewMalformedRecordError(kind, field, value)
	}
	return d, nil
}
