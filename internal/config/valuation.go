package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValuationConfig controls which markets are probed and how assets are valued.
type ValuationConfig struct {
	// QuoteSuffixes are stripped from a requested symbol to find its base asset.
	QuoteSuffixes []string `yaml:"quote_suffixes"`
	// ProbeQuotes are the quotes tried when gathering an asset's trade history.
	ProbeQuotes []string `yaml:"probe_quotes"`
	// CostBasisQuotes are the quotes whose buy trades feed the wallet cost basis.
	CostBasisQuotes []string `yaml:"cost_basis_quotes"`
	PriceQuote      string   `yaml:"price_quote"`
	StableAssets    []string `yaml:"stable_assets"`
	// ActivityExcluded assets are left out of the all-holdings trade activity view.
	ActivityExcluded []string `yaml:"activity_excluded"`
	WatchList        []string `yaml:"watch_list"`

	RecentTrades       int `yaml:"recent_trades"`
	LastTradesLimit    int `yaml:"last_trades_limit"`
	ActivityAssetLimit int `yaml:"activity_asset_limit"`
}

// DefaultValuationConfig returns the built-in valuation settings
func DefaultValuationConfig() ValuationConfig {
	return ValuationConfig{
		QuoteSuffixes:      []string{"USDT", "USDC", "BNB"},
		ProbeQuotes:        []string{"USDT", "USDC", "BTC", "ETH"},
		CostBasisQuotes:    []string{"USDT", "USDC"},
		PriceQuote:         "USDT",
		StableAssets:       []string{"BUSD", "USDT"},
		ActivityExcluded:   []string{"USDT", "USDC"},
		WatchList:          []string{"ETHUSDT", "AVAXUSDT", "USDCUSDT", "ZROUSDT", "EURUSDT"},
		RecentTrades:       20,
		LastTradesLimit:    50,
		ActivityAssetLimit: 10,
	}
}

// LoadValuationConfig reads overrides from a YAML file. An empty path yields the defaults.
func LoadValuationConfig(path string) (ValuationConfig, error) {
	cfg := DefaultValuationConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read valuation config %s: %w", path, err)
	}

	var overrides ValuationConfig
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return cfg, fmt.Errorf("failed to parse valuation config %s: %w", path, err)
	}

	cfg.merge(overrides)
	return cfg, nil
}

func (c *ValuationConfig) merge(o ValuationConfig) {
	mergeList(&c.QuoteSuffixes, o.QuoteSuffixes)
	mergeList(&c.ProbeQuotes, o.ProbeQuotes)
	mergeList(&c.CostBasisQuotes, o.CostBasisQuotes)
	mergeList(&c.StableAssets, o.StableAssets)
	mergeList(&c.ActivityExcluded, o.ActivityExcluded)
	mergeList(&c.WatchList, o.WatchList)

	if o.PriceQuote != "" {
		c.PriceQuote = strings.ToUpper(o.PriceQuote)
	}
	if o.RecentTrades > 0 {
		c.RecentTrades = o.RecentTrades
	}
	if o.LastTradesLimit > 0 {
		c.LastTradesLimit = o.LastTradesLimit
	}
	if o.ActivityAssetLimit > 0 {
		c.ActivityAssetLimit = o.ActivityAssetLimit
	}
}

func mergeList(dst *[]string, src []string) {
	if len(src) == 0 {
		return
	}
	out := make([]string, 0, len(src))
	for _, v := range src {
		v = strings.ToUpper(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	*dst = out
}

// IsStable reports whether asset is valued at a fixed price of one.
func (c ValuationConfig) IsStable(asset string) bool {
	return contains(c.StableAssets, asset)
}

// IsActivityExcluded reports whether asset is skipped by the activity view.
func (c ValuationConfig) IsActivityExcluded(asset string) bool {
	return contains(c.ActivityExcluded, asset)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
