// Package ratelimit budgets Binance REST request weight across processes.
package ratelimit

import (
	"sort"
	"sync"
)

// DefaultWeight is charged for endpoints the registry does not know
const DefaultWeight = 20

// Binance spot endpoints used by the portfolio bot
const (
	EndpointAccount      = "account"
	EndpointMyTrades     = "myTrades"
	EndpointTickerPrice  = "ticker/price"
	EndpointExchangeInfo = "exchangeInfo"
	EndpointOpenOrders   = "openOrders"
)

// Request weights published for the spot REST API
const (
	WeightAccount      = 20
	WeightMyTrades     = 20
	WeightTickerPrice  = 2
	WeightExchangeInfo = 20
	// openOrders without a symbol filter
	WeightOpenOrders = 80
)

// WeightRegistry maps endpoints to their request weight.
// It is safe for concurrent use.
type WeightRegistry struct {
	mu            sync.RWMutex
	weights       map[string]int
	defaultWeight int
}

// NewWeightRegistry creates a registry with the published weights. overrides
// replace individual entries; non-positive overrides are ignored.
func NewWeightRegistry(overrides map[string]int) *WeightRegistry {
	weights := map[string]int{
		EndpointAccount:      WeightAccount,
		EndpointMyTrades:     WeightMyTrades,
		EndpointTickerPrice:  WeightTickerPrice,
		EndpointExchangeInfo: WeightExchangeInfo,
		EndpointOpenOrders:   WeightOpenOrders,
	}
	for endpoint, w := range overrides {
		if w > 0 {
			weights[endpoint] = w
		}
	}

	return &WeightRegistry{
		weights:       weights,
		defaultWeight: DefaultWeight,
	}
}

// Weight returns the weight of endpoint, or the default for unknown endpoints
func (r *WeightRegistry) Weight(endpoint string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if w, ok := r.weights[endpoint]; ok {
		return w
	}
	return r.defaultWeight
}

// SetWeight updates one endpoint. Non-positive weights are ignored.
func (r *WeightRegistry) SetWeight(endpoint string, weight int) {
	if weight <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.weights[endpoint] = weight
}

// Endpoints lists the known endpoints, sorted
func (r *WeightRegistry) Endpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	endpoints := make([]string, 0, len(r.weights))
	for e := range r.weights {
		endpoints = append(endpoints, e)
	}
	sort.Strings(endpoints)
	return endpoints
}
