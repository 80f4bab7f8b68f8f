package service

import (
	"sort"
	"sync"
	"time"
)

const defaultMaxSamples = 500

// QueryMonitor tracks latency and cache effectiveness of the total-value query
type QueryMonitor struct {
	mu            sync.RWMutex
	cachedTimes   []time.Duration
	liveTimes     []time.Duration
	cacheHits     int64
	cacheMisses   int64
	failures      int64
	slowQueries   int64
	slowThreshold time.Duration
	maxSamples    int
}

// QueryStats contains query statistics
type QueryStats struct {
	TotalQueries    int64   `json:"total_queries"`
	CacheHits       int64   `json:"cache_hits"`
	CacheMisses     int64   `json:"cache_misses"`
	Failures        int64   `json:"failures"`
	SlowQueries     int64   `json:"slow_queries"`
	CacheHitRate    float64 `json:"cache_hit_rate"` // Percentage
	AvgCachedMs     float64 `json:"avg_cached_ms"`
	AvgLiveMs       float64 `json:"avg_live_ms"`
	P95LiveMs       float64 `json:"p95_live_ms"`
	SlowThresholdMs int64   `json:"slow_threshold_ms"`
}

// NewQueryMonitor creates a monitor counting queries slower than slowThreshold
func NewQueryMonitor(slowThreshold time.Duration) *QueryMonitor {
	return &QueryMonitor{
		slowThreshold: slowThreshold,
		maxSamples:    defaultMaxSamples,
	}
}

// Record records one answered query
func (m *QueryMonitor) Record(duration time.Duration, cached bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cached {
		m.cacheHits++
		m.cachedTimes = appendSample(m.cachedTimes, duration, m.maxSamples)
	} else {
		m.cacheMisses++
		m.liveTimes = appendSample(m.liveTimes, duration, m.maxSamples)
	}

	if m.slowThreshold > 0 && duration > m.slowThreshold {
		m.slowQueries++
	}
}

// RecordFailure counts a query that returned an error
func (m *QueryMonitor) RecordFailure() {
	m.mu.Lock()
	m.failures++
	m.mu.Unlock()
}

func appendSample(samples []time.Duration, d time.Duration, max int) []time.Duration {
	samples = append(samples, d)
	if len(samples) > max {
		samples = samples[len(samples)-max:]
	}
	return samples
}

// Stats returns current statistics
func (m *QueryMonitor) Stats() QueryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := QueryStats{
		TotalQueries:    m.cacheHits + m.cacheMisses,
		CacheHits:       m.cacheHits,
		CacheMisses:     m.cacheMisses,
		Failures:        m.failures,
		SlowQueries:     m.slowQueries,
		AvgCachedMs:     averageMs(m.cachedTimes),
		AvgLiveMs:       averageMs(m.liveTimes),
		SlowThresholdMs: m.slowThreshold.Milliseconds(),
	}
	if stats.TotalQueries > 0 {
		stats.CacheHitRate = float64(m.cacheHits) / float64(stats.TotalQueries) * 100
	}

	if len(m.liveTimes) > 0 {
		sorted := append([]time.Duration(nil), m.liveTimes...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		idx := int(float64(len(sorted)) * 0.95)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		stats.P95LiveMs = float64(sorted[idx].Milliseconds())
	}

	return stats
}

func averageMs(samples []time.Duration) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range samples {
		total += d
	}
	return float64(total.Milliseconds()) / float64(len(samples))
}

// Reset clears all counters
func (m *QueryMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cachedTimes = nil
	m.liveTimes = nil
	m.cacheHits = 0
	m.cacheMisses = 0
	m.failures = 0
	m.slowQueries = 0
}
