package adapter

import (
	"sync"
	"time"
)

// SourceHealth represents the health of an upstream data source
type SourceHealth struct {
	Name             string        `json:"name"`
	TotalRequests    int64         `json:"totalRequests"`
	SuccessfulReqs   int64         `json:"successfulRequests"`
	FailedReqs       int64         `json:"failedRequests"`
	SuccessRate      float64       `json:"successRate"`
	AverageLatency   time.Duration `json:"averageLatency"`
	LastSuccess      time.Time     `json:"lastSuccess"`
	LastFailure      time.Time     `json:"lastFailure"`
	LastError        string        `json:"lastError,omitempty"`
	ConsecutiveFails int           `json:"consecutiveFails"`
	IsHealthy        bool          `json:"isHealthy"`
}

// healthTracker records request outcomes against an upstream
type healthTracker struct {
	mu sync.RWMutex

	name             string
	totalRequests    int64
	successfulReqs   int64
	failedReqs       int64
	totalLatency     time.Duration
	lastSuccess      time.Time
	lastFailure      time.Time
	lastError        string
	consecutiveFails int

	maxConsecutiveFails int
	minSuccessRate      float64
}

func newHealthTracker(name string) *healthTracker {
	return &healthTracker{
		name:                name,
		maxConsecutiveFails: 3,
		minSuccessRate:      0.5,
	}
}

func (h *healthTracker) recordSuccess(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalRequests++
	h.successfulReqs++
	h.totalLatency += d
	h.lastSuccess = time.Now()
	h.consecutiveFails = 0
}

func (h *healthTracker) recordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalRequests++
	h.failedReqs++
	h.lastFailure = time.Now()
	h.consecutiveFails++
	if err != nil {
		h.lastError = err.Error()
	}
}

func (h *healthTracker) snapshot() SourceHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health := SourceHealth{
		Name:             h.name,
		TotalRequests:    h.totalRequests,
		SuccessfulReqs:   h.successfulReqs,
		FailedReqs:       h.failedReqs,
		LastSuccess:      h.lastSuccess,
		LastFailure:      h.lastFailure,
		LastError:        h.lastError,
		ConsecutiveFails: h.consecutiveFails,
		SuccessRate:      1,
	}
	if h.totalRequests > 0 {
		health.SuccessRate = float64(h.successfulReqs) / float64(h.totalRequests)
	}
	if h.successfulReqs > 0 {
		health.AverageLatency = h.totalLatency / time.Duration(h.successfulReqs)
	}
	health.IsHealthy = h.consecutiveFails < h.maxConsecutiveFails &&
		(h.totalRequests < 10 || health.SuccessRate >= h.minSuccessRate)

	return health
}
