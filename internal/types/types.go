// Package types provides the wire types shared by the portfolio bot and the snapshot scheduler.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Monetary values travel as JSON numbers; decimal still accepts quoted input.
	decimal.MarshalJSONWithoutQuotes = true
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// TotalItem is one asset of the total-value query payload
type TotalItem struct {
	Symbol     string          `json:"symbol"`
	ValueUSD   decimal.Decimal `json:"value_usd"`
	Percentage decimal.Decimal `json:"percentage"`
}

// TotalList is the total-value query payload. The portfolio total is the sum of the items.
type TotalList struct {
	Items []TotalItem `json:"items"`
}

// Total sums the item values
func (l TotalList) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range l.Items {
		total = total.Add(item.ValueUSD)
	}
	return total
}

// SnapshotStatus is the outcome of a snapshot run
type SnapshotStatus string

const (
	// SnapshotSaved means the value was written for the date
	SnapshotSaved SnapshotStatus = "saved"
	// SnapshotSkipped means the value was zero or negative and nothing was written
	SnapshotSkipped SnapshotStatus = "skipped"
	// SnapshotFailed means retrieval or persistence failed
	SnapshotFailed SnapshotStatus = "failed"
)

// SnapshotResult reports a single snapshot run
type SnapshotResult struct {
	Status  SnapshotStatus  `json:"status"`
	Date    string          `json:"date"`
	Value   decimal.Decimal `json:"total_usd"`
	Manual  bool            `json:"manual"`
	Message string          `json:"message"`
}

// HistoryEntry is one persisted daily total
type HistoryEntry struct {
	Date     string          `json:"date"`
	TotalUSD decimal.Decimal `json:"total_usd"`
}

// HistoryResponse is the payload of the history query
type HistoryResponse struct {
	History []HistoryEntry `json:"history"`
}

// JobInfo describes a registered scheduler job
type JobInfo struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	NextRun *time.Time `json:"next_run"`
}

// SchedulerStatus is the payload of the scheduler status query
type SchedulerStatus struct {
	Running bool      `json:"running"`
	Jobs    []JobInfo `json:"jobs"`
}

// HealthStatus is the payload of the health endpoints
type HealthStatus struct {
	Status           string    `json:"status"`
	Service          string    `json:"service"`
	SchedulerRunning *bool     `json:"scheduler_running,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}
