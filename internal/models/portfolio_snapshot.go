package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotDateLayout is the calendar date format used for snapshot keys
const SnapshotDateLayout = "2006-01-02"

// PortfolioSnapshot represents the persisted total portfolio value for one UTC calendar date
type PortfolioSnapshot struct {
	Date     time.Time       `json:"date" db:"time"`
	TotalUSD decimal.Decimal `json:"total_usd" db:"total_usd"`
}

// DateString formats the snapshot date as YYYY-MM-DD
func (s PortfolioSnapshot) DateString() string {
	return s.Date.Format(SnapshotDateLayout)
}

// UTCDate truncates t to midnight of its UTC calendar date
func UTCDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
