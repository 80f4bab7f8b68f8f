package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

const (
	// DailySnapshotJobID identifies the recurring snapshot job
	DailySnapshotJobID = "daily_snapshot"
	// DailySnapshotJobName is the human-readable job name
	DailySnapshotJobName = "Daily Portfolio Snapshot"
	// DefaultSnapshotSchedule fires at 00:00 UTC
	DefaultSnapshotSchedule = "0 0 * * *"
)

// TotalFetcher retrieves the current portfolio composition from the valuation side
type TotalFetcher interface {
	FetchTotal(ctx context.Context) (*types.TotalList, error)
}

// SnapshotStore persists one total per UTC date
type SnapshotStore interface {
	// Upsert writes value for date, overwriting any existing row, and reports success.
	Upsert(ctx context.Context, date time.Time, value decimal.Decimal) bool
	// Recent returns snapshots dated on or after today minus days, newest first.
	Recent(ctx context.Context, days int) ([]models.PortfolioSnapshot, error)
}

// SchedulerState is the lifecycle state of the snapshot scheduler
type SchedulerState string

const (
	StateStopped SchedulerState = "stopped"
	StateRunning SchedulerState = "running"
)

// SnapshotScheduler records the portfolio total once a day and on demand
type SnapshotScheduler struct {
	fetcher  TotalFetcher
	store    SnapshotStore
	schedule cron.Schedule
	now      func() time.Time
	logger   *logging.Logger

	mu    sync.Mutex
	state SchedulerState
	cron  *cron.Cron
	entry cron.EntryID
}

// NewSnapshotScheduler creates a stopped scheduler. expr is a standard five-field cron expression evaluated in UTC.
func NewSnapshotScheduler(fetcher TotalFetcher, store SnapshotStore, expr string, logger *logging.Logger) (*SnapshotScheduler, error) {
	if expr == "" {
		expr = DefaultSnapshotSchedule
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, apperrors.NewInvalidParameterError("schedule", err.Error())
	}

	return &SnapshotScheduler{
		fetcher:  fetcher,
		store:    store,
		schedule: schedule,
		now:      time.Now,
		logger:   logger.WithField("component", "snapshot_scheduler"),
		state:    StateStopped,
	}, nil
}

// Start registers the daily job. It returns false, with a warning, when already running.
func (s *SnapshotScheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		s.logger.Warn("Snapshot scheduler is already running")
		return false
	}

	c := cron.New(cron.WithLocation(time.UTC))
	s.entry = c.Schedule(s.schedule, cron.FuncJob(s.runScheduled))
	c.Start()

	s.cron = c
	s.state = StateRunning

	s.logger.WithField("next_run", c.Entry(s.entry).Next).Info("Snapshot scheduler started")
	return true
}

// Stop cancels future runs. A snapshot already in progress finishes on its own.
// It returns false, with a warning, when not running.
func (s *SnapshotScheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		s.logger.Warn("Snapshot scheduler is not running")
		return false
	}

	s.cron.Stop()
	s.cron = nil
	s.state = StateStopped

	s.logger.Info("Snapshot scheduler stopped")
	return true
}

// State returns the current lifecycle state
func (s *SnapshotScheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether the daily job is registered
func (s *SnapshotScheduler) IsRunning() bool {
	return s.State() == StateRunning
}

// Status lists the registered jobs with their next fire time
func (s *SnapshotScheduler) Status() types.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := types.SchedulerStatus{Running: s.state == StateRunning, Jobs: []types.JobInfo{}}
	if s.cron == nil {
		return status
	}

	job := types.JobInfo{ID: DailySnapshotJobID, Name: DailySnapshotJobName}
	if next := s.cron.Entry(s.entry).Next; !next.IsZero() {
		next = next.UTC()
		job.NextRun = &next
	} else {
		// the cron loop has not computed it yet
		next := s.schedule.Next(s.now().UTC())
		job.NextRun = &next
	}
	status.Jobs = append(status.Jobs, job)
	return status
}

func (s *SnapshotScheduler) runScheduled() {
	// Scheduled runs are not tied to any request and are never cancelled.
	result, err := s.TakeSnapshot(context.Background(), false)
	if err != nil {
		s.logger.WithField("date", result.Date).WithError(err).Error("Scheduled snapshot failed")
	}
}

// SnapshotDate is the date a snapshot taken at now is recorded under: the
// current UTC date for manual runs and the previous one for scheduled runs.
func SnapshotDate(now time.Time, manual bool) time.Time {
	date := models.UTCDate(now)
	if !manual {
		date = date.AddDate(0, 0, -1)
	}
	return date
}

// TakeSnapshot fetches the current total and stores it. A zero or negative
// total, including an empty item list, is skipped without error; fetch and
// store failures return an error.
func (s *SnapshotScheduler) TakeSnapshot(ctx context.Context, manual bool) (types.SnapshotResult, error) {
	date := SnapshotDate(s.now(), manual)
	result := types.SnapshotResult{
		Date:   date.Format(models.SnapshotDateLayout),
		Manual: manual,
		Value:  decimal.Zero,
	}
	logger := s.logger.WithFields(map[string]interface{}{
		"date":   result.Date,
		"manual": manual,
	})
	logger.Info("Taking portfolio snapshot")

	list, err := s.fetcher.FetchTotal(ctx)
	if err != nil {
		result.Status = types.SnapshotFailed
		result.Message = "failed to fetch portfolio total"
		logger.WithError(err).Error("Failed to fetch portfolio total")
		return result, err
	}
	if list == nil {
		result.Status = types.SnapshotFailed
		result.Message = "portfolio total returned no value"
		logger.Error("Portfolio total returned no value")
		return result, apperrors.NewUpstreamUnavailableError("portfolio bot", fmt.Errorf("no total payload"))
	}

	total := list.Total()
	result.Value = total

	if !total.IsPositive() {
		result.Status = types.SnapshotSkipped
		result.Message = apperrors.NewEmptyValueError("portfolio bot", total.String()).Message
		logger.WithField("total_usd", total.String()).Warn("Portfolio total is not positive, skipping snapshot")
		return result, nil
	}

	if !s.store.Upsert(ctx, date, total) {
		result.Status = types.SnapshotFailed
		result.Message = "failed to store snapshot"
		return result, apperrors.NewPersistenceError("upsert snapshot", nil)
	}

	result.Status = types.SnapshotSaved
	result.Message = fmt.Sprintf("snapshot stored for %s", result.Date)
	logger.WithField("total_usd", total.String()).Info("Portfolio snapshot stored")
	return result, nil
}

// History returns persisted totals for the last days, newest first
func (s *SnapshotScheduler) History(ctx context.Context, days int) ([]types.HistoryEntry, error) {
	snapshots, err := s.store.Recent(ctx, days)
	if err != nil {
		return nil, err
	}

	history := make([]types.HistoryEntry, 0, len(snapshots))
	for _, snap := range snapshots {
		history = append(history, types.HistoryEntry{
			Date:     snap.DateString(),
			TotalUSD: snap.TotalUSD,
		})
	}
	return history, nil
}
