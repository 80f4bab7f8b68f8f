package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/types"
)

// SchedulerServiceName identifies the snapshot scheduler in health payloads
const SchedulerServiceName = "portfolio-scheduler"

// DefaultHistoryDays is used when the history query names no window
const DefaultHistoryDays = 7

// Snapshotter is the scheduler surface exposed over HTTP
type Snapshotter interface {
	IsRunning() bool
	Status() types.SchedulerStatus
	TakeSnapshot(ctx context.Context, manual bool) (types.SnapshotResult, error)
	History(ctx context.Context, days int) ([]types.HistoryEntry, error)
}

// SchedulerHandlers serves the snapshot scheduler's HTTP surface
type SchedulerHandlers struct {
	scheduler Snapshotter
	now       func() time.Time
}

// NewSchedulerHandlers creates the scheduler handlers
func NewSchedulerHandlers(scheduler Snapshotter) *SchedulerHandlers {
	return &SchedulerHandlers{scheduler: scheduler, now: time.Now}
}

// RegisterRoutes mounts the scheduler routes
func (h *SchedulerHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/snapshot/manual", h.handleManualSnapshot).Methods(http.MethodPost)
	r.HandleFunc("/history", h.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/scheduler/status", h.handleStatus).Methods(http.MethodGet)
}

func (h *SchedulerHandlers) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, types.HealthStatus{
		Status:    "healthy",
		Service:   SchedulerServiceName,
		Timestamp: h.now().UTC(),
	})
}

// handleHealth reports degraded while the daily job is not scheduled
func (h *SchedulerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	running := h.scheduler.IsRunning()
	status := "healthy"
	if !running {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, types.HealthStatus{
		Status:           status,
		Service:          SchedulerServiceName,
		SchedulerRunning: &running,
		Timestamp:        h.now().UTC(),
	})
}

// handleManualSnapshot records today's total immediately. A skipped snapshot
// is still a 200; fetch and store failures are a 500.
func (h *SchedulerHandlers) handleManualSnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.scheduler.IsRunning() {
		respondServiceError(w, r, apperrors.NewServiceUnavailableError("scheduler not running"))
		return
	}

	// The snapshot outlives a disconnected client; peer and store calls carry their own timeouts.
	result, err := h.scheduler.TakeSnapshot(context.WithoutCancel(r.Context()), true)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).WithField("date", result.Date).Error("Manual snapshot failed")

		details := map[string]interface{}{
			"date":  result.Date,
			"cause": err.Error(),
		}
		if catErr := apperrors.Categorize(err); catErr != nil {
			details["category"] = catErr.Category
		}
		respondError(w, http.StatusInternalServerError, ErrCodeSnapshotFailed, result.Message, details)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *SchedulerHandlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r.URL.Query().Get("days"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	history, err := h.scheduler.History(r.Context(), days)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, types.HistoryResponse{History: history})
}

func (h *SchedulerHandlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.scheduler.Status())
}

func parseDays(raw string) (int, error) {
	if raw == "" {
		return DefaultHistoryDays, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewInvalidParameterError("days", "must be an integer")
	}
	if days < 0 {
		return 0, apperrors.NewInvalidParameterError("days", "must not be negative")
	}
	return days, nil
}
