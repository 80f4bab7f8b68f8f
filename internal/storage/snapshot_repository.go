package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
)

// DBTX is the subset of pgxpool.Pool the repository needs
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// SnapshotRepository stores one portfolio total per UTC date in crypto_total
type SnapshotRepository struct {
	db     DBTX
	now    func() time.Time
	logger *logging.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db DBTX, logger *logging.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:     db,
		now:    time.Now,
		logger: logger.WithField("component", "snapshot_repository"),
	}
}

// Upsert writes value under date, replacing any existing row for that date.
// Failures are logged and reported as false; they never propagate.
func (r *SnapshotRepository) Upsert(ctx context.Context, date time.Time, value decimal.Decimal) bool {
	date = models.UTCDate(date)

	query := `
		INSERT INTO crypto_total (time, total_usd)
		VALUES ($1, $2::numeric)
		ON CONFLICT (time)
		DO UPDATE SET total_usd = EXCLUDED.total_usd
	`

	if _, err := r.db.Exec(ctx, query, date, value.String()); err != nil {
		r.logger.WithFields(map[string]interface{}{
			"date":      date.Format(models.SnapshotDateLayout),
			"total_usd": value.String(),
		}).WithError(apperrors.NewPersistenceError("upsert snapshot", err)).Error("Failed to store snapshot")
		return false
	}

	r.logger.WithFields(map[string]interface{}{
		"date":      date.Format(models.SnapshotDateLayout),
		"total_usd": value.String(),
	}).Debug("Snapshot stored")
	return true
}

// Recent returns snapshots dated on or after today minus days, newest first
func (r *SnapshotRepository) Recent(ctx context.Context, days int) ([]models.PortfolioSnapshot, error) {
	if days < 0 {
		return nil, apperrors.NewInvalidParameterError("days", "must not be negative")
	}
	cutoff := models.UTCDate(r.now()).AddDate(0, 0, -days)

	query := `
		SELECT time, total_usd::text
		FROM crypto_total
		WHERE time >= $1
		ORDER BY time DESC
	`

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, apperrors.NewPersistenceError("query snapshots", err)
	}
	defer rows.Close()

	var snapshots []models.PortfolioSnapshot
	for rows.Next() {
		var (
			date  time.Time
			total string
		)
		if err := rows.Scan(&date, &total); err != nil {
			return nil, apperrors.NewPersistenceError("scan snapshot row", err)
		}
		value, err := decimal.NewFromString(total)
		if err != nil {
			return nil, apperrors.NewPersistenceError("parse snapshot total", fmt.Errorf("%q: %w", total, err))
		}
		snapshots = append(snapshots, models.PortfolioSnapshot{
			Date:     models.UTCDate(date),
			TotalUSD: value,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("iterate snapshot rows", err)
	}

	return snapshots, nil
}
