package repository

import (
	"context"
	"fmt"

	"grid-pulse/internal/database"
	"grid-pulse/internal/domain/health"
)

type PollingStatusRepository interface {
	UpsertPollingStatus(ctx context.Context, row health.PollingStatusRow) error
}

type PostgresPollingStatusRepository struct {
	db database.DB
}

func NewPostgresPollingStatusRepository(db database.DB) *PostgresPollingStatusRepository {
	return &PostgresPollingStatusRepository{db: db}
}

func (r *PostgresPollingStatusRepository) UpsertPollingStatus(ctx context.Context, row health.PollingStatusRow) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("nil db")
	}
	if row.InstallationID == "" {
		return fmt.Errorf("empty installation id")
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO vrm.polling_status (
			installation_id, last_poll_attempt, last_successful_poll, last_error,
			hourly_request_count, window_start, consecutive_failures, is_healthy, updated_at
		 ) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)
		 ON CONFLICT (installation_id) DO UPDATE SET
			last_poll_attempt = EXCLUDED.last_poll_attempt,
			last_successful_poll = EXCLUDED.last_successful_poll,
			last_error = EXCLUDED.last_error,
			hourly_request_count = EXCLUDED.hourly_request_count,
			window_start = EXCLUDED.window_start,
			consecutive_failures = EXCLUDED.consecutive_failures,
			is_healthy = EXCLUDED.is_healthy,
			updated_at = EXCLUDED.updated_at`,
		row.InstallationID,
		row.LastPollAttempt,
		row.LastSuccessfulPoll,
		row.LastError,
		row.HourlyRequestCount,
		row.WindowStart,
		row.ConsecutiveFailures,
		row.IsHealthy,
		row.UpdatedAt,
	)
	return err
}

var _ PollingStatusRepository = (*PostgresPollingStatusRepository)(nil)
