package repository

import (
	"context"
	"fmt"
	"time"

	"grid-pulse/internal/database"
	"grid-pulse/internal/domain/health"
)

type SnapshotRepository interface {
	InsertSnapshot(ctx context.Context, snap health.Snapshot) error

	// ListSince returns persisted snapshots newer than the given instant,
	// ordered most-recent-first. No derivation happens at read time.
	ListSince(ctx context.Context, since time.Time) ([]health.Snapshot, error)
}

type PostgresSnapshotRepository struct {
	db database.DB
}

func NewPostgresSnapshotRepository(db database.DB) *PostgresSnapshotRepository {
	return &PostgresSnapshotRepository{db: db}
}

func (r *PostgresSnapshotRepository) InsertSnapshot(ctx context.Context, snap health.Snapshot) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("nil db")
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO monitoring.health_snapshots (
			id, ts, overall_status,
			db_connected, db_active_connections, db_response_time_ms,
			meter_running, meter_healthy, meter_consecutive_failures,
			meter_records_24h, meter_collection_health_pct, meter_null_pct, meter_table_size_mb,
			vrm_running, vrm_healthy, vrm_consecutive_failures,
			vrm_records_24h, vrm_collection_health_pct, vrm_null_pct, vrm_table_size_mb,
			critical_alert_count, warning_alert_count
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		snap.ID,
		snap.Timestamp,
		string(snap.OverallStatus),
		snap.Database.Connected,
		snap.Database.ActiveConnections,
		snap.Database.ResponseTimeMs,
		snap.Meter.Running,
		snap.Meter.Healthy,
		snap.Meter.ConsecutiveFailures,
		snap.Meter.Records24h,
		snap.Meter.CollectionHealthPct,
		snap.Meter.NullPct,
		snap.Meter.TableSizeMB,
		snap.VRM.Running,
		snap.VRM.Healthy,
		snap.VRM.ConsecutiveFailures,
		snap.VRM.Records24h,
		snap.VRM.CollectionHealthPct,
		snap.VRM.NullPct,
		snap.VRM.TableSizeMB,
		snap.CriticalAlertCount,
		snap.WarningAlertCount,
	)
	return err
}

func (r *PostgresSnapshotRepository) ListSince(ctx context.Context, since time.Time) ([]health.Snapshot, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("nil db")
	}

	rows, err := r.db.Query(ctx,
		`SELECT
			id, ts, overall_status,
			db_connected, db_active_connections, db_response_time_ms,
			meter_running, meter_healthy, meter_consecutive_failures,
			meter_records_24h, meter_collection_health_pct, meter_null_pct, meter_table_size_mb,
			vrm_running, vrm_healthy, vrm_consecutive_failures,
			vrm_records_24h, vrm_collection_health_pct, vrm_null_pct, vrm_table_size_mb,
			critical_alert_count, warning_alert_count
		 FROM monitoring.health_snapshots
		 WHERE ts >= $1
		 ORDER BY ts DESC`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]health.Snapshot, 0)
	for rows.Next() {
		var s health.Snapshot
		var status string
		if err := rows.Scan(
			&s.ID,
			&s.Timestamp,
			&status,
			&s.Database.Connected,
			&s.Database.ActiveConnections,
			&s.Database.ResponseTimeMs,
			&s.Meter.Running,
			&s.Meter.Healthy,
			&s.Meter.ConsecutiveFailures,
			&s.Meter.Records24h,
			&s.Meter.CollectionHealthPct,
			&s.Meter.NullPct,
			&s.Meter.TableSizeMB,
			&s.VRM.Running,
			&s.VRM.Healthy,
			&s.VRM.ConsecutiveFailures,
			&s.VRM.Records24h,
			&s.VRM.CollectionHealthPct,
			&s.VRM.NullPct,
			&s.VRM.TableSizeMB,
			&s.CriticalAlertCount,
			&s.WarningAlertCount,
		); err != nil {
			return nil, err
		}
		s.OverallStatus = health.Status(status)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var _ SnapshotRepository = (*PostgresSnapshotRepository)(nil)
