package repository

import (
	"context"
	"fmt"
	"time"

	"grid-pulse/internal/database"
)

// SourceQuality is the data-quality picture for one readings table. The
// aggregator degrades these to zero values when a query fails, so every field
// must be meaningful at its zero.
type SourceQuality struct {
	TotalRecords  int64
	OldestRecord  *time.Time
	NewestRecord  *time.Time
	Records1h     int64
	Records24h    int64
	RecordsWindow int64
	WindowHours   int
	NullPct       float64
}

type TableMetrics struct {
	TotalSizeMB float64
	TableSizeMB float64
	IndexSizeMB float64
	RowEstimate int64
}

type QualityRepository interface {
	MeterQuality(ctx context.Context) (SourceQuality, error)
	VRMQuality(ctx context.Context) (SourceQuality, error)
	MeterTableMetrics(ctx context.Context) (TableMetrics, error)
	VRMTableMetrics(ctx context.Context) (TableMetrics, error)
}

// The long lookback differs per source: seven days for the meter feed,
// 72 hours for the portal feed.
const (
	meterQualityWindowHours = 7 * 24
	vrmQualityWindowHours   = 72
)

type PostgresQualityRepository struct {
	db database.DB
}

func NewPostgresQualityRepository(db database.DB) *PostgresQualityRepository {
	return &PostgresQualityRepository{db: db}
}

func (r *PostgresQualityRepository) MeterQuality(ctx context.Context) (SourceQuality, error) {
	return r.sourceQuality(ctx, "meter.readings", "(power_w IS NULL OR energy_wh IS NULL)", meterQualityWindowHours)
}

func (r *PostgresQualityRepository) VRMQuality(ctx context.Context) (SourceQuality, error) {
	return r.sourceQuality(ctx, "vrm.readings", "(power_w IS NULL OR soc_pct IS NULL)", vrmQualityWindowHours)
}

func (r *PostgresQualityRepository) sourceQuality(ctx context.Context, table, nullPredicate string, windowHours int) (SourceQuality, error) {
	if r == nil || r.db == nil {
		return SourceQuality{}, fmt.Errorf("nil db")
	}

	// table and nullPredicate are package-internal constants, never caller
	// input, so building the query text here is safe.
	query := fmt.Sprintf(`
		SELECT
			COUNT(1),
			MIN(ts),
			MAX(ts),
			COUNT(1) FILTER (WHERE ts >= now() - INTERVAL '1 hour'),
			COUNT(1) FILTER (WHERE ts >= now() - INTERVAL '24 hours'),
			COUNT(1) FILTER (WHERE ts >= now() - make_interval(hours => $1)),
			COALESCE(
				100.0 * COUNT(1) FILTER (WHERE ts >= now() - INTERVAL '24 hours' AND %s)
				/ NULLIF(COUNT(1) FILTER (WHERE ts >= now() - INTERVAL '24 hours'), 0),
				0
			)
		FROM %s`, nullPredicate, table)

	out := SourceQuality{WindowHours: windowHours}
	row := r.db.QueryRow(ctx, query, windowHours)
	if err := row.Scan(
		&out.TotalRecords,
		&out.OldestRecord,
		&out.NewestRecord,
		&out.Records1h,
		&out.Records24h,
		&out.RecordsWindow,
		&out.NullPct,
	); err != nil {
		return SourceQuality{}, err
	}
	return out, nil
}

func (r *PostgresQualityRepository) MeterTableMetrics(ctx context.Context) (TableMetrics, error) {
	return r.tableMetrics(ctx, "meter.readings")
}

func (r *PostgresQualityRepository) VRMTableMetrics(ctx context.Context) (TableMetrics, error) {
	return r.tableMetrics(ctx, "vrm.readings")
}

func (r *PostgresQualityRepository) tableMetrics(ctx context.Context, table string) (TableMetrics, error) {
	if r == nil || r.db == nil {
		return TableMetrics{}, fmt.Errorf("nil db")
	}

	var totalBytes, tableBytes, indexBytes, rows int64
	row := r.db.QueryRow(ctx,
		`SELECT
			pg_total_relation_size($1::regclass),
			pg_relation_size($1::regclass),
			pg_indexes_size($1::regclass),
			COALESCE((SELECT reltuples::bigint FROM pg_class WHERE oid = $1::regclass), 0)`,
		table,
	)
	if err := row.Scan(&totalBytes, &tableBytes, &indexBytes, &rows); err != nil {
		return TableMetrics{}, err
	}

	const mb = 1024 * 1024
	return TableMetrics{
		TotalSizeMB: float64(totalBytes) / mb,
		TableSizeMB: float64(tableBytes) / mb,
		IndexSizeMB: float64(indexBytes) / mb,
		RowEstimate: rows,
	}, nil
}

var _ QualityRepository = (*PostgresQualityRepository)(nil)
