package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"grid-pulse/internal/domain/health"
	"grid-pulse/internal/repository"
)

var ErrInvalidInput = errors.New("invalid input")

const (
	historyMinHours = 1
	historyMaxHours = 336

	historyCacheTTL = 60 * time.Second
)

type HistoryCache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

type MetricPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// HistoryResult is either the full snapshot rows or, when a metric filter is
// given, the projected single-metric series. Nothing is derived at read time
// beyond that projection.
type HistoryResult struct {
	Hours     int               `json:"hours"`
	Metric    string            `json:"metric,omitempty"`
	Snapshots []health.Snapshot `json:"snapshots,omitempty"`
	Points    []MetricPoint     `json:"points,omitempty"`
}

var historyMetrics = map[string]func(health.Snapshot) float64{
	"db_response_time_ms":         func(s health.Snapshot) float64 { return float64(s.Database.ResponseTimeMs) },
	"db_active_connections":       func(s health.Snapshot) float64 { return float64(s.Database.ActiveConnections) },
	"meter_records_24h":           func(s health.Snapshot) float64 { return float64(s.Meter.Records24h) },
	"vrm_records_24h":             func(s health.Snapshot) float64 { return float64(s.VRM.Records24h) },
	"meter_collection_health_pct": func(s health.Snapshot) float64 { return s.Meter.CollectionHealthPct },
	"vrm_collection_health_pct":   func(s health.Snapshot) float64 { return s.VRM.CollectionHealthPct },
	"meter_null_pct":              func(s health.Snapshot) float64 { return s.Meter.NullPct },
	"vrm_null_pct":                func(s health.Snapshot) float64 { return s.VRM.NullPct },
	"critical_alert_count":        func(s health.Snapshot) float64 { return float64(s.CriticalAlertCount) },
	"warning_alert_count":         func(s health.Snapshot) float64 { return float64(s.WarningAlertCount) },
}

type HistoryUsecase struct {
	repo   repository.SnapshotRepository
	cache  HistoryCache
	logger *log.Logger
	now    func() time.Time
}

func NewHistoryUsecase(repo repository.SnapshotRepository, cache HistoryCache, logger *log.Logger) *HistoryUsecase {
	if logger == nil {
		logger = log.Default()
	}
	return &HistoryUsecase{repo: repo, cache: cache, logger: logger, now: time.Now}
}

func (u *HistoryUsecase) GetHistory(ctx context.Context, hours int, metric string) (HistoryResult, error) {
	if u == nil || u.repo == nil {
		return HistoryResult{}, errors.New("history usecase not initialized")
	}
	if hours < historyMinHours || hours > historyMaxHours {
		return HistoryResult{}, fmt.Errorf("%w: hours must be between %d and %d", ErrInvalidInput, historyMinHours, historyMaxHours)
	}
	project := func(health.Snapshot) float64 { return 0 }
	if metric != "" {
		fn, ok := historyMetrics[metric]
		if !ok {
			return HistoryResult{}, fmt.Errorf("%w: unknown metric %q", ErrInvalidInput, metric)
		}
		project = fn
	}

	cacheKey := fmt.Sprintf("monitoring:history:%d:%s", hours, metric)
	if u.cache != nil {
		var cached HistoryResult
		hit, err := u.cache.GetJSON(ctx, cacheKey, &cached)
		if err == nil && hit {
			return cached, nil
		}
	}

	since := u.now().UTC().Add(-time.Duration(hours) * time.Hour)
	snaps, err := u.repo.ListSince(ctx, since)
	if err != nil {
		return HistoryResult{}, err
	}

	out := HistoryResult{Hours: hours, Metric: metric}
	if metric == "" {
		out.Snapshots = snaps
	} else {
		out.Points = make([]MetricPoint, 0, len(snaps))
		for _, s := range snaps {
			out.Points = append(out.Points, MetricPoint{Timestamp: s.Timestamp, Value: project(s)})
		}
	}

	if u.cache != nil {
		if err := u.cache.SetJSON(ctx, cacheKey, out, historyCacheTTL); err != nil {
			u.logger.Printf("history status=cache_write_error key=%s err=%v", cacheKey, err)
		}
	}

	return out, nil
}
