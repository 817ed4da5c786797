package usecase

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"grid-pulse/internal/database"
	"grid-pulse/internal/domain/health"
	"grid-pulse/internal/domain/telemetry"
	"grid-pulse/internal/repository"

	"github.com/google/uuid"
)

type PollerHealth interface {
	Health() health.PollerState
}

type RateLimitReader interface {
	Status() health.RateLimitStatus
}

type SnapshotBroadcaster interface {
	BroadcastSnapshot(snap health.Snapshot)
}

// SnapshotLock elects one snapshot writer per aggregation bucket, so replicas
// running the same aggregator do not insert duplicate history rows.
type SnapshotLock interface {
	SetIfNotExists(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
}

// Classification and alert thresholds. The Degraded cutoff (90%) and the
// warning-alert cutoff (95%) are intentionally different values: a source can
// raise a warning alert while the overall status is still Healthy.
const (
	dbDegradedResponseMs   = 1000
	collectionDegradedPct  = 90.0
	collectionWarningPct   = 95.0
	rateLimitInfoThreshold = 45

	secondsPerDay = 86400
)

// HealthAggregator combines database health, both pollers' in-memory state
// and per-source data-quality metrics into one classified snapshot. Database
// connectivity is the only hard dependency of a cycle; every other sub-query
// degrades to zero values on failure.
type HealthAggregator struct {
	db          database.DB
	quality     repository.QualityRepository
	snapshots   repository.SnapshotRepository
	meter       PollerHealth
	vrm         PollerHealth
	rateLimit   RateLimitReader
	broadcaster SnapshotBroadcaster
	lock        SnapshotLock
	interval    time.Duration
	logger      *log.Logger
	now         func() time.Time
}

func NewHealthAggregator(
	db database.DB,
	quality repository.QualityRepository,
	snapshots repository.SnapshotRepository,
	meter PollerHealth,
	vrm PollerHealth,
	rateLimit RateLimitReader,
	broadcaster SnapshotBroadcaster,
	lock SnapshotLock,
	interval time.Duration,
	logger *log.Logger,
) *HealthAggregator {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = 300 * time.Second
	}
	return &HealthAggregator{
		db:          db,
		quality:     quality,
		snapshots:   snapshots,
		meter:       meter,
		vrm:         vrm,
		rateLimit:   rateLimit,
		broadcaster: broadcaster,
		lock:        lock,
		interval:    interval,
		logger:      logger,
		now:         time.Now,
	}
}

// Run executes one aggregation cycle per interval until ctx is cancelled.
// Each cycle persists a snapshot row and pushes the result to the broadcaster.
func (a *HealthAggregator) Run(ctx context.Context) {
	a.cycle(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Printf("health_aggregator status=stopped")
			return
		case <-ticker.C:
			a.cycle(ctx)
		}
	}
}

func (a *HealthAggregator) cycle(ctx context.Context) {
	snap := a.Collect(ctx)

	if a.snapshots != nil {
		if a.acquireWriteLock(ctx, snap.Timestamp) {
			if err := a.snapshots.InsertSnapshot(ctx, snap); err != nil {
				a.logger.Printf("health_aggregator step=persist status=error err=%v", err)
			}
		} else {
			a.logger.Printf("health_aggregator step=persist status=skipped reason=lock_held")
		}
	}
	if a.broadcaster != nil {
		a.broadcaster.BroadcastSnapshot(snap)
	}

	a.logger.Printf("health_aggregator status=cycle overall=%s db_connected=%t critical_alerts=%d warning_alerts=%d",
		snap.OverallStatus, snap.Database.Connected, snap.CriticalAlertCount, snap.WarningAlertCount)
}

// Collect builds one snapshot from live state. It never fails as a whole:
// the worst outcome is a Critical snapshot with zeroed metrics.
func (a *HealthAggregator) Collect(ctx context.Context) health.Snapshot {
	now := a.now().UTC()

	dbHealth := a.databaseHealth(ctx)
	meterState := a.meter.Health()
	vrmState := a.vrm.Health()

	var (
		meterQ, vrmQ   repository.SourceQuality
		meterTM, vrmTM repository.TableMetrics
	)

	// Sub-queries run in parallel; a failed one degrades to its zero value
	// and the cycle carries on.
	wg := sync.WaitGroup{}
	run := func(step string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				a.logger.Printf("health_aggregator step=%s status=error err=%v", step, err)
			}
		}()
	}

	if a.quality != nil && dbHealth.Connected {
		run("meter_quality", func() error {
			q, err := a.quality.MeterQuality(ctx)
			if err == nil {
				meterQ = q
			}
			return err
		})
		run("vrm_quality", func() error {
			q, err := a.quality.VRMQuality(ctx)
			if err == nil {
				vrmQ = q
			}
			return err
		})
		run("meter_table_metrics", func() error {
			m, err := a.quality.MeterTableMetrics(ctx)
			if err == nil {
				meterTM = m
			}
			return err
		})
		run("vrm_table_metrics", func() error {
			m, err := a.quality.VRMTableMetrics(ctx)
			if err == nil {
				vrmTM = m
			}
			return err
		})
	}
	wg.Wait()

	snap := health.Snapshot{
		ID:        uuid.New(),
		Timestamp: now,
		Database:  dbHealth,
		Meter:     sourceHealth(meterState, meterQ, meterTM),
		VRM:       sourceHealth(vrmState, vrmQ, vrmTM),
	}

	if a.rateLimit != nil {
		rl := a.rateLimit.Status()
		snap.RateLimit = &rl
	}

	snap.OverallStatus = classify(snap)
	snap.Alerts = a.buildAlerts(snap, now)
	for _, al := range snap.Alerts {
		switch al.Severity {
		case health.SeverityCritical:
			snap.CriticalAlertCount++
		case health.SeverityWarning:
			snap.WarningAlertCount++
		}
	}

	return snap
}

// acquireWriteLock takes the per-bucket SetNX lock. A lock error falls open:
// the local insert proceeds rather than losing the history row.
func (a *HealthAggregator) acquireWriteLock(ctx context.Context, ts time.Time) bool {
	if a.lock == nil {
		return true
	}
	bucket := ts.Unix() / int64(a.interval.Seconds())
	key := fmt.Sprintf("monitoring:snapshot:lock:%d", bucket)
	ok, err := a.lock.SetIfNotExists(ctx, key, "1", a.interval)
	if err != nil {
		return true
	}
	return ok
}

func (a *HealthAggregator) databaseHealth(ctx context.Context) health.DatabaseHealth {
	if a.db == nil {
		return health.DatabaseHealth{}
	}

	start := a.now()
	var one int
	err := a.db.QueryRow(ctx, `SELECT 1`).Scan(&one)
	elapsed := a.now().Sub(start)

	if err != nil {
		a.logger.Printf("health_aggregator step=db_check status=error err=%v", err)
		return health.DatabaseHealth{Connected: false, ResponseTimeMs: elapsed.Milliseconds()}
	}

	return health.DatabaseHealth{
		Connected:         true,
		ActiveConnections: a.db.Stat().AcquiredConns,
		ResponseTimeMs:    elapsed.Milliseconds(),
	}
}

// sourceHealth merges a poller's state with its table's quality metrics.
// Collection health is derived from the source's own configured interval so
// the expected-records constant can never drift between components.
func sourceHealth(state health.PollerState, q repository.SourceQuality, tm repository.TableMetrics) health.SourceHealth {
	return health.SourceHealth{
		Running:             state.Running,
		Healthy:             state.IsHealthy(),
		ConsecutiveFailures: state.ConsecutiveFailures,
		Records24h:          q.Records24h,
		CollectionHealthPct: collectionHealthPct(q.Records24h, state.PollInterval),
		NullPct:             q.NullPct,
		TableSizeMB:         tm.TotalSizeMB,
	}
}

func collectionHealthPct(records24h int64, interval time.Duration) float64 {
	expected := expectedRecordsPerDay(interval)
	if expected <= 0 {
		return 0
	}
	return float64(records24h) / float64(expected) * 100
}

func expectedRecordsPerDay(interval time.Duration) int64 {
	secs := int64(interval.Seconds())
	if secs <= 0 {
		return 0
	}
	return secondsPerDay / secs
}

// classify applies the status rules in strict priority order; the first match
// wins regardless of any healthier signal further down.
func classify(snap health.Snapshot) health.Status {
	switch {
	case !snap.Database.Connected:
		return health.StatusCritical
	case snap.Meter.ConsecutiveFailures > health.CriticalFailureThreshold,
		snap.VRM.ConsecutiveFailures > health.CriticalFailureThreshold:
		return health.StatusCritical
	case snap.Meter.CollectionHealthPct < collectionDegradedPct,
		snap.VRM.CollectionHealthPct < collectionDegradedPct:
		return health.StatusDegraded
	case snap.Database.ResponseTimeMs > dbDegradedResponseMs:
		return health.StatusDegraded
	default:
		return health.StatusHealthy
	}
}

// buildAlerts evaluates every alert condition on every cycle; it is not
// short-circuited by the status classification.
func (a *HealthAggregator) buildAlerts(snap health.Snapshot, now time.Time) []health.Alert {
	alerts := make([]health.Alert, 0, 4)

	if !snap.Database.Connected {
		alerts = append(alerts, health.Alert{
			Severity:  health.SeverityCritical,
			Component: "database",
			Message:   "database connection lost",
			Timestamp: now,
		})
	}

	perSource := []struct {
		name string
		h    health.SourceHealth
	}{
		{telemetry.SourceMeter, snap.Meter},
		{telemetry.SourceVRM, snap.VRM},
	}
	for _, s := range perSource {
		if s.h.ConsecutiveFailures > health.CriticalFailureThreshold {
			alerts = append(alerts, health.Alert{
				Severity:  health.SeverityCritical,
				Component: s.name,
				Message:   fmt.Sprintf("poller failing: %d consecutive failures", s.h.ConsecutiveFailures),
				Timestamp: now,
			})
		}
		if s.h.CollectionHealthPct < collectionWarningPct {
			alerts = append(alerts, health.Alert{
				Severity:  health.SeverityWarning,
				Component: s.name,
				Message:   fmt.Sprintf("collection health %.1f%% below %.0f%%", s.h.CollectionHealthPct, collectionWarningPct),
				Timestamp: now,
			})
		}
	}

	if snap.RateLimit != nil && snap.RateLimit.Used > rateLimitInfoThreshold {
		alerts = append(alerts, health.Alert{
			Severity:  health.SeverityInfo,
			Component: telemetry.SourceVRM,
			Message:   fmt.Sprintf("approaching hourly rate limit: %d/%d", snap.RateLimit.Used, snap.RateLimit.Limit),
			Timestamp: now,
		})
	}

	return alerts
}
