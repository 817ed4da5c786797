package health

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// MaxConsecutiveFailures is the point at which a poller reports itself
// unhealthy. The aggregator classifies the overall pipeline Critical earlier,
// at more than CriticalFailureThreshold failures.
const (
	MaxConsecutiveFailures   = 10
	CriticalFailureThreshold = 5
)

// PollerState is the in-memory operational state of one polling worker.
// Written only by the owning worker, read concurrently by the aggregator.
type PollerState struct {
	Source              string
	Running             bool
	LastPollAttempt     *time.Time
	LastSuccessfulPoll  *time.Time
	LastError           string
	ConsecutiveFailures int
	TotalPolls          uint64
	TotalRecordsSaved   uint64
	PollInterval        time.Duration
}

func (s PollerState) IsHealthy() bool {
	return s.ConsecutiveFailures < MaxConsecutiveFailures
}

// RateLimitStatus is a point-in-time view of the hourly request window.
type RateLimitStatus struct {
	Used        int
	Remaining   int
	Limit       int
	ResetsIn    time.Duration
	WindowStart time.Time
}

// PollingStatusRow mirrors vrm.polling_status, persisted once per poll cycle
// so operators can query rate-limit history without parsing logs.
type PollingStatusRow struct {
	InstallationID      string
	LastPollAttempt     *time.Time
	LastSuccessfulPoll  *time.Time
	LastError           string
	HourlyRequestCount  int
	WindowStart         time.Time
	ConsecutiveFailures int
	IsHealthy           bool
	UpdatedAt           time.Time
}

type DatabaseHealth struct {
	Connected         bool
	ActiveConnections int32
	ResponseTimeMs    int64
}

// SourceHealth combines a poller's state with the data-quality metrics
// computed for that source's readings table.
type SourceHealth struct {
	Running             bool
	Healthy             bool
	ConsecutiveFailures int
	Records24h          int64
	CollectionHealthPct float64
	NullPct             float64
	TableSizeMB         float64
}

type Alert struct {
	Severity  Severity
	Component string
	Message   string
	Timestamp time.Time
}

// Snapshot is one immutable aggregation result. The persisted history is the
// append-only sequence of these.
type Snapshot struct {
	ID            uuid.UUID
	Timestamp     time.Time
	OverallStatus Status
	Database      DatabaseHealth
	Meter         SourceHealth
	VRM           SourceHealth
	RateLimit     *RateLimitStatus
	Alerts        []Alert

	CriticalAlertCount int
	WarningAlertCount  int
}
