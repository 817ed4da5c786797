package dto

import (
	"time"

	"grid-pulse/internal/domain/health"
)

type DatabaseHealthDTO struct {
	Connected         bool  `json:"connected"`
	ActiveConnections int32 `json:"active_connections"`
	ResponseTimeMs    int64 `json:"response_time_ms"`
}

type SourceHealthDTO struct {
	Running             bool    `json:"running"`
	Healthy             bool    `json:"healthy"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	Records24h          int64   `json:"records_24h"`
	CollectionHealthPct float64 `json:"collection_health_pct"`
	NullPct             float64 `json:"null_pct"`
	TableSizeMb         float64 `json:"table_size_mb"`
}

type RateLimitDTO struct {
	Used            int       `json:"used"`
	Remaining       int       `json:"remaining"`
	Limit           int       `json:"limit"`
	ResetsInSeconds int64     `json:"resets_in_seconds"`
	WindowStart     time.Time `json:"window_start"`
}

type AlertDTO struct {
	Severity  string    `json:"severity"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type SnapshotDTO struct {
	ID                 string            `json:"id"`
	Timestamp          time.Time         `json:"timestamp"`
	OverallStatus      string            `json:"overall_status"`
	Database           DatabaseHealthDTO `json:"database"`
	Meter              SourceHealthDTO   `json:"meter"`
	VRM                SourceHealthDTO   `json:"vrm"`
	CriticalAlertCount int               `json:"critical_alert_count"`
	WarningAlertCount  int               `json:"warning_alert_count"`
}

type MonitoringStatusResponse struct {
	SnapshotDTO
	RateLimit *RateLimitDTO `json:"rate_limit,omitempty"`
	Alerts    []AlertDTO    `json:"alerts"`
}

func NewSnapshotDTO(s health.Snapshot) SnapshotDTO {
	return SnapshotDTO{
		ID:            s.ID.String(),
		Timestamp:     s.Timestamp,
		OverallStatus: string(s.OverallStatus),
		Database: DatabaseHealthDTO{
			Connected:         s.Database.Connected,
			ActiveConnections: s.Database.ActiveConnections,
			ResponseTimeMs:    s.Database.ResponseTimeMs,
		},
		Meter:              newSourceHealthDTO(s.Meter),
		VRM:                newSourceHealthDTO(s.VRM),
		CriticalAlertCount: s.CriticalAlertCount,
		WarningAlertCount:  s.WarningAlertCount,
	}
}

func NewMonitoringStatusResponse(s health.Snapshot) MonitoringStatusResponse {
	out := MonitoringStatusResponse{
		SnapshotDTO: NewSnapshotDTO(s),
		Alerts:      make([]AlertDTO, 0, len(s.Alerts)),
	}
	for _, a := range s.Alerts {
		out.Alerts = append(out.Alerts, AlertDTO{
			Severity:  string(a.Severity),
			Component: a.Component,
			Message:   a.Message,
			Timestamp: a.Timestamp,
		})
	}
	if s.RateLimit != nil {
		out.RateLimit = &RateLimitDTO{
			Used:            s.RateLimit.Used,
			Remaining:       s.RateLimit.Remaining,
			Limit:           s.RateLimit.Limit,
			ResetsInSeconds: int64(s.RateLimit.ResetsIn.Seconds()),
			WindowStart:     s.RateLimit.WindowStart,
		}
	}
	return out
}

func newSourceHealthDTO(s health.SourceHealth) SourceHealthDTO {
	return SourceHealthDTO{
		Running:             s.Running,
		Healthy:             s.Healthy,
		ConsecutiveFailures: s.ConsecutiveFailures,
		Records24h:          s.Records24h,
		CollectionHealthPct: s.CollectionHealthPct,
		NullPct:             s.NullPct,
		TableSizeMb:         s.TableSizeMB,
	}
}
