package dto

import (
	"time"

	"grid-pulse/internal/usecase"
)

type MetricPointDTO struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type MonitoringHistoryResponse struct {
	Hours     int              `json:"hours"`
	Metric    string           `json:"metric,omitempty"`
	Snapshots []SnapshotDTO    `json:"snapshots,omitempty"`
	Points    []MetricPointDTO `json:"points,omitempty"`
}

func NewMonitoringHistoryResponse(r usecase.HistoryResult) MonitoringHistoryResponse {
	out := MonitoringHistoryResponse{Hours: r.Hours, Metric: r.Metric}

	if r.Metric == "" {
		out.Snapshots = make([]SnapshotDTO, 0, len(r.Snapshots))
		for _, s := range r.Snapshots {
			out.Snapshots = append(out.Snapshots, NewSnapshotDTO(s))
		}
		return out
	}

	out.Points = make([]MetricPointDTO, 0, len(r.Points))
	for _, p := range r.Points {
		out.Points = append(out.Points, MetricPointDTO{Timestamp: p.Timestamp, Value: p.Value})
	}
	return out
}
