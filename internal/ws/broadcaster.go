package ws

import (
	"encoding/json"

	"grid-pulse/internal/delivery/http/dto"
	"grid-pulse/internal/domain/health"
)

type snapshotEvent struct {
	Type string          `json:"type"`
	Data dto.SnapshotDTO `json:"data"`
}

// BroadcastSnapshot pushes one aggregation result to every connected client.
// Satisfies the aggregator's broadcaster contract.
func (h *Hub) BroadcastSnapshot(snap health.Snapshot) {
	if h == nil {
		return
	}

	evt := snapshotEvent{Type: "health_snapshot", Data: dto.NewSnapshotDTO(snap)}
	b, err := json.Marshal(evt)
	if err != nil {
		h.logger.Printf("WS snapshot marshal error | error=%v", err)
		return
	}
	h.Broadcast(b)
}
