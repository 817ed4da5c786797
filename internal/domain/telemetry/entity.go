package telemetry

import "time"

// SourceMeter and SourceVRM identify the two upstream telemetry feeds.
const (
	SourceMeter = "meter"
	SourceVRM   = "vrm"
)

// Reading is one fetched sample from either source. Fields that a source does
// not report stay nil and are persisted as SQL NULLs.
type Reading struct {
	Source         string
	Timestamp      time.Time
	InstallationID string

	PowerW      *float64
	EnergyWh    *float64
	Voltage     *float64
	FrequencyHz *float64
	SocPct      *float64
	BatteryV    *float64

	// RawPayload is the upstream JSON body, kept for later reprocessing.
	RawPayload []byte
}
