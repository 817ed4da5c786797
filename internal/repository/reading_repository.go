package repository

import (
	"context"
	"fmt"

	"grid-pulse/internal/database"
	"grid-pulse/internal/domain/telemetry"
)

type ReadingRepository interface {
	SaveReading(ctx context.Context, r telemetry.Reading) error
}

type PostgresReadingRepository struct {
	db database.DB
}

func NewPostgresReadingRepository(db database.DB) *PostgresReadingRepository {
	return &PostgresReadingRepository{db: db}
}

func (r *PostgresReadingRepository) SaveReading(ctx context.Context, reading telemetry.Reading) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("nil db")
	}

	switch reading.Source {
	case telemetry.SourceMeter:
		_, err := r.db.Exec(ctx,
			`INSERT INTO meter.readings (ts, power_w, energy_wh, voltage, frequency_hz, payload)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			reading.Timestamp,
			reading.PowerW,
			reading.EnergyWh,
			reading.Voltage,
			reading.FrequencyHz,
			reading.RawPayload,
		)
		return err
	case telemetry.SourceVRM:
		_, err := r.db.Exec(ctx,
			`INSERT INTO vrm.readings (ts, installation_id, power_w, soc_pct, battery_v, payload)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			reading.Timestamp,
			reading.InstallationID,
			reading.PowerW,
			reading.SocPct,
			reading.BatteryV,
			reading.RawPayload,
		)
		return err
	default:
		return fmt.Errorf("unknown reading source: %q", reading.Source)
	}
}

var _ ReadingRepository = (*PostgresReadingRepository)(nil)
