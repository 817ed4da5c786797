package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"grid-pulse/internal/config"
	"grid-pulse/internal/domain/telemetry"

	"log"
)

// MeterClient pulls live data from the energy-meter cloud API using a static
// API key.
type MeterClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *log.Logger
}

type meterLiveData struct {
	Timestamp   time.Time `json:"timestamp"`
	PowerW      *float64  `json:"power_w"`
	EnergyWh    *float64  `json:"energy_wh"`
	Voltage     *float64  `json:"voltage"`
	FrequencyHz *float64  `json:"frequency_hz"`
}

func NewMeterClient(cfg config.MeterConfig, logger *log.Logger) *MeterClient {
	return &MeterClient{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

func (c *MeterClient) Name() string { return telemetry.SourceMeter }

func (c *MeterClient) Configured() error {
	var missing []string
	if c == nil || c.baseURL == "" {
		missing = append(missing, "METER_API_URL")
	}
	if c == nil || c.apiKey == "" {
		missing = append(missing, "METER_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("meter client not configured: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *MeterClient) Fetch(ctx context.Context) (telemetry.Reading, error) {
	if c == nil || c.client == nil {
		return telemetry.Reading{}, errors.New("nil meter client")
	}

	endpoint := c.baseURL + "/v1/livedata"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return telemetry.Reading{}, err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return telemetry.Reading{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := statusError("meter livedata", resp)
		if c.logger != nil {
			c.logger.Printf("[Meter] Fetch error endpoint=%s err=%v", endpoint, err)
		}
		return telemetry.Reading{}, err
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return telemetry.Reading{}, err
	}

	var out meterLiveData
	if err := json.Unmarshal(raw, &out); err != nil {
		return telemetry.Reading{}, fmt.Errorf("meter livedata decode: %w", err)
	}

	ts := out.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return telemetry.Reading{
		Source:      telemetry.SourceMeter,
		Timestamp:   ts,
		PowerW:      out.PowerW,
		EnergyWh:    out.EnergyWh,
		Voltage:     out.Voltage,
		FrequencyHz: out.FrequencyHz,
		RawPayload:  raw,
	}, nil
}

var _ Client = (*MeterClient)(nil)
