package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"grid-pulse/internal/config"
	"grid-pulse/internal/domain/telemetry"
)

var errSessionExpired = errors.New("vrm session expired")

// VRMClient talks to the battery-portal API. Sessions are token based: a
// login call issues a bearer token that the portal invalidates server-side
// after a while. An expired session is re-established at most once per Fetch;
// a failed re-login surfaces as that call's error.
type VRMClient struct {
	baseURL        string
	username       string
	password       string
	installationID string
	client         *http.Client
	logger         *log.Logger

	mu    sync.Mutex
	token string
}

type vrmLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type vrmLoginResponse struct {
	Token string `json:"token"`
}

type vrmStats struct {
	Timestamp time.Time `json:"timestamp"`
	Records   struct {
		PowerW   *float64 `json:"power_w"`
		SocPct   *float64 `json:"soc_pct"`
		BatteryV *float64 `json:"battery_v"`
	} `json:"records"`
}

func NewVRMClient(cfg config.VRMConfig, logger *log.Logger) *VRMClient {
	return &VRMClient{
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		username:       strings.TrimSpace(cfg.Username),
		password:       cfg.Password,
		installationID: strings.TrimSpace(cfg.InstallationID),
		client:         &http.Client{Timeout: 15 * time.Second},
		logger:         logger,
	}
}

func (c *VRMClient) Name() string { return telemetry.SourceVRM }

func (c *VRMClient) InstallationID() string {
	if c == nil {
		return ""
	}
	return c.installationID
}

func (c *VRMClient) Configured() error {
	var missing []string
	if c == nil || c.baseURL == "" {
		missing = append(missing, "VRM_API_URL")
	}
	if c == nil || c.username == "" {
		missing = append(missing, "VRM_USERNAME")
	}
	if c == nil || c.password == "" {
		missing = append(missing, "VRM_PASSWORD")
	}
	if c == nil || c.installationID == "" {
		missing = append(missing, "VRM_INSTALLATION_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("vrm client not configured: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Authenticate logs in and stores the session token.
func (c *VRMClient) Authenticate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("nil vrm client")
	}

	body, err := json.Marshal(vrmLoginRequest{Username: c.username, Password: c.password})
	if err != nil {
		return err
	}

	endpoint := c.baseURL + "/auth/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := statusError("vrm login", resp)
		if c.logger != nil {
			c.logger.Printf("[VRM] Authenticate error endpoint=%s err=%v", endpoint, err)
		}
		return err
	}

	var out vrmLoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("vrm login decode: %w", err)
	}
	if strings.TrimSpace(out.Token) == "" {
		return errors.New("vrm login returned empty token")
	}

	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Printf("[VRM] Session established installation=%s", c.installationID)
	}
	return nil
}

func (c *VRMClient) Fetch(ctx context.Context) (telemetry.Reading, error) {
	if c == nil || c.client == nil {
		return telemetry.Reading{}, errors.New("nil vrm client")
	}

	if c.currentToken() == "" {
		if err := c.Authenticate(ctx); err != nil {
			return telemetry.Reading{}, err
		}
	}

	reading, err := c.fetchStats(ctx)
	if errors.Is(err, errSessionExpired) {
		// One re-login per cycle; a second 401 is this cycle's failure.
		if c.logger != nil {
			c.logger.Printf("[VRM] Session expired, re-authenticating installation=%s", c.installationID)
		}
		if err := c.Authenticate(ctx); err != nil {
			return telemetry.Reading{}, err
		}
		reading, err = c.fetchStats(ctx)
	}
	return reading, err
}

func (c *VRMClient) fetchStats(ctx context.Context) (telemetry.Reading, error) {
	endpoint := fmt.Sprintf("%s/installations/%s/stats", c.baseURL, c.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return telemetry.Reading{}, err
	}
	req.Header.Set("X-Authorization", "Bearer "+c.currentToken())
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return telemetry.Reading{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		return telemetry.Reading{}, fmt.Errorf("%w: status=%d", errSessionExpired, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := statusError("vrm stats", resp)
		if c.logger != nil {
			c.logger.Printf("[VRM] Fetch error endpoint=%s err=%v", endpoint, err)
		}
		return telemetry.Reading{}, err
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return telemetry.Reading{}, err
	}

	var out vrmStats
	if err := json.Unmarshal(raw, &out); err != nil {
		return telemetry.Reading{}, fmt.Errorf("vrm stats decode: %w", err)
	}

	ts := out.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return telemetry.Reading{
		Source:         telemetry.SourceVRM,
		Timestamp:      ts,
		InstallationID: c.installationID,
		PowerW:         out.Records.PowerW,
		SocPct:         out.Records.SocPct,
		BatteryV:       out.Records.BatteryV,
		RawPayload:     raw,
	}, nil
}

func (c *VRMClient) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

var _ Client = (*VRMClient)(nil)
