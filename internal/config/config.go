package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Meter      MeterConfig
	VRM        VRMConfig
	Monitoring MonitoringConfig
}

type AppConfig struct {
	AppName     string
	Environment string
	HTTPPort    string
}

type DatabaseConfig struct {
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	ConnectTimeout time.Duration
	PoolMaxConns   int32
	PoolMinConns   int32
}

// MeterConfig configures the energy-meter cloud source. Credentials are
// optional at boot: a worker with missing credentials refuses to start but
// the rest of the service still runs.
type MeterConfig struct {
	APIURL       string
	APIKey       string
	PollInterval time.Duration
}

type VRMConfig struct {
	APIURL         string
	Username       string
	Password       string
	InstallationID string
	PollInterval   time.Duration
}

type MonitoringConfig struct {
	AggregatorInterval time.Duration
	JWTSecret          string
}

const (
	DefaultPollInterval       = 180 * time.Second
	DefaultAggregatorInterval = 300 * time.Second
)

var errMissingRequiredEnv = errors.New("missing required environment variables")

func Load() (Config, error) {
	cfg := Config{}

	var missing []string
	req := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	opt := func(key string) string {
		return strings.TrimSpace(os.Getenv(key))
	}

	cfg.App = AppConfig{
		AppName:     req("APP_NAME"),
		Environment: req("APP_ENV"),
		HTTPPort:    req("HTTP_PORT"),
	}

	cfg.Database = DatabaseConfig{
		DBHost:         opt("DB_HOST"),
		DBPort:         opt("DB_PORT"),
		DBName:         opt("DB_NAME"),
		DBUser:         opt("DB_USER"),
		DBPassword:     opt("DB_PASSWORD"),
		DBSSLMode:      opt("DB_SSL_MODE"),
		ConnectTimeout: secondsEnv("DB_CONNECT_TIMEOUT_SECONDS", 10*time.Second),
		PoolMaxConns:   int32Env("DB_POOL_MAX_CONNS", 0),
		PoolMinConns:   int32Env("DB_POOL_MIN_CONNS", 0),
	}

	cfg.Meter = MeterConfig{
		APIURL:       opt("METER_API_URL"),
		APIKey:       opt("METER_API_KEY"),
		PollInterval: secondsEnv("METER_POLL_INTERVAL_SECONDS", DefaultPollInterval),
	}

	cfg.VRM = VRMConfig{
		APIURL:         opt("VRM_API_URL"),
		Username:       opt("VRM_USERNAME"),
		Password:       opt("VRM_PASSWORD"),
		InstallationID: opt("VRM_INSTALLATION_ID"),
		PollInterval:   secondsEnv("VRM_POLL_INTERVAL_SECONDS", DefaultPollInterval),
	}

	cfg.Monitoring = MonitoringConfig{
		AggregatorInterval: secondsEnv("HEALTH_CHECK_INTERVAL_SECONDS", DefaultAggregatorInterval),
		JWTSecret:          opt("MONITORING_JWT_SECRET"),
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errMissingRequiredEnv, strings.Join(missing, ", "))
	}

	return cfg, nil
}

func secondsEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}

func int32Env(key string, fallback int32) int32 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return int32(v)
}
