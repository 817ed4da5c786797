// Command snapshot runs one aggregation cycle and prints the result as JSON.
// Intended for cron probes and debugging: the exit code is non-zero when the
// pipeline classifies as critical.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"grid-pulse/internal/app"
	"grid-pulse/internal/config"
	"grid-pulse/internal/delivery/http/dto"
	"grid-pulse/internal/domain/health"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	c, err := app.NewContainer(cfg)
	if err != nil {
		log.Fatalf("failed to init container: %v", err)
	}
	defer func() {
		_ = c.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap := c.Aggregator.Collect(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dto.NewMonitoringStatusResponse(snap)); err != nil {
		log.Fatalf("encode snapshot: %v", err)
	}

	if snap.OverallStatus == health.StatusCritical {
		os.Exit(1)
	}
}
