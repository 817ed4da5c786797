// Package source holds the remote telemetry API clients. Each client fetches
// exactly one reading per call; retry and failure accounting belong to the
// polling worker that owns the client.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"grid-pulse/internal/domain/telemetry"
)

type Client interface {
	Name() string

	// Configured reports an error naming the missing settings when the
	// client cannot operate. Workers fail fast on this at startup.
	Configured() error

	Fetch(ctx context.Context) (telemetry.Reading, error)
}

func readLimitedBody(resp *http.Response) string {
	rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return strings.TrimSpace(string(rb))
}

func statusError(op string, resp *http.Response) error {
	return fmt.Errorf("%s failed: status=%d body=%s", op, resp.StatusCode, readLimitedBody(resp))
}
