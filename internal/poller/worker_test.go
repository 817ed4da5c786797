package poller

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"grid-pulse/internal/domain/health"
	"grid-pulse/internal/domain/telemetry"
)

type fakeClient struct {
	name       string
	configured error
	fetchErr   error
	fetchCalls int
}

func (c *fakeClient) Name() string      { return c.name }
func (c *fakeClient) Configured() error { return c.configured }

func (c *fakeClient) Fetch(ctx context.Context) (telemetry.Reading, error) {
	c.fetchCalls++
	if c.fetchErr != nil {
		return telemetry.Reading{}, c.fetchErr
	}
	return telemetry.Reading{Source: c.name, Timestamp: time.Now().UTC()}, nil
}

type fakeReadingStore struct {
	saveErr error
	saved   []telemetry.Reading
}

func (s *fakeReadingStore) SaveReading(ctx context.Context, r telemetry.Reading) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, r)
	return nil
}

type fakeStatusStore struct {
	upsertErr error
	rows      []health.PollingStatusRow
}

func (s *fakeStatusStore) UpsertPollingStatus(ctx context.Context, row health.PollingStatusRow) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.rows = append(s.rows, row)
	return nil
}

func discardLogger() *log.Logger {
	return log.New(testWriter{}, "", 0)
}

func TestWorker_ConsecutiveFailuresAccumulate(t *testing.T) {
	client := &fakeClient{name: telemetry.SourceMeter, fetchErr: errors.New("connection refused")}
	store := &fakeReadingStore{}
	w := NewWorker(client, store, time.Minute, discardLogger())

	for i := 0; i < 7; i++ {
		w.poll(context.Background())
	}

	state := w.Health()
	if state.ConsecutiveFailures != 7 {
		t.Fatalf("expected 7 consecutive failures, got %d", state.ConsecutiveFailures)
	}
	if state.LastError == "" {
		t.Fatalf("expected last error to be recorded")
	}
	if state.TotalPolls != 7 {
		t.Fatalf("expected 7 total polls, got %d", state.TotalPolls)
	}
	if !state.IsHealthy() {
		t.Fatalf("7 failures is below the unhealthy threshold, got unhealthy")
	}
}

func TestWorker_SingleSuccessResetsFailures(t *testing.T) {
	client := &fakeClient{name: telemetry.SourceMeter, fetchErr: errors.New("timeout")}
	store := &fakeReadingStore{}
	w := NewWorker(client, store, time.Minute, discardLogger())

	for i := 0; i < 11; i++ {
		w.poll(context.Background())
	}
	if state := w.Health(); state.IsHealthy() {
		t.Fatalf("expected unhealthy at %d failures", state.ConsecutiveFailures)
	}

	client.fetchErr = nil
	w.poll(context.Background())

	state := w.Health()
	if state.ConsecutiveFailures != 0 {
		t.Fatalf("expected reset to 0 after success, got %d", state.ConsecutiveFailures)
	}
	if state.LastError != "" {
		t.Fatalf("expected last error cleared, got %q", state.LastError)
	}
	if state.LastSuccessfulPoll == nil {
		t.Fatalf("expected last successful poll to be set")
	}
	if !state.IsHealthy() {
		t.Fatalf("expected healthy after recovery")
	}
	if state.TotalRecordsSaved != 1 {
		t.Fatalf("expected 1 record saved, got %d", state.TotalRecordsSaved)
	}
}

func TestWorker_SaveErrorCountsAsFailure(t *testing.T) {
	client := &fakeClient{name: telemetry.SourceMeter}
	store := &fakeReadingStore{saveErr: errors.New("insert failed")}
	w := NewWorker(client, store, time.Minute, discardLogger())

	w.poll(context.Background())

	state := w.Health()
	if state.ConsecutiveFailures != 1 {
		t.Fatalf("expected persistence error to count as failure, got %d", state.ConsecutiveFailures)
	}
	if state.TotalRecordsSaved != 0 {
		t.Fatalf("expected no records saved, got %d", state.TotalRecordsSaved)
	}
}

func TestWorker_StartFailsFastOnMissingConfig(t *testing.T) {
	client := &fakeClient{name: telemetry.SourceMeter, configured: errors.New("missing METER_API_KEY")}
	w := NewWorker(client, &fakeReadingStore{}, time.Minute, discardLogger())

	if err := w.Start(context.Background()); err == nil {
		t.Fatalf("expected start to fail on missing configuration")
	}
	if state := w.Health(); state.Running {
		t.Fatalf("expected worker not running after failed start")
	}
	if client.fetchCalls != 0 {
		t.Fatalf("expected no fetch attempts, got %d", client.fetchCalls)
	}
}

func TestWorker_StartStop(t *testing.T) {
	client := &fakeClient{name: telemetry.SourceMeter}
	store := &fakeReadingStore{}
	w := NewWorker(client, store, time.Hour, discardLogger())

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Fatalf("expected second start to be refused")
	}

	w.Stop()

	state := w.Health()
	if state.Running {
		t.Fatalf("expected running=false after stop")
	}
	if state.TotalPolls == 0 {
		t.Fatalf("expected the immediate first poll to have run")
	}
}

func TestWorker_RateLimitRejectionSkipsFetch(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter, _ := newTestLimiter(start)
	for i := 0; i < RateLimitErrorThreshold; i++ {
		limiter.RecordRequest()
	}

	client := &fakeClient{name: telemetry.SourceVRM}
	status := &fakeStatusStore{}
	w := NewRateLimitedWorker(client, &fakeReadingStore{}, status, "482913", time.Minute, limiter, discardLogger())

	w.poll(context.Background())

	if client.fetchCalls != 0 {
		t.Fatalf("expected fetch to be skipped when the window is exhausted, got %d calls", client.fetchCalls)
	}
	state := w.Health()
	if state.ConsecutiveFailures != 1 {
		t.Fatalf("expected rate-limit rejection to count as failure, got %d", state.ConsecutiveFailures)
	}
	if limiter.Status().Used != RateLimitErrorThreshold {
		t.Fatalf("rejected reservation must not be recorded, got used=%d", limiter.Status().Used)
	}
}

func TestWorker_FailedFetchStillRecordsRequest(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter, _ := newTestLimiter(start)

	client := &fakeClient{name: telemetry.SourceVRM, fetchErr: errors.New("portal 500")}
	w := NewRateLimitedWorker(client, &fakeReadingStore{}, &fakeStatusStore{}, "482913", time.Minute, limiter, discardLogger())

	w.poll(context.Background())

	if used := limiter.Status().Used; used != 1 {
		t.Fatalf("a sent-but-failed request must count against the window, got used=%d", used)
	}
}

func TestWorker_PersistsStatusRowEachCycle(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter, _ := newTestLimiter(start)

	client := &fakeClient{name: telemetry.SourceVRM}
	status := &fakeStatusStore{}
	w := NewRateLimitedWorker(client, &fakeReadingStore{}, status, "482913", time.Minute, limiter, discardLogger())

	w.poll(context.Background())
	w.poll(context.Background())

	if len(status.rows) != 2 {
		t.Fatalf("expected 2 status rows, got %d", len(status.rows))
	}
	row := status.rows[1]
	if row.InstallationID != "482913" {
		t.Fatalf("unexpected installation id %q", row.InstallationID)
	}
	if !row.IsHealthy {
		t.Fatalf("expected healthy row after successful polls")
	}
	if row.HourlyRequestCount != 2 {
		t.Fatalf("expected 2 recorded requests in row, got %d", row.HourlyRequestCount)
	}
	if row.LastSuccessfulPoll == nil {
		t.Fatalf("expected last successful poll in row")
	}
}

func TestWorker_StatusRowWriteErrorDoesNotFailCycle(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter, _ := newTestLimiter(start)

	client := &fakeClient{name: telemetry.SourceVRM}
	status := &fakeStatusStore{upsertErr: errors.New("table missing")}
	w := NewRateLimitedWorker(client, &fakeReadingStore{}, status, "482913", time.Minute, limiter, discardLogger())

	w.poll(context.Background())

	if state := w.Health(); state.ConsecutiveFailures != 0 {
		t.Fatalf("status row write failure must not count against the poll, got %d failures", state.ConsecutiveFailures)
	}
}
