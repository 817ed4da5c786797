// Package poller runs the background workers that pull telemetry from the
// remote sources on a fixed interval and persist every successful reading.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"grid-pulse/internal/domain/health"
	"grid-pulse/internal/domain/telemetry"
	"grid-pulse/internal/infrastructure/source"
)

type ReadingStore interface {
	SaveReading(ctx context.Context, r telemetry.Reading) error
}

type StatusStore interface {
	UpsertPollingStatus(ctx context.Context, row health.PollingStatusRow) error
}

var errAlreadyRunning = errors.New("poller already running")

// Worker owns one source client and its poll loop. Failures of any kind
// (fetch, rate-limit rejection, persistence) are absorbed: counted, logged
// and looped past at the fixed interval. The loop never backs off and never
// exits on its own.
type Worker struct {
	client   source.Client
	store    ReadingStore
	logger   *log.Logger
	interval time.Duration
	now      func() time.Time

	// Set only for the rate-limited portal source.
	limiter        *RateLimiter
	status         StatusStore
	installationID string

	mu    sync.Mutex
	state health.PollerState

	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(client source.Client, store ReadingStore, interval time.Duration, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = 180 * time.Second
	}
	return &Worker{
		client:   client,
		store:    store,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		state: health.PollerState{
			Source:       client.Name(),
			PollInterval: interval,
		},
	}
}

// NewRateLimitedWorker builds the portal variant: requests pass the hourly
// limiter first, and an operational status row is written every cycle.
func NewRateLimitedWorker(client source.Client, store ReadingStore, status StatusStore, installationID string, interval time.Duration, limiter *RateLimiter, logger *log.Logger) *Worker {
	w := NewWorker(client, store, interval, logger)
	w.limiter = limiter
	w.status = status
	w.installationID = installationID
	return w
}

// Start verifies credentials, then launches the poll loop. A worker with
// missing configuration logs, returns the error and never enters its loop;
// it does not retry configuration.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.client.Configured(); err != nil {
		w.logger.Printf("poller source=%s status=not_started err=%v", w.state.Source, err)
		return err
	}

	w.mu.Lock()
	if w.state.Running {
		w.mu.Unlock()
		return errAlreadyRunning
	}
	w.state.Running = true
	w.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	w.logger.Printf("poller source=%s status=started interval=%s", w.state.Source, w.interval)
	go w.run(loopCtx)
	return nil
}

// Stop is cooperative: it flips the stop signal and waits for the in-flight
// cycle to finish.
func (w *Worker) Stop() {
	if w == nil || w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.logger.Printf("poller source=%s status=stopped", w.state.Source)
}

// Health returns a copy of the worker's state. Safe for concurrent use; it
// never touches the network.
func (w *Worker) Health() health.PollerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Limiter exposes the hourly window for health reporting. Nil for sources
// without a fair-use cap.
func (w *Worker) Limiter() *RateLimiter {
	if w == nil {
		return nil
	}
	return w.limiter
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer func() {
		w.mu.Lock()
		w.state.Running = false
		w.mu.Unlock()
	}()

	w.poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	attempt := w.now().UTC()
	w.mu.Lock()
	w.state.LastPollAttempt = &attempt
	w.state.TotalPolls++
	w.mu.Unlock()

	if err := w.cycle(ctx); err != nil {
		w.recordFailure(err)
	} else {
		w.recordSuccess()
	}

	w.persistStatus(ctx)
}

func (w *Worker) cycle(ctx context.Context) error {
	if w.limiter != nil {
		if err := w.limiter.CheckAndReserve(); err != nil {
			return err
		}
	}

	reading, err := w.client.Fetch(ctx)
	if w.limiter != nil {
		// The reservation was used whether or not the fetch succeeded.
		w.limiter.RecordRequest()
	}
	if err != nil {
		return err
	}

	if err := w.store.SaveReading(ctx, reading); err != nil {
		return fmt.Errorf("save reading: %w", err)
	}
	return nil
}

func (w *Worker) recordSuccess() {
	now := w.now().UTC()
	w.mu.Lock()
	recovered := w.state.ConsecutiveFailures
	w.state.ConsecutiveFailures = 0
	w.state.LastError = ""
	w.state.LastSuccessfulPoll = &now
	w.state.TotalRecordsSaved++
	total := w.state.TotalRecordsSaved
	w.mu.Unlock()

	if recovered > 0 {
		w.logger.Printf("poller source=%s status=recovered after_failures=%d", w.state.Source, recovered)
	}
	w.logger.Printf("poller source=%s status=saved total_records=%d", w.state.Source, total)
}

func (w *Worker) recordFailure(err error) {
	w.mu.Lock()
	w.state.ConsecutiveFailures++
	w.state.LastError = err.Error()
	failures := w.state.ConsecutiveFailures
	w.mu.Unlock()

	w.logger.Printf("poller source=%s status=error attempt_failures=%d err=%v", w.state.Source, failures, err)
	if failures >= health.MaxConsecutiveFailures {
		w.logger.Printf("poller source=%s status=CRITICAL consecutive_failures=%d threshold=%d",
			w.state.Source, failures, health.MaxConsecutiveFailures)
	}
}

// persistStatus writes the vrm.polling_status row. A write failure here is
// logged but does not count against the poll cycle.
func (w *Worker) persistStatus(ctx context.Context) {
	if w.status == nil {
		return
	}

	state := w.Health()
	row := health.PollingStatusRow{
		InstallationID:      w.installationID,
		LastPollAttempt:     state.LastPollAttempt,
		LastSuccessfulPoll:  state.LastSuccessfulPoll,
		LastError:           state.LastError,
		ConsecutiveFailures: state.ConsecutiveFailures,
		IsHealthy:           state.IsHealthy(),
		UpdatedAt:           w.now().UTC(),
	}
	if w.limiter != nil {
		rl := w.limiter.Status()
		row.HourlyRequestCount = rl.Used
		row.WindowStart = rl.WindowStart
	}

	if err := w.status.UpsertPollingStatus(ctx, row); err != nil {
		w.logger.Printf("poller source=%s status=status_row_error err=%v", w.state.Source, err)
	}
}
