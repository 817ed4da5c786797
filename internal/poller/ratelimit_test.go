package poller

import (
	"errors"
	"log"
	"testing"
	"time"
)

func newTestLimiter(start time.Time) (*RateLimiter, *time.Time) {
	now := start
	l := NewRateLimiter(log.New(testWriter{}, "", 0))
	l.now = func() time.Time { return now }
	l.windowStart = start.UTC()
	return l, &now
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRateLimiter_RejectsAtErrorThreshold(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, _ := newTestLimiter(start)

	for i := 0; i < RateLimitErrorThreshold; i++ {
		if err := l.CheckAndReserve(); err != nil {
			t.Fatalf("request %d unexpectedly rejected: %v", i, err)
		}
		l.RecordRequest()
	}

	err := l.CheckAndReserve()
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
}

func TestRateLimiter_WindowResetAccepts(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, now := newTestLimiter(start)

	for i := 0; i < RateLimitErrorThreshold; i++ {
		if err := l.CheckAndReserve(); err != nil {
			t.Fatalf("request %d unexpectedly rejected: %v", i, err)
		}
		l.RecordRequest()
	}
	if err := l.CheckAndReserve(); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected rejection before window reset, got %v", err)
	}

	*now = start.Add(time.Hour)

	if err := l.CheckAndReserve(); err != nil {
		t.Fatalf("expected acceptance after window reset, got %v", err)
	}
	st := l.Status()
	if st.Used != 0 {
		t.Fatalf("expected used=0 after reset, got %d", st.Used)
	}
	if !st.WindowStart.Equal(start.Add(time.Hour)) {
		t.Fatalf("expected window start to move, got %v", st.WindowStart)
	}
}

func TestRateLimiter_StatusIsPureRead(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, now := newTestLimiter(start)

	for i := 0; i < 3; i++ {
		l.RecordRequest()
	}

	*now = start.Add(30 * time.Minute)
	st := l.Status()
	if st.Used != 3 {
		t.Fatalf("expected used=3, got %d", st.Used)
	}
	if st.Remaining != RateLimitHourly-3 {
		t.Fatalf("expected remaining=%d, got %d", RateLimitHourly-3, st.Remaining)
	}
	if st.Limit != RateLimitHourly {
		t.Fatalf("expected limit=%d, got %d", RateLimitHourly, st.Limit)
	}
	if st.ResetsIn != 30*time.Minute {
		t.Fatalf("expected resets_in=30m, got %v", st.ResetsIn)
	}
	if !st.WindowStart.Equal(start) {
		t.Fatalf("status must not roll the window, got start %v", st.WindowStart)
	}
}

func TestRateLimiter_WarningThresholdStillProceeds(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, _ := newTestLimiter(start)

	for i := 0; i < RateLimitWarningThreshold; i++ {
		l.RecordRequest()
	}

	// 40..44 requests: warned but not rejected.
	if err := l.CheckAndReserve(); err != nil {
		t.Fatalf("expected warning-range request to proceed, got %v", err)
	}
}
