package poller

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"grid-pulse/internal/domain/health"
)

// Hourly fair-use accounting for the portal API. The error threshold sits
// below the hard limit so a reservation is refused before the upstream ever
// sees request number 50.
const (
	RateLimitWarningThreshold = 40
	RateLimitErrorThreshold   = 45
	RateLimitHourly           = 50

	rateLimitWindow = time.Hour
)

var ErrRateLimitExceeded = errors.New("hourly rate limit exceeded")

type RateLimiter struct {
	logger *log.Logger
	now    func() time.Time

	mu           sync.Mutex
	requestCount int
	windowStart  time.Time
}

func NewRateLimiter(logger *log.Logger) *RateLimiter {
	if logger == nil {
		logger = log.Default()
	}
	l := &RateLimiter{logger: logger, now: time.Now}
	l.windowStart = l.now().UTC()
	return l
}

// CheckAndReserve decides whether the next request may be sent. The window is
// rolled over first, so a stale count never blocks a fresh hour.
func (l *RateLimiter) CheckAndReserve() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollWindowLocked()

	if l.requestCount >= RateLimitErrorThreshold {
		return fmt.Errorf("%w: used=%d threshold=%d window_start=%s",
			ErrRateLimitExceeded, l.requestCount, RateLimitErrorThreshold, l.windowStart.Format(time.RFC3339))
	}
	if l.requestCount >= RateLimitWarningThreshold {
		l.logger.Printf("ratelimit status=warning used=%d limit=%d window_start=%s",
			l.requestCount, RateLimitHourly, l.windowStart.Format(time.RFC3339))
	}
	return nil
}

// RecordRequest counts one request that was actually sent. Rejected
// reservations must not be recorded.
func (l *RateLimiter) RecordRequest() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollWindowLocked()
	l.requestCount++
}

// Status is a pure read; it never mutates the window.
func (l *RateLimiter) Status() health.RateLimitStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	resetsIn := l.windowStart.Add(rateLimitWindow).Sub(l.now().UTC())
	if resetsIn < 0 {
		resetsIn = 0
	}
	remaining := RateLimitHourly - l.requestCount
	if remaining < 0 {
		remaining = 0
	}
	return health.RateLimitStatus{
		Used:        l.requestCount,
		Remaining:   remaining,
		Limit:       RateLimitHourly,
		ResetsIn:    resetsIn,
		WindowStart: l.windowStart,
	}
}

func (l *RateLimiter) rollWindowLocked() {
	now := l.now().UTC()
	if now.Sub(l.windowStart) >= rateLimitWindow {
		l.requestCount = 0
		l.windowStart = now
	}
}
