package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"grid-pulse/internal/domain/health"
)

type fakeHistoryCache struct {
	store    map[string][]byte
	getCalls int
	setCalls int
}

func newFakeHistoryCache() *fakeHistoryCache {
	return &fakeHistoryCache{store: map[string][]byte{}}
}

func (c *fakeHistoryCache) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	c.getCalls++
	raw, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (c *fakeHistoryCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.setCalls++
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.store[key] = raw
	return nil
}

func historySnapshots() []health.Snapshot {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return []health.Snapshot{
		{
			Timestamp:     ts.Add(10 * time.Minute),
			OverallStatus: health.StatusHealthy,
			Database:      health.DatabaseHealth{Connected: true, ResponseTimeMs: 42},
			Meter:         health.SourceHealth{Records24h: 470, CollectionHealthPct: 97.9},
		},
		{
			Timestamp:     ts,
			OverallStatus: health.StatusDegraded,
			Database:      health.DatabaseHealth{Connected: true, ResponseTimeMs: 1200},
			Meter:         health.SourceHealth{Records24h: 400, CollectionHealthPct: 83.3},
		},
	}
}

func TestGetHistory_HoursOutOfRange(t *testing.T) {
	u := NewHistoryUsecase(&fakeSnapshotRepo{}, nil, quietLogger())

	for _, hours := range []int{0, -5, 337} {
		_, err := u.GetHistory(context.Background(), hours, "")
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("hours=%d: expected ErrInvalidInput, got %v", hours, err)
		}
	}
}

func TestGetHistory_UnknownMetric(t *testing.T) {
	u := NewHistoryUsecase(&fakeSnapshotRepo{}, nil, quietLogger())

	_, err := u.GetHistory(context.Background(), 24, "cpu_usage")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown metric, got %v", err)
	}
}

func TestGetHistory_FullSnapshots(t *testing.T) {
	repo := &fakeSnapshotRepo{listed: historySnapshots()}
	u := NewHistoryUsecase(repo, nil, quietLogger())
	fixed := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	u.now = func() time.Time { return fixed }

	res, err := u.GetHistory(context.Background(), 24, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Hours != 24 {
		t.Fatalf("expected hours=24, got %d", res.Hours)
	}
	if want := fixed.Add(-24 * time.Hour); !repo.lastSince.Equal(want) {
		t.Fatalf("expected query bound %v, got %v", want, repo.lastSince)
	}
	if len(res.Snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(res.Snapshots))
	}
	if len(res.Points) != 0 {
		t.Fatalf("expected no metric points without a filter, got %d", len(res.Points))
	}
}

func TestGetHistory_MetricProjection(t *testing.T) {
	repo := &fakeSnapshotRepo{listed: historySnapshots()}
	u := NewHistoryUsecase(repo, nil, quietLogger())

	res, err := u.GetHistory(context.Background(), 24, "db_response_time_ms")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Snapshots) != 0 {
		t.Fatalf("metric filter must drop full snapshots, got %d", len(res.Snapshots))
	}
	if len(res.Points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(res.Points))
	}
	if res.Points[0].Value != 42 || res.Points[1].Value != 1200 {
		t.Fatalf("unexpected projected values: %+v", res.Points)
	}
}

func TestGetHistory_CacheHitBypassesRepo(t *testing.T) {
	cache := newFakeHistoryCache()
	repo := &fakeSnapshotRepo{listed: historySnapshots()}
	u := NewHistoryUsecase(repo, cache, quietLogger())

	if _, err := u.GetHistory(context.Background(), 6, "meter_records_24h"); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if cache.setCalls != 1 {
		t.Fatalf("expected cache write after miss, got %d", cache.setCalls)
	}

	repo.listErr = errors.New("db gone")
	res, err := u.GetHistory(context.Background(), 6, "meter_records_24h")
	if err != nil {
		t.Fatalf("expected cached result to serve despite repo error, got %v", err)
	}
	if len(res.Points) != 2 {
		t.Fatalf("expected 2 cached points, got %d", len(res.Points))
	}
}

func TestGetHistory_RepoErrorPropagates(t *testing.T) {
	repo := &fakeSnapshotRepo{listErr: errors.New("query failed")}
	u := NewHistoryUsecase(repo, nil, quietLogger())

	if _, err := u.GetHistory(context.Background(), 24, ""); err == nil {
		t.Fatalf("expected repository error to propagate")
	}
}
