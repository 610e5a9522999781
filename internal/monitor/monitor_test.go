package monitor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spidex/spidex/internal/config"
	"github.com/spidex/spidex/internal/storage"
)

func newTestMonitor(t *testing.T) (*Service, *storage.Store) {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "monitor.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default().Monitor
	cfg.Retention = 0 // pruning exercised separately
	return NewService(cfg, store), store
}

func TestSampleWritesOneRowPerStatistic(t *testing.T) {
	svc, store := newTestMonitor(t)

	if _, err := store.UpsertPage(&storage.Page{
		Domain: "example.com", URL: "https://example.com/", StatusCode: 200,
	}); err != nil {
		t.Fatalf("UpsertPage failed: %v", err)
	}

	if err := svc.Sample(); err != nil {
		t.Fatalf("Sample failed: %v", err)
	}

	// Deleting everything up to now counts what the sample wrote.
	n, err := store.PruneStatistics(0)
	if err != nil {
		t.Fatalf("PruneStatistics failed: %v", err)
	}
	if n != 8 {
		t.Errorf("sample wrote %d statistics, want 8", n)
	}
}

func TestSamplePrunesExpiredRows(t *testing.T) {
	svc, store := newTestMonitor(t)
	svc.cfg.Retention = time.Hour

	old := storage.Statistic{
		Type:      storage.StatCrawledPages,
		Value:     1,
		Timestamp: time.Now().Add(-2 * time.Hour).UnixMilli(),
	}
	if err := store.InsertStatistics([]storage.Statistic{old}); err != nil {
		t.Fatalf("InsertStatistics failed: %v", err)
	}

	if err := svc.Sample(); err != nil {
		t.Fatalf("Sample failed: %v", err)
	}

	// The expired row is gone; only the fresh batch remains.
	n, err := store.PruneStatistics(0)
	if err != nil {
		t.Fatalf("PruneStatistics failed: %v", err)
	}
	if n != 8 {
		t.Errorf("%d rows remained after retention prune, want 8", n)
	}
}
