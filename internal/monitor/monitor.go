// Package monitor periodically samples corpus-level statistics into the
// store, building the time series behind the statistics API.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/spidex/spidex/internal/config"
	"github.com/spidex/spidex/internal/storage"
)

// Service is the statistics sampler.
type Service struct {
	cfg   config.MonitorConfig
	store *storage.Store
}

// NewService creates a monitor service.
func NewService(cfg config.MonitorConfig, store *storage.Store) *Service {
	return &Service{cfg: cfg, store: store}
}

// Run samples on the configured interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	slog.Info("Monitor started", "interval", s.cfg.SampleInterval, "retention", s.cfg.Retention)

	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		if err := s.Sample(); err != nil {
			slog.Error("Statistics sample failed", "error", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("Monitor stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sample writes one batch of statistics and prunes expired rows.
func (s *Service) Sample() error {
	totals, err := s.store.GetTotals()
	if err != nil {
		return err
	}

	dbSize, err := s.store.FileSize()
	if err != nil {
		slog.Warn("Failed to stat database file", "error", err)
		dbSize = 0
	}

	stats := []storage.Statistic{
		{Type: storage.StatCrawledPages, Value: totals.PageCount},
		{Type: storage.StatIndexedPages, Value: totals.IndexedPageCount},
		{Type: storage.StatSearches, Value: totals.QueryCount},
		{Type: storage.StatDatabaseSize, Value: dbSize},
		{Type: storage.StatQueueSize, Value: totals.QueueSize},
		{Type: storage.StatWords, Value: totals.WordCount},
		{Type: storage.StatPostings, Value: totals.PostingCount},
		{Type: storage.StatFavicons, Value: totals.FaviconCount},
	}
	if err := s.store.InsertStatistics(stats); err != nil {
		return err
	}

	if s.cfg.Retention > 0 {
		pruned, err := s.store.PruneStatistics(s.cfg.Retention)
		if err != nil {
			return err
		}
		if pruned > 0 {
			slog.Debug("Pruned expired statistics", "count", pruned)
		}
	}

	slog.Debug("Sampled statistics",
		"pages", totals.PageCount, "indexed", totals.IndexedPageCount,
		"queue", totals.QueueSize, "words", totals.WordCount)
	return nil
}
