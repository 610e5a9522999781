package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spidex/spidex/internal/config"
	"github.com/spidex/spidex/internal/storage"
)

// Service is the indexing service. It drains crawl notifications when they
// arrive and polls the store for unindexed pages otherwise, so it misses
// nothing even when notifications are dropped or it starts after the crawl.
type Service struct {
	cfg       config.IndexerConfig
	store     *storage.Store
	tokenizer *Tokenizer
	notify    <-chan int64 // may be nil when running standalone
}

// NewService creates an indexing service. notify carries page ids from the
// crawler and may be nil.
func NewService(cfg config.IndexerConfig, store *storage.Store, notify <-chan int64) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		tokenizer: NewTokenizer(cfg),
		notify:    notify,
	}
}

// Run processes pages until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	slog.Info("Indexer started", "batch_size", s.cfg.BatchSize, "poll_interval", s.cfg.PollInterval)

	timer := time.NewTimer(0) // index the backlog immediately on startup
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Indexer stopped")
			return ctx.Err()

		case pageID, ok := <-s.notify:
			if !ok {
				s.notify = nil
				continue
			}
			if err := s.indexByID(pageID); err != nil {
				slog.Error("Failed to index notified page", "page_id", pageID, "error", err)
			}

		case <-timer.C:
			n, err := s.IndexPending()
			if err != nil {
				slog.Error("Indexing pass failed", "error", err)
			} else if n > 0 {
				slog.Info("Indexed pages", "count", n)
			}
			timer.Reset(s.cfg.PollInterval)
		}
	}
}

// IndexPending indexes every page whose body is newer than its last indexing
// pass, in batches, and returns the number of pages processed.
func (s *Service) IndexPending() (int, error) {
	total := 0
	for {
		pages, err := s.store.PagesToIndex(s.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("failed to load pages to index: %w", err)
		}
		if len(pages) == 0 {
			return total, nil
		}

		for _, page := range pages {
			if err := s.indexPage(page); err != nil {
				return total, err
			}
			total++
		}

		if len(pages) < s.cfg.BatchSize {
			return total, nil
		}
	}
}

func (s *Service) indexByID(pageID int64) error {
	page, err := s.store.GetPage(pageID)
	if err != nil {
		return err
	}
	if page == nil {
		return nil
	}
	// Already indexed and unchanged since; the notification was stale.
	if page.IndexedAt != 0 && page.IndexedAt >= page.CrawledAt {
		return nil
	}
	return s.indexPage(page)
}

// indexPage replaces the page's postings with the term frequencies of its
// current body text. Indexing the same body twice is a no-op.
func (s *Service) indexPage(page *storage.Page) error {
	counts := s.tokenizer.TermCounts(page.Body)
	if err := s.store.IndexPage(page.ID, counts); err != nil {
		return fmt.Errorf("failed to index page %d: %w", page.ID, err)
	}
	slog.Debug("Indexed page", "page_id", page.ID, "url", page.URL, "terms", len(counts))
	return nil
}
