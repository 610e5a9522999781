// Package crawler provides the core web crawling functionality.
// It implements a concurrent, frontier-based crawler with per-domain
// politeness, robots.txt compliance, on-page SEO scoring and link graph
// capture. Workers compete for frontier entries through atomic claims, so
// any number of them can run against one store without coordination.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/spidex/spidex/internal/config"
	"github.com/spidex/spidex/internal/parser"
	"github.com/spidex/spidex/internal/storage"
)

// Service is the crawl service.
type Service struct {
	cfg         *config.Config
	store       *storage.Store
	httpClient  *HTTPClient
	rateLimiter *RateLimiter
	robots      *RobotsParser
	notify      chan<- int64 // page ids handed to the indexer, nil when detached

	stats         CrawlStats
	statsMutex    sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	activeWorkers int
	workersMutex  sync.Mutex
}

// CrawlStats represents crawling statistics.
type CrawlStats struct {
	PagesCrawled int
	PagesDropped int
	ErrorCount   int
	StartTime    time.Time
	Duration     time.Duration
}

// NewService creates a crawl service. notify may be nil; when set, the id of
// every persisted page is offered to it without blocking, so a slow indexer
// only loses hints, never stalls the crawl.
func NewService(cfg *config.Config, store *storage.Store, notify chan<- int64) *Service {
	httpClient := NewHTTPClient(
		cfg.UserAgent,
		cfg.Crawler.RequestTimeout,
		cfg.Crawler.MaxBodySize,
		cfg.Crawler.MaxRedirects,
	)

	return &Service{
		cfg:         cfg,
		store:       store,
		httpClient:  httpClient,
		rateLimiter: NewRateLimiter(cfg.Crawler.PolitenessWindow),
		robots:      NewRobotsParser(httpClient, !cfg.Crawler.RespectRobots),
		notify:      notify,
		stats:       CrawlStats{StartTime: time.Now()},
	}
}

// Start seeds the frontier, recovers stale claims from a previous run and
// runs the worker pool until the frontier drains or ctx is cancelled. With
// keep_alive set, workers idle on an empty frontier instead of exiting, so
// URLs submitted later are still picked up.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()

	reclaimed, err := s.store.ReclaimStale(s.cfg.Crawler.StaleClaimAfter)
	if err != nil {
		return fmt.Errorf("failed to reclaim stale entries: %w", err)
	}
	if reclaimed > 0 {
		slog.Info("Reclaimed stale frontier entries", "count", reclaimed)
	}

	if len(s.cfg.Crawler.SeedURLs) > 0 {
		added, err := s.enqueueSeeds(s.cfg.Crawler.SeedURLs)
		if err != nil {
			return err
		}
		slog.Info("Seeded frontier", "seed_urls", len(s.cfg.Crawler.SeedURLs), "added", added)
	} else {
		slog.Info("Starting crawler, resuming from existing frontier")
	}

	s.activeWorkers = s.cfg.Crawler.Workers
	for i := 0; i < s.cfg.Crawler.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go s.statsReporter()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Crawling completed")
	case <-s.ctx.Done():
		slog.Info("Crawling cancelled")
	}

	return nil
}

// Stop stops the crawling process.
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.httpClient.Close()
	return nil
}

// GetStats returns current crawling statistics.
func (s *Service) GetStats() CrawlStats {
	s.statsMutex.RLock()
	defer s.statsMutex.RUnlock()

	stats := s.stats
	stats.Duration = time.Since(stats.StartTime)
	return stats
}

func (s *Service) enqueueSeeds(seeds []string) (int, error) {
	entries := make([]storage.NewFrontierEntry, 0, len(seeds))
	for _, seed := range seeds {
		normalized, err := NormalizeURL(seed)
		if err != nil {
			slog.Warn("Skipping invalid seed URL", "url", seed, "error", err)
			continue
		}
		entries = append(entries, storage.NewFrontierEntry{
			Domain: DomainOf(normalized),
			URL:    normalized,
		})
	}

	added, err := s.store.Enqueue(entries)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue seeds: %w", err)
	}
	return added, nil
}

// worker claims and processes frontier entries until the frontier drains,
// the page limit is reached or the context is cancelled.
func (s *Service) worker(id int) {
	defer s.wg.Done()
	defer s.handleWorkerShutdown(id)

	slog.Debug("Worker started", "worker_id", id)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			if s.limitReached() {
				slog.Info("Worker reached page limit", "worker_id", id)
				return
			}

			batch, err := s.store.ClaimBatch(s.cfg.Crawler.ClaimBatchSize, s.cfg.Crawler.PolitenessWindow)
			if err != nil {
				slog.Error("Worker failed to claim batch", "worker_id", id, "error", err)
				s.workerSleep()
				continue
			}

			if len(batch) == 0 {
				remaining, err := s.store.HasQueuedItems()
				if err == nil && !remaining {
					if !s.cfg.Crawler.KeepAlive {
						slog.Debug("Worker frontier drained, exiting", "worker_id", id)
						return
					}
					// Stay alive for late submissions: the API's
					// request-url endpoint can repopulate the frontier
					// at any time.
				}
				// Nothing claimable right now; wait and re-poll.
				s.workerSleep()
				continue
			}

			for _, entry := range batch {
				if s.ctx.Err() != nil {
					return
				}
				s.processEntry(id, entry)
			}
		}
	}
}

func (s *Service) handleWorkerShutdown(id int) {
	s.workersMutex.Lock()
	s.activeWorkers--
	if s.activeWorkers == 0 {
		// All workers are done, cancel context to stop the stats reporter
		s.cancel()
	}
	s.workersMutex.Unlock()
	slog.Debug("Worker stopped", "worker_id", id)
}

func (s *Service) limitReached() bool {
	s.statsMutex.RLock()
	defer s.statsMutex.RUnlock()
	return s.cfg.Crawler.Limit > 0 && s.stats.PagesCrawled >= s.cfg.Crawler.Limit
}

func (s *Service) workerSleep() {
	select {
	case <-s.ctx.Done():
	case <-time.After(s.cfg.Crawler.PolitenessWindow):
	}
}

// processEntry runs one claimed URL through the full pipeline: robots check,
// rate limit, fetch, extract, persist, link capture, frontier growth.
func (s *Service) processEntry(id int, entry storage.FrontierEntry) {
	allowed, err := s.robots.IsAllowed(s.ctx, entry.URL, s.cfg.UserAgent)
	if err != nil {
		slog.Warn("Worker robots.txt check failed", "worker_id", id, "url", entry.URL, "error", err)
	}
	if !allowed {
		slog.Info("URL disallowed by robots.txt", "worker_id", id, "url", entry.URL)
		s.completeEntry(id, entry)
		return
	}

	if delay := s.robots.GetCrawlDelay(entry.Domain); delay > s.cfg.Crawler.PolitenessWindow {
		s.rateLimiter.SetDomainDelay(entry.Domain, delay)
	}

	if err := s.rateLimiter.Wait(s.ctx, entry.URL); err != nil {
		if s.ctx.Err() == nil {
			slog.Error("Worker rate limiting error", "worker_id", id, "error", err)
		}
		return
	}

	result, err := s.httpClient.Get(s.ctx, entry.URL)
	if err != nil {
		s.handleFetchError(id, entry, err)
		return
	}

	s.handleFetchResult(id, entry, result)
}

// handleFetchError releases the claim for a retry, or drops the entry when
// its attempts are exhausted.
func (s *Service) handleFetchError(id int, entry storage.FrontierEntry, err error) {
	if s.ctx.Err() != nil {
		// Cancellation mid-fetch; the stale-claim sweep recovers the entry.
		return
	}

	var fetchErr *FetchError
	retryable := errors.As(err, &fetchErr) && fetchErr.Kind == ErrKindNetwork

	s.incrementErrorCount()

	if !retryable {
		slog.Warn("Worker dropping unfetchable URL", "worker_id", id, "url", entry.URL, "error", err)
		if err := s.store.CompleteClaim(entry.ID); err != nil {
			slog.Error("Worker failed to drop entry", "worker_id", id, "error", err)
		}
		return
	}

	dropped, relErr := s.store.ReleaseClaim(entry.ID, s.cfg.Crawler.MaxAttempts)
	if relErr != nil {
		slog.Error("Worker failed to release claim", "worker_id", id, "error", relErr)
		return
	}
	if dropped {
		slog.Warn("Worker dropped URL after repeated failures",
			"worker_id", id, "url", entry.URL, "attempts", entry.Attempts+1, "error", err)
		s.incrementDroppedCount()
	} else {
		slog.Info("Worker released URL for retry",
			"worker_id", id, "url", entry.URL, "attempts", entry.Attempts+1, "error", err)
	}
}

func (s *Service) handleFetchResult(id int, entry storage.FrontierEntry, result *FetchResult) {
	page := &storage.Page{
		Domain:       entry.Domain,
		URL:          entry.URL,
		ContentType:  result.ContentType,
		ResponseTime: int(result.ResponseTime.Milliseconds()),
		StatusCode:   result.StatusCode,
	}

	var parsed *parser.ParseResult
	if result.StatusCode >= 200 && result.StatusCode < 300 && result.IsHTML() {
		p, err := parser.NewHTMLParser(result.FinalURL, s.cfg.Crawler.MaxURLLength)
		if err == nil {
			parsed, err = p.Parse(result.Body)
		}
		if err != nil {
			slog.Warn("Worker failed to parse page", "worker_id", id, "url", entry.URL, "error", err)
			parsed = nil
		}
	}

	if parsed != nil {
		page.Title = parsed.Title
		page.Content = string(result.Body)
		page.Body = parsed.Body
		page.BodyLength = len(parsed.Body)
		page.SEOScore = SEOScore(s.cfg.SEO, parsed)
		page.MetaDescription = parsed.MetaDesc
		page.MetaKeywords = parsed.MetaKeywords
		page.MetaThemeColor = parsed.MetaThemeColor
		page.MetaOGImage = parsed.MetaOGImage
		page.FaviconID = s.resolveFavicon(id, result.FinalURL, parsed.FaviconURL)
	}

	pageID, err := s.store.UpsertPage(page)
	if err != nil {
		slog.Error("Worker failed to save page", "worker_id", id, "url", entry.URL, "error", err)
		s.incrementErrorCount()
		s.completeEntry(id, entry)
		return
	}

	s.completeEntry(id, entry)
	s.incrementCrawledCount()

	if parsed != nil {
		s.recordLinks(id, pageID, parsed.Links)
		s.notifyIndexer(pageID)
	}

	slog.Info("Worker crawled URL", "worker_id", id, "url", entry.URL,
		"status", result.StatusCode, "links", linkCount(parsed))
}

func (s *Service) completeEntry(id int, entry storage.FrontierEntry) {
	if err := s.store.CompleteClaim(entry.ID); err != nil {
		slog.Error("Worker failed to complete claim", "worker_id", id, "error", err)
	}
}

// resolveFavicon registers the page's declared favicon, falling back to the
// conventional /favicon.ico location. Returns 0 when no favicon applies.
func (s *Service) resolveFavicon(id int, pageURL, declared string) int64 {
	faviconURL := declared
	if faviconURL == "" {
		u, err := url.Parse(pageURL)
		if err != nil {
			return 0
		}
		faviconURL = u.Scheme + "://" + u.Host + "/favicon.ico"
	}

	faviconID, err := s.store.UpsertFavicon(faviconURL)
	if err != nil {
		slog.Error("Worker failed to save favicon", "worker_id", id, "url", faviconURL, "error", err)
		return 0
	}
	return faviconID
}

// recordLinks stores edges to already-known pages and grows the frontier
// with the rest.
func (s *Service) recordLinks(id int, fromPageID int64, links []string) {
	var toPageIDs []int64
	var discovered []storage.NewFrontierEntry

	for _, link := range links {
		toID, err := s.store.GetPageID(link)
		if err != nil {
			slog.Error("Worker failed to resolve link target", "worker_id", id, "url", link, "error", err)
			continue
		}
		if toID != 0 {
			toPageIDs = append(toPageIDs, toID)
			continue
		}
		discovered = append(discovered, storage.NewFrontierEntry{
			Domain: DomainOf(link),
			URL:    link,
		})
	}

	if err := s.store.InsertLinks(fromPageID, toPageIDs); err != nil {
		slog.Error("Worker failed to save links", "worker_id", id, "error", err)
	}

	if len(discovered) > 0 {
		added, err := s.store.Enqueue(discovered)
		if err != nil {
			slog.Error("Worker failed to enqueue discovered URLs", "worker_id", id, "error", err)
		} else if added > 0 {
			slog.Debug("Worker enqueued discovered URLs", "worker_id", id, "count", added)
		}
	}
}

func (s *Service) notifyIndexer(pageID int64) {
	if s.notify == nil {
		return
	}
	select {
	case s.notify <- pageID:
	default:
		// The indexer's poll loop picks the page up later.
	}
}

func linkCount(parsed *parser.ParseResult) int {
	if parsed == nil {
		return 0
	}
	return len(parsed.Links)
}

// statsReporter periodically reports crawling statistics.
func (s *Service) statsReporter() {
	defer s.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			claimable, inFlight, err := s.store.QueueStatus()
			if err != nil {
				slog.Error("Failed to get frontier status", "error", err)
				continue
			}

			stats := s.GetStats()
			slog.Info("Crawling stats", "crawled", stats.PagesCrawled,
				"claimable", claimable, "in_flight", inFlight,
				"dropped", stats.PagesDropped, "errors", stats.ErrorCount,
				"duration", stats.Duration)
		}
	}
}

func (s *Service) incrementCrawledCount() {
	s.statsMutex.Lock()
	defer s.statsMutex.Unlock()
	s.stats.PagesCrawled++
}

func (s *Service) incrementDroppedCount() {
	s.statsMutex.Lock()
	defer s.statsMutex.Unlock()
	s.stats.PagesDropped++
}

func (s *Service) incrementErrorCount() {
	s.statsMutex.Lock()
	defer s.statsMutex.Unlock()
	s.stats.ErrorCount++
}
