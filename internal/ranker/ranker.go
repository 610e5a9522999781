// Package ranker resolves search queries against the inverted index and
// orders the results by a composite relevance score.
package ranker

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/spidex/spidex/internal/config"
	"github.com/spidex/spidex/internal/indexer"
	"github.com/spidex/spidex/internal/storage"
)

// AuthorityFunc maps a candidate's link signals to a score contribution.
// It is a seam for richer graph scoring; the default is log-scaled inbound
// link count.
type AuthorityFunc func(c *storage.Candidate) float64

// DefaultAuthority dampens inbound link counts logarithmically so a page
// with thousands of links cannot drown out every other signal.
func DefaultAuthority(c *storage.Candidate) float64 {
	return math.Log1p(float64(c.InboundLinks))
}

// Result is one scored search result, carrying the engagement counters the
// API surfaces alongside the page.
type Result struct {
	Page      storage.Page
	Score     float64
	TermCount int
	Likes     int
	Dislikes  int
}

// Engine is the query engine.
type Engine struct {
	cfg       config.RankingConfig
	store     *storage.Store
	tokenizer *indexer.Tokenizer
	authority AuthorityFunc
}

// NewEngine creates a query engine. The tokenizer must be configured like
// the indexer's, or stored and queried terms will not line up.
func NewEngine(cfg config.RankingConfig, store *storage.Store, tokenizer *indexer.Tokenizer) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     store,
		tokenizer: tokenizer,
		authority: DefaultAuthority,
	}
}

// SetAuthority replaces the authority scoring function.
func (e *Engine) SetAuthority(fn AuthorityFunc) {
	if fn != nil {
		e.authority = fn
	}
}

// Search resolves a free-text query and returns results ordered by score.
// All query terms must match; when nothing does and the OR fallback is
// enabled, pages matching any term are returned instead. The query and the
// impressions of the returned pages are recorded in the background, so a
// logging failure can never fail the search.
func (e *Engine) Search(query string, limit, offset int, userAgent string) ([]Result, error) {
	start := time.Now()

	tokens := e.tokenizer.Tokenize(query)
	tokens = dedupe(tokens)
	if len(tokens) == 0 {
		return nil, nil
	}

	candidates, err := e.store.SearchCandidates(tokens, true, e.cfg.MaxCandidates)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 && e.cfg.OrFallback && len(tokens) > 1 {
		candidates, err = e.store.SearchCandidates(tokens, false, e.cfg.MaxCandidates)
		if err != nil {
			return nil, err
		}
	}

	results := make([]Result, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		results = append(results, Result{
			Page:      c.Page,
			Score:     e.score(c),
			TermCount: c.TermCount,
			Likes:     c.Likes,
			Dislikes:  c.Dislikes,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		// Equal scores: newer crawl wins.
		return results[i].Page.CrawledAt > results[j].Page.CrawledAt
	})

	total := len(results)
	results = paginate(results, limit, offset)

	go e.record(query, results, total, time.Since(start), userAgent)

	return results, nil
}

// score folds the candidate's signals into one number. Each component is
// normalized before weighting so no single raw count dominates.
func (e *Engine) score(c *storage.Candidate) float64 {
	w := e.cfg.Weights

	// Term density rather than raw frequency, so long pages are not
	// automatically better.
	termMatch := float64(c.TermCount)
	if c.Page.BodyLength > 0 {
		termMatch = float64(c.TermCount) / float64(c.Page.BodyLength) * 1000
	}

	seo := float64(c.Page.SEOScore) / 100

	engagement := float64(c.Likes - c.Dislikes)
	if c.Impressions > 0 {
		engagement += float64(c.Clicks) / float64(c.Impressions)
	}

	return w.TermMatch*termMatch + w.SEO*seo + w.Authority*e.authority(c) + w.Engagement*engagement
}

// record logs the query and counts impressions for the served pages.
func (e *Engine) record(query string, served []Result, total int, elapsed time.Duration, userAgent string) {
	err := e.store.LogQuery(storage.QueryLog{
		Query:       query,
		SearchTime:  int(elapsed.Microseconds()),
		ResultCount: total,
		UserAgent:   userAgent,
	})
	if err != nil {
		slog.Error("Failed to log query", "query", query, "error", err)
	}

	if len(served) == 0 {
		return
	}
	pageIDs := make([]int64, len(served))
	for i, r := range served {
		pageIDs[i] = r.Page.ID
	}
	if err := e.store.IncrementImpressions(pageIDs); err != nil {
		slog.Error("Failed to record impressions", "error", err)
	}
}

func dedupe(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func paginate(results []Result, limit, offset int) []Result {
	if offset >= len(results) {
		return nil
	}
	results = results[offset:]
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}
