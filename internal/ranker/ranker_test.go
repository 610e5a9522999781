package ranker

import (
	"path/filepath"
	"testing"

	"github.com/spidex/spidex/internal/config"
	"github.com/spidex/spidex/internal/indexer"
	"github.com/spidex/spidex/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, *storage.Store) {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "ranker.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	engine := NewEngine(cfg.Ranking, store, indexer.NewTokenizer(cfg.Indexer))
	return engine, store
}

func addIndexedPage(t *testing.T, store *storage.Store, url, body string, seo int) int64 {
	t.Helper()

	tok := indexer.NewTokenizer(config.Default().Indexer)
	id, err := store.UpsertPage(&storage.Page{
		Domain:     "example.com",
		URL:        url,
		Title:      "Page",
		Body:       body,
		BodyLength: len(body),
		StatusCode: 200,
		SEOScore:   seo,
	})
	if err != nil {
		t.Fatalf("UpsertPage failed: %v", err)
	}
	if err := store.IndexPage(id, tok.TermCounts(body)); err != nil {
		t.Fatalf("IndexPage failed: %v", err)
	}
	return id
}

func TestSearchANDSemantics(t *testing.T) {
	engine, store := newTestEngine(t)

	both := addIndexedPage(t, store, "https://example.com/both", "apples oranges", 0)
	addIndexedPage(t, store, "https://example.com/apples", "apples only here", 0)
	addIndexedPage(t, store, "https://example.com/oranges", "oranges only here", 0)

	results, err := engine.Search("apples oranges", 10, 0, "test")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Search returned %d results, want 1", len(results))
	}
	if results[0].Page.ID != both {
		t.Errorf("result = page %d, want %d", results[0].Page.ID, both)
	}
}

func TestSearchORFallback(t *testing.T) {
	engine, store := newTestEngine(t)

	addIndexedPage(t, store, "https://example.com/apples", "apples only", 0)
	addIndexedPage(t, store, "https://example.com/oranges", "oranges only", 0)

	// No page holds both terms; the OR fallback returns both pages.
	results, err := engine.Search("apples oranges", 10, 0, "test")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("fallback returned %d results, want 2", len(results))
	}
}

func TestSearchORFallbackDisabled(t *testing.T) {
	engine, store := newTestEngine(t)
	engine.cfg.OrFallback = false

	addIndexedPage(t, store, "https://example.com/apples", "apples only", 0)
	addIndexedPage(t, store, "https://example.com/oranges", "oranges only", 0)

	results, err := engine.Search("apples oranges", 10, 0, "test")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search returned %d results with fallback disabled, want 0", len(results))
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	engine, _ := newTestEngine(t)

	results, err := engine.Search("the and of", 10, 0, "test")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results != nil {
		t.Errorf("stopword-only query returned %v, want nil", results)
	}
}

func TestSearchVoteMonotonicity(t *testing.T) {
	engine, store := newTestEngine(t)

	// Two pages identical in every crawl-derived signal.
	liked := addIndexedPage(t, store, "https://example.com/liked", "same words here", 50)
	other := addIndexedPage(t, store, "https://example.com/other", "same words here", 50)

	if err := store.UpsertVote(liked, "1.1.1.1", "fp-1", storage.VoteLike); err != nil {
		t.Fatalf("UpsertVote failed: %v", err)
	}

	results, err := engine.Search("same words", 10, 0, "test")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search returned %d results, want 2", len(results))
	}
	if results[0].Page.ID != liked {
		t.Errorf("liked page ranked below its twin")
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("liked score %v not above %v", results[0].Score, results[1].Score)
	}

	// A dislike on the other page pushes it further down, never up.
	if err := store.UpsertVote(other, "2.2.2.2", "fp-2", storage.VoteDislike); err != nil {
		t.Fatalf("UpsertVote failed: %v", err)
	}
	again, err := engine.Search("same words", 10, 0, "test")
	if err != nil {
		t.Fatalf("second Search failed: %v", err)
	}
	if again[1].Score >= results[1].Score {
		t.Errorf("dislike raised score: %v -> %v", results[1].Score, again[1].Score)
	}
}

func TestSearchAuthoritySignal(t *testing.T) {
	engine, store := newTestEngine(t)

	popular := addIndexedPage(t, store, "https://example.com/popular", "shared term text", 0)
	obscure := addIndexedPage(t, store, "https://example.com/obscure", "shared term text", 0)
	linker := addIndexedPage(t, store, "https://example.com/linker", "unrelated", 0)

	if err := store.InsertLinks(linker, []int64{popular}); err != nil {
		t.Fatalf("InsertLinks failed: %v", err)
	}

	results, err := engine.Search("shared term", 10, 0, "test")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search returned %d results, want 2", len(results))
	}
	if results[0].Page.ID != popular {
		t.Errorf("linked page %d not ranked above %d", popular, obscure)
	}
}

func TestSearchCustomAuthority(t *testing.T) {
	engine, store := newTestEngine(t)

	a := addIndexedPage(t, store, "https://example.com/a", "term", 0)
	addIndexedPage(t, store, "https://example.com/b", "term", 0)

	// Inverted authority: the page with id a always wins.
	engine.SetAuthority(func(c *storage.Candidate) float64 {
		if c.Page.ID == a {
			return 100
		}
		return 0
	})

	results, err := engine.Search("term", 10, 0, "test")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 || results[0].Page.ID != a {
		t.Errorf("custom authority not applied: %+v", results)
	}
}

func TestSearchPagination(t *testing.T) {
	engine, store := newTestEngine(t)

	for i := 0; i < 5; i++ {
		addIndexedPage(t, store,
			"https://example.com/p"+string(rune('a'+i)), "common token", 10*i)
	}

	page1, err := engine.Search("common token", 2, 0, "test")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	page2, err := engine.Search("common token", 2, 2, "test")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(page1) != 2 || len(page2) != 2 {
		t.Fatalf("page sizes = %d/%d, want 2/2", len(page1), len(page2))
	}
	if page1[0].Page.ID == page2[0].Page.ID {
		t.Error("pagination returned overlapping pages")
	}

	beyond, err := engine.Search("common token", 2, 100, "test")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(beyond) != 0 {
		t.Errorf("offset beyond results returned %d items", len(beyond))
	}
}
