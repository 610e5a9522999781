package storage

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestEnqueueIdempotent(t *testing.T) {
	store := newTestStore(t)

	entries := []NewFrontierEntry{
		{Domain: "example.com", URL: "https://example.com/a"},
		{Domain: "example.com", URL: "https://example.com/b"},
	}

	added, err := store.Enqueue(entries)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if added != 2 {
		t.Errorf("first Enqueue added %d, want 2", added)
	}

	// Re-enqueueing the same URLs changes nothing.
	added, err = store.Enqueue(entries)
	if err != nil {
		t.Fatalf("second Enqueue failed: %v", err)
	}
	if added != 0 {
		t.Errorf("second Enqueue added %d, want 0", added)
	}

	claimable, _, err := store.QueueStatus()
	if err != nil {
		t.Fatalf("QueueStatus failed: %v", err)
	}
	if claimable != 2 {
		t.Errorf("claimable = %d, want 2", claimable)
	}
}

func TestEnqueueSkipsCrawledPages(t *testing.T) {
	store := newTestStore(t)

	addPage(t, store, "https://example.com/done", "body")

	err := store.EnqueueOne("example.com", "https://example.com/done")
	if !errors.Is(err, ErrAlreadyQueued) {
		t.Errorf("EnqueueOne on crawled URL = %v, want ErrAlreadyQueued", err)
	}

	has, err := store.HasQueuedItems()
	if err != nil {
		t.Fatalf("HasQueuedItems failed: %v", err)
	}
	if has {
		t.Error("crawled URL entered the frontier")
	}
}

func TestClaimBatchOnePerDomain(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Enqueue([]NewFrontierEntry{
		{Domain: "a.com", URL: "https://a.com/1"},
		{Domain: "a.com", URL: "https://a.com/2"},
		{Domain: "b.com", URL: "https://b.com/1"},
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	claimed, err := store.ClaimBatch(10, time.Minute)
	if err != nil {
		t.Fatalf("ClaimBatch failed: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d entries, want 2 (one per domain)", len(claimed))
	}

	domains := map[string]int{}
	for _, e := range claimed {
		domains[e.Domain]++
	}
	if domains["a.com"] != 1 || domains["b.com"] != 1 {
		t.Errorf("claims per domain = %v, want one each", domains)
	}

	// a.com is cooling down, so its second URL stays unclaimed.
	claimed, err = store.ClaimBatch(10, time.Minute)
	if err != nil {
		t.Fatalf("second ClaimBatch failed: %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("claimed %d entries during cool-down, want 0", len(claimed))
	}

	// With no cool-down the second a.com URL is claimable.
	claimed, err = store.ClaimBatch(10, 0)
	if err != nil {
		t.Fatalf("third ClaimBatch failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].URL != "https://a.com/2" {
		t.Errorf("claimed = %+v, want the remaining a.com URL", claimed)
	}
}

func TestConcurrentClaimsAreDisjoint(t *testing.T) {
	store := newTestStore(t)

	const n = 50
	entries := make([]NewFrontierEntry, n)
	for i := range entries {
		entries[i] = NewFrontierEntry{
			Domain: fmt.Sprintf("site%d.com", i),
			URL:    fmt.Sprintf("https://site%d.com/", i),
		}
	}
	if _, err := store.Enqueue(entries); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	const claimers = 8
	var mu sync.Mutex
	seen := make(map[int64]int)
	var wg sync.WaitGroup

	for w := 0; w < claimers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := store.ClaimBatch(5, 0)
				if err != nil {
					t.Errorf("ClaimBatch failed: %v", err)
					return
				}
				if len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, e := range claimed {
					seen[e.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("claimed %d distinct entries, want %d", len(seen), n)
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("entry %d claimed %d times", id, count)
		}
	}
}

func TestCompleteClaim(t *testing.T) {
	store := newTestStore(t)

	if err := store.EnqueueOne("example.com", "https://example.com/x"); err != nil {
		t.Fatalf("EnqueueOne failed: %v", err)
	}
	claimed, err := store.ClaimBatch(1, 0)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimBatch = (%v, %v), want one entry", claimed, err)
	}

	if err := store.CompleteClaim(claimed[0].ID); err != nil {
		t.Fatalf("CompleteClaim failed: %v", err)
	}

	has, err := store.HasQueuedItems()
	if err != nil {
		t.Fatalf("HasQueuedItems failed: %v", err)
	}
	if has {
		t.Error("completed entry still in frontier")
	}
}

func TestReleaseClaimRetriesThenDrops(t *testing.T) {
	store := newTestStore(t)

	if err := store.EnqueueOne("example.com", "https://example.com/flaky"); err != nil {
		t.Fatalf("EnqueueOne failed: %v", err)
	}

	const maxAttempts = 3
	for attempt := 1; attempt < maxAttempts; attempt++ {
		claimed, err := store.ClaimBatch(1, 0)
		if err != nil || len(claimed) != 1 {
			t.Fatalf("attempt %d: ClaimBatch = (%v, %v), want one entry", attempt, claimed, err)
		}

		dropped, err := store.ReleaseClaim(claimed[0].ID, maxAttempts)
		if err != nil {
			t.Fatalf("attempt %d: ReleaseClaim failed: %v", attempt, err)
		}
		if dropped {
			t.Fatalf("attempt %d: dropped early", attempt)
		}
	}

	claimed, err := store.ClaimBatch(1, 0)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("final ClaimBatch = (%v, %v), want one entry", claimed, err)
	}
	if claimed[0].Attempts != maxAttempts-1 {
		t.Errorf("attempts = %d, want %d", claimed[0].Attempts, maxAttempts-1)
	}

	dropped, err := store.ReleaseClaim(claimed[0].ID, maxAttempts)
	if err != nil {
		t.Fatalf("final ReleaseClaim failed: %v", err)
	}
	if !dropped {
		t.Error("entry not dropped after exhausting attempts")
	}

	has, err := store.HasQueuedItems()
	if err != nil {
		t.Fatalf("HasQueuedItems failed: %v", err)
	}
	if has {
		t.Error("dropped entry still in frontier")
	}
}

func TestReclaimStale(t *testing.T) {
	store := newTestStore(t)

	if err := store.EnqueueOne("example.com", "https://example.com/stuck"); err != nil {
		t.Fatalf("EnqueueOne failed: %v", err)
	}
	claimed, err := store.ClaimBatch(1, 0)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimBatch = (%v, %v), want one entry", claimed, err)
	}

	// A fresh claim is not stale.
	n, err := store.ReclaimStale(time.Hour)
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if n != 0 {
		t.Errorf("reclaimed %d fresh claims, want 0", n)
	}

	// With a zero threshold the claim is immediately stale.
	time.Sleep(5 * time.Millisecond)
	n, err = store.ReclaimStale(0)
	if err != nil {
		t.Fatalf("second ReclaimStale failed: %v", err)
	}
	if n != 1 {
		t.Errorf("reclaimed %d, want 1", n)
	}

	reclaimed, err := store.ClaimBatch(1, 0)
	if err != nil {
		t.Fatalf("re-claim failed: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0].ID != claimed[0].ID {
		t.Errorf("re-claim = %+v, want the original entry", reclaimed)
	}
}

func TestIsQueued(t *testing.T) {
	store := newTestStore(t)

	queued, err := store.IsQueued("https://example.com/q")
	if err != nil {
		t.Fatalf("IsQueued failed: %v", err)
	}
	if queued {
		t.Error("empty frontier reports URL as queued")
	}

	if err := store.EnqueueOne("example.com", "https://example.com/q"); err != nil {
		t.Fatalf("EnqueueOne failed: %v", err)
	}

	queued, err = store.IsQueued("https://example.com/q")
	if err != nil {
		t.Fatalf("IsQueued failed: %v", err)
	}
	if !queued {
		t.Error("enqueued URL not reported as queued")
	}
}
