package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyQueued reports that a URL is already present in the frontier or
// has already been crawled. Callers treat it as success.
var ErrAlreadyQueued = errors.New("url already queued or crawled")

// FrontierEntry is one claimable URL in the crawl frontier.
type FrontierEntry struct {
	ID         int64
	Domain     string
	URL        string
	EnqueuedAt int64
	Attempts   int
}

// NewFrontierEntry is a URL candidate for the frontier.
type NewFrontierEntry struct {
	Domain string
	URL    string
}

// Enqueue inserts the given URLs into the frontier, skipping any URL that is
// already queued or already exists as a crawled page. The uniqueness
// constraint makes concurrent enqueues of the same URL idempotent. Returns
// the number of rows actually inserted.
func (s *Store) Enqueue(entries []NewFrontierEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO queue (domain, url, enqueued_at)
		SELECT ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM pages WHERE url = ?)
		ON CONFLICT(url) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := nowMillis()
	added := 0
	for _, e := range entries {
		res, err := stmt.Exec(e.Domain, e.URL, now, e.URL)
		if err != nil {
			return added, fmt.Errorf("failed to enqueue %s: %w", e.URL, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	return added, tx.Commit()
}

// EnqueueOne inserts a single URL and reports ErrAlreadyQueued when the URL
// is already tracked.
func (s *Store) EnqueueOne(domain, url string) error {
	added, err := s.Enqueue([]NewFrontierEntry{{Domain: domain, URL: url}})
	if err != nil {
		return err
	}
	if added == 0 {
		return ErrAlreadyQueued
	}
	return nil
}

// ClaimBatch atomically claims up to n frontier entries, at most one per
// domain, skipping domains whose politeness cool-down has not elapsed. The
// claim is a single UPDATE ... RETURNING so no two callers can ever receive
// the same entry. It never blocks; when nothing is eligible it returns an
// empty slice.
func (s *Store) ClaimBatch(n int, cooldown time.Duration) ([]FrontierEntry, error) {
	if n <= 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := nowMillis()
	cutoff := now - cooldown.Milliseconds()

	rows, err := tx.Query(`
		UPDATE queue SET claimed_at = ?
		WHERE id IN (
			SELECT q.id FROM queue q
			JOIN (
				SELECT domain, MIN(id) AS min_id
				FROM queue
				WHERE claimed_at IS NULL
				GROUP BY domain
			) pick ON pick.min_id = q.id
			LEFT JOIN domains d ON d.domain = q.domain
			WHERE q.claimed_at IS NULL
			  AND (d.last_claimed_at IS NULL OR d.last_claimed_at <= ?)
			ORDER BY q.enqueued_at ASC
			LIMIT ?
		)
		RETURNING id, domain, url, enqueued_at, attempts
	`, now, cutoff, n)
	if err != nil {
		return nil, fmt.Errorf("failed to claim batch: %w", err)
	}

	var claimed []FrontierEntry
	for rows.Next() {
		var e FrontierEntry
		if err := rows.Scan(&e.ID, &e.Domain, &e.URL, &e.EnqueuedAt, &e.Attempts); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan claimed entry: %w", err)
		}
		claimed = append(claimed, e)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to read claimed entries: %w", err)
	}

	// Stamp the politeness window for the claimed domains in the same
	// transaction so a concurrent claimer observes it.
	for _, e := range claimed {
		if _, err := tx.Exec(`
			INSERT INTO domains (domain, last_claimed_at) VALUES (?, ?)
			ON CONFLICT(domain) DO UPDATE SET last_claimed_at = excluded.last_claimed_at
		`, e.Domain, now); err != nil {
			return nil, fmt.Errorf("failed to stamp domain %s: %w", e.Domain, err)
		}
	}

	return claimed, tx.Commit()
}

// CompleteClaim removes a claimed entry from the frontier once its URL has
// been fully processed.
func (s *Store) CompleteClaim(id int64) error {
	if _, err := s.db.Exec("DELETE FROM queue WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to complete claim: %w", err)
	}
	return nil
}

// ReleaseClaim returns a claimed entry to the claimable pool after a
// transient fetch failure, incrementing its attempt counter. Once the
// counter reaches maxAttempts the entry is dropped instead, keeping the
// frontier live. Returns true when the entry was dropped.
func (s *Store) ReleaseClaim(id int64, maxAttempts int) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE queue SET claimed_at = NULL, attempts = attempts + 1
		WHERE id = ? AND attempts + 1 < ?
	`, id, maxAttempts)
	if err != nil {
		return false, fmt.Errorf("failed to release claim: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}

	if _, err := s.db.Exec("DELETE FROM queue WHERE id = ?", id); err != nil {
		return false, fmt.Errorf("failed to drop exhausted entry: %w", err)
	}
	return true, nil
}

// ReclaimStale returns entries claimed longer than threshold ago to the
// claimable pool. Run at startup to recover URLs lost to a crash between
// claim and completion.
func (s *Store) ReclaimStale(threshold time.Duration) (int64, error) {
	cutoff := nowMillis() - threshold.Milliseconds()
	res, err := s.db.Exec(`
		UPDATE queue SET claimed_at = NULL
		WHERE claimed_at IS NOT NULL AND claimed_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// QueueStatus returns the number of claimable and in-flight entries.
func (s *Store) QueueStatus() (claimable int, inFlight int, err error) {
	err = s.db.QueryRow(`
		SELECT
			SUM(CASE WHEN claimed_at IS NULL THEN 1 ELSE 0 END),
			SUM(CASE WHEN claimed_at IS NOT NULL THEN 1 ELSE 0 END)
		FROM queue
	`).Scan(&sqlNullInt{&claimable}, &sqlNullInt{&inFlight})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get queue status: %w", err)
	}
	return claimable, inFlight, nil
}

// HasQueuedItems reports whether any frontier work remains.
func (s *Store) HasQueuedItems() (bool, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM queue").Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check queued items: %w", err)
	}
	return count > 0, nil
}

// IsQueued reports whether a URL is currently in the frontier.
func (s *Store) IsQueued(url string) (bool, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM queue WHERE url = ?", url).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check queue: %w", err)
	}
	return true, nil
}

// sqlNullInt scans a nullable aggregate into an int, mapping NULL to zero.
type sqlNullInt struct{ v *int }

func (n *sqlNullInt) Scan(src any) error {
	if src == nil {
		*n.v = 0
		return nil
	}
	switch x := src.(type) {
	case int64:
		*n.v = int(x)
	case float64:
		*n.v = int(x)
	default:
		return fmt.Errorf("unexpected aggregate type %T", src)
	}
	return nil
}
