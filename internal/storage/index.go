package storage

import (
	"fmt"
)

// PagesToIndex returns up to limit pages whose body has never been indexed
// or has been re-crawled since the last indexing pass.
func (s *Store) PagesToIndex(limit int) ([]*Page, error) {
	rows, err := s.db.Query(`
		SELECT id, domain, url, title, favicon_id, content, body, body_length,
		       content_type, response_time, status_code, crawled_at, indexed_at,
		       seo_score, meta_description, meta_keywords, meta_theme_color, meta_og_image
		FROM pages
		WHERE indexed_at IS NULL OR crawled_at > indexed_at
		ORDER BY crawled_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages to index: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pages []*Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// IndexPage replaces the page's postings with freshly computed term
// frequencies and stamps indexed_at, all in one transaction. A crash
// mid-write rolls back entirely, so the page is never marked indexed with a
// partial posting set. Re-running on unchanged counts yields identical rows.
func (s *Store) IndexPage(pageID int64, counts map[string]int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if len(counts) > 0 {
		insertWord, err := tx.Prepare("INSERT OR IGNORE INTO words (word) VALUES (?)")
		if err != nil {
			return fmt.Errorf("failed to prepare word insert: %w", err)
		}
		selectWord, err := tx.Prepare("SELECT id FROM words WHERE word = ?")
		if err != nil {
			_ = insertWord.Close()
			return fmt.Errorf("failed to prepare word lookup: %w", err)
		}

		wordIDs := make(map[string]int64, len(counts))
		for word := range counts {
			if _, err := insertWord.Exec(word); err != nil {
				_ = insertWord.Close()
				_ = selectWord.Close()
				return fmt.Errorf("failed to insert word %q: %w", word, err)
			}
			var id int64
			if err := selectWord.QueryRow(word).Scan(&id); err != nil {
				_ = insertWord.Close()
				_ = selectWord.Close()
				return fmt.Errorf("failed to resolve word %q: %w", word, err)
			}
			wordIDs[word] = id
		}
		_ = insertWord.Close()
		_ = selectWord.Close()

		// Drop the previous crawl's postings so words that disappeared from
		// the body leave no stale counts behind.
		if _, err := tx.Exec("DELETE FROM indexes WHERE page_id = ?", pageID); err != nil {
			return fmt.Errorf("failed to clear old postings: %w", err)
		}

		insertPosting, err := tx.Prepare(
			"INSERT INTO indexes (word_id, page_id, count) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare posting insert: %w", err)
		}
		for word, count := range counts {
			if _, err := insertPosting.Exec(wordIDs[word], pageID, count); err != nil {
				_ = insertPosting.Close()
				return fmt.Errorf("failed to insert posting (%q, %d): %w", word, pageID, err)
			}
		}
		_ = insertPosting.Close()
	} else {
		if _, err := tx.Exec("DELETE FROM indexes WHERE page_id = ?", pageID); err != nil {
			return fmt.Errorf("failed to clear old postings: %w", err)
		}
	}

	if _, err := tx.Exec(
		"UPDATE pages SET indexed_at = ? WHERE id = ?", nowMillis(), pageID); err != nil {
		return fmt.Errorf("failed to mark page indexed: %w", err)
	}

	return tx.Commit()
}

// PostingCounts returns the page's postings keyed by word.
func (s *Store) PostingCounts(pageID int64) (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT w.word, i.count
		FROM indexes i
		JOIN words w ON w.id = i.word_id
		WHERE i.page_id = ?
	`, pageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query postings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var word string
		var count int
		if err := rows.Scan(&word, &count); err != nil {
			return nil, fmt.Errorf("failed to scan posting: %w", err)
		}
		counts[word] = count
	}
	return counts, rows.Err()
}
