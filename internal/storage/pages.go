package storage

import (
	"database/sql"
	"fmt"
)

// Page mirrors one row of the pages table. Empty metadata strings are stored
// as NULL; IndexedAt is zero until the indexer has processed the page.
type Page struct {
	ID              int64
	Domain          string
	URL             string
	Title           string
	FaviconID       int64
	Content         string
	Body            string
	BodyLength      int
	ContentType     string
	ResponseTime    int // milliseconds
	StatusCode      int
	CrawledAt       int64
	IndexedAt       int64
	SEOScore        int
	MetaDescription string
	MetaKeywords    string
	MetaThemeColor  string
	MetaOGImage     string
}

// UpsertPage creates or refreshes a page row keyed by URL and returns its id.
// A re-crawl overwrites the crawl-owned columns in place and clears nothing
// the indexer owns except implicitly: indexed_at stays put, and the indexer
// notices crawled_at > indexed_at.
func (s *Store) UpsertPage(p *Page) (int64, error) {
	if p.CrawledAt == 0 {
		p.CrawledAt = nowMillis()
	}

	var id int64
	err := s.db.QueryRow(`
		INSERT INTO pages (
			domain, url, title, favicon_id, content, body, body_length,
			content_type, response_time, status_code, crawled_at, seo_score,
			meta_description, meta_keywords, meta_theme_color, meta_og_image
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			domain = excluded.domain,
			title = excluded.title,
			favicon_id = excluded.favicon_id,
			content = excluded.content,
			body = excluded.body,
			body_length = excluded.body_length,
			content_type = excluded.content_type,
			response_time = excluded.response_time,
			status_code = excluded.status_code,
			crawled_at = excluded.crawled_at,
			seo_score = excluded.seo_score,
			meta_description = excluded.meta_description,
			meta_keywords = excluded.meta_keywords,
			meta_theme_color = excluded.meta_theme_color,
			meta_og_image = excluded.meta_og_image
		RETURNING id
	`,
		p.Domain, p.URL, nullString(p.Title), p.FaviconID, nullString(p.Content),
		nullString(p.Body), p.BodyLength, p.ContentType, p.ResponseTime,
		p.StatusCode, p.CrawledAt, p.SEOScore,
		nullString(p.MetaDescription), nullString(p.MetaKeywords),
		nullString(p.MetaThemeColor), nullString(p.MetaOGImage),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert page %s: %w", p.URL, err)
	}
	p.ID = id
	return id, nil
}

// GetPageID resolves a URL to its page id, returning (0, nil) when unknown.
func (s *Store) GetPageID(url string) (int64, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM pages WHERE url = ?", url).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up page %s: %w", url, err)
	}
	return id, nil
}

// GetPage loads a full page row by id.
func (s *Store) GetPage(id int64) (*Page, error) {
	row := s.db.QueryRow(`
		SELECT id, domain, url, title, favicon_id, content, body, body_length,
		       content_type, response_time, status_code, crawled_at, indexed_at,
		       seo_score, meta_description, meta_keywords, meta_theme_color, meta_og_image
		FROM pages WHERE id = ?
	`, id)
	p, err := scanPage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load page %d: %w", id, err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(r rowScanner) (*Page, error) {
	var p Page
	var title, content, body, desc, keywords, theme, og sql.NullString
	var indexedAt sql.NullInt64
	err := r.Scan(
		&p.ID, &p.Domain, &p.URL, &title, &p.FaviconID, &content, &body,
		&p.BodyLength, &p.ContentType, &p.ResponseTime, &p.StatusCode,
		&p.CrawledAt, &indexedAt, &p.SEOScore, &desc, &keywords, &theme, &og,
	)
	if err != nil {
		return nil, err
	}
	p.Title = title.String
	p.Content = content.String
	p.Body = body.String
	p.IndexedAt = indexedAt.Int64
	p.MetaDescription = desc.String
	p.MetaKeywords = keywords.String
	p.MetaThemeColor = theme.String
	p.MetaOGImage = og.String
	return &p, nil
}

// UpsertFavicon records a favicon URL and returns its row id. Many pages
// share one favicon row; the insert is idempotent on the URL.
func (s *Store) UpsertFavicon(url string) (int64, error) {
	var id int64
	err := s.db.QueryRow(`
		INSERT INTO favicons (url) VALUES (?)
		ON CONFLICT(url) DO UPDATE SET url = excluded.url
		RETURNING id
	`, url).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert favicon %s: %w", url, err)
	}
	return id, nil
}

// Favicon is one favicons row.
type Favicon struct {
	ID  int64
	URL string
}

// ListFavicons returns every favicon row, for the downloader's missing-file
// sweep.
func (s *Store) ListFavicons() ([]Favicon, error) {
	rows, err := s.db.Query("SELECT id, url FROM favicons ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list favicons: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Favicon
	for rows.Next() {
		var f Favicon
		if err := rows.Scan(&f.ID, &f.URL); err != nil {
			return nil, fmt.Errorf("failed to scan favicon: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// InsertLinks records directed edges from one page to a set of destination
// pages, coalesced per destination.
func (s *Store) InsertLinks(fromPageID int64, toPageIDs []int64) error {
	if len(toPageIDs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO links (from_page_id, to_page_id)
		SELECT ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM links WHERE from_page_id = ? AND to_page_id = ?
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	seen := make(map[int64]struct{}, len(toPageIDs))
	for _, to := range toPageIDs {
		if to == fromPageID {
			continue // self-links carry no authority signal
		}
		if _, dup := seen[to]; dup {
			continue
		}
		seen[to] = struct{}{}
		if _, err := stmt.Exec(fromPageID, to, fromPageID, to); err != nil {
			return fmt.Errorf("failed to insert link %d->%d: %w", fromPageID, to, err)
		}
	}

	return tx.Commit()
}

// InboundLinkCount returns the number of links pointing at a page.
func (s *Store) InboundLinkCount(pageID int64) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM links WHERE to_page_id = ?", pageID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count inbound links: %w", err)
	}
	return n, nil
}
