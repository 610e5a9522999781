package storage

import (
	"fmt"
	"strings"
)

// Candidate is one page matched against a token set, carrying the raw
// signals the ranker folds into a composite score.
type Candidate struct {
	Page         Page
	TermCount    int // summed term frequency across matched query tokens
	MatchedWords int // distinct query tokens present in the page
	InboundLinks int
	Likes        int
	Dislikes     int
	Clicks       int
	Impressions  int
}

// SearchCandidates resolves the tokens against the inverted index and
// returns indexed pages containing all of them (or any of them when
// requireAll is false), along with their ranking signals. Only pages with a
// non-NULL indexed_at qualify; maxCandidates bounds the working set.
func (s *Store) SearchCandidates(tokens []string, requireAll bool, maxCandidates int) ([]Candidate, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(tokens)-1) + "?"
	args := make([]any, 0, len(tokens)+2)
	for _, t := range tokens {
		args = append(args, t)
	}

	minMatched := 1
	if requireAll {
		minMatched = len(tokens)
	}
	args = append(args, minMatched, maxCandidates)

	// Postings for all query tokens are grouped per page; the HAVING clause
	// gives AND semantics when every token must be present.
	query := fmt.Sprintf(`
		SELECT p.id, p.domain, p.url, p.title, p.favicon_id, p.content, p.body,
		       p.body_length, p.content_type, p.response_time, p.status_code,
		       p.crawled_at, p.indexed_at, p.seo_score, p.meta_description,
		       p.meta_keywords, p.meta_theme_color, p.meta_og_image,
		       SUM(i.count) AS term_count,
		       COUNT(DISTINCT i.word_id) AS matched,
		       (SELECT COUNT(*) FROM links l WHERE l.to_page_id = p.id) AS inbound,
		       (SELECT COUNT(*) FROM votes v WHERE v.page_id = p.id AND v.vote_type = 1) AS likes,
		       (SELECT COUNT(*) FROM votes v WHERE v.page_id = p.id AND v.vote_type = 2) AS dislikes,
		       COALESCE((SELECT a.clicks FROM pages_analytics a WHERE a.page_id = p.id), 0),
		       COALESCE((SELECT a.impressions FROM pages_analytics a WHERE a.page_id = p.id), 0)
		FROM indexes i
		JOIN words w ON w.id = i.word_id
		JOIN pages p ON p.id = i.page_id
		WHERE w.word IN (%s) AND p.indexed_at IS NOT NULL
		GROUP BY p.id
		HAVING COUNT(DISTINCT i.word_id) >= ?
		LIMIT ?
	`, placeholders)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query search candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var title, content, body, desc, keywords, theme, og nullStr
		var indexedAt nullInt
		err := rows.Scan(
			&c.Page.ID, &c.Page.Domain, &c.Page.URL, &title, &c.Page.FaviconID,
			&content, &body, &c.Page.BodyLength, &c.Page.ContentType,
			&c.Page.ResponseTime, &c.Page.StatusCode, &c.Page.CrawledAt,
			&indexedAt, &c.Page.SEOScore, &desc, &keywords, &theme, &og,
			&c.TermCount, &c.MatchedWords, &c.InboundLinks,
			&c.Likes, &c.Dislikes, &c.Clicks, &c.Impressions,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.Page.Title = title.s
		c.Page.Content = content.s
		c.Page.Body = body.s
		c.Page.IndexedAt = indexedAt.v
		c.Page.MetaDescription = desc.s
		c.Page.MetaKeywords = keywords.s
		c.Page.MetaThemeColor = theme.s
		c.Page.MetaOGImage = og.s
		out = append(out, c)
	}
	return out, rows.Err()
}

// QueryLog is one row of the append-only search log.
type QueryLog struct {
	Query       string
	Timestamp   int64
	SearchTime  int // microseconds
	ResultCount int
	UserAgent   string
}

// LogQuery appends a search log row.
func (s *Store) LogQuery(q QueryLog) error {
	if q.Timestamp == 0 {
		q.Timestamp = nowMillis()
	}
	_, err := s.db.Exec(`
		INSERT INTO queries (query, timestamp, search_time, result_count, user_agent)
		VALUES (?, ?, ?, ?, ?)
	`, q.Query, q.Timestamp, q.SearchTime, q.ResultCount, nullString(q.UserAgent))
	if err != nil {
		return fmt.Errorf("failed to log query: %w", err)
	}
	return nil
}

// IncrementImpressions bumps the impression counter for the given pages,
// creating analytics rows lazily.
func (s *Store) IncrementImpressions(pageIDs []int64) error {
	if len(pageIDs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO pages_analytics (page_id, clicks, impressions) VALUES (?, 0, 1)
		ON CONFLICT(page_id) DO UPDATE SET impressions = impressions + 1
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range pageIDs {
		if _, err := stmt.Exec(id); err != nil {
			return fmt.Errorf("failed to increment impressions for page %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// IncrementClicks bumps the click counter for one page.
func (s *Store) IncrementClicks(pageID int64) error {
	_, err := s.db.Exec(`
		INSERT INTO pages_analytics (page_id, clicks, impressions) VALUES (?, 1, 0)
		ON CONFLICT(page_id) DO UPDATE SET clicks = clicks + 1
	`, pageID)
	if err != nil {
		return fmt.Errorf("failed to increment clicks for page %d: %w", pageID, err)
	}
	return nil
}

// Vote types stored in votes.vote_type.
const (
	VoteLike    = 1
	VoteDislike = 2
)

// UpsertVote records or updates a voter's vote on a page. At most one vote
// per (page, fingerprint) exists; re-voting updates in place.
func (s *Store) UpsertVote(pageID int64, ip, fingerprint string, voteType int) error {
	now := nowMillis()
	_, err := s.db.Exec(`
		INSERT INTO votes (page_id, ip, fingerprint, vote_type, updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(page_id, fingerprint) DO UPDATE SET
			vote_type = excluded.vote_type,
			updated_at = excluded.updated_at
	`, pageID, ip, fingerprint, voteType, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert vote: %w", err)
	}
	return nil
}

// RemoveVote deletes a voter's vote on a page, if any.
func (s *Store) RemoveVote(pageID int64, fingerprint string) error {
	_, err := s.db.Exec(
		"DELETE FROM votes WHERE page_id = ? AND fingerprint = ?", pageID, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to remove vote: %w", err)
	}
	return nil
}

// CountVotesByIP returns the number of votes an IP holds on one page,
// the input to the per-IP abuse cap.
func (s *Store) CountVotesByIP(pageID int64, ip string) (int, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM votes WHERE page_id = ? AND ip = ?", pageID, ip).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count votes by ip: %w", err)
	}
	return n, nil
}

// Small nullable scan helpers local to the wide candidate row.

type nullStr struct{ s string }

func (n *nullStr) Scan(src any) error {
	if src == nil {
		n.s = ""
		return nil
	}
	switch v := src.(type) {
	case string:
		n.s = v
	case []byte:
		n.s = string(v)
	default:
		return fmt.Errorf("unexpected string type %T", src)
	}
	return nil
}

type nullInt struct{ v int64 }

func (n *nullInt) Scan(src any) error {
	if src == nil {
		n.v = 0
		return nil
	}
	if v, ok := src.(int64); ok {
		n.v = v
		return nil
	}
	return fmt.Errorf("unexpected int type %T", src)
}
