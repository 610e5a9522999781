package storage

import (
	"fmt"
	"time"
)

// Statistic types stored in statistics.statistic_type.
const (
	StatCrawledPages = 1
	StatIndexedPages = 2
	StatSearches     = 4
	StatDatabaseSize = 5
	StatQueueSize    = 8
	StatWords        = 9
	StatPostings     = 10
	StatFavicons     = 11
)

// Statistic is one sampled value.
type Statistic struct {
	Type      int
	Value     int64
	Timestamp int64
}

// InsertStatistics appends a batch of sampled statistics.
func (s *Store) InsertStatistics(stats []Statistic) error {
	if len(stats) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(
		"INSERT INTO statistics (statistic_type, value, timestamp) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, st := range stats {
		if st.Timestamp == 0 {
			st.Timestamp = nowMillis()
		}
		if _, err := stmt.Exec(st.Type, st.Value, st.Timestamp); err != nil {
			return fmt.Errorf("failed to insert statistic %d: %w", st.Type, err)
		}
	}
	return tx.Commit()
}

// PruneStatistics deletes statistics older than the retention window.
func (s *Store) PruneStatistics(retention time.Duration) (int64, error) {
	cutoff := nowMillis() - retention.Milliseconds()
	res, err := s.db.Exec("DELETE FROM statistics WHERE timestamp <= ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune statistics: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Totals is a point-in-time summary of the store, used by the monitor
// sampler and the statistics API.
type Totals struct {
	QueueSize         int64
	OldestQueueEntry  int64 // unix millis, 0 when the queue is empty
	PageCount         int64
	IndexedPageCount  int64
	WordCount         int64
	PostingCount      int64
	FaviconCount      int64
	VoteCount         int64
	AnalyticsRowCount int64
	QueryCount        int64
}

// GetTotals gathers the row counts in a single query.
func (s *Store) GetTotals() (*Totals, error) {
	var t Totals
	var oldest nullInt
	err := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM queue),
			(SELECT enqueued_at FROM queue ORDER BY enqueued_at ASC LIMIT 1),
			(SELECT COUNT(*) FROM pages),
			(SELECT COUNT(*) FROM pages WHERE indexed_at IS NOT NULL),
			(SELECT COUNT(*) FROM words),
			(SELECT COUNT(*) FROM indexes),
			(SELECT COUNT(*) FROM favicons),
			(SELECT COUNT(*) FROM votes),
			(SELECT COUNT(*) FROM pages_analytics),
			(SELECT COUNT(*) FROM queries)
	`).Scan(
		&t.QueueSize, &oldest, &t.PageCount, &t.IndexedPageCount, &t.WordCount,
		&t.PostingCount, &t.FaviconCount, &t.VoteCount, &t.AnalyticsRowCount,
		&t.QueryCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get totals: %w", err)
	}
	t.OldestQueueEntry = oldest.v
	return &t, nil
}
