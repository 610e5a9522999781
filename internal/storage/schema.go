package storage

const schemaSQL = `
-- Crawl frontier: URLs waiting to be fetched.
-- claimed_at manages the claim lifecycle: NULL = claimable, set = in flight.
CREATE TABLE IF NOT EXISTS queue (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    domain TEXT NOT NULL,
    url TEXT UNIQUE NOT NULL,
    enqueued_at INTEGER NOT NULL,
    claimed_at INTEGER,
    attempts INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_queue_claimable ON queue(enqueued_at) WHERE claimed_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_queue_domain ON queue(domain);

-- Per-domain politeness bookkeeping. A domain is ineligible for claiming
-- until last_claimed_at + cooldown has passed.
CREATE TABLE IF NOT EXISTS domains (
    domain TEXT PRIMARY KEY NOT NULL,
    last_claimed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS favicons (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    domain TEXT NOT NULL,
    url TEXT UNIQUE NOT NULL,
    title TEXT,
    favicon_id INTEGER NOT NULL DEFAULT 0,
    content TEXT,
    body TEXT,
    body_length INTEGER NOT NULL DEFAULT 0,
    content_type TEXT NOT NULL DEFAULT '',
    response_time INTEGER NOT NULL DEFAULT 0,
    status_code INTEGER NOT NULL DEFAULT 0,
    crawled_at INTEGER NOT NULL,
    indexed_at INTEGER,
    seo_score INTEGER NOT NULL DEFAULT 0,
    meta_description TEXT,
    meta_keywords TEXT,
    meta_theme_color TEXT,
    meta_og_image TEXT
);

CREATE INDEX IF NOT EXISTS idx_pages_domain ON pages(domain);
CREATE INDEX IF NOT EXISTS idx_pages_unindexed ON pages(crawled_at)
    WHERE indexed_at IS NULL OR crawled_at > indexed_at;

-- Directed page graph, basis for authority scoring. Multiple rows per
-- (from,to) pair are legal; writers may coalesce.
CREATE TABLE IF NOT EXISTS links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    from_page_id INTEGER NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
    to_page_id INTEGER NOT NULL REFERENCES pages(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_links_from ON links(from_page_id);
CREATE INDEX IF NOT EXISTS idx_links_to ON links(to_page_id);

-- Token vocabulary, grows monotonically.
CREATE TABLE IF NOT EXISTS words (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    word TEXT UNIQUE NOT NULL
);

-- Inverted index: one row per (word, page), count = term frequency at the
-- time the page was last indexed.
CREATE TABLE IF NOT EXISTS indexes (
    word_id INTEGER NOT NULL REFERENCES words(id) ON DELETE CASCADE,
    page_id INTEGER NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
    count INTEGER NOT NULL,
    PRIMARY KEY (word_id, page_id)
);

CREATE INDEX IF NOT EXISTS idx_indexes_page ON indexes(page_id);

CREATE TABLE IF NOT EXISTS votes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    page_id INTEGER NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
    ip TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    vote_type INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE(page_id, fingerprint)
);

CREATE TABLE IF NOT EXISTS pages_analytics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    page_id INTEGER UNIQUE NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
    clicks INTEGER NOT NULL DEFAULT 0,
    impressions INTEGER NOT NULL DEFAULT 0
);

-- Append-only search log, read by the monitor and the API.
CREATE TABLE IF NOT EXISTS queries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    query TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    search_time INTEGER NOT NULL,
    result_count INTEGER NOT NULL,
    user_agent TEXT
);

-- Append-only system statistics written by the monitor.
CREATE TABLE IF NOT EXISTS statistics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    statistic_type INTEGER NOT NULL,
    value INTEGER NOT NULL,
    timestamp INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_statistics_type ON statistics(statistic_type, timestamp);
`
