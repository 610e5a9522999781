// Package config provides configuration management for all spidex services.
// It defines the configuration structures and conservative defaults for the
// crawl, index, rank, favicon and monitor stages.
package config

import (
	"time"
)

// CrawlerConfig controls the crawl service.
type CrawlerConfig struct {
	SeedURLs         []string      `mapstructure:"seed_urls" yaml:"seed_urls"`                 // Starting URLs
	Workers          int           `mapstructure:"workers" yaml:"workers"`                     // Concurrent crawl workers
	ClaimBatchSize   int           `mapstructure:"claim_batch_size" yaml:"claim_batch_size"`   // Frontier entries claimed per round
	PolitenessWindow time.Duration `mapstructure:"politeness_window" yaml:"politeness_window"` // Per-domain claim cool-down
	RequestTimeout   time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`     // HTTP request timeout
	MaxRedirects     int           `mapstructure:"max_redirects" yaml:"max_redirects"`         // Redirect hop limit
	MaxBodySize      int64         `mapstructure:"max_body_size" yaml:"max_body_size"`         // Response body truncation, bytes
	MaxURLLength     int           `mapstructure:"max_url_length" yaml:"max_url_length"`       // Discovered URLs longer than this are dropped
	MaxAttempts      int           `mapstructure:"max_attempts" yaml:"max_attempts"`           // Fetch attempts before a frontier entry is dropped
	StaleClaimAfter  time.Duration `mapstructure:"stale_claim_after" yaml:"stale_claim_after"` // Claims older than this are reclaimed at startup
	RespectRobots    bool          `mapstructure:"respect_robots" yaml:"respect_robots"`       // Honor robots.txt
	Limit            int           `mapstructure:"limit" yaml:"limit"`                         // Stop after N pages (0=unlimited)
	KeepAlive        bool          `mapstructure:"keep_alive" yaml:"keep_alive"`               // Idle on an empty frontier instead of exiting
}

// IndexerConfig controls the indexing service.
type IndexerConfig struct {
	BatchSize      int           `mapstructure:"batch_size" yaml:"batch_size"`             // Pages fetched per indexing round
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`       // Sleep when nothing is pending
	QueueSize      int           `mapstructure:"queue_size" yaml:"queue_size"`             // Bounded in-process notification queue
	MinTokenLength int           `mapstructure:"min_token_length" yaml:"min_token_length"` // Tokens shorter than this are dropped
	MaxTokenLength int           `mapstructure:"max_token_length" yaml:"max_token_length"` // Tokens longer than this are dropped
	Stemming       bool          `mapstructure:"stemming" yaml:"stemming"`                 // Snowball-stem tokens
	Stopwords      bool          `mapstructure:"stopwords" yaml:"stopwords"`               // Drop common English stopwords
}

// RankingWeights are the named coefficients of the composite relevance
// score. They are configuration, not constants, so the rubric can be tuned
// without touching the algorithm.
type RankingWeights struct {
	TermMatch  float64 `mapstructure:"term_match" yaml:"term_match"`
	SEO        float64 `mapstructure:"seo" yaml:"seo"`
	Authority  float64 `mapstructure:"authority" yaml:"authority"`
	Engagement float64 `mapstructure:"engagement" yaml:"engagement"`
}

// RankingConfig controls the query engine.
type RankingConfig struct {
	Weights       RankingWeights `mapstructure:"weights" yaml:"weights"`
	OrFallback    bool           `mapstructure:"or_fallback" yaml:"or_fallback"`       // Retry with OR semantics when AND finds nothing
	MaxCandidates int            `mapstructure:"max_candidates" yaml:"max_candidates"` // Candidate set bound before scoring
}

// SEOWeights are the per-signal points of the on-page SEO rubric, clamped to
// a 0-100 total at scoring time.
type SEOWeights struct {
	Title           int `mapstructure:"title" yaml:"title"`
	MetaDescription int `mapstructure:"meta_description" yaml:"meta_description"`
	DescriptionLen  int `mapstructure:"description_length" yaml:"description_length"` // Bonus for a 50-160 char description
	MetaKeywords    int `mapstructure:"meta_keywords" yaml:"meta_keywords"`
	OGImage         int `mapstructure:"og_image" yaml:"og_image"`
	H1              int `mapstructure:"h1" yaml:"h1"`
	LinkCount       int `mapstructure:"link_count" yaml:"link_count"` // Awarded at >= 5 outbound links
	ImageAlt        int `mapstructure:"image_alt" yaml:"image_alt"`   // Awarded at >= 50% alt coverage
}

// APIConfig controls the HTTP API service.
type APIConfig struct {
	Addr   string `mapstructure:"addr" yaml:"addr"`
	APIKey string `mapstructure:"api_key" yaml:"api_key"` // Required for /request-url
}

// FaviconConfig controls the favicon downloader service.
type FaviconConfig struct {
	Directory    string        `mapstructure:"directory" yaml:"directory"`
	Interval     time.Duration `mapstructure:"interval" yaml:"interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
}

// MonitorConfig controls the statistics sampler.
type MonitorConfig struct {
	SampleInterval time.Duration `mapstructure:"sample_interval" yaml:"sample_interval"`
	Retention      time.Duration `mapstructure:"retention" yaml:"retention"`
}

// Config is the root configuration shared by every service.
type Config struct {
	DatabasePath string        `mapstructure:"database_path" yaml:"database_path"`
	UserAgent    string        `mapstructure:"user_agent" yaml:"user_agent"`
	LogLevel     string        `mapstructure:"log_level" yaml:"log_level"`
	LogFile      string        `mapstructure:"log_file" yaml:"log_file"`
	Crawler      CrawlerConfig `mapstructure:"crawler" yaml:"crawler"`
	Indexer      IndexerConfig `mapstructure:"indexer" yaml:"indexer"`
	Ranking      RankingConfig `mapstructure:"ranking" yaml:"ranking"`
	SEO          SEOWeights    `mapstructure:"seo" yaml:"seo"`
	API          APIConfig     `mapstructure:"api" yaml:"api"`
	Favicons     FaviconConfig `mapstructure:"favicons" yaml:"favicons"`
	Monitor      MonitorConfig `mapstructure:"monitor" yaml:"monitor"`
}

// Default returns a configuration with conservative defaults.
func Default() *Config {
	return &Config{
		DatabasePath: "./spidex.db",
		UserAgent:    "Spidex/1.0",
		LogLevel:     "info",
		Crawler: CrawlerConfig{
			Workers:          4,
			ClaimBatchSize:   10,
			PolitenessWindow: 10 * time.Second,
			RequestTimeout:   10 * time.Second,
			MaxRedirects:     10,
			MaxBodySize:      2 << 20, // 2MB
			MaxURLLength:     2048,
			MaxAttempts:      3,
			StaleClaimAfter:  10 * time.Minute,
			RespectRobots:    true,
		},
		Indexer: IndexerConfig{
			BatchSize:      1000,
			PollInterval:   10 * time.Second,
			QueueSize:      256,
			MinTokenLength: 2,
			MaxTokenLength: 100,
			Stemming:       false,
			Stopwords:      true,
		},
		Ranking: RankingConfig{
			Weights: RankingWeights{
				TermMatch:  1.0,
				SEO:        0.5,
				Authority:  0.3,
				Engagement: 0.2,
			},
			OrFallback:    true,
			MaxCandidates: 500,
		},
		SEO: SEOWeights{
			Title:           25,
			MetaDescription: 20,
			DescriptionLen:  5,
			MetaKeywords:    10,
			OGImage:         10,
			H1:              10,
			LinkCount:       10,
			ImageAlt:        10,
		},
		API: APIConfig{
			Addr: ":8080",
		},
		Favicons: FaviconConfig{
			Directory:    "./favicons",
			Interval:     time.Minute,
			FetchTimeout: 10 * time.Second,
		},
		Monitor: MonitorConfig{
			SampleInterval: 10 * time.Minute,
			Retention:      72 * time.Hour,
		},
	}
}

// Validate checks the configuration, normalizing values that merely need
// clamping instead of failing.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return ErrEmptyDatabasePath
	}
	if c.Crawler.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.Crawler.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Crawler.MaxAttempts <= 0 {
		c.Crawler.MaxAttempts = 1
	}
	if c.Crawler.ClaimBatchSize <= 0 {
		c.Crawler.ClaimBatchSize = 1
	}
	if c.Crawler.PolitenessWindow < 100*time.Millisecond {
		c.Crawler.PolitenessWindow = 100 * time.Millisecond
	}
	if c.Indexer.QueueSize <= 0 {
		c.Indexer.QueueSize = 1
	}
	if c.Indexer.MinTokenLength < 1 {
		c.Indexer.MinTokenLength = 1
	}
	if c.Ranking.MaxCandidates <= 0 {
		c.Ranking.MaxCandidates = 100
	}
	w := c.Ranking.Weights
	if w.TermMatch < 0 || w.SEO < 0 || w.Authority < 0 || w.Engagement < 0 {
		return ErrNegativeWeight
	}
	return nil
}
