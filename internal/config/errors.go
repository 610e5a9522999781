package config

import "errors"

// Configuration validation errors.
var (
	ErrEmptyDatabasePath = errors.New("database_path cannot be empty")
	ErrInvalidWorkers    = errors.New("crawler.workers must be positive")
	ErrInvalidTimeout    = errors.New("crawler.request_timeout must be positive")
	ErrNegativeWeight    = errors.New("ranking weights cannot be negative")
)
