package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "2023-12-01T10:00:00Z")

	expected := "1.2.3 (built 2023-12-01T10:00:00Z)"
	if rootCmd.Version != expected {
		t.Errorf("Expected version %s, got %s", expected, rootCmd.Version)
	}
}

func TestRootCmd(t *testing.T) {
	if rootCmd.Use != "spidex" {
		t.Errorf("Expected use 'spidex', got %s", rootCmd.Use)
	}
	if rootCmd.Short != "A self-hosted web search engine" {
		t.Errorf("Unexpected short description: %s", rootCmd.Short)
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	expected := []string{"crawl", "index", "api", "favicons", "monitor", "run", "config"}

	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}

	for _, name := range expected {
		if !registered[name] {
			t.Errorf("Expected subcommand %s to be registered", name)
		}
	}
}

func TestPersistentFlags(t *testing.T) {
	flags := rootCmd.PersistentFlags()

	for _, name := range []string{"config", "database", "log-level", "log-file", "user-agent"} {
		if flags.Lookup(name) == nil {
			t.Errorf("Expected persistent flag %s to be defined", name)
		}
	}
}

func TestCrawlFlags(t *testing.T) {
	flags := crawlCmd.Flags()

	for _, name := range []string{"workers", "limit", "ignore-robots"} {
		if flags.Lookup(name) == nil {
			t.Errorf("Expected crawl flag %s to be defined", name)
		}
	}
}

func TestInitConfig(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	configContent := `
database_path: /tmp/test.db
user_agent: "TestAgent/1.0"
crawler:
  workers: 7
`
	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	cfgFile = configFile
	defer func() {
		cfgFile = ""
		viper.Reset()
	}()

	initConfig()

	if viper.ConfigFileUsed() != configFile {
		t.Errorf("Expected config file %s, got %s", configFile, viper.ConfigFileUsed())
	}

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.DatabasePath != "/tmp/test.db" {
		t.Errorf("DatabasePath = %s, want /tmp/test.db", cfg.DatabasePath)
	}
	if cfg.UserAgent != "TestAgent/1.0" {
		t.Errorf("UserAgent = %s, want TestAgent/1.0", cfg.UserAgent)
	}
	if cfg.Crawler.Workers != 7 {
		t.Errorf("Workers = %d, want 7", cfg.Crawler.Workers)
	}
	// Untouched keys keep their defaults.
	if cfg.Indexer.BatchSize != 1000 {
		t.Errorf("BatchSize = %d, want default 1000", cfg.Indexer.BatchSize)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.DatabasePath == "" {
		t.Error("Expected default database path to be set")
	}
	if cfg.Crawler.Workers <= 0 {
		t.Errorf("Workers = %d, want > 0", cfg.Crawler.Workers)
	}
}

func TestOpenStoreCreatesDirectory(t *testing.T) {
	tempDir := t.TempDir()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	cfg.DatabasePath = filepath.Join(tempDir, "nested", "dir", "spidex.db")

	store, err := openStore(cfg)
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	if _, err := os.Stat(cfg.DatabasePath); err != nil {
		t.Errorf("Database file not created: %v", err)
	}
}
