// Package cmd provides the command-line interface for spidex.
// It handles command parsing, configuration loading and service startup.
// Each pipeline stage runs as its own subcommand against the shared
// database, or all of them together under "run".
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/spidex/spidex/internal/config"
	"github.com/spidex/spidex/internal/logging"
	"github.com/spidex/spidex/internal/storage"
)

var (
	cfgFile   string
	version   string
	buildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "spidex",
	Short: "A self-hosted web search engine",
	Long: `Spidex is a self-hosted web search engine.

It crawls the web from a set of seed URLs, builds an inverted index over
the crawled pages and serves ranked full-text search over HTTP. Each
pipeline stage runs as its own subcommand against the shared database.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information for the CLI.
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./spidex.yml)")
	rootCmd.PersistentFlags().StringP("database", "d", "./spidex.db", "Path to SQLite database file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-file", "", "Log file path (console only when empty)")
	rootCmd.PersistentFlags().StringP("user-agent", "u", "Spidex/1.0", "HTTP User-Agent header")

	bindFlags := []struct {
		viperKey string
		flagName string
	}{
		{"database_path", "database"},
		{"log_level", "log-level"},
		{"log_file", "log-file"},
		{"user_agent", "user-agent"},
	}
	for _, bind := range bindFlags {
		if err := viper.BindPFlag(bind.viperKey, rootCmd.PersistentFlags().Lookup(bind.flagName)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}

	rootCmd.AddCommand(configCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("spidex")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SPIDEX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges defaults, the config file, environment variables and
// flags, then validates the result.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging installs the process-wide logger tagged with the service name.
func setupLogging(cfg *config.Config, service string) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.LogLevel)
	logCfg.Service = service
	logCfg.FilePath = cfg.LogFile
	return logging.SetDefault(*logCfg)
}

// openStore opens the shared database, creating its directory when needed.
func openStore(cfg *config.Config) (*storage.Store, error) {
	dbDir := filepath.Dir(cfg.DatabasePath)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return storage.Open(cfg.DatabasePath)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display the effective configuration in YAML format",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if err := viper.Unmarshal(cfg); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: configuration validation failed: %v\n\n", err)
		}

		yamlData, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
		}

		fmt.Printf("# Current Spidex Configuration\n")
		fmt.Printf("# Generated at: %s\n", time.Now().Format(time.RFC3339))
		fmt.Printf("# Configuration file search paths: ./spidex.yml\n")
		fmt.Printf("# Environment variables prefix: SPIDEX_\n\n")
		fmt.Print(string(yamlData))
		return nil
	},
}
