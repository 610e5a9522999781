package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spidex/spidex/internal/api"
	"github.com/spidex/spidex/internal/config"
	"github.com/spidex/spidex/internal/crawler"
	"github.com/spidex/spidex/internal/favicon"
	"github.com/spidex/spidex/internal/indexer"
	"github.com/spidex/spidex/internal/monitor"
	"github.com/spidex/spidex/internal/ranker"
	"github.com/spidex/spidex/internal/storage"
)

func init() {
	crawlCmd.Flags().IntP("workers", "c", 4, "Number of concurrent crawl workers")
	crawlCmd.Flags().IntP("limit", "l", 0, "Stop after N pages (0=unlimited)")
	crawlCmd.Flags().Bool("ignore-robots", false, "Ignore robots.txt rules")
	bindServiceFlags(crawlCmd, map[string]string{
		"crawler.workers": "workers",
		"crawler.limit":   "limit",
	})

	apiCmd.Flags().String("addr", ":8080", "Listen address")
	apiCmd.Flags().String("api-key", "", "API key required for URL submission")
	bindServiceFlags(apiCmd, map[string]string{
		"api.addr":    "addr",
		"api.api_key": "api-key",
	})

	faviconsCmd.Flags().String("dir", "./favicons", "Directory for downloaded icons")
	bindServiceFlags(faviconsCmd, map[string]string{
		"favicons.directory": "dir",
	})

	rootCmd.AddCommand(crawlCmd, indexCmd, apiCmd, faviconsCmd, monitorCmd, runCmd)
}

func bindServiceFlags(cmd *cobra.Command, binds map[string]string) {
	for viperKey, flagName := range binds {
		if err := viper.BindPFlag(viperKey, cmd.Flags().Lookup(flagName)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", flagName, err)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var crawlCmd = &cobra.Command{
	Use:   "crawl [URLs...]",
	Short: "Crawl the web from seed URLs or resume the existing frontier",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Crawler.SeedURLs = args
		if ignore, _ := cmd.Flags().GetBool("ignore-robots"); ignore {
			cfg.Crawler.RespectRobots = false
		}
		if err := setupLogging(cfg, "crawler"); err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if len(cfg.Crawler.SeedURLs) == 0 {
			hasWork, err := store.HasQueuedItems()
			if err != nil {
				return fmt.Errorf("failed to check frontier: %w", err)
			}
			if !hasWork {
				fmt.Println("No URLs provided and the frontier is empty. Nothing to crawl.")
				return nil
			}
		}

		ctx, cancel := signalContext()
		defer cancel()

		svc := crawler.NewService(cfg, store, nil)
		defer func() { _ = svc.Stop() }()
		return svc.Start(ctx)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the inverted index from crawled pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := setupLogging(cfg, "indexer"); err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		ctx, cancel := signalContext()
		defer cancel()

		err = indexer.NewService(cfg.Indexer, store, nil).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve search, URL submission, voting and statistics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := setupLogging(cfg, "api"); err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		ctx, cancel := signalContext()
		defer cancel()

		engine := ranker.NewEngine(cfg.Ranking, store, indexer.NewTokenizer(cfg.Indexer))
		favicons := favicon.NewService(cfg.Favicons, store)
		return api.NewServer(cfg.API, store, engine, favicons).Run(ctx)
	},
}

var faviconsCmd = &cobra.Command{
	Use:   "favicons",
	Short: "Download and resize the favicons referenced by crawled pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := setupLogging(cfg, "favicons"); err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		ctx, cancel := signalContext()
		defer cancel()

		err = favicon.NewService(cfg.Favicons, store).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Sample corpus statistics into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := setupLogging(cfg, "monitor"); err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		ctx, cancel := signalContext()
		defer cancel()

		err = monitor.NewService(cfg.Monitor, store).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

var runCmd = &cobra.Command{
	Use:   "run [URLs...]",
	Short: "Run every service in one process",
	Long: `Run starts the crawler, indexer, favicon downloader, monitor and API
in a single process sharing one database. Crawled pages are handed to the
indexer in-process; the services stop together on SIGINT or SIGTERM.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Crawler.SeedURLs = args
		if err := setupLogging(cfg, "spidex"); err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		ctx, cancel := signalContext()
		defer cancel()

		return runAll(ctx, cfg, store)
	},
}

// runAll wires the pipeline together: the crawler feeds page ids to the
// indexer over a bounded channel, and the remaining services run on their
// own timers. The process ends on signal or when the API server fails.
func runAll(ctx context.Context, cfg *config.Config, store *storage.Store) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// With the API accepting URL submissions for the life of the process,
	// the crawler must idle on an empty frontier rather than exit.
	cfg.Crawler.KeepAlive = true

	notify := make(chan int64, cfg.Indexer.QueueSize)

	crawlSvc := crawler.NewService(cfg, store, notify)
	indexSvc := indexer.NewService(cfg.Indexer, store, notify)
	faviconSvc := favicon.NewService(cfg.Favicons, store)
	monitorSvc := monitor.NewService(cfg.Monitor, store)

	engine := ranker.NewEngine(cfg.Ranking, store, indexer.NewTokenizer(cfg.Indexer))
	apiSrv := api.NewServer(cfg.API, store, engine, faviconSvc)

	errCh := make(chan error, 1)
	var wg sync.WaitGroup

	background := func(run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				select {
				case errCh <- err:
				default:
				}
			}
		}()
	}

	background(indexSvc.Run)
	background(faviconSvc.Run)
	background(monitorSvc.Run)
	background(apiSrv.Run)

	// The crawler runs until signal or page limit, idling whenever the
	// frontier is empty.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(notify)
		if err := crawlSvc.Start(ctx); err != nil {
			select {
			case errCh <- err:
			default:
			}
		}
		_ = crawlSvc.Stop()
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	// Stop the surviving services before waiting on them.
	cancel()
	wg.Wait()
	return runErr
}
