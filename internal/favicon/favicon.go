// Package favicon downloads the favicons referenced by crawled pages and
// stores them on disk as uniformly sized PNGs for the search frontend.
package favicon

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/spidex/spidex/internal/config"
	"github.com/spidex/spidex/internal/storage"
)

const iconSize = 32

// Service sweeps the favicon table and downloads any icon that has no file
// on disk yet.
type Service struct {
	cfg    config.FaviconConfig
	store  *storage.Store
	client *http.Client
}

// NewService creates a favicon service.
func NewService(cfg config.FaviconConfig, store *storage.Store) *Service {
	return &Service{
		cfg:   cfg,
		store: store,
		client: &http.Client{
			Timeout: cfg.FetchTimeout,
		},
	}
}

// Run sweeps periodically until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create favicon directory: %w", err)
	}

	slog.Info("Favicon service started", "directory", s.cfg.Directory, "interval", s.cfg.Interval)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if n, err := s.Sweep(ctx); err != nil {
			slog.Error("Favicon sweep failed", "error", err)
		} else if n > 0 {
			slog.Info("Downloaded favicons", "count", n)
		}

		select {
		case <-ctx.Done():
			slog.Info("Favicon service stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep downloads every favicon that has no file yet and returns how many
// were fetched. A failed download is logged and skipped; the next sweep
// retries it.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	favicons, err := s.store.ListFavicons()
	if err != nil {
		return 0, err
	}

	existing, err := s.existingIDs()
	if err != nil {
		return 0, err
	}

	fetched := 0
	for _, f := range favicons {
		if ctx.Err() != nil {
			return fetched, ctx.Err()
		}
		if existing[f.ID] {
			continue
		}
		if err := s.download(ctx, f); err != nil {
			slog.Warn("Failed to download favicon", "id", f.ID, "url", f.URL, "error", err)
			continue
		}
		fetched++
	}
	return fetched, nil
}

// Path returns the on-disk file for a favicon id, or "" when none exists.
func (s *Service) Path(id int64) string {
	matches, err := filepath.Glob(filepath.Join(s.cfg.Directory, strconv.FormatInt(id, 10)+"-*.png"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	return matches[0]
}

// existingIDs scans the directory for already-downloaded icons. Files are
// named "<id>-<timestamp>.png".
func (s *Service) existingIDs() (map[int64]bool, error) {
	entries, err := os.ReadDir(s.cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to read favicon directory: %w", err)
	}

	ids := make(map[int64]bool, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".png") {
			continue
		}
		idPart, _, found := strings.Cut(name, "-")
		if !found {
			continue
		}
		id, err := strconv.ParseInt(idPart, 10, 64)
		if err != nil {
			continue
		}
		ids[id] = true
	}
	return ids, nil
}

func (s *Service) download(ctx context.Context, f storage.Favicon) error {
	req, err := http.NewRequestWithContext(ctx, "GET", f.URL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decoding image: %w", err)
	}

	resized := imaging.Resize(img, iconSize, iconSize, imaging.Lanczos)

	name := fmt.Sprintf("%d-%d.png", f.ID, time.Now().UnixMilli())
	path := filepath.Join(s.cfg.Directory, name)
	if err := imaging.Save(resized, path); err != nil {
		return fmt.Errorf("saving image: %w", err)
	}

	slog.Debug("Saved favicon", "id", f.ID, "path", path)
	return nil
}
