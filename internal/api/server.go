// Package api exposes the search engine over HTTP: query serving, URL
// submission, result voting, click analytics and corpus statistics.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/spidex/spidex/internal/config"
	"github.com/spidex/spidex/internal/crawler"
	"github.com/spidex/spidex/internal/favicon"
	"github.com/spidex/spidex/internal/ranker"
	"github.com/spidex/spidex/internal/storage"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	maxVotesPerIP      = 10
)

// Server is the HTTP API service.
type Server struct {
	cfg      config.APIConfig
	store    *storage.Store
	engine   *ranker.Engine
	favicons *favicon.Service
	http     *http.Server
}

// NewServer creates the API server. favicons may be nil when icon files are
// not served.
func NewServer(cfg config.APIConfig, store *storage.Store, engine *ranker.Engine, favicons *favicon.Service) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		engine:   engine,
		favicons: favicons,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/ping", s.handlePing)
	r.Get("/search", s.handleSearch)
	r.Post("/request-url", s.requireAPIKey(s.handleRequestURL))
	r.Post("/votes", s.handleVote)
	r.Post("/analytics/click", s.handleClick)
	r.Get("/statistics/database", s.handleStatistics)

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API listening", "addr", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// searchResult is the wire shape of one search hit.
type searchResult struct {
	URL             string  `json:"url"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	Domain          string  `json:"domain"`
	ThemeColor      string  `json:"theme_color,omitempty"`
	OGImage         string  `json:"og_image,omitempty"`
	Score           float64 `json:"score"`
	PageID          int64   `json:"page_id"`
	Likes           int     `json:"likes"`
	Dislikes        int     `json:"dislikes"`
	Favicon         string  `json:"favicon,omitempty"` // base64 PNG
	SnippetFallback string  `json:"snippet,omitempty"` // body prefix when no description exists
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	limit := parsePositive(r.URL.Query().Get("limit"), defaultSearchLimit)
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	offset := parsePositive(r.URL.Query().Get("offset"), 0)

	results, err := s.engine.Search(query, limit, offset, r.UserAgent())
	if err != nil {
		slog.Error("Search failed", "query", query, "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	out := make([]searchResult, 0, len(results))
	for _, res := range results {
		item := searchResult{
			URL:         res.Page.URL,
			Title:       res.Page.Title,
			Description: res.Page.MetaDescription,
			Domain:      res.Page.Domain,
			ThemeColor:  res.Page.MetaThemeColor,
			OGImage:     res.Page.MetaOGImage,
			Score:       res.Score,
			PageID:      res.Page.ID,
			Likes:       res.Likes,
			Dislikes:    res.Dislikes,
			Favicon:     s.encodeFavicon(res.Page.FaviconID),
		}
		if item.Description == "" && res.Page.Body != "" {
			item.SnippetFallback = snippet(res.Page.Body, 200)
		}
		out = append(out, item)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(out),
		"results": out,
	})
}

type requestURLBody struct {
	URL string `json:"url"`
}

func (s *Server) handleRequestURL(w http.ResponseWriter, r *http.Request) {
	var body requestURLBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	normalized, err := crawler.NormalizeURL(body.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid URL")
		return
	}

	err = s.store.EnqueueOne(crawler.DomainOf(normalized), normalized)
	if errors.Is(err, storage.ErrAlreadyQueued) {
		status := "already_queued"
		if pageID, err := s.store.GetPageID(normalized); err == nil && pageID != 0 {
			status = "already_crawled"
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": status, "url": normalized})
		return
	}
	if err != nil {
		slog.Error("Failed to enqueue requested URL", "url", normalized, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue URL")
		return
	}

	slog.Info("URL requested for crawling", "url", normalized)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "queued", "url": normalized})
}

type voteBody struct {
	PageID      int64  `json:"page_id"`
	VoteType    int    `json:"vote_type"` // 0 removes, 1 likes, 2 dislikes
	Fingerprint string `json:"fingerprint"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var body voteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.PageID <= 0 || body.Fingerprint == "" {
		writeError(w, http.StatusBadRequest, "page_id and fingerprint are required")
		return
	}

	ip := clientIP(r)

	switch body.VoteType {
	case 0:
		if err := s.store.RemoveVote(body.PageID, body.Fingerprint); err != nil {
			slog.Error("Failed to remove vote", "page_id", body.PageID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to remove vote")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})

	case storage.VoteLike, storage.VoteDislike:
		count, err := s.store.CountVotesByIP(body.PageID, ip)
		if err != nil {
			slog.Error("Failed to count votes", "page_id", body.PageID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to record vote")
			return
		}
		if count >= maxVotesPerIP {
			writeError(w, http.StatusTooManyRequests, "vote limit reached for this page")
			return
		}

		if err := s.store.UpsertVote(body.PageID, ip, body.Fingerprint, body.VoteType); err != nil {
			slog.Error("Failed to record vote", "page_id", body.PageID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to record vote")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})

	default:
		writeError(w, http.StatusBadRequest, "vote_type must be 0, 1 or 2")
	}
}

type clickBody struct {
	PageID int64 `json:"page_id"`
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var body clickBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.PageID <= 0 {
		writeError(w, http.StatusBadRequest, "page_id is required")
		return
	}

	if err := s.store.IncrementClicks(body.PageID); err != nil {
		slog.Error("Failed to record click", "page_id", body.PageID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record click")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	totals, err := s.store.GetTotals()
	if err != nil {
		slog.Error("Failed to load statistics", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}

	dbSize, err := s.store.FileSize()
	if err != nil {
		dbSize = 0
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"queue_size":    totals.QueueSize,
		"pages":         totals.PageCount,
		"indexed_pages": totals.IndexedPageCount,
		"words":         totals.WordCount,
		"postings":      totals.PostingCount,
		"favicons":      totals.FaviconCount,
		"votes":         totals.VoteCount,
		"searches":      totals.QueryCount,
		"database_size": dbSize,
	})
}

// requireAPIKey guards submission endpoints. With no key configured the
// endpoint is open, which suits local single-user deployments.
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("X-Api-Key") != s.cfg.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next(w, r)
	}
}

// encodeFavicon loads the downloaded icon file and inlines it as base64.
func (s *Server) encodeFavicon(faviconID int64) string {
	if s.favicons == nil || faviconID == 0 {
		return ""
	}
	path := s.favicons.Path(faviconID)
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func snippet(body string, max int) string {
	if len(body) <= max {
		return body
	}
	cut := body[:max]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}

func parsePositive(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
