package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var errTooManyRedirects = errors.New("too many redirects")

// HTTPClient fetches pages with a bounded body size and redirect limit.
type HTTPClient struct {
	client       *http.Client
	userAgent    string
	maxBodySize  int64
	maxRedirects int
}

// NewHTTPClient creates a new HTTP client. Bodies larger than maxBodySize are
// truncated, not rejected; a partially crawled page beats a dropped one.
func NewHTTPClient(userAgent string, timeout time.Duration, maxBodySize int64, maxRedirects int) *HTTPClient {
	if maxRedirects <= 0 {
		maxRedirects = 10
	}
	if maxBodySize <= 0 {
		maxBodySize = 2 << 20
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  false,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}

	return &HTTPClient{
		client:       client,
		userAgent:    userAgent,
		maxBodySize:  maxBodySize,
		maxRedirects: maxRedirects,
	}
}

// Get performs an HTTP GET. Network failures and exceeded redirect limits
// return a *FetchError; any response with a status code, including 4xx and
// 5xx, is a successful fetch.
func (h *HTTPClient) Get(ctx context.Context, url string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, &FetchError{Kind: ErrKindRequest, URL: url, Err: err}
	}

	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		kind := ErrKindNetwork
		if errors.Is(err, errTooManyRedirects) {
			kind = ErrKindRedirect
		}
		return nil, &FetchError{Kind: kind, URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	// Read one byte past the cap to know whether truncation happened.
	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBodySize+1))
	if err != nil {
		return nil, &FetchError{Kind: ErrKindNetwork, URL: url, Err: fmt.Errorf("reading body: %w", err)}
	}
	truncated := int64(len(body)) > h.maxBodySize
	if truncated {
		body = body[:h.maxBodySize]
	}

	return &FetchResult{
		StatusCode:   resp.StatusCode,
		Headers:      resp.Header,
		Body:         body,
		Truncated:    truncated,
		ContentType:  resp.Header.Get("Content-Type"),
		ResponseTime: time.Since(start),
		FinalURL:     resp.Request.URL.String(),
	}, nil
}

// Close closes idle connections.
func (h *HTTPClient) Close() {
	h.client.CloseIdleConnections()
}
