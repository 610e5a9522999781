package crawler

import (
	"fmt"
	"net/http"
	"time"
)

// FetchErrorKind classifies a failed fetch for retry accounting.
type FetchErrorKind int

const (
	// ErrKindNetwork covers DNS failures, refused connections and timeouts.
	ErrKindNetwork FetchErrorKind = iota
	// ErrKindRedirect means the redirect hop limit was exceeded.
	ErrKindRedirect
	// ErrKindRequest means the URL could not be turned into a request.
	ErrKindRequest
)

// FetchError is a failed fetch. Non-2xx responses are not fetch errors; they
// are recorded as page outcomes.
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchResult is one completed HTTP fetch.
type FetchResult struct {
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Truncated    bool // body hit the size cap
	ContentType  string
	ResponseTime time.Duration
	FinalURL     string // after following redirects
}

// IsHTML reports whether the response claims an HTML content type.
func (r *FetchResult) IsHTML() bool {
	ct := r.ContentType
	for i := 0; i < len(ct); i++ {
		if ct[i] == ';' {
			ct = ct[:i]
			break
		}
	}
	switch ct {
	case "text/html", "application/xhtml+xml":
		return true
	}
	return false
}
