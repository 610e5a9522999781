package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPClientGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "Spidex/1.0" {
			t.Errorf("User-Agent = %q, want Spidex/1.0", got)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer server.Close()

	client := NewHTTPClient("Spidex/1.0", 5*time.Second, 1<<20, 10)
	defer client.Close()

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(resp.Body), "hello") {
		t.Errorf("Body = %q, missing content", resp.Body)
	}
	if !resp.IsHTML() {
		t.Errorf("IsHTML() = false for %q", resp.ContentType)
	}
	if resp.Truncated {
		t.Error("small body reported as truncated")
	}
	if resp.FinalURL != server.URL {
		t.Errorf("FinalURL = %q, want %q", resp.FinalURL, server.URL)
	}
}

func TestHTTPClientNon2xxIsNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPClient("Spidex/1.0", 5*time.Second, 1<<20, 10)
	defer client.Close()

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get on 404 returned error: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", resp.StatusCode)
	}
}

func TestHTTPClientTruncatesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer server.Close()

	client := NewHTTPClient("Spidex/1.0", 5*time.Second, 100, 10)
	defer client.Close()

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(resp.Body) != 100 {
		t.Errorf("Body length = %d, want 100", len(resp.Body))
	}
	if !resp.Truncated {
		t.Error("truncation not reported")
	}
}

func TestHTTPClientFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("arrived"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewHTTPClient("Spidex/1.0", 5*time.Second, 1<<20, 10)
	defer client.Close()

	resp, err := client.Get(context.Background(), server.URL+"/start")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if resp.FinalURL != server.URL+"/end" {
		t.Errorf("FinalURL = %q, want the redirect target", resp.FinalURL)
	}
}

func TestHTTPClientRedirectLimit(t *testing.T) {
	var server *httptest.Server
	hops := 0
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, fmt.Sprintf("/loop%d", hops), http.StatusFound)
	}))
	defer server.Close()

	client := NewHTTPClient("Spidex/1.0", 5*time.Second, 1<<20, 3)
	defer client.Close()

	_, err := client.Get(context.Background(), server.URL)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Get = %v, want *FetchError", err)
	}
	if fetchErr.Kind != ErrKindRedirect {
		t.Errorf("Kind = %v, want ErrKindRedirect", fetchErr.Kind)
	}
}

func TestHTTPClientNetworkError(t *testing.T) {
	client := NewHTTPClient("Spidex/1.0", time.Second, 1<<20, 10)
	defer client.Close()

	_, err := client.Get(context.Background(), "http://127.0.0.1:1/")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Get = %v, want *FetchError", err)
	}
	if fetchErr.Kind != ErrKindNetwork {
		t.Errorf("Kind = %v, want ErrKindNetwork", fetchErr.Kind)
	}
}

func TestIsHTML(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"application/xhtml+xml", true},
		{"application/json", false},
		{"image/png", false},
		{"", false},
	}

	for _, tt := range tests {
		r := &FetchResult{ContentType: tt.contentType}
		if got := r.IsHTML(); got != tt.want {
			t.Errorf("IsHTML(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}
