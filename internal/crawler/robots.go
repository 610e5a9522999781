package crawler

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// RobotsParser handles robots.txt parsing and rule checking.
type RobotsParser struct {
	httpClient   *HTTPClient
	rules        map[string]*RobotRules
	mu           sync.RWMutex
	ignoreRobots bool
}

// RobotRules contains the parsed rules for a domain.
type RobotRules struct {
	Disallowed []string
	Allowed    []string
	CrawlDelay time.Duration
}

// NewRobotsParser creates a new robots.txt parser.
func NewRobotsParser(httpClient *HTTPClient, ignoreRobots bool) *RobotsParser {
	return &RobotsParser{
		httpClient:   httpClient,
		rules:        make(map[string]*RobotRules),
		ignoreRobots: ignoreRobots,
	}
}

// IsAllowed checks if a URL is allowed by robots.txt.
func (r *RobotsParser) IsAllowed(ctx context.Context, urlStr string, userAgent string) (bool, error) {
	if r.ignoreRobots {
		return true, nil
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false, fmt.Errorf("invalid URL: %w", err)
	}

	rules, err := r.getRules(ctx, parsedURL, userAgent)
	if err != nil {
		// An unreachable robots.txt never blocks the crawl.
		return true, nil
	}

	path := parsedURL.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range rules.Disallowed {
		if matchesPattern(path, pattern) {
			// A longer allow rule wins over the matching disallow.
			for _, allowPattern := range rules.Allowed {
				if matchesPattern(path, allowPattern) && len(allowPattern) > len(pattern) {
					return true, nil
				}
			}
			return false, nil
		}
	}

	return true, nil
}

// GetCrawlDelay returns the crawl delay for a domain. The key is the bare
// hostname, matching the frontier's domain column.
func (r *RobotsParser) GetCrawlDelay(domain string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rules, ok := r.rules[domain]; ok {
		return rules.CrawlDelay
	}
	return 0
}

// getRules caches rules by hostname; the robots.txt itself is fetched from
// the full authority, port included.
func (r *RobotsParser) getRules(ctx context.Context, pageURL *url.URL, userAgent string) (*RobotRules, error) {
	domain := pageURL.Hostname()

	r.mu.RLock()
	rules, exists := r.rules[domain]
	r.mu.RUnlock()

	if exists {
		return rules, nil
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", pageURL.Scheme, pageURL.Host)
	resp, err := r.httpClient.Get(ctx, robotsURL)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case 404:
		// No robots.txt means everything is allowed
		rules = &RobotRules{
			Disallowed: []string{},
			Allowed:    []string{},
		}
	case 200:
		rules = parseRobotsTxt(string(resp.Body), userAgent)
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	r.mu.Lock()
	r.rules[domain] = rules
	r.mu.Unlock()

	return rules, nil
}

func parseRobotsTxt(content, userAgent string) *RobotRules {
	rules := &RobotRules{
		Disallowed: []string{},
		Allowed:    []string{},
	}

	agentToken := strings.ToLower(userAgent)
	if i := strings.IndexByte(agentToken, '/'); i > 0 {
		agentToken = agentToken[:i]
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	inUserAgent := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}

		directive := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])

		switch directive {
		case "user-agent":
			agent := strings.ToLower(value)
			inUserAgent = agent == "*" || strings.Contains(agentToken, agent)

		case "disallow":
			if inUserAgent && value != "" {
				rules.Disallowed = append(rules.Disallowed, value)
			}

		case "allow":
			if inUserAgent && value != "" {
				rules.Allowed = append(rules.Allowed, value)
			}

		case "crawl-delay":
			if inUserAgent {
				if delay, err := time.ParseDuration(value + "s"); err == nil {
					rules.CrawlDelay = delay
				}
			}
		}
	}

	return rules
}

// matchesPattern checks if a path matches a robots.txt pattern.
func matchesPattern(path, pattern string) bool {
	if strings.Contains(pattern, "*") {
		parts := strings.Split(pattern, "*")
		if len(parts) == 1 {
			return strings.HasPrefix(path, parts[0])
		}

		if !strings.HasPrefix(path, parts[0]) {
			return false
		}

		remaining := path[len(parts[0]):]
		for i := 1; i < len(parts); i++ {
			if parts[i] == "" {
				continue
			}
			idx := strings.Index(remaining, parts[i])
			if idx == -1 {
				return false
			}
			remaining = remaining[idx+len(parts[i]):]
		}
		return true
	}

	if strings.HasSuffix(pattern, "$") {
		return path == strings.TrimSuffix(pattern, "$")
	}

	return strings.HasPrefix(path, pattern)
}
