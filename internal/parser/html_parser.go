// Package parser provides HTML parsing and content extraction capabilities.
// It extracts the page title, indexable body text, search-facing metadata,
// the favicon reference, on-page SEO signals and outbound links.
package parser

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// HTMLParser extracts metadata, text and links from HTML.
type HTMLParser struct {
	baseURL      *url.URL
	maxURLLength int
}

// ParseResult contains the parsed HTML data.
type ParseResult struct {
	Title          string
	Body           string // visible text, whitespace-normalized
	MetaDesc       string
	MetaKeywords   string
	MetaThemeColor string // hex digits without the leading '#'
	MetaOGImage    string
	FaviconURL     string // absolute, empty when the page declares none
	HasH1          bool
	ImageCount     int
	ImageAltCount  int
	Links          []string // absolute, normalized, deduplicated
}

// Extensions whose URLs are never crawlable HTML.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".svg": true, ".ico": true, ".css": true, ".js": true, ".json": true,
	".xml": true, ".pdf": true, ".zip": true, ".gz": true, ".tar": true,
	".mp3": true, ".mp4": true, ".webm": true, ".avi": true, ".mov": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".exe": true,
}

// Elements whose text content is never user-visible. head is walked for
// metadata but contributes no body text.
var invisibleElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"head": true,
}

// NewHTMLParser creates a parser resolving links against the given base URL,
// normally the final URL after redirects.
func NewHTMLParser(baseURL string, maxURLLength int) (*HTMLParser, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if maxURLLength <= 0 {
		maxURLLength = 2048
	}
	return &HTMLParser{baseURL: parsed, maxURLLength: maxURLLength}, nil
}

// Parse walks the document once, collecting metadata, visible text and
// outbound links. Malformed HTML never fails; the tokenizer repairs what it
// can and the result holds whatever was found.
func (p *HTMLParser) Parse(htmlContent []byte) (*ParseResult, error) {
	doc, err := html.Parse(strings.NewReader(string(htmlContent)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	result := &ParseResult{}
	var body strings.Builder
	seen := make(map[string]bool)
	p.traverse(doc, result, &body, seen, false)
	result.Body = strings.Join(strings.Fields(body.String()), " ")
	return result, nil
}

func (p *HTMLParser) traverse(n *html.Node, result *ParseResult, body *strings.Builder, seen map[string]bool, invisible bool) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "title":
			if result.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				result.Title = strings.TrimSpace(n.FirstChild.Data)
			}
		case "meta":
			p.parseMeta(n, result)
		case "link":
			p.parseLinkTag(n, result)
		case "a":
			p.parseAnchor(n, result, seen)
		case "h1":
			result.HasH1 = true
		case "img":
			result.ImageCount++
			for _, attr := range n.Attr {
				if attr.Key == "alt" && strings.TrimSpace(attr.Val) != "" {
					result.ImageAltCount++
					break
				}
			}
		}
		if invisibleElements[n.Data] {
			invisible = true
		}
	}

	if n.Type == html.TextNode && !invisible {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			body.WriteString(text)
			body.WriteByte(' ')
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.traverse(c, result, body, seen, invisible)
	}
}

func (p *HTMLParser) parseMeta(n *html.Node, result *ParseResult) {
	var name, property, content string
	for _, attr := range n.Attr {
		switch attr.Key {
		case "name":
			name = strings.ToLower(attr.Val)
		case "property":
			property = strings.ToLower(attr.Val)
		case "content":
			content = attr.Val
		}
	}

	switch name {
	case "description":
		result.MetaDesc = strings.TrimSpace(content)
	case "keywords":
		result.MetaKeywords = strings.TrimSpace(content)
	case "theme-color":
		result.MetaThemeColor = normalizeThemeColor(content)
	}

	if property == "og:image" && content != "" {
		if abs, err := p.resolveURL(content); err == nil {
			result.MetaOGImage = abs
		}
	}
}

func (p *HTMLParser) parseLinkTag(n *html.Node, result *ParseResult) {
	var rel, href string
	for _, attr := range n.Attr {
		switch attr.Key {
		case "rel":
			rel = strings.ToLower(attr.Val)
		case "href":
			href = attr.Val
		}
	}

	// rel can be a list, e.g. "shortcut icon".
	isIcon := false
	for _, token := range strings.Fields(rel) {
		if token == "icon" || token == "apple-touch-icon" {
			isIcon = true
			break
		}
	}

	if isIcon && href != "" && result.FaviconURL == "" {
		if abs, err := p.resolveURL(href); err == nil {
			result.FaviconURL = abs
		}
	}
}

func (p *HTMLParser) parseAnchor(n *html.Node, result *ParseResult, seen map[string]bool) {
	var href string
	for _, attr := range n.Attr {
		if attr.Key == "href" {
			href = attr.Val
			break
		}
	}

	normalized, ok := p.NormalizeLink(href)
	if !ok || seen[normalized] {
		return
	}
	seen[normalized] = true
	result.Links = append(result.Links, normalized)
}

// NormalizeLink resolves href against the base URL and returns the crawlable
// canonical form: scheme and host lowercased, fragment and query stripped,
// http/https only, binary extensions and over-long URLs rejected.
func (p *HTMLParser) NormalizeLink(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:") {
		return "", false
	}

	abs, err := p.resolveURL(href)
	if err != nil {
		return "", false
	}

	u, err := url.Parse(abs)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	if binaryExtensions[strings.ToLower(path.Ext(u.Path))] {
		return "", false
	}

	u.Fragment = ""
	u.RawQuery = ""
	u.Host = strings.ToLower(u.Host)

	normalized := u.String()
	if len(normalized) > p.maxURLLength {
		return "", false
	}
	return normalized, true
}

func (p *HTMLParser) resolveURL(href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return p.baseURL.ResolveReference(u).String(), nil
}

// normalizeThemeColor keeps only a 6-digit hex color, without the '#'.
func normalizeThemeColor(v string) string {
	v = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "#"))
	if len(v) != 6 {
		return ""
	}
	for _, r := range v {
		isHex := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
		if !isHex {
			return ""
		}
	}
	return strings.ToLower(v)
}
