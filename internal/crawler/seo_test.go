package crawler

import (
	"strings"
	"testing"

	"github.com/spidex/spidex/internal/config"
	"github.com/spidex/spidex/internal/parser"
)

func defaultSEOWeights() config.SEOWeights {
	return config.Default().SEO
}

func TestSEOScoreEmptyPage(t *testing.T) {
	score := SEOScore(defaultSEOWeights(), &parser.ParseResult{})
	if score != 0 {
		t.Errorf("empty page score = %d, want 0", score)
	}
}

func TestSEOScoreFullPage(t *testing.T) {
	p := &parser.ParseResult{
		Title:        "Title",
		MetaDesc:     strings.Repeat("d", 100), // within the 50-160 bonus window
		MetaKeywords: "a, b",
		MetaOGImage:  "https://example.com/og.png",
		HasH1:        true,
		Links: []string{
			"https://a.com/", "https://b.com/", "https://c.com/",
			"https://d.com/", "https://e.com/",
		},
		ImageCount:    2,
		ImageAltCount: 2,
	}

	// 25+20+5+10+10+10+10+10 = 100
	score := SEOScore(defaultSEOWeights(), p)
	if score != 100 {
		t.Errorf("full page score = %d, want 100", score)
	}
}

func TestSEOScoreComponents(t *testing.T) {
	w := defaultSEOWeights()

	tests := []struct {
		name string
		page parser.ParseResult
		want int
	}{
		{"title only", parser.ParseResult{Title: "T"}, 25},
		{"short description no bonus", parser.ParseResult{MetaDesc: "too short"}, 20},
		{"ideal description", parser.ParseResult{MetaDesc: strings.Repeat("x", 80)}, 25},
		{"h1 only", parser.ParseResult{HasH1: true}, 10},
		{"four links no points", parser.ParseResult{Links: []string{"a", "b", "c", "d"}}, 0},
		{"half alt coverage", parser.ParseResult{ImageCount: 4, ImageAltCount: 2}, 10},
		{"low alt coverage", parser.ParseResult{ImageCount: 4, ImageAltCount: 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SEOScore(w, &tt.page); got != tt.want {
				t.Errorf("score = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSEOScoreClamped(t *testing.T) {
	w := config.SEOWeights{Title: 500}
	score := SEOScore(w, &parser.ParseResult{Title: "T"})
	if score != 100 {
		t.Errorf("score = %d, want clamp at 100", score)
	}
}
