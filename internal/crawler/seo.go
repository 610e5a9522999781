package crawler

import (
	"github.com/spidex/spidex/internal/config"
	"github.com/spidex/spidex/internal/parser"
)

// SEOScore grades a parsed page against the on-page rubric. Each present
// signal contributes its configured points; the sum is clamped to 0-100.
func SEOScore(w config.SEOWeights, p *parser.ParseResult) int {
	score := 0

	if p.Title != "" {
		score += w.Title
	}
	if p.MetaDesc != "" {
		score += w.MetaDescription
		if n := len(p.MetaDesc); n >= 50 && n <= 160 {
			score += w.DescriptionLen
		}
	}
	if p.MetaKeywords != "" {
		score += w.MetaKeywords
	}
	if p.MetaOGImage != "" {
		score += w.OGImage
	}
	if p.HasH1 {
		score += w.H1
	}
	if len(p.Links) >= 5 {
		score += w.LinkCount
	}
	if p.ImageCount > 0 && p.ImageAltCount*2 >= p.ImageCount {
		score += w.ImageAlt
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
