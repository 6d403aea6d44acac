// ABOUTME: Keyword scorer that rates transcripts by the fraction of keywords present
// ABOUTME: Matching is case-insensitive substring search; each keyword counts once

package scoring

import (
	"slices"
	"strings"
)

// DefaultKeywords indicate an affluent customer.
var DefaultKeywords = []string{
	"luksusowy",
	"premium",
	"inwestycja",
	"rezydencja",
	"jacht",
	"prywatny",
}

// Scorer rates a transcript in [0, 1].
type Scorer interface {
	Score(transcript string) float64
}

// KeywordScorer scores by keyword presence.
type KeywordScorer struct {
	keywords []string
}

// NewKeywordScorer creates a scorer for keywords. With no keywords it uses
// DefaultKeywords. Keywords are lowercased and deduplicated.
func NewKeywordScorer(keywords ...string) *KeywordScorer {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	normalized := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || slices.Contains(normalized, k) {
			continue
		}
		normalized = append(normalized, k)
	}
	return &KeywordScorer{keywords: normalized}
}

// Keywords returns the normalized keyword set.
func (s *KeywordScorer) Keywords() []string {
	return slices.Clone(s.keywords)
}

// Hits returns the keywords found in transcript, in keyword order.
func (s *KeywordScorer) Hits(transcript string) []string {
	lower := strings.ToLower(transcript)
	var hits []string
	for _, k := range s.keywords {
		if strings.Contains(lower, k) {
			hits = append(hits, k)
		}
	}
	return hits
}

// Score returns hits divided by the keyword count, or 0 with no keywords.
func (s *KeywordScorer) Score(transcript string) float64 {
	if len(s.keywords) == 0 {
		return 0
	}
	return float64(len(s.Hits(transcript))) / float64(len(s.keywords))
}
