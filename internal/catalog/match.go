package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/phrazzld/fesoni/internal/domain"
)

// Match weights per matched term.
const (
	keywordWeight = 0.4
	styleWeight   = 0.3
	moodWeight    = 0.2
)

// CulturalContext is the set of terms a product is ranked against.
type CulturalContext struct {
	AestheticKeywords []string
	StylePreferences  []string
	MoodDescriptors   []string
	Categories        []string
}

// ContextFromAnalysis derives a CulturalContext from a.
func ContextFromAnalysis(a domain.Analysis) CulturalContext {
	return CulturalContext{
		AestheticKeywords: a.Keywords,
		StylePreferences:  []string{a.Style},
		MoodDescriptors:   strings.Fields(a.Mood),
		Categories:        a.Categories,
	}
}

// SearchWithCulturalContext searches with every context term and returns
// the products ordered by MatchScore, best first.
func (c *Client) SearchWithCulturalContext(ctx context.Context, cc CulturalContext) ([]domain.Product, error) {
	var keywords []string
	keywords = append(keywords, cc.AestheticKeywords...)
	keywords = append(keywords, cc.StylePreferences...)
	keywords = append(keywords, cc.MoodDescriptors...)

	products, err := c.Search(ctx, keywords, cc.Categories)
	if err != nil {
		return nil, err
	}

	for i := range products {
		products[i].AestheticMatch = MatchScore(products[i], cc)
	}
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].AestheticMatch > products[j].AestheticMatch
	})
	return products, nil
}

// MatchScore rates how well p fits cc, in [0, 1]. Each term found in the
// title or description adds its group's weight; highly rated products get
// a small bonus.
func MatchScore(p domain.Product, cc CulturalContext) float64 {
	text := strings.ToLower(p.Title + "\n" + p.Description)

	score := keywordWeight*float64(countMatches(text, cc.AestheticKeywords)) +
		styleWeight*float64(countMatches(text, cc.StylePreferences)) +
		moodWeight*float64(countMatches(text, cc.MoodDescriptors))

	switch {
	case p.Rating > 4.5:
		score += 0.05
	case p.Rating > 4.0:
		score += 0.03
	}
	return min(score, 1.0)
}

func countMatches(text string, terms []string) int {
	n := 0
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(text, term) {
			n++
		}
	}
	return n
}

// AestheticMatch is the share of a's keywords and colors that overlap a
// word of p's title, capped at 1.
func AestheticMatch(p domain.Product, a domain.Analysis) float64 {
	var terms []string
	for _, w := range append(append([]string(nil), a.Keywords...), a.Colors...) {
		terms = append(terms, strings.ToLower(w))
	}
	if len(terms) == 0 {
		return 0
	}

	matches := 0
	for _, word := range strings.Fields(strings.ToLower(p.Title)) {
		for _, term := range terms {
			if strings.Contains(word, term) || strings.Contains(term, word) {
				matches++
				break
			}
		}
	}
	return min(float64(matches)/float64(len(terms)), 1.0)
}
