package stylist

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/phrazzld/fesoni/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var defaultProfilesYAML []byte

// Profile is a canned analysis selected by keyword match.
type Profile struct {
	Match      []string `yaml:"match"`
	Style      string   `yaml:"style"`
	Colors     []string `yaml:"colors"`
	Keywords   []string `yaml:"keywords"`
	Categories []string `yaml:"categories"`
	Mood       string   `yaml:"mood"`
}

// Profiles holds the offline tables used for fallback analysis and search
// expansion.
type Profiles struct {
	Fallback         Profile             `yaml:"fallback"`
	Confidence       float64             `yaml:"confidence"`
	Profiles         []Profile           `yaml:"profiles"`
	Expansions       map[string][]string `yaml:"expansions"`
	DefaultExpansion []string            `yaml:"default_expansion"`
	Related          map[string][]string `yaml:"related_categories"`
}

// ParseProfiles decodes a profile table.
func ParseProfiles(data []byte) (*Profiles, error) {
	var p Profiles
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: parsing profiles: %v", domain.ErrConfiguration, err)
	}
	if p.Fallback.Style == "" || len(p.Fallback.Keywords) == 0 {
		return nil, fmt.Errorf("%w: profiles: fallback profile is incomplete", domain.ErrConfiguration)
	}
	return &p, nil
}

var loadDefaultProfiles = sync.OnceValues(func() (*Profiles, error) {
	return ParseProfiles(defaultProfilesYAML)
})

// DefaultProfiles returns the embedded profile table.
func DefaultProfiles() *Profiles {
	p, err := loadDefaultProfiles()
	if err != nil {
		panic(err)
	}
	return p
}

// Analyze returns the analysis of the first profile whose match terms occur
// in input, or the fallback profile.
func (p *Profiles) Analyze(input string) domain.Analysis {
	text := strings.ToLower(input)
	chosen := p.Fallback
	for _, profile := range p.Profiles {
		if slices.ContainsFunc(profile.Match, func(term string) bool {
			return strings.Contains(text, strings.ToLower(term))
		}) {
			chosen = profile
			break
		}
	}

	return domain.Analysis{
		Style:      chosen.Style,
		Colors:     slices.Clone(chosen.Colors),
		Keywords:   slices.Clone(chosen.Keywords),
		Categories: slices.Clone(chosen.Categories),
		Mood:       chosen.Mood,
		Confidence: p.Confidence,
	}
}

// ExpandKeywords returns additional search keywords for a's style.
func (p *Profiles) ExpandKeywords(a domain.Analysis) []string {
	if extra, ok := p.Expansions[strings.ToLower(a.Style)]; ok {
		return slices.Clone(extra)
	}
	return slices.Clone(p.DefaultExpansion)
}

// RelatedCategories returns the categories related to a's categories,
// deduplicated, in first-seen order.
func (p *Profiles) RelatedCategories(a domain.Analysis) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, category := range a.Categories {
		for _, related := range p.Related[category] {
			if _, dup := seen[related]; dup {
				continue
			}
			seen[related] = struct{}{}
			out = append(out, related)
		}
	}
	return out
}
