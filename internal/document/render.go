package document

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"math"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/phrazzld/fesoni/internal/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var funcs = template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
	"first": func(s []string, n int) []string {
		if len(s) < n {
			return s
		}
		return s[:n]
	},
}

var (
	guideTemplate = template.Must(template.New("style_guide.md.tmpl").
			Funcs(funcs).
			ParseFS(templateFS, "templates/style_guide.md.tmpl"))

	previewTemplate = htmltemplate.Must(htmltemplate.New("preview.html.tmpl").
			ParseFS(templateFS, "templates/preview.html.tmpl"))
)

type guideData struct {
	Analysis          domain.Analysis
	Products          []domain.Product
	ConfidencePercent int
	Generated         string
}

// RenderStyleGuide renders the markdown style guide for a and products.
// A zero confidence is shown as 80%.
func RenderStyleGuide(a domain.Analysis, products []domain.Product, now time.Time) (string, error) {
	confidence := a.Confidence
	if confidence == 0 {
		confidence = 0.8
	}

	var buf bytes.Buffer
	err := guideTemplate.Execute(&buf, guideData{
		Analysis:          a,
		Products:          products,
		ConfidencePercent: int(math.Round(confidence * 100)),
		Generated:         now.Format("January 2, 2006"),
	})
	if err != nil {
		return "", fmt.Errorf("rendering style guide: %w", err)
	}
	return buf.String(), nil
}

// colorName accepts plain color names and hex codes.
var colorName = regexp.MustCompile(`^[A-Za-z0-9# -]+$`)

type swatch struct {
	Name  string
	Style htmltemplate.CSS
}

type previewData struct {
	Analysis domain.Analysis
	Swatches []swatch
	Products []domain.Product
}

// RenderHTMLPreview renders a standalone HTML page with the palette and
// products. All values are escaped; colors that are not plain names or hex
// codes get no swatch fill.
func RenderHTMLPreview(a domain.Analysis, products []domain.Product) (string, error) {
	swatches := make([]swatch, 0, len(a.Colors))
	for _, c := range a.Colors {
		s := swatch{Name: c}
		if colorName.MatchString(c) {
			// CSS named colors never contain spaces ("forest green" → "forestgreen")
			s.Style = htmltemplate.CSS("background-color: " + strings.ReplaceAll(strings.ToLower(c), " ", ""))
		}
		swatches = append(swatches, s)
	}

	var buf bytes.Buffer
	if err := previewTemplate.Execute(&buf, previewData{Analysis: a, Swatches: swatches, Products: products}); err != nil {
		return "", fmt.Errorf("rendering preview: %w", err)
	}
	return buf.String(), nil
}
