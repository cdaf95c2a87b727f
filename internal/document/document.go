// Package document produces the personalized style guide: a PDF rendered
// by the document service behind the gateway, with an inline data URL when
// that service is unavailable, and a standalone HTML preview.
package document

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/phrazzld/fesoni/internal/clock"
	"github.com/phrazzld/fesoni/internal/domain"
	"github.com/phrazzld/fesoni/internal/gateway"
	"github.com/phrazzld/fesoni/internal/notify"
	"github.com/phrazzld/fesoni/internal/redact"
	"github.com/phrazzld/fesoni/internal/task"
	"golang.org/x/sync/errgroup"
)

// Document service endpoints on the gateway.
const (
	GenerateEndpoint = "/foxit/documents/generate"
	OptimizeEndpoint = "/foxit/pdf/optimize"
)

// Templates known to the document service.
const (
	TemplateStyleGuide = "style-guide-template"
	TemplatePremium    = "premium-style-guide"
)

const dataURLPrefix = "data:application/pdf;base64,"

// Gateway routes a request through the gateway envelope.
type Gateway interface {
	RouteRequest(ctx context.Context, endpoint string, cfg gateway.RequestConfig) (*gateway.Response, error)
}

// Tasks registers background work with the task queue.
type Tasks interface {
	AddTask(description string, priority task.Priority, opts ...task.Option) string
}

// Notifier delivers user-facing messages.
type Notifier interface {
	Send(ctx context.Context, message string, level notify.Level)
}

type generateOptions struct {
	PageSize      string   `json:"page_size"`
	Orientation   string   `json:"orientation"`
	IncludeImages bool     `json:"include_images"`
	BrandColors   []string `json:"brand_colors"`
	StyleTheme    string   `json:"style_theme"`
	UserID        string   `json:"user_id,omitempty"`
}

type generateRequest struct {
	Template string          `json:"template"`
	Content  string          `json:"content"`
	Format   string          `json:"format"`
	Options  generateOptions `json:"options"`
}

type generateResponse struct {
	DocumentURL string `json:"document_url" validate:"required"`
}

type optimizeRequest struct {
	SourceURL         string `json:"source_url"`
	OptimizationLevel string `json:"optimization_level"`
	CompressImages    bool   `json:"compress_images"`
	RemoveMetadata    bool   `json:"remove_metadata"`
}

type optimizeResponse struct {
	OptimizedURL string `json:"optimized_url"`
}

// Client generates style guides.
type Client struct {
	gw       Gateway
	tasks    Tasks
	notifier Notifier
	clock    clock.Clock
	logger   *slog.Logger
}

// New returns a document Client.
func New(gw Gateway, tasks Tasks, notifier Notifier, clk clock.Clock, logger *slog.Logger) *Client {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		gw:       gw,
		tasks:    tasks,
		notifier: notifier,
		clock:    clk,
		logger:   logger.With("component", "document"),
	}
}

// GenerateStyleGuide renders the style guide and returns a URL to the PDF.
// When the document service fails the guide is returned inline as a data
// URL, so an error is only returned when ctx is done or the guide cannot be
// rendered.
func (c *Client) GenerateStyleGuide(ctx context.Context, a domain.Analysis, products []domain.Product, userID string) (string, error) {
	c.tasks.AddTask("document-generation:"+a.Style+"-style-guide", task.PriorityHigh)
	c.notifier.Send(ctx, "Creating your personalized style guide...", notify.LevelInfo)

	pdfURL, err := c.generatePDF(ctx, TemplateStyleGuide, a, products, userID)
	if err != nil {
		return "", err
	}
	pdfURL = c.Optimize(ctx, pdfURL)

	c.notifier.Send(ctx, fmt.Sprintf("Your %s style guide is ready for download!", a.Style), notify.LevelSuccess)
	return pdfURL, nil
}

// GenerateStyleGuideAsync queues the premium guide and its HTML preview as
// a background task and returns the task id. Generation runs under the
// task's own context, not the caller's.
func (c *Client) GenerateStyleGuideAsync(_ context.Context, a domain.Analysis, products []domain.Product, userID string) string {
	products = append([]domain.Product(nil), products...)

	return c.tasks.AddTask("async-document-generation:"+a.Style, task.PriorityNormal,
		task.WithWork(func(ctx context.Context) error {
			c.notifier.Send(ctx, "Starting style guide generation...", notify.LevelInfo)

			var pdfURL, preview string
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				var err error
				pdfURL, err = c.generatePDF(gctx, TemplatePremium, a, products, userID)
				return err
			})
			g.Go(func() error {
				var err error
				preview, err = RenderHTMLPreview(a, products)
				return err
			})
			if err := g.Wait(); err != nil {
				c.notifier.Send(ctx, "Document generation encountered an issue", notify.LevelError)
				return err
			}

			pdfURL = c.Optimize(ctx, pdfURL)
			c.logger.InfoContext(ctx, "style guide package ready",
				"style", a.Style,
				"pdf_inline", strings.HasPrefix(pdfURL, dataURLPrefix),
				"preview_bytes", len(preview))
			c.notifier.Send(ctx, fmt.Sprintf("Your complete %s style guide package is ready!", a.Style), notify.LevelSuccess)
			return nil
		}))
}

// HTMLPreview renders the standalone HTML preview.
func (c *Client) HTMLPreview(a domain.Analysis, products []domain.Product) (string, error) {
	return RenderHTMLPreview(a, products)
}

// Optimize asks the document service to optimize a generated PDF. Inline
// documents are returned unchanged, as is the original URL on failure.
func (c *Client) Optimize(ctx context.Context, pdfURL string) string {
	if strings.HasPrefix(pdfURL, "data:") {
		return pdfURL
	}

	resp, err := c.gw.RouteRequest(ctx, OptimizeEndpoint, gateway.RequestConfig{
		Method: http.MethodPost,
		Body: optimizeRequest{
			SourceURL:         pdfURL,
			OptimizationLevel: "high",
			CompressImages:    true,
		},
	})
	var out optimizeResponse
	if err == nil {
		err = gateway.DecodeJSON(resp, &out)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "pdf optimization failed", "error", redact.Error(err))
		c.notifier.Send(ctx, "PDF optimization skipped, using original version", notify.LevelWarning)
		return pdfURL
	}

	c.notifier.Send(ctx, "PDF optimized for faster download and sharing", notify.LevelInfo)
	if out.OptimizedURL == "" {
		return pdfURL
	}
	return out.OptimizedURL
}

// generatePDF asks the document service for a PDF and falls back to an
// inline data URL of the markdown guide.
func (c *Client) generatePDF(ctx context.Context, tmpl string, a domain.Analysis, products []domain.Product, userID string) (string, error) {
	content, err := RenderStyleGuide(a, products, c.clock.Now())
	if err != nil {
		return "", err
	}

	resp, err := c.gw.RouteRequest(ctx, GenerateEndpoint, gateway.RequestConfig{
		Method: http.MethodPost,
		Body: generateRequest{
			Template: tmpl,
			Content:  content,
			Format:   "pdf",
			Options: generateOptions{
				PageSize:      "A4",
				Orientation:   "portrait",
				IncludeImages: true,
				BrandColors:   a.Colors,
				StyleTheme:    StyleTheme(a.Style),
				UserID:        userID,
			},
		},
	})
	var out generateResponse
	if err == nil {
		err = gateway.DecodeJSON(resp, &out)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		c.logger.WarnContext(ctx, "document service unavailable, using inline document",
			"template", tmpl,
			"error", redact.Error(err))
		return InlineURL(content), nil
	}
	return out.DocumentURL, nil
}

var whitespace = regexp.MustCompile(`\s+`)

// StyleTheme converts a style name to the document service theme slug:
// lowercase with whitespace runs replaced by hyphens.
func StyleTheme(style string) string {
	return whitespace.ReplaceAllString(strings.ToLower(style), "-")
}

// InlineURL returns content as a base64 data URL.
func InlineURL(content string) string {
	return dataURLPrefix + base64.StdEncoding.EncodeToString([]byte(content))
}
