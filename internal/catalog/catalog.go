// Package catalog searches the product catalog through the gateway and
// ranks results against an aesthetic analysis.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/fesoni/internal/domain"
	"github.com/phrazzld/fesoni/internal/gateway"
	"github.com/phrazzld/fesoni/internal/notify"
	"github.com/phrazzld/fesoni/internal/redact"
	"github.com/phrazzld/fesoni/internal/task"
	"golang.org/x/sync/errgroup"
)

// SearchEndpoint is the gateway route for keyword search.
const SearchEndpoint = "/amazon/search"

// MaxResults caps the products returned by a single search.
const MaxResults = 12

const productFound = "PRODUCT_FOUND_RESPONSE"

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

type searchResponse struct {
	ResponseStatus string          `json:"responseStatus"`
	Products       []searchProduct `json:"searchProductDetails"`
}

type searchProduct struct {
	ASIN          string `json:"asin"`
	Description   string `json:"productDescription"`
	Price         string `json:"price"`
	ImageURL      string `json:"imgUrl"`
	ProductRating string `json:"productRating"`
	DetailPath    string `json:"dpUrl"`
	Category      string `json:"category"`
}

// Client searches products.
type Client struct {
	gw       Gateway
	tasks    Tasks
	notifier Notifier
	logger   *slog.Logger
}

// New returns a catalog Client.
func New(gw Gateway, tasks Tasks, notifier Notifier, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		gw:       gw,
		tasks:    tasks,
		notifier: notifier,
		logger:   logger.With("component", "catalog"),
	}
}

// Search looks up products matching keywords and categories. At most
// MaxResults products are returned. Gateway failures are reported to the
// user and returned.
func (c *Client) Search(ctx context.Context, keywords, categories []string) ([]domain.Product, error) {
	terms := make([]string, 0, len(keywords)+len(categories))
	terms = append(terms, keywords...)
	terms = append(terms, categories...)
	query := strings.Join(terms, " ")

	resp, err := c.gw.RouteRequest(ctx, SearchEndpoint, gateway.RequestConfig{
		Method: http.MethodGet,
		Query: url.Values{
			"domainCode":       {"com"},
			"keyword":          {query},
			"page":             {"1"},
			"excludeSponsored": {"false"},
			"sortBy":           {"relevanceblender"},
			"withCache":        {"true"},
		},
	})
	if err == nil {
		var out searchResponse
		if err = gateway.DecodeJSON(resp, &out); err == nil {
			return c.found(ctx, query, out)
		}
	}

	c.logger.ErrorContext(ctx, "product search failed",
		"query", query,
		"error", redact.Error(err))
	c.notifier.Send(ctx, "Amazon search temporarily unavailable", notify.LevelError)
	return nil, fmt.Errorf("searching products: %w", err)
}

func (c *Client) found(ctx context.Context, query string, out searchResponse) ([]domain.Product, error) {
	if out.ResponseStatus != productFound {
		c.logger.WarnContext(ctx, "no products found", "query", query, "status", out.ResponseStatus)
		c.notifier.Send(ctx, "No products found for your search, try different keywords", notify.LevelWarning)
		return []domain.Product{}, nil
	}

	products := make([]domain.Product, 0, min(len(out.Products), MaxResults))
	for _, raw := range out.Products {
		if len(products) == MaxResults {
			break
		}
		p := toProduct(raw)
		if err := p.Validate(); err != nil {
			c.logger.DebugContext(ctx, "skipping invalid product", "product_id", p.ID, "error", err)
			continue
		}
		products = append(products, p)
	}

	c.notifier.Send(ctx, fmt.Sprintf("Found %d products matching your aesthetic!", len(products)), notify.LevelSuccess)
	return products, nil
}

// SearchByCategory runs one search per category in parallel, each with the
// category appended to keywords, and concatenates the results in category
// order. It fails only when every category search fails.
func (c *Client) SearchByCategory(ctx context.Context, keywords, categories []string) ([]domain.Product, error) {
	if len(categories) == 0 {
		return c.Search(ctx, keywords, nil)
	}

	results := make([][]domain.Product, len(categories))
	errs := make([]error, len(categories))

	var g errgroup.Group
	for i, category := range categories {
		g.Go(func() error {
			terms := append(append([]string(nil), keywords...), category)
			results[i], errs[i] = c.Search(ctx, terms, nil)
			return nil
		})
	}
	_ = g.Wait()

	var all []domain.Product
	failed := 0
	for i := range categories {
		if errs[i] != nil {
			failed++
			continue
		}
		all = append(all, results[i]...)
	}
	if failed == len(categories) {
		return nil, errors.Join(errs...)
	}
	return all, nil
}

// SearchAsync queues a category search as a background task and returns
// the task id. A failed search fails the task, which the queue retries.
// The search runs under the task's own context, not the caller's.
func (c *Client) SearchAsync(_ context.Context, keywords, categories []string) string {
	keywords = append([]string(nil), keywords...)
	categories = append([]string(nil), categories...)

	return c.tasks.AddTask("amazon-search:"+strings.Join(keywords, ","), task.PriorityNormal,
		task.WithWork(func(ctx context.Context) error {
			products, err := c.SearchByCategory(ctx, keywords, categories)
			if err != nil {
				c.notifier.Send(ctx, "Search completed with some limitations", notify.LevelWarning)
				return err
			}
			c.notifier.Send(ctx,
				fmt.Sprintf("Found %d products matching your %s aesthetic!", len(products), strings.Join(keywords, " ")),
				notify.LevelSuccess)
			return nil
		}))
}

func toProduct(raw searchProduct) domain.Product {
	p := domain.Product{
		ID:             raw.ASIN,
		Title:          raw.Description,
		Price:          raw.Price,
		Image:          raw.ImageURL,
		Rating:         parseRating(raw.ProductRating),
		Description:    raw.Description,
		Category:       raw.Category,
		AestheticMatch: 0.8,
	}
	if p.ID == "" {
		p.ID = "product-" + uuid.NewString()
	}
	if p.Title == "" {
		p.Title = "Product"
	}
	if p.Price == "" {
		p.Price = "$0.00"
	}
	if raw.DetailPath != "" {
		p.URL = "https://amazon.com" + raw.DetailPath
	}
	return p
}

var ratingPattern = regexp.MustCompile(`\d+\.?\d*`)

// parseRating extracts the first number of a rating string such as
// "4.5 out of 5 stars".
func parseRating(s string) float64 {
	m := ratingPattern.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}
