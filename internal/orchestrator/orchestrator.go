// Package orchestrator composes aesthetic analysis, product search and
// style guide generation into the shopping pipelines.
//
// The enhanced pipeline fans independent remote calls out concurrently and
// then enriches the results. The simplified pipeline runs every step in
// sequence. A failing enhanced request is retried exactly once through the
// simplified pipeline; simplified failures are returned to the caller.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/fesoni/internal/catalog"
	"github.com/phrazzld/fesoni/internal/clock"
	"github.com/phrazzld/fesoni/internal/domain"
	"github.com/phrazzld/fesoni/internal/gateway"
	"github.com/phrazzld/fesoni/internal/notify"
	"github.com/phrazzld/fesoni/internal/redact"
	"github.com/phrazzld/fesoni/internal/task"
	"golang.org/x/sync/errgroup"
)

// Stylist analyzes aesthetic requests and writes product descriptions.
type Stylist interface {
	Analyze(ctx context.Context, input string) (domain.Analysis, error)
	DescribeBatch(ctx context.Context, products []domain.Product, a domain.Analysis) []string
	Healthy(ctx context.Context) bool
}

// Expander widens an analysis into extra search terms.
type Expander interface {
	ExpandKeywords(a domain.Analysis) []string
	RelatedCategories(a domain.Analysis) []string
}

// Catalog searches for products.
type Catalog interface {
	Search(ctx context.Context, keywords, categories []string) ([]domain.Product, error)
	SearchAsync(ctx context.Context, keywords, categories []string) string
	SearchWithCulturalContext(ctx context.Context, cc catalog.CulturalContext) ([]domain.Product, error)
}

// Documents generates style guides.
type Documents interface {
	GenerateStyleGuide(ctx context.Context, a domain.Analysis, products []domain.Product, userID string) (string, error)
	GenerateStyleGuideAsync(ctx context.Context, a domain.Analysis, products []domain.Product, userID string) string
	HTMLPreview(a domain.Analysis, products []domain.Product) (string, error)
}

// Gateway exposes the gateway's health, metrics and admin API.
type Gateway interface {
	CheckGatewayHealth(ctx context.Context) bool
	GetMetrics() gateway.Metrics
	RegisterRoutes(ctx context.Context, routes []gateway.Route) error
}

// Tasks is the task queue.
type Tasks interface {
	AddTask(description string, priority task.Priority, opts ...task.Option) string
	GetStatus() task.QueueStatus
}

// Notifier delivers user-facing messages and reports whether the real-time
// bus is reachable.
type Notifier interface {
	Send(ctx context.Context, message string, level notify.Level)
	Healthy(ctx context.Context) bool
}

// Deps holds the collaborators of an Orchestrator.
type Deps struct {
	Stylist   Stylist
	Expander  Expander
	Catalog   Catalog
	Documents Documents
	Gateway   Gateway
	Tasks     Tasks
	Notifier  Notifier
	Clock     clock.Clock
	Logger    *slog.Logger
	// Routes are registered with the gateway during Initialize. Defaults to
	// gateway.DefaultRoutes().
	Routes []gateway.Route
}

// Mode identifies which pipeline produced a Result.
type Mode string

// Pipeline modes
const (
	ModeEnhanced   Mode = "enhanced"
	ModeSimplified Mode = "simplified"
)

// Result is the outcome of a shopping request.
type Result struct {
	RequestID        string           `json:"request_id"`
	Mode             Mode             `json:"mode"`
	Analysis         domain.Analysis  `json:"analysis"`
	Products         []domain.Product `json:"products"`
	EnhancedProducts []domain.Product `json:"enhanced_products,omitempty"`
	StyleGuideURL    string           `json:"style_guide_url"`
	HTMLPreview      string           `json:"html_preview,omitempty"`
	TaskIDs          []string         `json:"task_ids"`
}

// Orchestrator runs the shopping pipelines.
type Orchestrator struct {
	stylist   Stylist
	expander  Expander
	catalog   Catalog
	documents Documents
	gateway   Gateway
	tasks     Tasks
	notifier  Notifier
	clock     clock.Clock
	logger    *slog.Logger
	routes    []gateway.Route

	mu          sync.Mutex
	initialized bool
}

// New returns an Orchestrator wired to d.
func New(d Deps) *Orchestrator {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Routes == nil {
		d.Routes = gateway.DefaultRoutes()
	}
	return &Orchestrator{
		stylist:   d.Stylist,
		expander:  d.Expander,
		catalog:   d.Catalog,
		documents: d.Documents,
		gateway:   d.Gateway,
		tasks:     d.Tasks,
		notifier:  d.Notifier,
		clock:     d.Clock,
		logger:    d.Logger.With("component", "orchestrator"),
		routes:    d.Routes,
	}
}

// ProcessShoppingRequest runs the simplified pipeline: analysis, then
// product search, then the style guide, one step after another.
//
// Search and style guide generation are also queued as background tasks;
// the call waits only for the inline results.
//
// Returns:
//   - (*Result, nil): the analysis, products and style guide URL
//   - (nil, *Error): the step that failed, wrapping the cause
//
// Every failure is announced with an error notification before it is
// returned.
func (o *Orchestrator) ProcessShoppingRequest(ctx context.Context, input, userID string) (*Result, error) {
	requestID := "orchestration-" + uuid.NewString()
	log := o.logger.With("request_id", requestID, "mode", ModeSimplified)

	o.notifier.Send(ctx, "Analyzing your aesthetic preferences...", notify.LevelInfo)
	analysis, err := o.stylist.Analyze(ctx, input)
	if err != nil {
		return nil, o.fail(ctx, log, OpShoppingRequest, "analysis", err)
	}

	o.notifier.Send(ctx, "Searching for products that match your vibe...", notify.LevelInfo)
	searchTask := o.catalog.SearchAsync(ctx, analysis.Keywords, analysis.Categories)
	products, err := o.catalog.Search(ctx, analysis.Keywords, analysis.Categories)
	if err != nil {
		return nil, o.fail(ctx, log, OpShoppingRequest, "search", err)
	}

	guideTask := o.documents.GenerateStyleGuideAsync(ctx, analysis, products, userID)
	guideURL, err := o.documents.GenerateStyleGuide(ctx, analysis, products, userID)
	if err != nil {
		return nil, o.fail(ctx, log, OpShoppingRequest, "style guide", err)
	}

	log.InfoContext(ctx, "shopping request complete",
		"style", analysis.Style,
		"products", len(products))

	return &Result{
		RequestID:     requestID,
		Mode:          ModeSimplified,
		Analysis:      analysis,
		Products:      products,
		StyleGuideURL: guideURL,
		TaskIDs:       []string{searchTask, guideTask},
	}, nil
}

// ProcessEnhancedShoppingRequest runs the enhanced pipeline.
//
// System health is checked first: when neither the gateway nor the model
// service is reachable the simplified pipeline runs directly. Otherwise the
// enhanced pipeline runs and, if it fails at any point, the whole request
// is retried once through ProcessShoppingRequest. Results of the two
// pipelines are never merged.
//
// Returns:
//   - (*Result, nil): from whichever pipeline succeeded, see Result.Mode
//   - (nil, error): the simplified pipeline's error, or ctx's error when
//     the request was canceled
func (o *Orchestrator) ProcessEnhancedShoppingRequest(ctx context.Context, input, userID string) (*Result, error) {
	mainTask := o.tasks.AddTask("enhanced-shopping-request", task.PriorityHigh)

	status := o.GetSystemStatus(ctx)
	if !status.Gateway && !status.Model {
		o.logger.WarnContext(ctx, "gateway and model service unreachable, using simplified pipeline")
		return o.ProcessShoppingRequest(ctx, input, userID)
	}

	result, err := o.enhanced(ctx, input, userID, mainTask)
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	o.logger.WarnContext(ctx, "enhanced pipeline failed, retrying simplified",
		"error", redact.Error(err))
	o.notifier.Send(ctx, "Enhanced processing failed, using basic results", notify.LevelWarning)
	return o.ProcessShoppingRequest(ctx, input, userID)
}

func (o *Orchestrator) enhanced(ctx context.Context, input, userID, mainTask string) (*Result, error) {
	requestID := "enhanced-" + uuid.NewString()
	log := o.logger.With("request_id", requestID, "mode", ModeEnhanced)

	analysis, err := o.stylist.Analyze(ctx, input)
	if err != nil {
		return nil, &Error{Operation: OpEnhancedShoppingRequest, Step: "analysis", Err: err}
	}

	keywords := slices.Concat(analysis.Keywords, o.expander.ExpandKeywords(analysis))
	categories := slices.Concat(analysis.Categories, o.expander.RelatedCategories(analysis))

	// Background tasks take ctx rather than the group context, which is
	// canceled as soon as the fan-out returns.
	var (
		products   []domain.Product
		searchTask string
		guideTask  string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = o.catalog.SearchWithCulturalContext(gctx, catalog.ContextFromAnalysis(analysis))
		if err != nil {
			return &Error{Operation: OpEnhancedShoppingRequest, Step: "cultural search", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		searchTask = o.catalog.SearchAsync(ctx, keywords, categories)
		return nil
	})
	g.Go(func() error {
		guideTask = o.documents.GenerateStyleGuideAsync(ctx, analysis, nil, userID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, &Error{Operation: OpEnhancedShoppingRequest, Step: "cultural search", Err: ErrNoProducts}
	}

	enhanced := o.enhanceProducts(ctx, products, analysis)

	var guideURL, preview string
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		guideURL, err = o.documents.GenerateStyleGuide(gctx, analysis, enhanced, userID)
		if err != nil {
			return &Error{Operation: OpEnhancedShoppingRequest, Step: "style guide", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		preview, err = o.documents.HTMLPreview(analysis, enhanced)
		if err != nil {
			return &Error{Operation: OpEnhancedShoppingRequest, Step: "html preview", Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "enhanced shopping request complete",
		"style", analysis.Style,
		"products", len(products))
	o.notifier.Send(ctx, fmt.Sprintf("Complete %s shopping experience ready!", analysis.Style), notify.LevelSuccess)

	return &Result{
		RequestID:        requestID,
		Mode:             ModeEnhanced,
		Analysis:         analysis,
		Products:         products,
		EnhancedProducts: enhanced,
		StyleGuideURL:    guideURL,
		HTMLPreview:      preview,
		TaskIDs:          []string{mainTask, searchTask, guideTask},
	}, nil
}

// enhanceProducts returns copies of products with generated descriptions
// and a keyword-based aesthetic match score.
func (o *Orchestrator) enhanceProducts(ctx context.Context, products []domain.Product, a domain.Analysis) []domain.Product {
	descriptions := o.stylist.DescribeBatch(ctx, products, a)

	out := make([]domain.Product, len(products))
	for i, p := range products {
		if i < len(descriptions) && descriptions[i] != "" {
			p.Description = descriptions[i]
		}
		p.AestheticMatch = catalog.AestheticMatch(p, a)
		out[i] = p
	}
	return out
}

func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, op, step string, err error) error {
	log.ErrorContext(ctx, "shopping request failed",
		"step", step,
		"error", redact.Error(err))
	o.notifier.Send(ctx, "Request processing encountered an issue. "+domain.UserMessage(err), notify.LevelError)
	return &Error{Operation: op, Step: step, Err: err}
}
