package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/fesoni/internal/catalog"
	"github.com/phrazzld/fesoni/internal/clock"
	"github.com/phrazzld/fesoni/internal/domain"
	"github.com/phrazzld/fesoni/internal/gateway"
	"github.com/phrazzld/fesoni/internal/notify"
	"github.com/phrazzld/fesoni/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

var cottagecore = domain.Analysis{
	Style:      "Cottagecore",
	Colors:     []string{"sage green", "cream"},
	Keywords:   []string{"floral", "vintage", "linen"},
	Categories: []string{"home-kitchen"},
	Mood:       "romantic pastoral",
	Confidence: 0.9,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStylist struct {
	mu           sync.Mutex
	analyze      func(ctx context.Context, call int) (domain.Analysis, error)
	analyzeCalls int
	healthy      bool
}

func (f *fakeStylist) Analyze(ctx context.Context, _ string) (domain.Analysis, error) {
	f.mu.Lock()
	f.analyzeCalls++
	call := f.analyzeCalls
	f.mu.Unlock()
	if f.analyze == nil {
		return cottagecore, nil
	}
	return f.analyze(ctx, call)
}

func (f *fakeStylist) DescribeBatch(_ context.Context, products []domain.Product, a domain.Analysis) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = fmt.Sprintf("%s for %s", p.Title, a.Style)
	}
	return out
}

func (f *fakeStylist) Healthy(context.Context) bool { return f.healthy }

func (f *fakeStylist) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.analyzeCalls
}

type fakeExpander struct{}

func (fakeExpander) ExpandKeywords(domain.Analysis) []string    { return []string{"wicker", "ceramic"} }
func (fakeExpander) RelatedCategories(domain.Analysis) []string { return []string{"furniture"} }

type fakeCatalog struct {
	mu            sync.Mutex
	products      []domain.Product
	searchErr     error
	culturalErr   error
	searchCalls   int
	culturalCalls int
	asyncKeywords [][]string
	asyncCats     [][]string
}

func (f *fakeCatalog) Search(context.Context, []string, []string) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]domain.Product(nil), f.products...), nil
}

func (f *fakeCatalog) SearchAsync(_ context.Context, keywords, categories []string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asyncKeywords = append(f.asyncKeywords, keywords)
	f.asyncCats = append(f.asyncCats, categories)
	return "search-task"
}

func (f *fakeCatalog) SearchWithCulturalContext(_ context.Context, cc catalog.CulturalContext) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.culturalCalls++
	if f.culturalErr != nil {
		return nil, f.culturalErr
	}
	return append([]domain.Product(nil), f.products...), nil
}

type fakeDocuments struct {
	mu             sync.Mutex
	guideErr       error // returned once
	guideProducts  [][]domain.Product
	asyncProducts  [][]domain.Product
	previewProduct []domain.Product
}

func (f *fakeDocuments) GenerateStyleGuide(_ context.Context, a domain.Analysis, products []domain.Product, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guideProducts = append(f.guideProducts, products)
	if err := f.guideErr; err != nil {
		f.guideErr = nil
		return "", err
	}
	return "https://docs.example/" + a.Style + ".pdf", nil
}

func (f *fakeDocuments) GenerateStyleGuideAsync(_ context.Context, _ domain.Analysis, products []domain.Product, _ string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asyncProducts = append(f.asyncProducts, products)
	return "guide-task"
}

func (f *fakeDocuments) HTMLPreview(a domain.Analysis, products []domain.Product) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previewProduct = products
	return "<h1>" + a.Style + "</h1>", nil
}

type fakeGateway struct {
	mu         sync.Mutex
	healthy    bool
	routesErr  error
	registered int
}

func (f *fakeGateway) CheckGatewayHealth(context.Context) bool { return f.healthy }

func (f *fakeGateway) GetMetrics() gateway.Metrics {
	return gateway.Metrics{Requests: 7, Errors: 1, AvgResponseTime: 120}
}

func (f *fakeGateway) RegisterRoutes(_ context.Context, routes []gateway.Route) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered += len(routes)
	return f.routesErr
}

type fakeTasks struct {
	mu           sync.Mutex
	descriptions []string
}

func (f *fakeTasks) AddTask(description string, _ task.Priority, _ ...task.Option) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descriptions = append(f.descriptions, description)
	return fmt.Sprintf("task-%d", len(f.descriptions))
}

func (f *fakeTasks) GetStatus() task.QueueStatus {
	return task.QueueStatus{Pending: 2, Completed: 1}
}

type sentMessage struct {
	Message string
	Level   notify.Level
}

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []sentMessage
	healthy bool
}

func (f *fakeNotifier) Send(_ context.Context, message string, level notify.Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{message, level})
}

func (f *fakeNotifier) Healthy(context.Context) bool { return f.healthy }

func (f *fakeNotifier) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fixture struct {
	stylist   *fakeStylist
	catalog   *fakeCatalog
	documents *fakeDocuments
	gateway   *fakeGateway
	tasks     *fakeTasks
	notifier  *fakeNotifier
	clock     *clock.Manual
	orch      *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		stylist: &fakeStylist{healthy: true},
		catalog: &fakeCatalog{products: []domain.Product{
			{ID: "B1", Title: "Floral Linen Tablecloth", Price: "$24.99", Rating: 4.7},
			{ID: "B2", Title: "Ceramic Vase", Price: "$18.00", Rating: 4.1},
		}},
		documents: &fakeDocuments{},
		gateway:   &fakeGateway{healthy: true},
		tasks:     &fakeTasks{},
		notifier:  &fakeNotifier{healthy: true},
		clock:     clock.NewManual(epoch),
	}
	f.orch = New(Deps{
		Stylist:   f.stylist,
		Expander:  fakeExpander{},
		Catalog:   f.catalog,
		Documents: f.documents,
		Gateway:   f.gateway,
		Tasks:     f.tasks,
		Notifier:  f.notifier,
		Clock:     f.clock,
		Logger:    discardLogger(),
	})
	return f
}

func TestProcessShoppingRequest(t *testing.T) {
	t.Parallel()

	f := newFixture()
	res, err := f.orch.ProcessShoppingRequest(context.Background(), "cottagecore vibes", "user-1")
	require.NoError(t, err)

	assert.Equal(t, ModeSimplified, res.Mode)
	assert.Contains(t, res.RequestID, "orchestration-")
	assert.Equal(t, cottagecore, res.Analysis)
	assert.Len(t, res.Products, 2)
	assert.Equal(t, "https://docs.example/Cottagecore.pdf", res.StyleGuideURL)
	assert.Equal(t, []string{"search-task", "guide-task"}, res.TaskIDs)
	assert.Empty(t, res.EnhancedProducts)

	assert.Equal(t, 1, f.catalog.searchCalls)
	assert.Equal(t, [][]string{cottagecore.Keywords}, f.catalog.asyncKeywords)
	assert.Equal(t, []sentMessage{
		{"Analyzing your aesthetic preferences...", notify.LevelInfo},
		{"Searching for products that match your vibe...", notify.LevelInfo},
	}, f.notifier.messages())
}

func TestProcessShoppingRequest_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   func(f *fixture)
		step    string
		kind    error
		message string
	}{
		{
			name: "analysis",
			setup: func(f *fixture) {
				f.stylist.analyze = func(context.Context, int) (domain.Analysis, error) {
					return domain.Analysis{}, domain.ErrValidation
				}
			},
			step:    "analysis",
			kind:    domain.ErrValidation,
			message: "Request processing encountered an issue. Something went wrong while processing your request.",
		},
		{
			name:    "search",
			setup:   func(f *fixture) { f.catalog.searchErr = &gateway.Error{Kind: domain.ErrServiceUnavailable} },
			step:    "search",
			kind:    domain.ErrServiceUnavailable,
			message: "Request processing encountered an issue. A shopping service is temporarily unavailable.",
		},
		{
			name:    "style guide",
			setup:   func(f *fixture) { f.documents.guideErr = context.DeadlineExceeded },
			step:    "style guide",
			kind:    context.DeadlineExceeded,
			message: "Request processing encountered an issue. The request took too long to complete.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			tc.setup(f)

			res, err := f.orch.ProcessShoppingRequest(context.Background(), "cottagecore vibes", "")
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tc.kind)

			var oerr *Error
			require.ErrorAs(t, err, &oerr)
			assert.Equal(t, OpShoppingRequest, oerr.Operation)
			assert.Equal(t, tc.step, oerr.Step)

			msgs := f.notifier.messages()
			assert.Equal(t, sentMessage{tc.message, notify.LevelError}, msgs[len(msgs)-1])
		})
	}
}

func TestProcessEnhancedShoppingRequest(t *testing.T) {
	t.Parallel()

	f := newFixture()
	res, err := f.orch.ProcessEnhancedShoppingRequest(context.Background(), "cottagecore vibes", "user-1")
	require.NoError(t, err)

	assert.Equal(t, ModeEnhanced, res.Mode)
	assert.Contains(t, res.RequestID, "enhanced-")
	assert.Equal(t, []string{"task-1", "search-task", "guide-task"}, res.TaskIDs)
	assert.Equal(t, []string{"enhanced-shopping-request"}, f.tasks.descriptions)
	assert.Equal(t, "<h1>Cottagecore</h1>", res.HTMLPreview)

	assert.Equal(t, 1, f.catalog.culturalCalls)
	assert.Zero(t, f.catalog.searchCalls)
	assert.Equal(t, [][]string{{"floral", "vintage", "linen", "wicker", "ceramic"}}, f.catalog.asyncKeywords)
	assert.Equal(t, [][]string{{"home-kitchen", "furniture"}}, f.catalog.asyncCats)

	require.Len(t, res.EnhancedProducts, 2)
	assert.Equal(t, "Floral Linen Tablecloth for Cottagecore", res.EnhancedProducts[0].Description)
	assert.InDelta(t, catalog.AestheticMatch(res.Products[0], cottagecore), res.EnhancedProducts[0].AestheticMatch, 1e-9)
	assert.Empty(t, res.Products[0].Description, "basic products are left untouched")

	assert.Equal(t, [][]domain.Product{nil}, f.documents.asyncProducts, "async guide starts without products")
	assert.Equal(t, [][]domain.Product{res.EnhancedProducts}, f.documents.guideProducts)
	assert.Equal(t, res.EnhancedProducts, f.documents.previewProduct)

	assert.Contains(t, f.notifier.messages(), sentMessage{"Complete Cottagecore shopping experience ready!", notify.LevelSuccess})
}

func TestProcessEnhancedShoppingRequest_AnalysisFailureFallsBackOnce(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.stylist.analyze = func(_ context.Context, call int) (domain.Analysis, error) {
		if call == 1 {
			return domain.Analysis{}, errors.New("analysis exploded")
		}
		return cottagecore, nil
	}

	res, err := f.orch.ProcessEnhancedShoppingRequest(context.Background(), "cottagecore vibes", "")
	require.NoError(t, err)

	assert.Equal(t, ModeSimplified, res.Mode)
	assert.Equal(t, cottagecore, res.Analysis)
	assert.Equal(t, 2, f.stylist.calls(), "one enhanced attempt and one simplified attempt")
	assert.Equal(t, 1, f.catalog.searchCalls, "simplified path runs exactly once")
	assert.Zero(t, f.catalog.culturalCalls)

	msgs := f.notifier.messages()
	assert.Contains(t, msgs, sentMessage{"Enhanced processing failed, using basic results", notify.LevelWarning})
	assert.NotContains(t, msgs, sentMessage{"Complete Cottagecore shopping experience ready!", notify.LevelSuccess})
}

func TestProcessEnhancedShoppingRequest_FallbackTriggers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{"cultural search fails", func(f *fixture) { f.catalog.culturalErr = &gateway.Error{Kind: domain.ErrRateLimited} }},
		{"no products", func(f *fixture) { f.catalog.products = nil }},
		{"style guide fails", func(f *fixture) { f.documents.guideErr = errors.New("render failed") }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			tc.setup(f)

			res, err := f.orch.ProcessEnhancedShoppingRequest(context.Background(), "cottagecore vibes", "")
			require.NoError(t, err)
			assert.Equal(t, ModeSimplified, res.Mode)
			assert.Equal(t, 1, f.catalog.searchCalls)
			assert.Contains(t, f.notifier.messages(), sentMessage{"Enhanced processing failed, using basic results", notify.LevelWarning})
		})
	}
}

func TestProcessEnhancedShoppingRequest_SimplifiedFailurePropagates(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.stylist.analyze = func(context.Context, int) (domain.Analysis, error) {
		return domain.Analysis{}, &gateway.Error{Kind: domain.ErrTimeout}
	}

	res, err := f.orch.ProcessEnhancedShoppingRequest(context.Background(), "cottagecore vibes", "")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, 2, f.stylist.calls(), "no second fallback")

	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, OpShoppingRequest, oerr.Operation)
}

func TestProcessEnhancedShoppingRequest_HealthGate(t *testing.T) {
	t.Parallel()

	t.Run("gateway and model down", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		f.gateway.healthy = false
		f.stylist.healthy = false

		res, err := f.orch.ProcessEnhancedShoppingRequest(context.Background(), "cottagecore vibes", "")
		require.NoError(t, err)
		assert.Equal(t, ModeSimplified, res.Mode)
		assert.Equal(t, 1, f.stylist.calls())
		assert.Zero(t, f.catalog.culturalCalls)
		assert.NotContains(t, f.notifier.messages(), sentMessage{"Enhanced processing failed, using basic results", notify.LevelWarning})
	})

	t.Run("only gateway down", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		f.gateway.healthy = false

		res, err := f.orch.ProcessEnhancedShoppingRequest(context.Background(), "cottagecore vibes", "")
		require.NoError(t, err)
		assert.Equal(t, ModeEnhanced, res.Mode)
	})
}

func TestProcessEnhancedShoppingRequest_CanceledDoesNotFallBack(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	f.stylist.analyze = func(ctx context.Context, _ int) (domain.Analysis, error) {
		cancel()
		return domain.Analysis{}, ctx.Err()
	}

	_, err := f.orch.ProcessEnhancedShoppingRequest(ctx, "cottagecore vibes", "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.stylist.calls())
	assert.Zero(t, f.catalog.searchCalls)
}
