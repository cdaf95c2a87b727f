package stylist

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/phrazzld/fesoni/internal/clock"
	"github.com/phrazzld/fesoni/internal/domain"
	"github.com/phrazzld/fesoni/internal/gateway"
	"github.com/phrazzld/fesoni/internal/notify"
	"github.com/phrazzld/fesoni/internal/redact"
	"github.com/phrazzld/fesoni/internal/task"
	"golang.org/x/sync/errgroup"
)

// Tasks registers background work with the task queue.
type Tasks interface {
	AddTask(description string, priority task.Priority, opts ...task.Option) string
}

// Notifier delivers user-facing messages.
type Notifier interface {
	Send(ctx context.Context, message string, level notify.Level)
}

// Option customizes a Client.
type Option func(*Client)

// WithModel replaces the chat model used for analysis.
func WithModel(m Model) Option {
	return func(c *Client) { c.model = m }
}

// WithDescribeStagger sets the delay between consecutive description
// requests in a batch.
func WithDescribeStagger(d time.Duration) Option {
	return func(c *Client) { c.stagger = d }
}

// WithProfiles replaces the embedded profile table.
func WithProfiles(p *Profiles) Option {
	return func(c *Client) { c.profiles = p }
}

// Client analyzes aesthetics and writes product descriptions.
type Client struct {
	gw       Gateway
	chat     *ChatModel
	model    Model
	tasks    Tasks
	notifier Notifier
	clock    clock.Clock
	logger   *slog.Logger
	profiles *Profiles
	stagger  time.Duration
}

// New builds a Client. Without WithModel, analysis uses the chat endpoint
// with chatModel.
func New(gw Gateway, chatModel string, tasks Tasks, notifier Notifier, clk clock.Clock, logger *slog.Logger, opts ...Option) *Client {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	chat := NewChatModel(gw, chatModel)
	c := &Client{
		gw:       gw,
		chat:     chat,
		model:    chat,
		tasks:    tasks,
		notifier: notifier,
		clock:    clk,
		logger:   logger.With("component", "stylist"),
		profiles: DefaultProfiles(),
		stagger:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Profiles returns the profile table in use.
func (c *Client) Profiles() *Profiles {
	return c.profiles
}

// Analyze interprets input. Model failures are absorbed: a warning is sent
// and the keyword profile analysis is returned instead. Only empty input
// and cancellation of ctx are reported as errors.
func (c *Client) Analyze(ctx context.Context, input string) (domain.Analysis, error) {
	if strings.TrimSpace(input) == "" {
		return domain.Analysis{}, fmt.Errorf("%w: aesthetic request is empty", domain.ErrValidation)
	}

	a, err := c.model.Analyze(ctx, input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Analysis{}, ctxErr
		}
		c.logger.WarnContext(ctx, "aesthetic analysis failed, using profile fallback",
			"error", redact.Error(err))
		c.notifier.Send(ctx, "Aesthetic analysis failed, using fallback analysis", notify.LevelWarning)
		return c.profiles.Analyze(input), nil
	}

	c.notifier.Send(ctx, fmt.Sprintf("Aesthetic analysis complete: %s style identified", a.Style), notify.LevelSuccess)
	return a, nil
}

// AnalyzeAsync queues the analysis as a background task and returns its id.
// The analysis runs under the task's own context, not the caller's.
func (c *Client) AnalyzeAsync(_ context.Context, input string) string {
	label := input
	if r := []rune(label); len(r) > 50 {
		label = string(r[:50])
	}
	return c.tasks.AddTask("openai-analysis:"+label+"...", task.PriorityHigh,
		task.WithWork(func(ctx context.Context) error {
			a, err := c.Analyze(ctx, input)
			if err != nil {
				return err
			}
			c.notifier.Send(ctx, fmt.Sprintf("Your %s aesthetic profile is ready!", a.Style), notify.LevelSuccess)
			return nil
		}))
}

const describePrompt = "You are a Fesoni product stylist. Create a personalized product description (max 150 words) that explains how this product fits the user's %s aesthetic. Be specific about style elements, colors, and mood. Make it engaging and personal."

// Describe writes a description of p for a. It never fails; on error a
// templated description is returned.
func (c *Client) Describe(ctx context.Context, p domain.Product, a domain.Analysis) string {
	user := fmt.Sprintf("Product: %s\nPrice: %s\nUser's Aesthetic: %s\nMood: %s\nPreferred Colors: %s\nStyle Keywords: %s",
		p.Title, p.Price, a.Style, a.Mood,
		strings.Join(a.Colors, ", "), strings.Join(a.Keywords, ", "))

	text, err := c.chat.complete(ctx, fmt.Sprintf(describePrompt, a.Style), user, 0.8, 200)
	if err != nil {
		c.logger.WarnContext(ctx, "product description failed",
			"product_id", p.ID,
			"error", redact.Error(err))
		return fallbackDescription(p, a)
	}
	return text
}

func fallbackDescription(p domain.Product, a domain.Analysis) string {
	tone := "signature"
	if len(a.Colors) > 0 {
		tone = a.Colors[0]
	}
	return fmt.Sprintf("This %s perfectly complements your %s aesthetic with its %s tones and %s vibe.",
		p.Title, a.Style, tone, a.Mood)
}

// DescribeBatch describes every product, one request per product with a
// staggered start. Each product also gets a description-gen task. The
// result is index-aligned with products.
func (c *Client) DescribeBatch(ctx context.Context, products []domain.Product, a domain.Analysis) []string {
	out := make([]string, len(products))
	described := make([]bool, len(products))

	var g errgroup.Group
	for i, p := range products {
		c.tasks.AddTask("description-gen:"+p.Title, task.PriorityNormal)
		g.Go(func() error {
			if err := clock.Sleep(ctx, c.clock, time.Duration(i)*c.stagger); err != nil {
				out[i] = fmt.Sprintf("This %s matches your %s aesthetic.", p.Title, a.Style)
				return nil
			}
			out[i] = c.Describe(ctx, p, a)
			described[i] = true
			return nil
		})
	}
	_ = g.Wait()

	if slices.Contains(described, false) {
		c.notifier.Send(ctx, "Some product descriptions failed to generate", notify.LevelWarning)
	} else if len(products) > 0 {
		c.notifier.Send(ctx, fmt.Sprintf("Generated personalized descriptions for %d products", len(products)), notify.LevelSuccess)
	}
	return out
}

// Healthy reports whether the model service answers through the gateway.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.gw.RouteRequest(ctx, ModelsEndpoint, gateway.RequestConfig{Method: http.MethodGet})
	if err != nil {
		c.logger.WarnContext(ctx, "model service health check failed", "error", redact.Error(err))
		return false
	}
	return true
}
