package stylist

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/fesoni/internal/domain"
	"github.com/phrazzld/fesoni/internal/gateway"
)

// Chat endpoints on the gateway.
const (
	ChatEndpoint   = "/openai/chat"
	ModelsEndpoint = "/openai/models"
)

const analysisPrompt = `You are an expert aesthetic analyst for Fesoni, an AI shopping assistant. Parse user descriptions of style preferences and extract specific elements. Return a JSON object with:
- style: main aesthetic category (e.g., "Dark Academia", "Cottagecore", "Minimalist")
- colors: array of 3-5 color preferences (e.g., ["forest green", "cream", "brass"])
- keywords: 5-8 specific style descriptors for product search
- categories: 3-5 Amazon product categories to search (e.g., ["home decor", "books", "clothing"])
- mood: overall emotional tone in 2-3 words
- confidence: number between 0-1 indicating analysis confidence

Always return valid JSON with all fields populated.`

// Gateway routes a request through the gateway envelope.
type Gateway interface {
	RouteRequest(ctx context.Context, endpoint string, cfg gateway.RequestConfig) (*gateway.Response, error)
}

// Model turns free text into an Analysis.
type Model interface {
	Analyze(ctx context.Context, input string) (domain.Analysis, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices" validate:"required,min=1,dive"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

// ChatModel is a Model backed by the chat completion endpoint behind the
// gateway.
type ChatModel struct {
	gw    Gateway
	model string
}

// NewChatModel returns a ChatModel that asks model for completions.
func NewChatModel(gw Gateway, model string) *ChatModel {
	if model == "" {
		model = "gpt-4"
	}
	return &ChatModel{gw: gw, model: model}
}

// Analyze asks the chat model for a JSON analysis of input. A reply that is
// not a valid Analysis yields gateway.ErrInvalidResponse.
func (m *ChatModel) Analyze(ctx context.Context, input string) (domain.Analysis, error) {
	content, err := m.complete(ctx, analysisPrompt, input, 0.7, 500)
	if err != nil {
		return domain.Analysis{}, err
	}

	var a domain.Analysis
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &a); err != nil {
		return domain.Analysis{}, fmt.Errorf("%w: analysis content: %v", gateway.ErrInvalidResponse, err)
	}
	if err := a.Validate(); err != nil {
		return domain.Analysis{}, fmt.Errorf("%w: %v", gateway.ErrInvalidResponse, err)
	}
	return a, nil
}

func (m *ChatModel) complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	resp, err := m.gw.RouteRequest(ctx, ChatEndpoint, gateway.RequestConfig{
		Method: http.MethodPost,
		Body: chatRequest{
			Model: m.model,
			Messages: []chatMessage{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
			Temperature: temperature,
			MaxTokens:   maxTokens,
		},
	})
	if err != nil {
		return "", err
	}

	var out chatResponse
	if err := gateway.DecodeJSON(resp, &out); err != nil {
		return "", err
	}
	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty completion", gateway.ErrInvalidResponse)
	}
	return content, nil
}

// stripCodeFence removes a surrounding markdown code fence, which chat
// models sometimes add around JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
