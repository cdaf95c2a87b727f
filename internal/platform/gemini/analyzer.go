package gemini

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/phrazzld/fesoni/internal/config"
	"github.com/phrazzld/fesoni/internal/domain"
	"github.com/phrazzld/fesoni/internal/gateway"
	"google.golang.org/genai"
)

// Endpoint is the logical gateway endpoint Gemini calls are accounted under.
const Endpoint = "/gemini/generate"

// Errors returned by the Analyzer. Both wrap gateway.ErrInvalidResponse.
var (
	ErrContentBlocked = fmt.Errorf("%w: content blocked by safety filters", gateway.ErrInvalidResponse)
	ErrEmptyResponse  = fmt.Errorf("%w: no content generated", gateway.ErrInvalidResponse)
)

//go:embed prompt.tmpl
var promptText string

var promptTemplate = template.Must(template.New("analysis").Parse(promptText))

type promptData struct {
	Input string
}

// Invoker runs a call inside the gateway envelope.
type Invoker interface {
	Invoke(ctx context.Context, endpoint string, fn gateway.CallFunc) error
}

// generateFunc matches genai's Models.GenerateContent.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Analyzer produces aesthetic analyses with Gemini.
type Analyzer struct {
	logger   *slog.Logger
	invoker  Invoker
	generate generateFunc
	model    string
}

// NewAnalyzer creates an Analyzer with a real genai client.
//
// Parameters:
//   - ctx: Context for client initialization
//   - cfg: LLM configuration carrying the Gemini API key and model name
//   - invoker: the gateway envelope every call runs in
//   - logger: A structured logger for operation logging
//
// Returns:
//   - A ready Analyzer, or an error wrapping domain.ErrConfiguration
func NewAnalyzer(ctx context.Context, cfg config.LLMConfig, invoker Invoker, logger *slog.Logger) (*Analyzer, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", domain.ErrConfiguration)
	}
	if cfg.GeminiModel == "" {
		return nil, fmt.Errorf("%w: gemini model cannot be empty", domain.ErrConfiguration)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", domain.ErrConfiguration, err)
	}

	return newAnalyzer(client.Models.GenerateContent, cfg.GeminiModel, invoker, logger), nil
}

func newAnalyzer(generate generateFunc, model string, invoker Invoker, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		logger:   logger.With("component", "gemini"),
		invoker:  invoker,
		generate: generate,
		model:    model,
	}
}

// responseSchema constrains Gemini's JSON output to the Analysis shape.
var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"style":      {Type: genai.TypeString},
		"colors":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"keywords":   {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"categories": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"mood":       {Type: genai.TypeString},
		"confidence": {Type: genai.TypeNumber},
	},
	Required: []string{"style", "colors", "keywords", "categories", "mood", "confidence"},
}

// Analyze asks Gemini for an analysis of input.
//
// The call runs inside the gateway envelope at Endpoint. API errors carry
// their HTTP status so the envelope can classify them; blocked, empty or
// malformed answers are reported as gateway.ErrInvalidResponse.
func (a *Analyzer) Analyze(ctx context.Context, input string) (domain.Analysis, error) {
	prompt, err := createPrompt(input)
	if err != nil {
		return domain.Analysis{}, err
	}

	var analysis domain.Analysis
	err = a.invoker.Invoke(ctx, Endpoint, func(ctx context.Context, call gateway.Call) error {
		a.logger.DebugContext(ctx, "calling gemini",
			"request_id", call.RequestID,
			"model", a.model,
			"prompt_length", len(prompt))

		resp, err := a.generate(ctx, a.model, genai.Text(prompt), &genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0.7),
			ResponseMIMEType: "application/json",
			ResponseSchema:   responseSchema,
		})
		if err != nil {
			return translateError(err)
		}

		text, err := responseText(resp)
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(text), &analysis); err != nil {
			return fmt.Errorf("%w: failed to parse JSON response: %v", gateway.ErrInvalidResponse, err)
		}
		if err := analysis.Validate(); err != nil {
			return fmt.Errorf("%w: %v", gateway.ErrInvalidResponse, err)
		}
		return nil
	})
	if err != nil {
		return domain.Analysis{}, err
	}

	a.logger.InfoContext(ctx, "gemini analysis complete", "style", analysis.Style)
	return analysis, nil
}

func createPrompt(input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", fmt.Errorf("%w: aesthetic request is empty", domain.ErrValidation)
	}

	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, promptData{Input: input}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

// responseText extracts the text of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", ErrContentBlocked
	}
	if candidate.Content == nil {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// translateError exposes the HTTP status of genai API errors to the
// gateway classifier.
func translateError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("gemini: %s: %w", apiErr.Message, &gateway.StatusError{StatusCode: apiErr.Code})
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return fmt.Errorf("gemini: %s: %w", apiErrPtr.Message, &gateway.StatusError{StatusCode: apiErrPtr.Code})
	}
	return err
}
