package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is the default Gemini model
const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiProvider implements Generator using the Google Gemini API
type GeminiProvider struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	logger    *zap.Logger
}

// NewGeminiProvider creates a Gemini provider
func NewGeminiProvider(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiProvider, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	gm := client.GenerativeModel(model)
	gm.ResponseMIMEType = "application/json"
	gm.SetMaxOutputTokens(DefaultMaxTokens)
	gm.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	return &GeminiProvider{client: client, model: gm, modelName: model, logger: logger}, nil
}

// GenerateDestination asks Gemini for a destination guide
func (p *GeminiProvider) GenerateDestination(ctx context.Context, req GenerateRequest) (*GeneratedDestination, error) {
	fields := callFields(ctx, "gemini", p.modelName, req)

	start := time.Now()
	resp, err := p.model.GenerateContent(ctx, genai.Text(BuildDestinationPrompt(req)))
	latency := time.Since(start)
	if err != nil {
		p.logger.Warn("llm_api_error", append(fields, zap.Error(err), zap.Int64("latency_ms", latency.Milliseconds()))...)
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to generate destination: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to generate destination: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("no content generated")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	guide, err := ParseDestination(b.String())
	if err != nil {
		p.logger.Warn("llm_response_unparseable", append(fields, zap.Error(err))...)
		return nil, err
	}
	p.logger.Info("destination_generated", append(fields,
		zap.Int("activities", len(guide.Activities)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)...)
	return guide, nil
}

// Close closes the underlying Gemini client
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// RegisterGemini registers the Gemini provider with the registry
func RegisterGemini(registry *ProviderRegistry, logger *zap.Logger) {
	registry.Register("gemini", func(ctx context.Context, config map[string]string) (Generator, error) {
		apiKey := config["api_key"]
		if apiKey == "" {
			return nil, fmt.Errorf("gemini api_key is required")
		}
		return NewGeminiProvider(ctx, apiKey, config["model"], logger)
	})
}
