package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls. Guides are long.
	DefaultTimeout = 120 * time.Second
	// DefaultMaxTokens bounds the size of a generated guide
	DefaultMaxTokens = 8000

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"
)

const systemPrompt = "You are a family travel expert who writes accurate, practical destination guides. Respond with valid JSON only."

// OpenAIProvider implements Generator using OpenAI's API
type OpenAIProvider struct {
	client    openai.Client
	model     string
	maxTokens int64
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey string, model string) *OpenAIProvider {
	return NewOpenAIProviderWithLogger(apiKey, DefaultOpenAIBaseURL, model, nil, false)
}

// NewOpenAIProviderWithLogger creates a new OpenAI provider with logger support
func NewOpenAIProviderWithLogger(apiKey string, baseURL string, model string, logger *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	)

	return &OpenAIProvider{
		client:    client,
		model:     model,
		maxTokens: DefaultMaxTokens,
		logger:    logger,
		debugMode: debugMode,
	}
}

// GenerateDestination asks the model for a destination guide
func (p *OpenAIProvider) GenerateDestination(ctx context.Context, req GenerateRequest) (*GeneratedDestination, error) {
	prompt := BuildDestinationPrompt(req)
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(prompt),
	}
	params := openai.ChatCompletionNewParams{
		Model:     shared.ChatModel(p.model),
		Messages:  messages,
		MaxTokens: openai.Int(p.maxTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	fields := callFields(ctx, "openai", p.model, req)
	if p.debugMode {
		p.logger.Debug("llm_api_request", append(fields,
			zap.Int("prompt_length", len(prompt)),
			zap.String("prompt_preview", preview(prompt, true)),
		)...)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		p.logger.Warn("llm_api_error", append(fields, zap.Error(err), zap.Int64("latency_ms", latency.Milliseconds()))...)
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to generate destination: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to generate destination: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New(ErrNoChoicesInResponse)
	}

	content := resp.Choices[0].Message.Content
	if p.debugMode {
		p.logger.Debug("llm_api_response", append(fields,
			zap.Int("response_length", len(content)),
			zap.String("response_preview", preview(content, true)),
			zap.Int64("total_tokens", resp.Usage.TotalTokens),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)...)
	}

	guide, err := ParseDestination(content)
	if err != nil {
		p.logger.Warn("llm_response_unparseable", append(fields,
			zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
			zap.Error(err),
		)...)
		return nil, err
	}
	p.logger.Info("destination_generated", append(fields,
		zap.Int("activities", len(guide.Activities)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)...)
	return guide, nil
}

// Close is a no-op; the OpenAI client holds no connections of its own
func (p *OpenAIProvider) Close() error {
	return nil
}

// RegisterOpenAI registers the OpenAI provider with the registry
func RegisterOpenAI(registry *ProviderRegistry, logger *zap.Logger, debugMode bool) {
	registry.Register("openai", func(_ context.Context, config map[string]string) (Generator, error) {
		apiKey, ok := config["api_key"]
		if !ok || apiKey == "" {
			return nil, fmt.Errorf("openai api_key is required")
		}

		return NewOpenAIProviderWithLogger(apiKey, config["base_url"], config["model"], logger, debugMode), nil
	})
}
