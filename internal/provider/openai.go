package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

// OpenAIConfig holds configuration for the OpenAI adapter.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	MaxOutputTokens int
	Timeout         time.Duration
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:          apiKey,
		Model:           "gpt-4o-mini",
		MaxOutputTokens: 4096,
		Timeout:         20 * time.Second,
	}
}

// OpenAIProvider implements Provider on top of the OpenAI Responses API.
type OpenAIProvider struct {
	client          openai.Client
	model           string
	maxOutputTokens int
	timeout         time.Duration
}

// NewOpenAIProvider creates an OpenAI adapter.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &Error{Kind: ErrKindConfig, Provider: "openai", Err: errors.New("missing API key")}
	}
	defaults := DefaultOpenAIConfig("")
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaults.Model
	}
	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaults.MaxOutputTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaults.Timeout
	}

	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey)), option.WithMaxRetries(0)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSpace(cfg.BaseURL)))
	}
	return &OpenAIProvider{
		client:          openai.NewClient(opts...),
		model:           model,
		maxOutputTokens: maxTokens,
		timeout:         timeout,
	}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// GenerateBundle implements Provider with a single JSON-mode response.
func (p *OpenAIProvider) GenerateBundle(ctx context.Context, prompt string) (json.RawMessage, Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	jsonObject := shared.NewResponseFormatJSONObjectParam()
	params := responses.ResponseNewParams{
		Model:           shared.ResponsesModel(p.model),
		MaxOutputTokens: openai.Int(int64(p.maxOutputTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(prompt)},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{OfJSONObject: &jsonObject},
		},
	}

	resp, err := p.client.Responses.New(ctx, params)
	if err != nil {
		kind := ErrKindUpstream
		if errors.Is(err, context.DeadlineExceeded) {
			kind = ErrKindTimeout
		}
		return nil, Usage{}, &Error{Kind: kind, Provider: p.Name(), Err: err}
	}

	text := resp.OutputText()
	if strings.TrimSpace(text) == "" {
		return nil, Usage{}, &Error{Kind: ErrKindUpstream, Provider: p.Name(), Err: fmt.Errorf("empty response")}
	}

	usage := Usage{
		PromptTokens: int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	return json.RawMessage(text), usage, nil
}
