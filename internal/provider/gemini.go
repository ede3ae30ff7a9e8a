package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig holds configuration for the Gemini adapter.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:  apiKey,
		Model:   "gemini-2.5-flash",
		Timeout: 20 * time.Second,
	}
}

// GeminiProvider implements Provider on top of the Google GenAI SDK.
type GeminiProvider struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiProvider creates a Gemini adapter. Fails fast when the API key
// is missing so misconfiguration surfaces at startup, not mid-request.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &Error{Kind: ErrKindConfig, Provider: "gemini", Err: errors.New("missing API key")}
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultGeminiConfig("").Model
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultGeminiConfig("").Timeout
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, &Error{Kind: ErrKindConfig, Provider: "gemini", Err: err}
	}
	return &GeminiProvider{client: client, model: model, timeout: timeout}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// GenerateBundle implements Provider with a single JSON-mode completion.
func (p *GeminiProvider) GenerateBundle(ctx context.Context, prompt string) (json.RawMessage, Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		kind := ErrKindUpstream
		if errors.Is(err, context.DeadlineExceeded) {
			kind = ErrKindTimeout
		}
		return nil, Usage{}, &Error{Kind: kind, Provider: p.Name(), Err: err}
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, Usage{}, &Error{Kind: ErrKindUpstream, Provider: p.Name(), Err: fmt.Errorf("empty response")}
	}

	var usage Usage
	if meta := resp.UsageMetadata; meta != nil {
		usage = Usage{
			PromptTokens: int(meta.PromptTokenCount),
			OutputTokens: int(meta.CandidatesTokenCount),
			TotalTokens:  int(meta.TotalTokenCount),
		}
	}
	return json.RawMessage(text), usage, nil
}
