package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Settings is the provider selection the config layer resolves from file
// and environment.
type Settings struct {
	Name    string
	Timeout time.Duration

	GeminiAPIKey string
	GeminiModel  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
}

// New resolves the configured provider. Unknown names are a configuration
// error, reported at startup.
func New(ctx context.Context, s Settings) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s.Name)) {
	case "", "mock":
		return NewMockProvider(), nil
	case "gemini":
		cfg := DefaultGeminiConfig(s.GeminiAPIKey)
		if s.GeminiModel != "" {
			cfg.Model = s.GeminiModel
		}
		if s.Timeout > 0 {
			cfg.Timeout = s.Timeout
		}
		return NewGeminiProvider(ctx, cfg)
	case "openai":
		cfg := DefaultOpenAIConfig(s.OpenAIAPIKey)
		cfg.BaseURL = s.OpenAIBaseURL
		if s.OpenAIModel != "" {
			cfg.Model = s.OpenAIModel
		}
		if s.Timeout > 0 {
			cfg.Timeout = s.Timeout
		}
		return NewOpenAIProvider(cfg)
	default:
		return nil, &Error{Kind: ErrKindConfig, Provider: s.Name, Err: fmt.Errorf("unknown provider %q", s.Name)}
	}
}
