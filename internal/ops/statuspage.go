package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatuspageConfig configures the outbound status page integration. An
// incomplete config (missing key or page id) disables the client; callers
// must treat an unconfigured client as "notifications off", not an error.
type StatuspageConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	PageID  string        `yaml:"page_id"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultStatuspageConfig returns the defaults; the integration stays off
// until an API key and page id are supplied.
func DefaultStatuspageConfig() StatuspageConfig {
	return StatuspageConfig{
		BaseURL: "https://api.statuspage.io/v1",
		Timeout: 10 * time.Second,
	}
}

// StatuspageClient posts incidents and incident updates.
type StatuspageClient struct {
	cfg    StatuspageConfig
	client *http.Client
}

// NewStatuspageClient creates a client. It never fails; an incomplete
// config yields a disabled client.
func NewStatuspageClient(cfg StatuspageConfig) *StatuspageClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultStatuspageConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultStatuspageConfig().Timeout
	}
	return &StatuspageClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Configured reports whether the client can reach a status page at all.
func (c *StatuspageClient) Configured() bool {
	return c.cfg.APIKey != "" && c.cfg.PageID != ""
}

// CreateIncident opens a new incident and returns its upstream id.
func (c *StatuspageClient) CreateIncident(ctx context.Context, name, body string) (string, error) {
	payload := map[string]any{
		"incident": map[string]any{
			"name":   name,
			"status": "investigating",
			"body":   body,
		},
	}
	var response struct {
		ID string `json:"id"`
	}
	url := fmt.Sprintf("%s/pages/%s/incidents", c.cfg.BaseURL, c.cfg.PageID)
	if err := c.post(ctx, url, payload, &response); err != nil {
		return "", fmt.Errorf("create incident: %w", err)
	}
	return response.ID, nil
}

// PostUpdate appends an update to an existing incident.
func (c *StatuspageClient) PostUpdate(ctx context.Context, incidentID, body string) error {
	payload := map[string]any{
		"incident": map[string]any{
			"status": "investigating",
			"body":   body,
		},
	}
	url := fmt.Sprintf("%s/pages/%s/incidents/%s", c.cfg.BaseURL, c.cfg.PageID, incidentID)
	if err := c.patch(ctx, url, payload); err != nil {
		return fmt.Errorf("post incident update: %w", err)
	}
	return nil
}

func (c *StatuspageClient) post(ctx context.Context, url string, payload, out any) error {
	return c.do(ctx, http.MethodPost, url, payload, out)
}

func (c *StatuspageClient) patch(ctx context.Context, url string, payload any) error {
	return c.do(ctx, http.MethodPatch, url, payload, nil)
}

func (c *StatuspageClient) do(ctx context.Context, method, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("statuspage returned %d: %s", resp.StatusCode, detail)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
