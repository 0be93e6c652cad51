package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"newsradar/internal/config"
	"newsradar/internal/domain"
	"newsradar/internal/ports"
)

// Client talks to the external keyword/category inference service. It is
// total by contract: any failure reduces to empty keywords plus the fallback
// category, so a flaky model service can never stall or poison the pipeline.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   *slog.Logger
}

var _ ports.Analyzer = (*Client)(nil)

// NewClient creates a reusable HTTP client from configuration.
func NewClient(cfg config.AnalysisConfig, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Analyze sends the item text for keyword extraction and industry
// categorization. Empty category responses map to the fallback label.
func (c *Client) Analyze(ctx context.Context, text string) ([]string, string) {
	if c.http == nil || c.endpoint == "" {
		return nil, domain.FallbackCategory
	}

	payload := map[string]any{"text": text}

	var resp struct {
		Keywords []string `json:"keywords"`
		Category string   `json:"category"`
	}

	if err := c.post(ctx, "/analyze", payload, &resp); err != nil {
		c.warn("analysis degraded", "error", err)
		return nil, domain.FallbackCategory
	}

	category := strings.TrimSpace(resp.Category)
	if category == "" {
		category = domain.FallbackCategory
	}

	keywords := resp.Keywords[:0:0]
	for _, kw := range resp.Keywords {
		if trimmed := strings.TrimSpace(kw); trimmed != "" {
			keywords = append(keywords, trimmed)
		}
	}

	return keywords, category
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (c *Client) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
