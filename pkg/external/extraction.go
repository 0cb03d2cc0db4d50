package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/trial-eligibility-server/internal/domain"
)

// ExtractionClient calls the criteria extraction service, which converts
// free-text eligibility criteria into structured criterion descriptors.
// It implements domain.CriteriaExtractor.
type ExtractionClient struct {
	baseURL    string
	apiKey     string
	model      string
	retryCount int
	httpClient *http.Client
	rateLimit  *rate.Limiter
}

// NewExtractionClient creates a new extraction service client.
func NewExtractionClient(config domain.ExtractionConfig) *ExtractionClient {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.RetryCount == 0 {
		config.RetryCount = 2
	}

	return &ExtractionClient{
		baseURL:    config.BaseURL,
		apiKey:     config.APIKey,
		model:      config.Model,
		retryCount: config.RetryCount,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

type extractionRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

type extractionResponse struct {
	Criteria []*domain.Criterion `json:"criteria"`
}

// Extract sends the criteria text to the extraction service and decodes
// the structured criteria it returns. Transient failures (HTTP 5xx) are
// retried with backoff up to the configured retry count.
func (c *ExtractionClient) Extract(ctx context.Context, criteriaText string) ([]*domain.Criterion, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	payload, err := json.Marshal(extractionRequest{
		Text:  criteriaText,
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extraction request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		criteria, retryable, err := c.doExtract(ctx, payload)
		if err == nil {
			return criteria, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, fmt.Errorf("extraction failed: %w", lastErr)
}

func (c *ExtractionClient) doExtract(ctx context.Context, payload []byte) ([]*domain.Criterion, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("failed to execute extraction request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		retryable := resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("extraction service returned status %d: %s", resp.StatusCode, body)
	}

	var decoded extractionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, false, fmt.Errorf("failed to decode extraction response: %w", err)
	}

	return decoded.Criteria, false, nil
}
