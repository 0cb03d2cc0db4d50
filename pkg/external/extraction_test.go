package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-eligibility-server/internal/domain"
)

func extractionConfig(baseURL string) domain.ExtractionConfig {
	return domain.ExtractionConfig{
		BaseURL:   baseURL,
		APIKey:    "test-key",
		Model:     "criteria-v2",
		RateLimit: 1000,
	}
}

func TestExtract_DecodesCriteria(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody extractionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"criteria": [
			{"kind": "inclusion", "description": "Age 18+", "category": "demographics", "attribute": "age", "operator": "greater_than_or_equal", "value": 18},
			{"kind": "exclusion", "logic_operator": "NOT", "children": [
				{"category": "condition", "attribute": "diagnosis", "operator": "contains", "value": "pregnancy", "description": "Pregnancy"}
			]}
		]}`))
	}))
	defer server.Close()

	client := NewExtractionClient(extractionConfig(server.URL))

	criteria, err := client.Extract(context.Background(), "Adults 18 or older. Not pregnant.")
	require.NoError(t, err)

	assert.Equal(t, "/v1/extract", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "Adults 18 or older. Not pregnant.", gotBody.Text)
	assert.Equal(t, "criteria-v2", gotBody.Model)

	require.Len(t, criteria, 2)
	assert.True(t, criteria[0].IsLeaf())
	assert.True(t, criteria[1].IsNode())
}

func TestExtract_RetriesOn5xx(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"criteria": []}`))
	}))
	defer server.Close()

	client := NewExtractionClient(extractionConfig(server.URL))

	criteria, err := client.Extract(context.Background(), "Adults with diabetes.")
	require.NoError(t, err)
	assert.Empty(t, criteria)
	assert.Equal(t, 2, attempts)
}

func TestExtract_NoRetryOn4xx(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "bad input", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewExtractionClient(extractionConfig(server.URL))

	_, err := client.Extract(context.Background(), "???")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Equal(t, 1, attempts, "client errors must not be retried")
}

func TestExtract_GivesUpAfterRetryBudget(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := extractionConfig(server.URL)
	cfg.RetryCount = 1
	client := NewExtractionClient(cfg)

	_, err := client.Extract(context.Background(), "Adults with diabetes.")
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestExtract_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewExtractionClient(extractionConfig(server.URL))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Extract(ctx, "Adults with diabetes.")
	require.Error(t, err)
}
