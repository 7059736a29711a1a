package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ragfinance/internal/domain"
)

const (
	ProviderJina   = "jina"
	ProviderCohere = "cohere"
)

// ErrNoResults means the provider ranked none of the submitted documents.
var ErrNoResults = errors.New("reranker returned no usable results")

type endpoint struct {
	url   string
	model string
}

// Statements are usually not in English, so both providers use their multilingual models.
var endpoints = map[string]endpoint{
	ProviderJina:   {url: "https://api.jina.ai/v1/rerank", model: "jina-reranker-v2-base-multilingual"},
	ProviderCohere: {url: "https://api.cohere.ai/v1/rerank", model: "rerank-multilingual-v3.0"},
}

type Client struct {
	apiKey   string
	provider string
	client   *http.Client
	baseURL  string
}

func NewClient(provider, apiKey string) *Client {
	return &Client{
		provider: provider,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

func (c *Client) Enabled() bool {
	_, ok := endpoints[c.provider]
	return ok
}

// Rerank reorders results by provider relevance and replaces their scores.
// Unknown or empty providers return the input unchanged.
func (c *Client) Rerank(ctx context.Context, query string, results []domain.Result) ([]domain.Result, error) {
	ep, ok := endpoints[c.provider]
	if !ok || len(results) == 0 {
		return results, nil
	}

	url := ep.url
	if c.baseURL != "" {
		url = c.baseURL
	}

	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Segment.Text
	}

	reqBody := map[string]interface{}{
		"model":     ep.model,
		"query":     query,
		"documents": docs,
		"top_n":     len(docs),
	}
	if c.provider == ProviderCohere {
		reqBody["return_documents"] = false
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s api error: %d %s", c.provider, resp.StatusCode, string(body))
	}

	var result struct {
		Results []struct {
			Index int     `json:"index"`
			Score float64 `json:"relevance_score"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	out := make([]domain.Result, 0, len(results))
	for _, r := range result.Results {
		if r.Index < 0 || r.Index >= len(results) {
			continue
		}
		item := results[r.Index]
		item.Score = float32(r.Score)
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", c.provider, ErrNoResults)
	}

	return out, nil
}
