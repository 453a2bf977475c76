// Package llm wraps the generative-model vendor: text generation for alert
// summaries and batch embeddings for similarity search. Either endpoint may
// be disabled by configuration, in which case calls short-circuit to a
// no-op result so callers degrade gracefully.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrProviderDisabled marks a call against a disabled endpoint. Callers
// treat it as "no enrichment available", never as a failure.
var ErrProviderDisabled = errors.New("llm: provider disabled")

// Doer is the minimal HTTP surface the client needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the vendor endpoint settings.
type Config struct {
	GenerateURL string // empty disables generation
	EmbedURL    string // empty disables embeddings
	APIKey      string
	Timeout     time.Duration

	Temperature     float64
	MaxOutputTokens int
}

// Client talks to the generation and embedding endpoints.
type Client struct {
	cfg  Config
	http Doer
}

// NewClient builds a Client. A nil doer uses a timeout-bounded http.Client.
func NewClient(cfg Config, doer Doer) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = 1024
	}
	if doer == nil {
		doer = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: doer}
}

// GenerationEnabled reports whether text generation is configured.
func (c *Client) GenerationEnabled() bool { return c.cfg.GenerateURL != "" }

// EmbeddingEnabled reports whether embeddings are configured.
func (c *Client) EmbeddingEnabled() bool { return c.cfg.EmbedURL != "" }

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate sends one prompt and returns the first candidate's text. A JSON
// mimeType asks the model for machine-readable output.
func (c *Client) Generate(ctx context.Context, prompt, mimeType string) (string, error) {
	if !c.GenerationEnabled() {
		return "", ErrProviderDisabled
	}

	body := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      c.cfg.Temperature,
			MaxOutputTokens:  c.cfg.MaxOutputTokens,
			ResponseMimeType: mimeType,
		},
	}

	var resp generateResponse
	if err := c.post(ctx, c.cfg.GenerateURL, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("llm: empty generation response")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

type embedRequest struct {
	Requests []embedItem `json:"requests"`
}

type embedItem struct {
	Content content `json:"content"`
}

type embedResponse struct {
	Embeddings []struct {
		Values []float64 `json:"values"`
	} `json:"embeddings"`
}

// EmbedBatch returns one vector per input text, in order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if !c.EmbeddingEnabled() {
		return nil, ErrProviderDisabled
	}
	if len(texts) == 0 {
		return nil, nil
	}

	body := embedRequest{Requests: make([]embedItem, 0, len(texts))}
	for _, t := range texts {
		body.Requests = append(body.Requests, embedItem{Content: content{Parts: []part{{Text: t}}}})
	}

	var resp embedResponse
	if err := c.post(ctx, c.cfg.EmbedURL, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("llm: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	out := make([][]float64, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, url string, body, dst interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("llm: encode request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("x-goog-api-key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("llm: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("llm: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llm: status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("llm: decode response: %w", err)
	}
	return nil
}
