// Package llm provides the HTTP clients behind the pipeline's capability
// providers: chat-style text generation and embeddings, backed by a local
// Ollama instance or the OpenAI API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

const userAgent = "finsentry/1.0 (news intelligence)"

// Provider is the interface for text-generation backends.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	IsConfigured() bool
	Name() string
}

// Embedder is the interface for embedding backends.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// APIError is a non-2xx response from an LLM backend. The status code
// lets callers distinguish retryable overload from permanent rejection.
type APIError struct {
	Backend string
	Status  int
	Body    string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("%s API returned %d: %s", e.Backend, e.Status, body)
}

// Retryable reports whether the failure is worth retrying: rate limits
// and server-side errors are, malformed requests and auth failures are not.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Options configures provider construction.
type Options struct {
	Backend     string // "ollama" or "openai"
	Model       string
	OllamaURL   string
	OpenAIModel string
	APIKeyEnv   string
	Temperature float64
}

// OllamaProvider generates text via a local Ollama instance.
type OllamaProvider struct {
	Model       string
	BaseURL     string
	Temperature float64
	client      *http.Client
}

// NewOllamaProvider creates an Ollama text provider.
func NewOllamaProvider(model, baseURL string, temperature float64) *OllamaProvider {
	return &OllamaProvider{
		Model:       model,
		BaseURL:     baseURL,
		Temperature: temperature,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
}

// Name identifies the backend in logs and events.
func (o *OllamaProvider) Name() string { return "ollama/" + o.Model }

// IsConfigured probes the Ollama instance for the configured model.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	modelBase := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	log.Printf("Ollama model %q not found", o.Model)
	return false
}

// Generate sends a prompt to Ollama and returns the completion text.
func (o *OllamaProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"stream": false,
		"options": map[string]any{
			"num_predict": maxTokens,
			"temperature": o.Temperature,
		},
	}

	respBody, err := postJSON(ctx, o.client, o.BaseURL+"/api/chat", body, "", "ollama")
	if err != nil {
		return "", err
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}
	return result.Message.Content, nil
}

// OllamaEmbedder generates embeddings via the Ollama embed API.
type OllamaEmbedder struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOllamaEmbedder creates an Ollama embedder.
func NewOllamaEmbedder(model, baseURL string) *OllamaEmbedder {
	return &OllamaEmbedder{
		Model:   model,
		BaseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Embed returns one embedding vector per input text, in input order.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	body := map[string]any{
		"model": e.Model,
		"input": texts,
	}

	respBody, err := postJSON(ctx, e.client, e.BaseURL+"/api/embed", body, "", "ollama")
	if err != nil {
		return nil, err
	}

	var result struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding embeddings: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed returned %d vectors for %d inputs", len(result.Embeddings), len(texts))
	}
	return result.Embeddings, nil
}

// OpenAIProvider generates text via the OpenAI chat completions API.
type OpenAIProvider struct {
	Model       string
	APIKey      string
	Temperature float64
	client      *http.Client
}

// NewOpenAIProvider creates an OpenAI text provider, reading the API key
// from the named environment variable.
func NewOpenAIProvider(model, apiKeyEnv string, temperature float64) *OpenAIProvider {
	return &OpenAIProvider{
		Model:       model,
		APIKey:      os.Getenv(apiKeyEnv),
		Temperature: temperature,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
}

// Name identifies the backend in logs and events.
func (o *OpenAIProvider) Name() string { return "openai/" + o.Model }

// IsConfigured reports whether an API key is present.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != ""
}

// Generate sends a prompt to OpenAI and returns the completion text.
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if o.APIKey == "" {
		return "", fmt.Errorf("OpenAI API key not configured")
	}

	body := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  maxTokens,
		"temperature": o.Temperature,
	}

	respBody, err := postJSON(ctx, o.client, "https://api.openai.com/v1/chat/completions", body, o.APIKey, "openai")
	if err != nil {
		return "", err
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding openai response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in openai response")
	}
	return result.Choices[0].Message.Content, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, body any, bearer, backend string) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", backend, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", backend, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Backend: backend, Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

// CreateProvider builds a text provider from options, falling back from
// Ollama to OpenAI when the local instance is unavailable.
func CreateProvider(opts Options) Provider {
	if strings.ToLower(opts.Backend) == "ollama" {
		p := NewOllamaProvider(opts.Model, opts.OllamaURL, opts.Temperature)
		if p.IsConfigured() {
			log.Printf("Using Ollama with model: %s", opts.Model)
			return p
		}
		log.Println("Ollama not available, trying OpenAI fallback...")
	}

	p := NewOpenAIProvider(opts.OpenAIModel, opts.APIKeyEnv, opts.Temperature)
	if p.IsConfigured() {
		log.Printf("Using OpenAI with model: %s", opts.OpenAIModel)
		return p
	}

	log.Println("No LLM provider available. Check Ollama is running or set the OpenAI API key.")
	return nil
}
