package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/camppulse/internal/config"
)

// Provider is the interface for narrative-generation providers.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	IsConfigured() bool
}

// Embedder is the interface for generating embeddings. Implementations
// return one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// OllamaProvider is a local Ollama LLM provider.
type OllamaProvider struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(model, baseURL string) *OllamaProvider {
	return &OllamaProvider{
		Model:   model,
		BaseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// IsConfigured checks if Ollama is running and the model is available.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/tags", nil)
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
	return false
}

// Generate sends a prompt to Ollama and returns the response.
func (o *OllamaProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"num_predict": maxTokens,
			"temperature": 0.3,
		},
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := postJSON(ctx, o.client, o.BaseURL+"/api/chat", "", body, &result); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return result.Message.Content, nil
}

// OllamaEmbedder generates embeddings via the Ollama API.
type OllamaEmbedder struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOllamaEmbedder creates a new Ollama embedder.
func NewOllamaEmbedder(model, baseURL string) *OllamaEmbedder {
	return &OllamaEmbedder{
		Model:   model,
		BaseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Embed generates embeddings for the given texts.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body := map[string]any{
		"model": e.Model,
		"input": texts,
	}

	var result struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := postJSON(ctx, e.client, e.BaseURL+"/api/embed", "", body, &result); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return result.Embeddings, nil
}

// OpenAIProvider is an OpenAI API provider.
type OpenAIProvider struct {
	Model   string
	APIKey  string
	BaseURL string
	client  *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(model, apiKeyEnv string) *OpenAIProvider {
	return &OpenAIProvider{
		Model:   model,
		APIKey:  os.Getenv(apiKeyEnv),
		BaseURL: "https://api.openai.com/v1",
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != ""
}

// Generate sends a prompt to OpenAI and returns the response.
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if o.APIKey == "" {
		return "", fmt.Errorf("OpenAI API key not configured")
	}

	body := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":      maxTokens,
		"temperature":     0.3,
		"response_format": map[string]string{"type": "json_object"},
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := postJSON(ctx, o.client, o.BaseURL+"/chat/completions", o.APIKey, body, &result); err != nil {
		return "", fmt.Errorf("OpenAI chat: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenAI response")
	}
	return result.Choices[0].Message.Content, nil
}

func postJSON(ctx context.Context, client *http.Client, url, bearer string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("returned %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// CreateProvider creates a narrative provider based on configuration.
// Returns nil when no provider is reachable; callers fall back to
// deterministic prose.
func CreateProvider(ctx context.Context, cfg config.LLM, log logrus.FieldLogger) Provider {
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		p, err := NewGeminiProvider(ctx, cfg.GeminiModel, cfg.GeminiAPIKeyEnv)
		if err == nil && p.IsConfigured() {
			log.Infof("Using Gemini with model: %s", cfg.GeminiModel)
			return p
		}
		log.WithError(err).Warn("Gemini not available, trying OpenAI fallback")
	case "ollama":
		p := NewOllamaProvider(cfg.Model, cfg.OllamaURL)
		if p.IsConfigured() {
			log.Infof("Using Ollama with model: %s", cfg.Model)
			return p
		}
		log.Warn("Ollama not available, trying OpenAI fallback")
	}

	p := NewOpenAIProvider(cfg.OpenAIModel, cfg.APIKeyEnv)
	if p.IsConfigured() {
		log.Infof("Using OpenAI with model: %s", cfg.OpenAIModel)
		return p
	}

	log.Warnf("No LLM provider available. Check Ollama is running or set %s.", cfg.APIKeyEnv)
	return nil
}

// CreateEmbedder creates the embedding collaborator based on configuration.
func CreateEmbedder(ctx context.Context, cfg config.LLM) (Embedder, error) {
	switch strings.ToLower(cfg.EmbeddingProvider) {
	case "gemini":
		return NewGeminiEmbedder(ctx, cfg.EmbeddingModel, cfg.GeminiAPIKeyEnv)
	case "", "ollama":
		return NewOllamaEmbedder(cfg.EmbeddingModel, cfg.OllamaURL), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}
