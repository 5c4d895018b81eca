package llm

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

// GeminiProvider generates text through the Gemini API.
type GeminiProvider struct {
	Model  string
	client *genai.Client
}

// NewGeminiProvider creates a Gemini provider using the API key in apiKeyEnv.
func NewGeminiProvider(ctx context.Context, model, apiKeyEnv string) (*GeminiProvider, error) {
	client, err := newGeminiClient(ctx, apiKeyEnv)
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{Model: model, client: client}, nil
}

// IsConfigured reports whether a client was created.
func (g *GeminiProvider) IsConfigured() bool {
	return g != nil && g.client != nil
}

// Generate sends a prompt to Gemini and returns the response text.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens:  int32(maxTokens),
		Temperature:      genai.Ptr[float32](0.3),
		ResponseMIMEType: "application/json",
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.Model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini generate: empty response")
	}
	return text, nil
}

// GeminiEmbedder generates embeddings through the Gemini API.
type GeminiEmbedder struct {
	Model  string
	client *genai.Client
}

// NewGeminiEmbedder creates a Gemini embedder using the API key in apiKeyEnv.
func NewGeminiEmbedder(ctx context.Context, model, apiKeyEnv string) (*GeminiEmbedder, error) {
	client, err := newGeminiClient(ctx, apiKeyEnv)
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedder{Model: model, client: client}, nil
}

// Embed generates one embedding per text in a single batch request.
func (g *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.Model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}

	vectors := make([][]float64, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		if e == nil {
			vectors = append(vectors, nil)
			continue
		}
		v := make([]float64, len(e.Values))
		for i, val := range e.Values {
			v[i] = float64(val)
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}

func newGeminiClient(ctx context.Context, apiKeyEnv string) (*genai.Client, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key not configured; set %s", apiKeyEnv)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return client, nil
}
