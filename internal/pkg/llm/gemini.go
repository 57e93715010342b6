package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/versewise/versewise-server/config"
)

const defaultModel = "gemini-2.5-flash"

// Gemini generates answers through the Google Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

var _ Generator = (*Gemini)(nil)

// NewGemini creates a Gemini generator. An empty API key falls back to
// application-default credentials resolved by the SDK.
func NewGemini(ctx context.Context, cfg config.LLMConfig) (*Gemini, error) {
	var clientConfig *genai.ClientConfig
	if cfg.APIKey != "" {
		clientConfig = &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	return &Gemini{client: client, model: model}, nil
}

// Generate returns the whole answer in one call.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	return resp.Text(), nil
}

// GenerateStream invokes onDelta for each answer chunk as it arrives.
func (g *Gemini) GenerateStream(ctx context.Context, prompt string, onDelta func(text string) error) error {
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(prompt), nil) {
		if err != nil {
			return fmt.Errorf("gemini stream failed: %w", err)
		}
		if text := resp.Text(); text != "" {
			if err := onDelta(text); err != nil {
				return err
			}
		}
	}
	return nil
}
