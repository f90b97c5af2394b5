package inference

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/LeonardoBeccarini/agrispray/internal/services/detection"
)

const DefaultGeminiModel = "gemini-2.5-flash"

const leafPrompt = `You inspect a single plant leaf photo for fungal or bacterial infection.
Answer with one JSON object and nothing else:
{"infected": bool, "infected_area_pct": number 0-100, "presence_confidence": number 0-1,
 "severity_confidence": number 0-1, "disease_tag": short snake_case disease name or "unknown"}`

// generator is the part of *genai.Models the provider calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider asks a Gemini vision model for the scores.
type GeminiProvider struct {
	models generator
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGeminiProvider(client.Models, model), nil
}

func newGeminiProvider(models generator, model string) *GeminiProvider {
	if strings.TrimSpace(model) == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{models: models, model: model}
}

func (g *GeminiProvider) Infer(ctx context.Context, image []byte, contentType string) (detection.RawScores, error) {
	if len(image) == 0 {
		return detection.RawScores{}, fmt.Errorf("empty image")
	}
	content := genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(image, contentType),
		genai.NewPartFromText(leafPrompt),
	}, genai.RoleUser)

	resp, err := g.models.GenerateContent(ctx, g.model, []*genai.Content{content}, &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0)),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return detection.RawScores{}, fmt.Errorf("failed to generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return detection.RawScores{}, fmt.Errorf("empty model response")
	}
	return decodeScores(text)
}
