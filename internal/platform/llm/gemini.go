// Package llm wraps the Gemini text-generation API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/rxcheck/rxcheck/internal/platform/apperr"
)

const DefaultModel = "gemini-1.5-flash"

const ocrInstruction = "Extract all text from this medical document image. " +
	"Return only the extracted text, preserving line breaks. " +
	"If there is no readable text, return an empty response."

// Gemini generates text with a single GenerateContent call per request.
// A Gemini built without an API key fails every call with a configuration error.
type Gemini struct {
	client *genai.Client
	model  string
	logger zerolog.Logger
}

func NewGemini(ctx context.Context, apiKey, model string, logger zerolog.Logger) (*Gemini, error) {
	if model == "" {
		model = DefaultModel
	}
	g := &Gemini{
		model:  model,
		logger: logger.With().Str("component", "llm").Str("model", model).Logger(),
	}
	if apiKey == "" {
		g.logger.Warn().Msg("GEMINI_API_KEY not set, analysis endpoints will fail")
		return g, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	g.client = client
	return g, nil
}

// Generate sends prompt as a single user turn and returns the response text.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	if g.client == nil {
		return "", apperr.Configuration("Server Error: GEMINI_API_KEY is not configured.")
	}
	return g.generate(ctx, genai.Text(prompt))
}

// ExtractText runs OCR over an image or PDF by asking the model to transcribe it.
func (g *Gemini) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if g.client == nil {
		return "", apperr.Configuration("Server Error: GEMINI_API_KEY is not configured.")
	}
	content := genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(data, mimeType),
		genai.NewPartFromText(ocrInstruction),
	}, genai.RoleUser)
	return g.generate(ctx, []*genai.Content{content})
}

func (g *Gemini) generate(ctx context.Context, contents []*genai.Content) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		if IsOverloaded(err) {
			g.logger.Warn().Err(err).Msg("model overloaded")
			return "", apperr.Overloaded("Gemini model is overloaded", err)
		}
		g.logger.Error().Err(err).Msg("generate content failed")
		return "", apperr.Upstream("Failed to generate content", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", apperr.Upstream("Failed to generate content", errors.New("empty model response"))
	}
	return text, nil
}

// IsOverloaded reports whether err means the model is temporarily unavailable.
func IsOverloaded(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusServiceUnavailable || apiErr.Code == http.StatusTooManyRequests
	}
	msg := err.Error()
	return strings.Contains(msg, "503") || strings.Contains(strings.ToLower(msg), "overloaded")
}
