// Package gemini adapts the Google Gemini API to the provider boundary.
package gemini

import (
	"context"

	"github.com/Cyclone1070/propagent/internal/provider"
)

// GeminiProvider implements provider.Provider for Google Gemini.
type GeminiProvider struct {
	client       GeminiClient
	defaultModel string
}

// New creates a new GeminiProvider. defaultModel is used when a request names no model.
func New(client GeminiClient, defaultModel string) *GeminiProvider {
	return &GeminiProvider{
		client:       client,
		defaultModel: defaultModel,
	}
}

// Generate sends a request to the Gemini API and returns the response.
func (p *GeminiProvider) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	contents, err := toGeminiContents(req.Messages)
	if err != nil {
		return nil, &provider.ProviderError{
			Code:       provider.ErrorCodeInvalidRequest,
			Message:    "cannot encode messages",
			Underlying: err,
		}
	}
	config := toGeminiConfig(req)

	resp, err := p.client.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, mapGeminiError(ctx, err)
	}

	return fromGeminiResponse(resp, model)
}
