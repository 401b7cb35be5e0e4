// Package provider defines the model provider boundary the orchestration loop
// talks to: a request of system prompt, tool catalog and messages, answered by
// ordered content blocks with a stop reason and token usage.
package provider

import "context"

// Provider represents the interface to the Language Model.
type Provider interface {
	// Generate sends one request and returns the model's response.
	// Failures should be returned as *ProviderError.
	Generate(ctx context.Context, req *Request) (*Response, error)
}
