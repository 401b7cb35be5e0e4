package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Cyclone1070/propagent/internal/provider"
	"github.com/Cyclone1070/propagent/internal/tool"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

// toGeminiContents converts the message sequence to Gemini Content format.
// Tool results travel as function responses in a user turn.
func toGeminiContents(messages []provider.Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := genai.RoleUser
		if msg.Role == provider.RoleAssistant {
			role = genai.RoleModel
		}

		parts := make([]*genai.Part, 0, len(msg.Blocks))
		for _, blk := range msg.Blocks {
			switch blk.Type {
			case provider.BlockText:
				if blk.Text != "" {
					parts = append(parts, genai.NewPartFromText(blk.Text))
				}
			case provider.BlockToolUse:
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   blk.ToolUse.ID,
						Name: blk.ToolUse.Name,
						Args: blk.ToolUse.Input,
					},
				})
			case provider.BlockToolResult:
				response, err := functionResponse(*blk.ToolResult)
				if err != nil {
					return nil, err
				}
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       blk.ToolResult.ToolUseID,
						Name:     blk.ToolResult.Name,
						Response: response,
					},
				})
			}
		}

		// Skip empty messages
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents, nil
}

// functionResponse uses the "output" and "error" keys Gemini expects.
// Output goes through JSON so typed structs reach the API as plain objects.
func functionResponse(r provider.ToolResult) (map[string]any, error) {
	if r.IsError() {
		return map[string]any{"error": r.Error}, nil
	}
	data, err := json.Marshal(r.Output)
	if err != nil {
		return nil, fmt.Errorf("encode output of %s: %w", r.Name, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode output of %s: %w", r.Name, err)
	}
	return map[string]any{"output": out}, nil
}

// toGeminiConfig converts the request settings to Gemini config.
func toGeminiConfig(req *provider.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(req.SystemPrompt)},
		}
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		config.Tools = toGeminiTools(req.Tools)
	}
	return config
}

// toGeminiTools converts tool declarations to Gemini tools.
func toGeminiTools(decls []tool.Declaration) []*genai.Tool {
	functionDeclarations := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		fd := &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
		}
		if d.Parameters != nil && len(d.Parameters.Properties) > 0 {
			fd.Parameters = toGeminiSchema(d.Parameters)
		}
		functionDeclarations = append(functionDeclarations, fd)
	}
	return []*genai.Tool{{FunctionDeclarations: functionDeclarations}}
}

// toGeminiSchema converts a tool schema to Gemini Schema.
func toGeminiSchema(s *tool.Schema) *genai.Schema {
	out := &genai.Schema{
		Type:        toGeminiType(s.Type),
		Description: s.Description,
		Required:    s.Required,
	}
	if len(s.Enum) > 0 {
		out.Enum = s.Enum
	}
	if s.Items != nil {
		out.Items = toGeminiSchema(s.Items)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGeminiSchema(prop)
		}
	}
	return out
}

// toGeminiType converts a schema type to Gemini Type.
func toGeminiType(t tool.Type) genai.Type {
	switch t {
	case tool.TypeString:
		return genai.TypeString
	case tool.TypeNumber:
		return genai.TypeNumber
	case tool.TypeInteger:
		return genai.TypeInteger
	case tool.TypeBoolean:
		return genai.TypeBoolean
	case tool.TypeArray:
		return genai.TypeArray
	case tool.TypeObject:
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// fromGeminiResponse converts a Gemini response to provider blocks.
func fromGeminiResponse(resp *genai.GenerateContentResponse, model string) (*provider.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &provider.ProviderError{
			Code:    provider.ErrorCodeMalformed,
			Message: "no candidates in response",
		}
	}

	candidate := resp.Candidates[0]

	switch candidate.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist, genai.FinishReasonSPII:
		return nil, &provider.ProviderError{
			Code:    provider.ErrorCodeContentBlocked,
			Message: fmt.Sprintf("content blocked (%s)", candidate.FinishReason),
		}
	case genai.FinishReasonMalformedFunctionCall:
		return nil, &provider.ProviderError{
			Code:    provider.ErrorCodeMalformed,
			Message: "model produced a malformed function call",
		}
	}

	out := &provider.Response{
		Model: model,
		Usage: buildUsage(resp.UsageMetadata),
	}

	calls := 0
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				calls++
				id := part.FunctionCall.ID
				if id == "" {
					// Gemini does not always assign ids; results are matched by id
					// across the whole conversation.
					id = "call-" + uuid.NewString()
				}
				out.Blocks = append(out.Blocks, provider.ToolUseBlock(id, part.FunctionCall.Name, part.FunctionCall.Args))
			case part.Text != "" && !part.Thought:
				out.Blocks = append(out.Blocks, provider.TextBlock(part.Text))
			}
		}
	}

	switch {
	case candidate.FinishReason == genai.FinishReasonMaxTokens:
		out.StopReason = provider.StopMaxTokens
	case calls > 0:
		out.StopReason = provider.StopToolUse
	case candidate.FinishReason == genai.FinishReasonStop || candidate.FinishReason == "":
		out.StopReason = provider.StopEndTurn
	default:
		out.StopReason = provider.StopOther
	}
	return out, nil
}

// buildUsage builds token usage from usage metadata.
func buildUsage(usage *genai.GenerateContentResponseUsageMetadata) provider.Usage {
	if usage == nil {
		return provider.Usage{}
	}
	return provider.Usage{
		InputTokens:  int(usage.PromptTokenCount),
		OutputTokens: int(usage.CandidatesTokenCount),
	}
}

// mapGeminiError maps Gemini API errors to provider errors.
func mapGeminiError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &provider.ProviderError{
			Code:       provider.ErrorCodeTimeout,
			Message:    "model call timed out",
			Underlying: err,
			Retryable:  true,
		}
	}

	apiErr, ok := asAPIError(err)
	if !ok {
		return &provider.ProviderError{
			Code:       provider.ErrorCodeNetwork,
			Message:    "network error",
			Underlying: err,
			Retryable:  true,
		}
	}

	switch apiErr.Code {
	case 401, 403:
		return &provider.ProviderError{
			Code:       provider.ErrorCodeAuth,
			Message:    "authentication failed",
			Underlying: err,
		}
	case 429:
		code := provider.ErrorCodeRateLimit
		if strings.Contains(strings.ToLower(apiErr.Message), "quota") {
			code = provider.ErrorCodeQuota
		}
		return &provider.ProviderError{
			Code:       code,
			Message:    "rate limit exceeded",
			Underlying: err,
			Retryable:  true,
			RetryAfter: parseRetryAfter(apiErr),
		}
	case 400:
		code := provider.ErrorCodeInvalidRequest
		if strings.Contains(strings.ToLower(apiErr.Message), "token") {
			code = provider.ErrorCodeContextLength
		}
		return &provider.ProviderError{
			Code:       code,
			Message:    fmt.Sprintf("invalid request: %s", apiErr.Message),
			Underlying: err,
		}
	case 500, 502, 503, 504:
		return &provider.ProviderError{
			Code:       provider.ErrorCodeUnavailable,
			Message:    "service unavailable",
			Underlying: err,
			Retryable:  true,
		}
	default:
		return &provider.ProviderError{
			Code:       provider.ErrorCodeNetwork,
			Message:    fmt.Sprintf("API error: %s", apiErr.Message),
			Underlying: err,
			Retryable:  true,
		}
	}
}

// asAPIError accepts both the value and pointer forms the SDK may return.
func asAPIError(err error) (*genai.APIError, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return &v, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return p, true
	}
	return nil, false
}

var retryKeys = []string{"retryDelay", "retry_after", "retryAfter", "Retry-After"}

// parseRetryAfter looks for a retry delay in the error details, including
// google.rpc.RetryInfo ("30s") and nested metadata.
func parseRetryAfter(apiErr *genai.APIError) *time.Duration {
	if apiErr == nil {
		return nil
	}
	for _, detail := range apiErr.Details {
		if d := retryFromMap(detail); d != nil {
			return d
		}
	}
	return nil
}

func retryFromMap(m map[string]any) *time.Duration {
	for _, key := range retryKeys {
		if v, ok := m[key]; ok {
			if d := toDuration(v); d != nil {
				return d
			}
		}
	}
	if meta, ok := m["metadata"].(map[string]any); ok {
		return retryFromMap(meta)
	}
	return nil
}

func toDuration(v any) *time.Duration {
	var d time.Duration
	switch x := v.(type) {
	case int:
		d = time.Duration(x) * time.Second
	case int64:
		d = time.Duration(x) * time.Second
	case float64:
		d = time.Duration(x * float64(time.Second))
	case string:
		if secs, err := strconv.ParseFloat(x, 64); err == nil {
			d = time.Duration(secs * float64(time.Second))
		} else if parsed, err := time.ParseDuration(x); err == nil {
			d = parsed
		} else {
			return nil
		}
	case map[string]any:
		return toDuration(x["seconds"])
	default:
		return nil
	}
	if d <= 0 {
		return nil
	}
	return &d
}
