package openaicompat

import (
	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/provider"
)

// TranslateResponse converts a ChatCompletionResponse into a ProviderResponse.
// Only choices[0] is used. A response without choices is a model error.
func TranslateResponse(resp *ChatCompletionResponse) (*provider.ProviderResponse, error) {
	pr := &provider.ProviderResponse{
		Model: resp.Model,
	}

	if resp.Usage != nil {
		pr.Usage = api.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}

	if len(resp.Choices) == 0 {
		return nil, api.NewModelError("backend returned no choices", nil)
	}

	choice := resp.Choices[0]
	pr.FinishReason = MapFinishReason(choice.FinishReason)
	pr.Text = ExtractContentString(choice.Message.Content)

	for _, tc := range choice.Message.ToolCalls {
		typ := tc.Type
		if typ == "" {
			typ = "function"
		}
		pr.ToolCalls = append(pr.ToolCalls, provider.ProviderToolCall{
			ID:   tc.ID,
			Type: typ,
			Function: provider.ProviderFunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	// Some backends report "stop" while still returning tool calls.
	if len(pr.ToolCalls) > 0 {
		pr.FinishReason = provider.FinishToolCalls
	}

	return pr, nil
}

// MapFinishReason converts a Chat Completions finish_reason string.
// Unknown values are treated as stop.
func MapFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "length":
		return provider.FinishLength
	case "tool_calls", "function_call":
		return provider.FinishToolCalls
	case "content_filter":
		return provider.FinishContentFilter
	default:
		return provider.FinishStop
	}
}

// ExtractContentString returns the message content as plain text. The
// content field can be a string, null, or an array of text parts.
func ExtractContentString(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var out string
		for _, part := range v {
			m, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok {
				out += text
			}
		}
		return out
	default:
		return ""
	}
}
