// Response parsing for upstream AI providers.
package external

import (
	"strings"

	"github.com/tidwall/gjson"
)

// parseResponse extracts content and token usage from a 2xx response
// body. A syntactically valid answer with no text content is reported
// as a *CallError so the classifier sees a uniform failure shape.
func parseResponse(provider string, body []byte) (*CallResult, error) {
	result := &CallResult{Provider: provider}

	switch provider {
	case ProviderAnthropic, ProviderBedrock:
		var sb strings.Builder
		gjson.GetBytes(body, "content").ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() == "text" {
				sb.WriteString(block.Get("text").String())
			}
			return true
		})
		result.Content = sb.String()
		result.Model = gjson.GetBytes(body, "model").String()
		result.InputTokens = int(gjson.GetBytes(body, "usage.input_tokens").Int())
		result.OutputTokens = int(gjson.GetBytes(body, "usage.output_tokens").Int())

	case ProviderGemini:
		var sb strings.Builder
		gjson.GetBytes(body, "candidates.0.content.parts").ForEach(func(_, part gjson.Result) bool {
			sb.WriteString(part.Get("text").String())
			return true
		})
		result.Content = sb.String()
		result.Model = gjson.GetBytes(body, "modelVersion").String()
		result.InputTokens = int(gjson.GetBytes(body, "usageMetadata.promptTokenCount").Int())
		result.OutputTokens = int(gjson.GetBytes(body, "usageMetadata.candidatesTokenCount").Int())

	default: // openai
		result.Content = gjson.GetBytes(body, "choices.0.message.content").String()
		result.Model = gjson.GetBytes(body, "model").String()
		result.InputTokens = int(gjson.GetBytes(body, "usage.prompt_tokens").Int())
		result.OutputTokens = int(gjson.GetBytes(body, "usage.completion_tokens").Int())
	}

	if strings.TrimSpace(result.Content) == "" {
		return nil, &CallError{
			Provider: provider,
			Code:     "empty_response",
			Message:  "response contained no text content",
		}
	}
	return result, nil
}
