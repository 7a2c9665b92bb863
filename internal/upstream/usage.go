package upstream

import "github.com/tidwall/gjson"

// Usage carries normalized token counts in OpenAI chat-completions shape.
// Cache details ride along only when the upstream reported them numerically.
type Usage struct {
	PromptTokens        int                 `json:"prompt_tokens"`
	CompletionTokens    int                 `json:"completion_tokens"`
	TotalTokens         int                 `json:"total_tokens"`
	PromptTokensDetails *PromptTokenDetails `json:"prompt_tokens_details,omitempty"`
}

// PromptTokenDetails exposes upstream prompt cache hits.
type PromptTokenDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

// NormalizeUsage converts an upstream usage object to the chat-completions
// field names. Responses-style names (input_tokens, output_tokens) and
// chat-style names (prompt_tokens, completion_tokens) are both accepted, the
// later field winning when a payload carries both. An explicit total_tokens
// beats the computed sum.
func NormalizeUsage(usage gjson.Result) *Usage {
	out := &Usage{}
	if v := usage.Get("input_tokens"); v.Type == gjson.Number {
		out.PromptTokens = int(v.Int())
	}
	if v := usage.Get("prompt_tokens"); v.Type == gjson.Number {
		out.PromptTokens = int(v.Int())
	}
	if v := usage.Get("output_tokens"); v.Type == gjson.Number {
		out.CompletionTokens = int(v.Int())
	}
	if v := usage.Get("completion_tokens"); v.Type == gjson.Number {
		out.CompletionTokens = int(v.Int())
	}
	out.TotalTokens = out.PromptTokens + out.CompletionTokens
	if v := usage.Get("total_tokens"); v.Type == gjson.Number {
		out.TotalTokens = int(v.Int())
	}
	if v := usage.Get("input_tokens_details.cached_tokens"); v.Type == gjson.Number {
		out.PromptTokensDetails = &PromptTokenDetails{CachedTokens: int(v.Int())}
	} else if v := usage.Get("prompt_tokens_details.cached_tokens"); v.Type == gjson.Number {
		out.PromptTokensDetails = &PromptTokenDetails{CachedTokens: int(v.Int())}
	}
	return out
}

// Merge overlays later usage onto u, later numbers winning field by field.
func (u *Usage) Merge(next *Usage) {
	if next == nil {
		return
	}
	if next.PromptTokens != 0 {
		u.PromptTokens = next.PromptTokens
	}
	if next.CompletionTokens != 0 {
		u.CompletionTokens = next.CompletionTokens
	}
	if next.TotalTokens != 0 {
		u.TotalTokens = next.TotalTokens
	}
	if next.PromptTokensDetails != nil {
		u.PromptTokensDetails = next.PromptTokensDetails
	}
}
