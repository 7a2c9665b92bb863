// Package upstream implements the wire contract with the Responses-API
// backend: the outbound request body, the inbound SSE event union, and the
// request orchestrator with auth and retry handling.
package upstream

// ContentPart is one piece of a message input item.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// InputItem is one element of the unified input list. Exactly one of the
// shape-specific field groups is populated depending on Type:
// "message", "function_call", or "function_call_output".
type InputItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	// function_call fields
	ID        string `json:"id,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// function_call_output field
	Output string `json:"output,omitempty"`
}

// Tool is a tool definition in the upstream's flattened schema.
type Tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Strict      *bool          `json:"strict,omitempty"`

	// Function carries the nested schema variant; mutually exclusive with
	// the flattened fields above.
	Function *ToolFunction `json:"function,omitempty"`
}

// ToolFunction is the nested function payload used by the chat-style wire
// variant.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Strict      *bool          `json:"strict,omitempty"`
}

// ReasoningParam configures upstream reasoning effort and summary verbosity.
type ReasoningParam struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Request is the outbound request body. Store is always false and Stream
// always true: the gateway aggregates locally when the client asked for a
// non-streaming response.
type Request struct {
	Model             string          `json:"model"`
	Instructions      string          `json:"instructions"`
	Input             []InputItem     `json:"input"`
	Tools             []Tool          `json:"tools,omitempty"`
	ToolChoice        any             `json:"tool_choice,omitempty"`
	ParallelToolCalls bool            `json:"parallel_tool_calls"`
	Store             bool            `json:"store"`
	Stream            bool            `json:"stream"`
	Include           []string        `json:"include,omitempty"`
	PromptCacheKey    string          `json:"prompt_cache_key,omitempty"`
	Reasoning         *ReasoningParam `json:"reasoning,omitempty"`

	// SessionID is carried as a header, not in the body.
	SessionID string `json:"-"`
}

// ErrorResponse is the structured error surfaced to API clients.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type,omitempty"`
}
