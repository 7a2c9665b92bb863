// Package normalizer converts OpenAI- and Ollama-flavored chat requests into
// the upstream input-item list and tool schema.
package normalizer

import (
	"encoding/base64"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/mizuikk/codex-openai-wrapper/internal/upstream"
)

// Tool schema wire variants.
const (
	ToolSchemaFlat   = "flat"
	ToolSchemaNested = "nested"
)

// InputItems converts a chat messages array into upstream input items.
// System messages are folded into one leading user message since the
// upstream has no system role. Empty input yields an empty list, not an
// error.
func InputItems(messages gjson.Result) []upstream.InputItem {
	var items []upstream.InputItem
	var systemTexts []string

	messages.ForEach(func(_, msg gjson.Result) bool {
		switch msg.Get("role").String() {
		case "system", "developer":
			if text := plainText(msg.Get("content")); text != "" {
				systemTexts = append(systemTexts, text)
			}
		case "user":
			items = append(items, upstream.InputItem{
				Type:    "message",
				Role:    "user",
				Content: contentParts(msg.Get("content"), "input_text"),
			})
		case "assistant":
			if parts := contentParts(msg.Get("content"), "output_text"); len(parts) > 0 {
				items = append(items, upstream.InputItem{
					Type:    "message",
					Role:    "assistant",
					Content: parts,
				})
			}
			msg.Get("tool_calls").ForEach(func(_, call gjson.Result) bool {
				if call.Get("type").String() != "function" && call.Get("type").Exists() {
					return true
				}
				id := call.Get("id").String()
				items = append(items, upstream.InputItem{
					Type:      "function_call",
					CallID:    id,
					Name:      call.Get("function.name").String(),
					Arguments: call.Get("function.arguments").String(),
				})
				return true
			})
		case "tool":
			items = append(items, upstream.InputItem{
				Type:   "function_call_output",
				CallID: msg.Get("tool_call_id").String(),
				Output: plainText(msg.Get("content")),
			})
		}
		return true
	})

	if len(systemTexts) > 0 {
		lead := upstream.InputItem{
			Type: "message",
			Role: "user",
			Content: []upstream.ContentPart{{
				Type: "input_text",
				Text: strings.Join(systemTexts, "\n\n"),
			}},
		}
		items = append([]upstream.InputItem{lead}, items...)
	}
	return items
}

// PromptItems wraps a bare prompt string for the legacy completions surface.
func PromptItems(prompt string) []upstream.InputItem {
	return []upstream.InputItem{{
		Type: "message",
		Role: "user",
		Content: []upstream.ContentPart{{
			Type: "input_text",
			Text: prompt,
		}},
	}}
}

// contentParts converts a message content value (string or part array) into
// upstream content parts. textType distinguishes user input from assistant
// output.
func contentParts(content gjson.Result, textType string) []upstream.ContentPart {
	if content.Type == gjson.String {
		return []upstream.ContentPart{{Type: textType, Text: content.String()}}
	}
	var parts []upstream.ContentPart
	content.ForEach(func(_, part gjson.Result) bool {
		switch part.Get("type").String() {
		case "text", "input_text", "output_text":
			parts = append(parts, upstream.ContentPart{Type: textType, Text: part.Get("text").String()})
		case "image_url", "input_image":
			url := part.Get("image_url.url").String()
			if url == "" {
				url = part.Get("image_url").String()
			}
			if url == "" {
				url = part.Get("url").String()
			}
			if url != "" {
				parts = append(parts, upstream.ContentPart{Type: "input_image", ImageURL: NormalizeDataURL(url)})
			}
		}
		return true
	})
	return parts
}

// plainText flattens a content value to text, joining array parts.
func plainText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	var sb strings.Builder
	content.ForEach(func(_, part gjson.Result) bool {
		switch part.Get("type").String() {
		case "text", "input_text", "output_text":
			sb.WriteString(part.Get("text").String())
		}
		return true
	})
	return sb.String()
}

// NormalizeDataURL re-pads the base64 payload of a data URL. Clients strip
// trailing '=' often enough that the upstream rejects the image otherwise.
// Anything that is not a well-formed base64 data URL passes through as-is.
func NormalizeDataURL(url string) string {
	if !strings.HasPrefix(url, "data:") {
		return url
	}
	comma := strings.Index(url, ",")
	if comma < 0 || !strings.Contains(url[:comma], ";base64") {
		return url
	}
	payload := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, url[comma+1:])

	if rem := len(payload) % 4; rem != 0 {
		payload += strings.Repeat("=", 4-rem)
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return url
	}
	return url[:comma+1] + payload
}

// Tools converts client tool definitions, accepting both the nested chat
// shape and the flat responses shape, and emits the variant the upstream is
// configured for. Entries without a usable function name are dropped.
func Tools(tools gjson.Result, variant string) []upstream.Tool {
	var out []upstream.Tool
	tools.ForEach(func(_, tool gjson.Result) bool {
		fn := tool.Get("function")
		if !fn.Exists() {
			fn = tool
		}
		name := fn.Get("name").String()
		if name == "" {
			return true
		}
		desc := fn.Get("description").String()
		params := paramsMap(fn.Get("parameters"))

		if variant == ToolSchemaNested {
			out = append(out, upstream.Tool{
				Type: "function",
				Function: &upstream.ToolFunction{
					Name:        name,
					Description: desc,
					Parameters:  params,
				},
			})
		} else {
			out = append(out, upstream.Tool{
				Type:        "function",
				Name:        name,
				Description: desc,
				Parameters:  params,
			})
		}
		return true
	})
	return out
}

func paramsMap(params gjson.Result) map[string]any {
	if !params.IsObject() {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	m, ok := params.Value().(map[string]any)
	if !ok {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return m
}

// ToolChoice passes through the supported tool_choice spellings and drops
// anything else.
func ToolChoice(choice gjson.Result) any {
	switch {
	case choice.Type == gjson.String:
		switch choice.String() {
		case "auto", "none", "required":
			return choice.String()
		}
	case choice.IsObject():
		name := choice.Get("function.name").String()
		if name == "" {
			name = choice.Get("name").String()
		}
		if name != "" {
			return map[string]any{"type": "function", "name": name}
		}
	}
	return nil
}
