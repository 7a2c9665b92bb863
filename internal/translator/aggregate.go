package translator

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	log "github.com/mizuikk/codex-openai-wrapper/internal/logging"
	"github.com/mizuikk/codex-openai-wrapper/internal/reasoning"
	"github.com/mizuikk/codex-openai-wrapper/internal/sseutil"
	"github.com/mizuikk/codex-openai-wrapper/internal/upstream"
)

// ChatMessage is the final assistant message of a non-streaming response.
type ChatMessage struct {
	Role             string          `json:"role"`
	Content          string          `json:"content"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	Reasoning        *ReasoningBlock `json:"reasoning,omitempty"`
	ToolCalls        []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ChatCompletion is the non-streaming chat response object.
type ChatCompletion struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Model   string          `json:"model"`
	Choices []ChatChoice    `json:"choices"`
	Usage   *upstream.Usage `json:"usage,omitempty"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// TextCompletion is the non-streaming legacy completions response object.
type TextCompletion struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Model   string          `json:"model"`
	Choices []TextChoice    `json:"choices"`
	Usage   *upstream.Usage `json:"usage,omitempty"`
}

type TextChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

// Aggregate consumes the upstream body through the same state machine as
// Stream, discarding emissions and stopping as soon as a terminal event is
// applied. When the body turns out to be one plain JSON object instead of SSE
// frames, the fallback parse path fills the state from it.
func Aggregate(ctx context.Context, body io.Reader, st *State) error {
	scanner := sseutil.NewScanner(body)

	var raw strings.Builder
	sawFrame := false

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		if !sawFrame {
			raw.WriteString(line)
			raw.WriteString("\n")
		}
		data, ok := sseutil.DataPayload(line)
		if !ok {
			continue
		}
		sawFrame = true
		ev, ok := upstream.ParseEvent(data)
		if !ok {
			log.Debugf("skipping malformed upstream payload: %.120s", data)
			continue
		}
		st.Apply(ev)
		if st.Done() {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return ctx.Err()
		}
		return err
	}

	if !sawFrame {
		if applySingleObject(st, raw.String()) {
			return nil
		}
	}
	if !st.Done() {
		st.Apply(upstream.Event{Kind: upstream.KindCompleted})
	}
	return nil
}

// applySingleObject handles upstreams that answer with one JSON object and no
// SSE framing, pulling text, tool calls, and usage out of the common field
// spellings.
func applySingleObject(st *State, body string) bool {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" || !gjson.Valid(trimmed) {
		return false
	}
	root := gjson.Parse(trimmed)
	if !root.IsObject() {
		return false
	}

	if id := firstString(root, "id", "response.id"); id != "" {
		st.responseID = id
	}

	if text := extractText(root); text != "" {
		st.AppendText(text)
	}

	for _, item := range root.Get("output").Array() {
		if item.Get("type").String() != "function_call" {
			continue
		}
		callID := item.Get("call_id")
		name := item.Get("name")
		args := item.Get("arguments")
		if callID.Type != gjson.String || name.Type != gjson.String || args.Type != gjson.String {
			continue
		}
		st.AddToolCall(upstream.ToolCall{
			CallID:    callID.String(),
			Name:      name.String(),
			Arguments: args.String(),
		})
	}

	if usage := root.Get("usage"); usage.Exists() {
		st.SetUsage(upstream.NormalizeUsage(usage))
	} else if usage := root.Get("response.usage"); usage.Exists() {
		st.SetUsage(upstream.NormalizeUsage(usage))
	}

	st.MarkDone()
	return true
}

func extractText(root gjson.Result) string {
	if v := root.Get("output_text"); v.Exists() {
		if v.Type == gjson.String {
			return v.String()
		}
		if v.IsArray() {
			var sb strings.Builder
			for _, part := range v.Array() {
				sb.WriteString(part.String())
			}
			return sb.String()
		}
	}
	if v := firstString(root, "response.output_text", "choices.0.message.content", "content"); v != "" {
		return v
	}
	var sb strings.Builder
	for _, item := range root.Get("output").Array() {
		if item.Get("type").String() != "message" {
			continue
		}
		for _, part := range item.Get("content").Array() {
			if part.Get("type").String() == "output_text" {
				sb.WriteString(part.Get("text").String())
			}
		}
	}
	return sb.String()
}

func firstString(root gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := root.Get(path); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// FinalMessage packs the accumulated buffers into the response message using
// the mode's shape. Tagged is the only mode that mutates content itself.
func (s *State) FinalMessage() ChatMessage {
	msg := ChatMessage{Role: "assistant", Content: s.VisibleText()}
	joined := s.ReasoningJoined()

	switch s.Mode {
	case reasoning.ModeHidden:
	case reasoning.ModeO3:
		if joined != "" {
			msg.Reasoning = &ReasoningBlock{Content: []ReasoningPart{{Type: "text", Text: joined}}}
		}
	case reasoning.ModeR1, reasoning.ModeOpenAI:
		if joined != "" {
			msg.ReasoningContent = joined
		}
	default: // tagged
		if joined != "" {
			msg.Content = "<think>" + joined + "</think>" + msg.Content
		}
	}

	for _, call := range s.toolCalls {
		id := call.CallID
		if id == "" {
			id = call.Name
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCallDelta{
			Index: 0,
			ID:    id,
			Type:  "function",
			Function: FunctionCall{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}
	return msg
}

func (s *State) finishReason() string {
	if len(s.toolCalls) > 0 {
		return "tool_calls"
	}
	return "stop"
}

// BuildChatCompletion assembles the final non-streaming chat response.
func (s *State) BuildChatCompletion(model string, created int64) *ChatCompletion {
	return &ChatCompletion{
		ID:      s.ResponseID(),
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: []ChatChoice{{
			Message:      s.FinalMessage(),
			FinishReason: s.finishReason(),
		}},
		Usage: s.finalUsage,
	}
}

// BuildTextCompletion assembles the final non-streaming completions response.
// Only the visible text participates; reasoning shapes do not exist on this
// surface except inline think tags in tagged mode.
func (s *State) BuildTextCompletion(model string, created int64) *TextCompletion {
	text := s.VisibleText()
	if s.Mode == reasoning.ModeTagged {
		if joined := s.ReasoningJoined(); joined != "" {
			text = "<think>" + joined + "</think>" + text
		}
	}
	return &TextCompletion{
		ID:      s.ResponseID(),
		Object:  "text_completion",
		Created: created,
		Model:   model,
		Choices: []TextChoice{{
			Text:         text,
			FinishReason: s.finishReason(),
		}},
		Usage: s.finalUsage,
	}
}
