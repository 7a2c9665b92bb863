package translator

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/mizuikk/codex-openai-wrapper/internal/json"
	"github.com/mizuikk/codex-openai-wrapper/internal/upstream"
)

// Renderer turns one emission into output bytes for a specific client wire
// format. A nil result means the emission has no representation there.
type Renderer interface {
	Render(st *State, e Emission) []byte
}

// ChatRenderer writes OpenAI chat.completion.chunk SSE frames.
type ChatRenderer struct {
	Model   string
	Created int64
}

func (r *ChatRenderer) Render(st *State, e Emission) []byte {
	id := st.ResponseID()
	switch e.Kind {
	case EmitRole:
		return buildDeltaFrame(id, r.Model, r.Created, Delta{Role: "assistant"})
	case EmitContent:
		return buildDeltaFrame(id, r.Model, r.Created, Delta{Content: e.Text})
	case EmitReasoningContent:
		return buildDeltaFrame(id, r.Model, r.Created, Delta{ReasoningContent: e.Text})
	case EmitReasoningBlock:
		return buildDeltaFrame(id, r.Model, r.Created, Delta{
			Reasoning: &ReasoningBlock{Content: []ReasoningPart{{Type: "text", Text: e.Text}}},
		})
	case EmitToolCall:
		return buildToolCallFrame(id, r.Model, r.Created, e.Call)
	case EmitFinish:
		return buildFinishFrame(id, r.Model, r.Created, e.FinishReason)
	case EmitError:
		return buildErrorFrame(e.ErrorMessage)
	case EmitUsage:
		return buildUsageFrame(id, r.Model, r.Created, e.Usage)
	case EmitDone:
		return doneFrame
	}
	return nil
}

// TextRenderer writes legacy text_completion SSE frames. Only visible text
// flows through; reasoning shapes other than tagged have no representation.
type TextRenderer struct {
	Model   string
	Created int64
}

type textChunk struct {
	ID      string           `json:"id"`
	Object  string           `json:"object"`
	Created int64            `json:"created"`
	Model   string           `json:"model"`
	Choices []textChoice     `json:"choices"`
	Usage   *upstream.Usage  `json:"usage,omitempty"`
}

type textChoice struct {
	Index        int     `json:"index"`
	Text         string  `json:"text"`
	FinishReason *string `json:"finish_reason"`
}

func (r *TextRenderer) frame(choice textChoice, st *State, usage *upstream.Usage) []byte {
	jb, err := json.Marshal(textChunk{
		ID:      st.ResponseID(),
		Object:  "text_completion",
		Created: r.Created,
		Model:   r.Model,
		Choices: []textChoice{choice},
		Usage:   usage,
	})
	if err != nil {
		return nil
	}
	return frame(jb)
}

func (r *TextRenderer) Render(st *State, e Emission) []byte {
	switch e.Kind {
	case EmitContent:
		return r.frame(textChoice{Text: e.Text}, st, nil)
	case EmitFinish:
		reason := e.FinishReason
		return r.frame(textChoice{FinishReason: &reason}, st, nil)
	case EmitError:
		return buildErrorFrame(e.ErrorMessage)
	case EmitUsage:
		return r.frame(textChoice{}, st, e.Usage)
	case EmitDone:
		return doneFrame
	}
	return nil
}

// Ollama NDJSON rendering. One JSON object per line, no SSE framing; the
// final line carries done:true plus eval counts.

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Thinking  string           `json:"thinking,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type ollamaChatChunk struct {
	Model      string         `json:"model"`
	CreatedAt  string         `json:"created_at"`
	Message    *ollamaMessage `json:"message,omitempty"`
	Done       bool           `json:"done"`
	DoneReason string         `json:"done_reason,omitempty"`

	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

type ollamaGenerateChunk struct {
	Model      string `json:"model"`
	CreatedAt  string `json:"created_at"`
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`

	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

func ollamaArguments(raw string) json.RawMessage {
	if gjson.Valid(raw) && gjson.Parse(raw).IsObject() {
		return json.RawMessage(raw)
	}
	quoted, err := json.Marshal(raw)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return quoted
}

func ndjsonLine(v any) []byte {
	jb, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return append(jb, '\n')
}

// OllamaChatRenderer writes /api/chat NDJSON chunks.
type OllamaChatRenderer struct {
	Model string
	now   func() time.Time
}

func NewOllamaChatRenderer(model string) *OllamaChatRenderer {
	return &OllamaChatRenderer{Model: model, now: time.Now}
}

func (r *OllamaChatRenderer) stamp() string {
	return r.now().UTC().Format(time.RFC3339Nano)
}

func (r *OllamaChatRenderer) Render(st *State, e Emission) []byte {
	switch e.Kind {
	case EmitContent:
		return ndjsonLine(ollamaChatChunk{
			Model:     r.Model,
			CreatedAt: r.stamp(),
			Message:   &ollamaMessage{Role: "assistant", Content: e.Text},
		})
	case EmitReasoningContent, EmitReasoningBlock:
		return ndjsonLine(ollamaChatChunk{
			Model:     r.Model,
			CreatedAt: r.stamp(),
			Message:   &ollamaMessage{Role: "assistant", Thinking: e.Text},
		})
	case EmitToolCall:
		return ndjsonLine(ollamaChatChunk{
			Model:     r.Model,
			CreatedAt: r.stamp(),
			Message: &ollamaMessage{
				Role: "assistant",
				ToolCalls: []ollamaToolCall{{
					Function: ollamaToolFunction{
						Name:      e.Call.Name,
						Arguments: ollamaArguments(e.Call.Arguments),
					},
				}},
			},
		})
	case EmitError:
		return ndjsonLine(map[string]string{"error": e.ErrorMessage})
	case EmitDone:
		final := ollamaChatChunk{
			Model:      r.Model,
			CreatedAt:  r.stamp(),
			Message:    &ollamaMessage{Role: "assistant"},
			Done:       true,
			DoneReason: doneReason(st),
		}
		if u := st.Usage(); u != nil {
			final.PromptEvalCount = u.PromptTokens
			final.EvalCount = u.CompletionTokens
		}
		return ndjsonLine(final)
	}
	return nil
}

// OllamaGenerateRenderer writes /api/generate NDJSON chunks.
type OllamaGenerateRenderer struct {
	Model string
	now   func() time.Time
}

func NewOllamaGenerateRenderer(model string) *OllamaGenerateRenderer {
	return &OllamaGenerateRenderer{Model: model, now: time.Now}
}

func (r *OllamaGenerateRenderer) Render(st *State, e Emission) []byte {
	stamp := r.now().UTC().Format(time.RFC3339Nano)
	switch e.Kind {
	case EmitContent:
		return ndjsonLine(ollamaGenerateChunk{Model: r.Model, CreatedAt: stamp, Response: e.Text})
	case EmitError:
		return ndjsonLine(map[string]string{"error": e.ErrorMessage})
	case EmitDone:
		final := ollamaGenerateChunk{
			Model:      r.Model,
			CreatedAt:  stamp,
			Done:       true,
			DoneReason: doneReason(st),
		}
		if u := st.Usage(); u != nil {
			final.PromptEvalCount = u.PromptTokens
			final.EvalCount = u.CompletionTokens
		}
		return ndjsonLine(final)
	}
	return nil
}

func doneReason(st *State) string {
	if len(st.ToolCalls()) > 0 {
		return "tool_calls"
	}
	return "stop"
}
