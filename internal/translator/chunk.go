package translator

import (
	"bytes"
	"sync"

	"github.com/mizuikk/codex-openai-wrapper/internal/json"
	"github.com/mizuikk/codex-openai-wrapper/internal/upstream"
)

// Chat-completion chunk wire types. Typed structs instead of map[string]any
// keep the per-token hot path cheap.

type Chunk struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Model   string          `json:"model"`
	Choices []ChunkChoice   `json:"choices"`
	Usage   *upstream.Usage `json:"usage,omitempty"`
}

type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type Delta struct {
	Role             string          `json:"role,omitempty"`
	Content          string          `json:"content,omitempty"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	Reasoning        *ReasoningBlock `json:"reasoning,omitempty"`
	ToolCalls        []ToolCallDelta `json:"tool_calls,omitempty"`
}

type ReasoningBlock struct {
	Content []ReasoningPart `json:"content"`
}

type ReasoningPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ToolCallDelta struct {
	Index    int          `json:"index"`
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

var chunkPool = sync.Pool{
	New: func() any {
		return &Chunk{
			Object:  "chat.completion.chunk",
			Choices: make([]ChunkChoice, 1),
		}
	},
}

func getChunk(id, model string, created int64) *Chunk {
	c := chunkPool.Get().(*Chunk)
	c.ID = id
	c.Model = model
	c.Created = created
	return c
}

func putChunk(c *Chunk) {
	c.ID = ""
	c.Model = ""
	c.Created = 0
	c.Usage = nil
	c.Choices[0] = ChunkChoice{}
	chunkPool.Put(c)
}

var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// frame wraps one JSON payload as a data frame. Every output write is exactly
// one of these; frames are never coalesced.
func frame(payload []byte) []byte {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	buf.Grow(8 + len(payload))
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	bufPool.Put(buf)
	return out
}

// doneFrame is the fixed stream terminator.
var doneFrame = []byte("data: [DONE]\n\n")

// marshalChunkFrame serializes a chunk and returns it pooled and framed.
func marshalChunkFrame(c *Chunk) []byte {
	defer putChunk(c)
	jb, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	return frame(jb)
}

// buildDeltaFrame is the generic chunk frame for any delta shape.
func buildDeltaFrame(id, model string, created int64, delta Delta) []byte {
	c := getChunk(id, model, created)
	c.Choices[0] = ChunkChoice{Delta: delta}
	return marshalChunkFrame(c)
}

// buildFinishFrame carries a finish_reason with an empty delta.
func buildFinishFrame(id, model string, created int64, reason string) []byte {
	c := getChunk(id, model, created)
	c.Choices[0] = ChunkChoice{FinishReason: &reason}
	return marshalChunkFrame(c)
}

// buildUsageFrame carries final token counts on an empty delta.
func buildUsageFrame(id, model string, created int64, usage *upstream.Usage) []byte {
	c := getChunk(id, model, created)
	c.Choices[0] = ChunkChoice{}
	c.Usage = usage
	return marshalChunkFrame(c)
}

// buildToolCallFrame carries one completed call. Index is always 0; parallel
// tool calls in one turn are not indexed separately.
func buildToolCallFrame(id, model string, created int64, call upstream.ToolCall) []byte {
	callID := call.CallID
	if callID == "" {
		callID = call.Name
	}
	return buildDeltaFrame(id, model, created, Delta{
		ToolCalls: []ToolCallDelta{{
			Index: 0,
			ID:    callID,
			Type:  "function",
			Function: FunctionCall{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		}},
	})
}

// errorFrame is the inline mid-stream error shape; not a chunk envelope.
type errorFrame struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
}

func buildErrorFrame(message string) []byte {
	jb, err := json.Marshal(errorFrame{Error: errorBody{Message: message}})
	if err != nil {
		return nil
	}
	return frame(jb)
}
