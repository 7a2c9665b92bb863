package upstream

import (
	"strings"

	"github.com/tidwall/gjson"
)

// EventKind classifies an upstream SSE payload for the translation state
// machine. Only kinds the translator acts on get their own value; everything
// else is KindIgnored.
type EventKind int

const (
	KindIgnored EventKind = iota
	KindOutputTextDelta
	KindReasoningSummaryDelta
	KindReasoningTextDelta
	KindSummaryPartAdded
	KindFunctionCallDone
	KindOutputTextDone
	KindFailed
	KindCompleted
	KindDone
)

// ToolCall is a completed function call lifted out of an output_item.done
// event.
type ToolCall struct {
	CallID    string
	Name      string
	Arguments string
}

// Event is the parsed union of one upstream SSE data payload.
type Event struct {
	Kind EventKind

	// ResponseID is the upstream response id when the payload carried one.
	ResponseID string

	// Delta holds the text fragment for the three delta kinds.
	Delta string

	// Call is set for KindFunctionCallDone.
	Call ToolCall

	// ErrorMessage is set for KindFailed.
	ErrorMessage string

	// Usage is set for KindCompleted when the payload carried usage counts.
	Usage *Usage

	// Raw is the original JSON payload, kept for debug logging.
	Raw string
}

// ParseEvent classifies one SSE data payload. The literal "[DONE]" sentinel
// maps to KindDone. Payloads that are not JSON objects report ok=false so the
// reader can skip them without stopping the stream.
func ParseEvent(data string) (Event, bool) {
	if strings.TrimSpace(data) == "[DONE]" {
		return Event{Kind: KindDone, Raw: data}, true
	}
	if !gjson.Valid(data) {
		return Event{}, false
	}
	root := gjson.Parse(data)
	if !root.IsObject() {
		return Event{}, false
	}

	ev := Event{Kind: KindIgnored, Raw: data}
	if id := root.Get("response.id"); id.Type == gjson.String {
		ev.ResponseID = id.String()
	}
	switch root.Get("type").String() {
	case "response.output_text.delta":
		ev.Kind = KindOutputTextDelta
		ev.Delta = root.Get("delta").String()
	case "response.reasoning_summary_text.delta":
		ev.Kind = KindReasoningSummaryDelta
		ev.Delta = root.Get("delta").String()
	case "response.reasoning_text.delta":
		ev.Kind = KindReasoningTextDelta
		ev.Delta = root.Get("delta").String()
	case "response.reasoning_summary_part.added":
		ev.Kind = KindSummaryPartAdded
	case "response.output_item.done":
		item := root.Get("item")
		if item.Get("type").String() != "function_call" {
			break
		}
		callID := item.Get("call_id")
		name := item.Get("name")
		args := item.Get("arguments")
		if callID.Type != gjson.String || name.Type != gjson.String || args.Type != gjson.String {
			break
		}
		ev.Kind = KindFunctionCallDone
		ev.Call = ToolCall{
			CallID:    callID.String(),
			Name:      name.String(),
			Arguments: args.String(),
		}
	case "response.output_text.done":
		ev.Kind = KindOutputTextDone
	case "response.failed":
		ev.Kind = KindFailed
		ev.ErrorMessage = root.Get("response.error.message").String()
		if ev.ErrorMessage == "" {
			ev.ErrorMessage = "response failed"
		}
	case "response.completed":
		ev.Kind = KindCompleted
		if usage := root.Get("response.usage"); usage.Exists() {
			ev.Usage = NormalizeUsage(usage)
		}
	}
	return ev, true
}
