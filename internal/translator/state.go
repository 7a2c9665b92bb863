// Package translator converts the upstream Responses-API event stream into
// OpenAI- and Ollama-flavored output. One shared state machine drives both
// the streaming renderers and the non-streaming aggregator so the two paths
// cannot drift apart.
package translator

import (
	"strings"

	"github.com/mizuikk/codex-openai-wrapper/internal/reasoning"
	"github.com/mizuikk/codex-openai-wrapper/internal/upstream"
)

// placeholderID is used for output chunk ids until the upstream reports a
// response id.
const placeholderID = "chatcmpl"

// EmissionKind classifies one unit of output produced by a state transition.
type EmissionKind int

const (
	// EmitRole primes the stream with the assistant role.
	EmitRole EmissionKind = iota
	// EmitContent carries visible answer text (including think-tag markers
	// in tagged mode).
	EmitContent
	// EmitReasoningContent carries reasoning text for the r1/openai shapes.
	EmitReasoningContent
	// EmitReasoningBlock carries reasoning text for the o3 block shape.
	EmitReasoningBlock
	// EmitToolCall carries one completed function call.
	EmitToolCall
	// EmitFinish carries a finish_reason ("stop" or "tool_calls").
	EmitFinish
	// EmitError is an inline error frame.
	EmitError
	// EmitUsage carries normalized token counts.
	EmitUsage
	// EmitDone terminates the stream.
	EmitDone
)

// Emission is one renderer-agnostic output unit.
type Emission struct {
	Kind         EmissionKind
	Text         string
	Call         upstream.ToolCall
	FinishReason string
	ErrorMessage string
	Usage        *upstream.Usage
}

// State is the per-request translation state. Apply mutates it and returns
// the emissions the streaming path must flush; the aggregation path ignores
// most emissions and reads the accumulated buffers at the end.
type State struct {
	Mode reasoning.Mode

	responseID string
	roleSent   bool

	thinkOpen   bool
	thinkClosed bool

	sawAnySummary    bool
	pendingSeparator bool

	done bool

	fullText      strings.Builder
	summaryText   strings.Builder
	reasoningText strings.Builder

	toolCalls  []upstream.ToolCall
	finalUsage *upstream.Usage
	errMessage string
}

// NewState returns a fresh state for one request.
func NewState(mode reasoning.Mode) *State {
	return &State{Mode: mode, responseID: placeholderID}
}

// ResponseID is the chunk id to stamp on output, last-seen upstream id wins.
func (s *State) ResponseID() string { return s.responseID }

// Done reports whether a terminal event has been applied.
func (s *State) Done() bool { return s.done }

// Usage returns the usage attached to the terminal event, if any.
func (s *State) Usage() *upstream.Usage { return s.finalUsage }

// ToolCalls returns the accumulated completed tool calls in arrival order.
func (s *State) ToolCalls() []upstream.ToolCall { return s.toolCalls }

// ErrMessage returns the mid-stream failure message, empty when none.
func (s *State) ErrMessage() string { return s.errMessage }

// Apply runs one event through the state machine. It returns zero or more
// emissions in the exact order the streaming path must write them. Events
// after the terminal one are ignored.
func (s *State) Apply(ev upstream.Event) []Emission {
	if s.done {
		return nil
	}
	if ev.ResponseID != "" {
		s.responseID = ev.ResponseID
	}

	var out []Emission
	switch ev.Kind {
	case upstream.KindOutputTextDelta:
		out = s.closeThink(out)
		out = s.primed(out, Emission{Kind: EmitContent, Text: ev.Delta})
		s.fullText.WriteString(ev.Delta)

	case upstream.KindSummaryPartAdded:
		if s.Mode == reasoning.ModeTagged || s.Mode == reasoning.ModeO3 || s.Mode == reasoning.ModeOpenAI {
			if !s.sawAnySummary {
				s.sawAnySummary = true
			} else {
				s.pendingSeparator = true
			}
		}

	case upstream.KindReasoningSummaryDelta:
		out = s.reasoningDelta(out, ev.Delta, true)

	case upstream.KindReasoningTextDelta:
		out = s.reasoningDelta(out, ev.Delta, false)

	case upstream.KindFunctionCallDone:
		s.toolCalls = append(s.toolCalls, ev.Call)
		out = s.primed(out, Emission{Kind: EmitToolCall, Call: ev.Call})
		out = append(out, Emission{Kind: EmitFinish, FinishReason: "tool_calls"})

	case upstream.KindOutputTextDone:
		out = append(out, Emission{Kind: EmitFinish, FinishReason: "stop"})

	case upstream.KindFailed:
		s.errMessage = ev.ErrorMessage
		out = append(out, Emission{Kind: EmitError, ErrorMessage: ev.ErrorMessage})

	case upstream.KindCompleted:
		out = s.closeThink(out)
		if ev.Usage != nil {
			if s.finalUsage == nil {
				s.finalUsage = &upstream.Usage{}
			}
			s.finalUsage.Merge(ev.Usage)
			out = append(out, Emission{Kind: EmitUsage, Usage: s.finalUsage})
		}
		out = append(out, Emission{Kind: EmitDone})
		s.done = true

	case upstream.KindDone:
		out = append(out, Emission{Kind: EmitDone})
		s.done = true
	}
	return out
}

// primed prepends the one-time role chunk before the first content-bearing
// emission.
func (s *State) primed(out []Emission, e Emission) []Emission {
	if !s.roleSent {
		out = append(out, Emission{Kind: EmitRole})
		s.roleSent = true
	}
	return append(out, e)
}

// closeThink emits the closing think tag once, before visible text starts or
// at stream completion.
func (s *State) closeThink(out []Emission) []Emission {
	if s.Mode == reasoning.ModeTagged && s.thinkOpen && !s.thinkClosed {
		out = s.primed(out, Emission{Kind: EmitContent, Text: "</think>"})
		s.thinkClosed = true
	}
	return out
}

func (s *State) reasoningDelta(out []Emission, text string, isSummary bool) []Emission {
	// Buffers accumulate in every mode so the aggregator can pack them
	// later; hidden simply never emits.
	buf := &s.reasoningText
	if isSummary {
		buf = &s.summaryText
	}

	switch s.Mode {
	case reasoning.ModeHidden:
		buf.WriteString(text)

	case reasoning.ModeR1, reasoning.ModeOpenAI:
		if s.pendingSeparator && isSummary {
			s.pendingSeparator = false
			buf.WriteString("\n")
			out = s.primed(out, Emission{Kind: EmitReasoningContent, Text: "\n"})
		}
		buf.WriteString(text)
		out = s.primed(out, Emission{Kind: EmitReasoningContent, Text: text})

	case reasoning.ModeO3:
		if s.pendingSeparator && isSummary {
			s.pendingSeparator = false
			buf.WriteString("\n")
			out = s.primed(out, Emission{Kind: EmitReasoningBlock, Text: "\n"})
		}
		buf.WriteString(text)
		out = s.primed(out, Emission{Kind: EmitReasoningBlock, Text: text})

	default: // tagged
		if s.thinkClosed {
			// Reasoning after the think block closed has nowhere to
			// go in tagged mode.
			buf.WriteString(text)
			return out
		}
		if !s.thinkOpen {
			s.thinkOpen = true
			out = s.primed(out, Emission{Kind: EmitContent, Text: "<think>"})
		}
		if s.pendingSeparator {
			s.pendingSeparator = false
			buf.WriteString("\n")
			out = s.primed(out, Emission{Kind: EmitContent, Text: "\n"})
		}
		buf.WriteString(text)
		out = s.primed(out, Emission{Kind: EmitContent, Text: text})
	}
	return out
}

// ReasoningJoined returns summary and full reasoning joined for the final
// aggregate message, empty when neither buffer has content.
func (s *State) ReasoningJoined() string {
	summary := s.summaryText.String()
	full := s.reasoningText.String()
	switch {
	case summary != "" && full != "":
		return summary + "\n\n" + full
	case summary != "":
		return summary
	default:
		return full
	}
}

// VisibleText returns the accumulated answer text without think markers.
func (s *State) VisibleText() string { return s.fullText.String() }

// AppendText is used by the single-object fallback parse path.
func (s *State) AppendText(text string) { s.fullText.WriteString(text) }

// SetUsage is used by the single-object fallback parse path.
func (s *State) SetUsage(u *upstream.Usage) { s.finalUsage = u }

// AddToolCall is used by the single-object fallback parse path.
func (s *State) AddToolCall(call upstream.ToolCall) {
	s.toolCalls = append(s.toolCalls, call)
}

// MarkDone is used by the single-object fallback parse path.
func (s *State) MarkDone() { s.done = true }
