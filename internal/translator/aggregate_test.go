package translator

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mizuikk/codex-openai-wrapper/internal/reasoning"
)

func aggregate(t *testing.T, mode reasoning.Mode, body string) *State {
	t.Helper()
	st := NewState(mode)
	if err := Aggregate(context.Background(), strings.NewReader(body), st); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestAggregateHiddenDropsReasoning(t *testing.T) {
	body := sseBody(
		`{"type":"response.reasoning_text.delta","delta":"secret"}`,
		`{"type":"response.output_text.delta","delta":"the answer"}`,
		`{"type":"response.completed","response":{}}`,
	)
	st := aggregate(t, reasoning.ModeHidden, body)
	msg := st.FinalMessage()
	if msg.Content != "the answer" {
		t.Errorf("content = %q", msg.Content)
	}
	if msg.ReasoningContent != "" || msg.Reasoning != nil {
		t.Errorf("hidden mode leaked reasoning: %+v", msg)
	}
}

func TestAggregateTaggedPrependsThinkBlock(t *testing.T) {
	body := sseBody(
		`{"type":"response.reasoning_summary_text.delta","delta":"plan"}`,
		`{"type":"response.output_text.delta","delta":"done"}`,
		`{"type":"response.completed","response":{}}`,
	)
	msg := aggregate(t, reasoning.ModeTagged, body).FinalMessage()
	if want := "<think>plan</think>done"; msg.Content != want {
		t.Errorf("content = %q, want %q", msg.Content, want)
	}
	if msg.ReasoningContent != "" || msg.Reasoning != nil {
		t.Errorf("tagged mode must mutate content only: %+v", msg)
	}
}

func TestAggregateO3JoinsSummaryAndFull(t *testing.T) {
	body := sseBody(
		`{"type":"response.reasoning_summary_text.delta","delta":"summary"}`,
		`{"type":"response.reasoning_text.delta","delta":"full"}`,
		`{"type":"response.output_text.delta","delta":"out"}`,
		`{"type":"response.completed","response":{}}`,
	)
	msg := aggregate(t, reasoning.ModeO3, body).FinalMessage()
	if msg.Reasoning == nil || len(msg.Reasoning.Content) != 1 {
		t.Fatalf("reasoning block missing: %+v", msg)
	}
	if want := "summary\n\nfull"; msg.Reasoning.Content[0].Text != want {
		t.Errorf("reasoning text = %q, want %q", msg.Reasoning.Content[0].Text, want)
	}
	if msg.Content != "out" {
		t.Errorf("content = %q", msg.Content)
	}
}

func TestAggregateOpenAIReasoningContent(t *testing.T) {
	body := sseBody(
		`{"type":"response.reasoning_summary_text.delta","delta":"why"}`,
		`{"type":"response.output_text.delta","delta":"answer"}`,
		`{"type":"response.completed","response":{}}`,
	)
	msg := aggregate(t, reasoning.ModeOpenAI, body).FinalMessage()
	if msg.ReasoningContent != "why" {
		t.Errorf("reasoning_content = %q", msg.ReasoningContent)
	}
}

func TestAggregateEmptyReasoningAddsNoFields(t *testing.T) {
	body := sseBody(
		`{"type":"response.output_text.delta","delta":"plain"}`,
		`{"type":"response.completed","response":{}}`,
	)
	for _, mode := range []reasoning.Mode{reasoning.ModeTagged, reasoning.ModeO3, reasoning.ModeOpenAI, reasoning.ModeR1} {
		msg := aggregate(t, mode, body).FinalMessage()
		if msg.Content != "plain" || msg.ReasoningContent != "" || msg.Reasoning != nil {
			t.Errorf("mode %s: %+v", mode, msg)
		}
	}
}

func TestAggregateToolCallsAndFinishReason(t *testing.T) {
	body := sseBody(
		`{"type":"response.output_item.done","item":{"type":"function_call","call_id":"c9","name":"lookup","arguments":"{\"q\":\"go\"}"}}`,
		`{"type":"response.completed","response":{"id":"resp_7","usage":{"input_tokens":8,"output_tokens":4}}}`,
	)
	st := aggregate(t, reasoning.ModeTagged, body)
	comp := st.BuildChatCompletion("gpt-5", 1700000000)
	if comp.ID != "resp_7" || comp.Object != "chat.completion" {
		t.Errorf("completion header: %+v", comp)
	}
	choice := comp.Choices[0]
	if choice.FinishReason != "tool_calls" {
		t.Errorf("finish_reason = %q", choice.FinishReason)
	}
	if len(choice.Message.ToolCalls) != 1 || choice.Message.ToolCalls[0].ID != "c9" {
		t.Errorf("tool calls: %+v", choice.Message.ToolCalls)
	}
	if comp.Usage == nil || comp.Usage.TotalTokens != 12 {
		t.Errorf("usage: %+v", comp.Usage)
	}
}

// hangingReader stalls once its data is exhausted, like an upstream that
// keeps the connection open after the terminal event.
type hangingReader struct {
	data io.Reader
}

func (r *hangingReader) Read(p []byte) (int, error) {
	n, err := r.data.Read(p)
	if err == io.EOF {
		time.Sleep(5 * time.Second)
	}
	return n, err
}

func TestAggregateStopsAtCompleted(t *testing.T) {
	body := sseBody(
		`{"type":"response.output_text.delta","delta":"x"}`,
		`{"type":"response.completed","response":{}}`,
	)
	st := NewState(reasoning.ModeTagged)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Aggregate(context.Background(), &hangingReader{data: strings.NewReader(body)}, st)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("aggregation kept reading past the terminal event")
	}
	if !st.Done() {
		t.Error("state not done")
	}
}

func TestAggregateSingleObjectFallback(t *testing.T) {
	body := `{
		"id": "resp_obj",
		"output": [
			{"type": "message", "content": [{"type": "output_text", "text": "from object"}]},
			{"type": "function_call", "call_id": "c1", "name": "f", "arguments": "{}"}
		],
		"usage": {"input_tokens": 2, "output_tokens": 1}
	}`
	st := aggregate(t, reasoning.ModeTagged, body)
	if st.VisibleText() != "from object" {
		t.Errorf("text = %q", st.VisibleText())
	}
	if st.ResponseID() != "resp_obj" {
		t.Errorf("id = %q", st.ResponseID())
	}
	if len(st.ToolCalls()) != 1 || st.ToolCalls()[0].CallID != "c1" {
		t.Errorf("tool calls: %+v", st.ToolCalls())
	}
	if st.Usage() == nil || st.Usage().TotalTokens != 3 {
		t.Errorf("usage: %+v", st.Usage())
	}
}

func TestAggregateSingleObjectAlternateFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"output_text string", `{"output_text":"direct"}`, "direct"},
		{"output_text array", `{"output_text":["a","b"]}`, "ab"},
		{"chat shape", `{"choices":[{"message":{"content":"chatty"}}]}`, "chatty"},
		{"bare content", `{"content":"bare"}`, "bare"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := aggregate(t, reasoning.ModeTagged, tt.body)
			if st.VisibleText() != tt.want {
				t.Errorf("text = %q, want %q", st.VisibleText(), tt.want)
			}
		})
	}
}

func TestBuildTextCompletion(t *testing.T) {
	body := sseBody(
		`{"type":"response.reasoning_text.delta","delta":"plan"}`,
		`{"type":"response.output_text.delta","delta":"answer"}`,
		`{"type":"response.completed","response":{}}`,
	)
	st := aggregate(t, reasoning.ModeTagged, body)
	tc := st.BuildTextCompletion("gpt-5", 5)
	if tc.Object != "text_completion" {
		t.Errorf("object = %q", tc.Object)
	}
	if want := "<think>plan</think>answer"; tc.Choices[0].Text != want {
		t.Errorf("text = %q, want %q", tc.Choices[0].Text, want)
	}

	st = aggregate(t, reasoning.ModeHidden, body)
	if got := st.BuildTextCompletion("gpt-5", 5).Choices[0].Text; got != "answer" {
		t.Errorf("hidden text = %q", got)
	}
}
