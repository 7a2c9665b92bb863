package upstream

import "testing"

func TestParseEventKinds(t *testing.T) {
	tests := []struct {
		name string
		data string
		kind EventKind
	}{
		{"text delta", `{"type":"response.output_text.delta","delta":"Hi"}`, KindOutputTextDelta},
		{"summary delta", `{"type":"response.reasoning_summary_text.delta","delta":"T"}`, KindReasoningSummaryDelta},
		{"reasoning delta", `{"type":"response.reasoning_text.delta","delta":"R"}`, KindReasoningTextDelta},
		{"summary part", `{"type":"response.reasoning_summary_part.added"}`, KindSummaryPartAdded},
		{"text done", `{"type":"response.output_text.done"}`, KindOutputTextDone},
		{"failed", `{"type":"response.failed","response":{"error":{"message":"boom"}}}`, KindFailed},
		{"completed", `{"type":"response.completed","response":{"id":"resp_1"}}`, KindCompleted},
		{"other done", `{"type":"response.content_part.done"}`, KindIgnored},
		{"created", `{"type":"response.created","response":{"id":"resp_1"}}`, KindIgnored},
		{"done sentinel", `[DONE]`, KindDone},
		{"done sentinel padded", `  [DONE]  `, KindDone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := ParseEvent(tt.data)
			if !ok {
				t.Fatalf("ParseEvent(%q) not ok", tt.data)
			}
			if ev.Kind != tt.kind {
				t.Errorf("kind = %d, want %d", ev.Kind, tt.kind)
			}
		})
	}
}

func TestParseEventMalformed(t *testing.T) {
	for _, data := range []string{"", "not json", `"a bare string"`, `[1,2,3]`, `{"type":`} {
		if _, ok := ParseEvent(data); ok {
			t.Errorf("ParseEvent(%q) = ok, want skip", data)
		}
	}
}

func TestParseEventResponseID(t *testing.T) {
	ev, ok := ParseEvent(`{"type":"response.output_text.delta","delta":"x","response":{"id":"resp_42"}}`)
	if !ok || ev.ResponseID != "resp_42" {
		t.Errorf("ResponseID = %q, want resp_42", ev.ResponseID)
	}
	ev, _ = ParseEvent(`{"type":"response.output_text.delta","delta":"x"}`)
	if ev.ResponseID != "" {
		t.Errorf("ResponseID = %q, want empty", ev.ResponseID)
	}
}

func TestParseEventFunctionCall(t *testing.T) {
	ev, ok := ParseEvent(`{"type":"response.output_item.done","item":{"type":"function_call","call_id":"c1","name":"get_weather","arguments":"{\"x\":1}"}}`)
	if !ok {
		t.Fatal("not ok")
	}
	if ev.Kind != KindFunctionCallDone {
		t.Fatalf("kind = %d, want function call", ev.Kind)
	}
	if ev.Call.CallID != "c1" || ev.Call.Name != "get_weather" || ev.Call.Arguments != `{"x":1}` {
		t.Errorf("call = %+v", ev.Call)
	}
}

func TestParseEventFunctionCallSkipsBadFields(t *testing.T) {
	tests := []string{
		`{"type":"response.output_item.done","item":{"type":"function_call","call_id":1,"name":"f","arguments":"{}"}}`,
		`{"type":"response.output_item.done","item":{"type":"function_call","call_id":"c1","arguments":"{}"}}`,
		`{"type":"response.output_item.done","item":{"type":"function_call","call_id":"c1","name":"f","arguments":{"x":1}}}`,
		`{"type":"response.output_item.done","item":{"type":"message"}}`,
	}
	for _, data := range tests {
		ev, ok := ParseEvent(data)
		if !ok {
			t.Fatalf("ParseEvent(%q) not ok", data)
		}
		if ev.Kind != KindIgnored {
			t.Errorf("ParseEvent(%q) kind = %d, want ignored", data, ev.Kind)
		}
	}
}

func TestParseEventFailedDefaultMessage(t *testing.T) {
	ev, _ := ParseEvent(`{"type":"response.failed"}`)
	if ev.ErrorMessage == "" {
		t.Error("expected a fallback error message")
	}
}

func TestParseEventCompletedUsage(t *testing.T) {
	ev, _ := ParseEvent(`{"type":"response.completed","response":{"id":"r","usage":{"input_tokens":3,"output_tokens":2}}}`)
	if ev.Usage == nil {
		t.Fatal("usage missing")
	}
	if ev.Usage.PromptTokens != 3 || ev.Usage.CompletionTokens != 2 || ev.Usage.TotalTokens != 5 {
		t.Errorf("usage = %+v", ev.Usage)
	}
}
