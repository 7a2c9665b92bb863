package normalizer

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func messages(t *testing.T, raw string) gjson.Result {
	t.Helper()
	return gjson.Parse(raw)
}

func TestInputItemsSystemFoldedIntoLeadingUser(t *testing.T) {
	items := InputItems(messages(t, `[
		{"role":"system","content":"be brief"},
		{"role":"user","content":"hello"},
		{"role":"system","content":"be kind"}
	]`))

	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	lead := items[0]
	if lead.Type != "message" || lead.Role != "user" {
		t.Errorf("lead item: %+v", lead)
	}
	if got := lead.Content[0].Text; got != "be brief\n\nbe kind" {
		t.Errorf("folded system text = %q", got)
	}
	if items[1].Content[0].Text != "hello" {
		t.Errorf("user item: %+v", items[1])
	}
}

func TestInputItemsEmptyInput(t *testing.T) {
	if items := InputItems(messages(t, `[]`)); len(items) != 0 {
		t.Errorf("empty messages produced %d items", len(items))
	}
	if items := InputItems(gjson.Result{}); len(items) != 0 {
		t.Errorf("missing messages produced %d items", len(items))
	}
}

func TestInputItemsContentParts(t *testing.T) {
	items := InputItems(messages(t, `[
		{"role":"user","content":[
			{"type":"text","text":"look at this"},
			{"type":"image_url","image_url":{"url":"https://example.com/a.png"}}
		]}
	]`))

	if len(items) != 1 {
		t.Fatalf("items = %d", len(items))
	}
	parts := items[0].Content
	if len(parts) != 2 {
		t.Fatalf("parts = %+v", parts)
	}
	if parts[0].Type != "input_text" || parts[0].Text != "look at this" {
		t.Errorf("part 0: %+v", parts[0])
	}
	if parts[1].Type != "input_image" || parts[1].ImageURL != "https://example.com/a.png" {
		t.Errorf("part 1: %+v", parts[1])
	}
}

func TestInputItemsAssistantAndToolFlow(t *testing.T) {
	items := InputItems(messages(t, `[
		{"role":"user","content":"weather?"},
		{"role":"assistant","content":null,"tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"Oslo\"}"}}
		]},
		{"role":"tool","tool_call_id":"call_1","content":"12C"},
		{"role":"assistant","content":"It is 12C."}
	]`))

	if len(items) != 4 {
		t.Fatalf("items = %d: %+v", len(items), items)
	}
	call := items[1]
	if call.Type != "function_call" || call.CallID != "call_1" || call.Name != "get_weather" {
		t.Errorf("call item: %+v", call)
	}
	if call.Arguments != `{"city":"Oslo"}` {
		t.Errorf("arguments = %q", call.Arguments)
	}
	output := items[2]
	if output.Type != "function_call_output" || output.CallID != "call_1" || output.Output != "12C" {
		t.Errorf("output item: %+v", output)
	}
	reply := items[3]
	if reply.Role != "assistant" || reply.Content[0].Type != "output_text" || reply.Content[0].Text != "It is 12C." {
		t.Errorf("reply item: %+v", reply)
	}
}

func TestNormalizeDataURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain url untouched", "https://example.com/x.png", "https://example.com/x.png"},
		{"padded stays", "data:image/png;base64,QUJD" + "RA==", "data:image/png;base64,QUJDRA=="},
		{"unpadded gets padding", "data:image/png;base64,QUJDRA", "data:image/png;base64,QUJDRA=="},
		{"whitespace stripped", "data:image/png;base64,QUJD\nRA==", "data:image/png;base64,QUJDRA=="},
		{"non-base64 data url untouched", "data:text/plain,hello", "data:text/plain,hello"},
		{"invalid base64 untouched", "data:image/png;base64,!!!", "data:image/png;base64,!!!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDataURL(tt.in); got != tt.want {
				t.Errorf("NormalizeDataURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestToolsFlatVariant(t *testing.T) {
	tools := Tools(gjson.Parse(`[
		{"type":"function","function":{"name":"get_weather","description":"w","parameters":{"type":"object","properties":{"city":{"type":"string"}}}}},
		{"type":"function","function":{"description":"nameless"}}
	]`), ToolSchemaFlat)

	if len(tools) != 1 {
		t.Fatalf("tools = %d, want nameless dropped", len(tools))
	}
	tool := tools[0]
	if tool.Name != "get_weather" || tool.Function != nil {
		t.Errorf("flat tool: %+v", tool)
	}
	if _, ok := tool.Parameters["properties"]; !ok {
		t.Errorf("parameters lost: %+v", tool.Parameters)
	}
}

func TestToolsNestedVariant(t *testing.T) {
	tools := Tools(gjson.Parse(`[{"name":"flat_input","parameters":{"type":"object"}}]`), ToolSchemaNested)
	if len(tools) != 1 {
		t.Fatalf("tools = %d", len(tools))
	}
	if tools[0].Function == nil || tools[0].Function.Name != "flat_input" {
		t.Errorf("nested tool: %+v", tools[0])
	}
	if tools[0].Name != "" {
		t.Errorf("nested variant must not set flat name: %+v", tools[0])
	}
}

func TestToolsMissingParameters(t *testing.T) {
	tools := Tools(gjson.Parse(`[{"type":"function","function":{"name":"bare"}}]`), ToolSchemaFlat)
	if len(tools) != 1 {
		t.Fatal("tool dropped")
	}
	if tools[0].Parameters["type"] != "object" {
		t.Errorf("default parameters: %+v", tools[0].Parameters)
	}
}

func TestToolChoice(t *testing.T) {
	if got := ToolChoice(gjson.Parse(`"auto"`)); got != "auto" {
		t.Errorf("auto = %v", got)
	}
	if got := ToolChoice(gjson.Parse(`"none"`)); got != "none" {
		t.Errorf("none = %v", got)
	}
	if got := ToolChoice(gjson.Parse(`"bogus"`)); got != nil {
		t.Errorf("bogus = %v", got)
	}
	got := ToolChoice(gjson.Parse(`{"type":"function","function":{"name":"pick_me"}}`))
	m, ok := got.(map[string]any)
	if !ok || m["name"] != "pick_me" {
		t.Errorf("object choice = %v", got)
	}
}

func TestPromptItems(t *testing.T) {
	items := PromptItems("complete this")
	if len(items) != 1 || items[0].Role != "user" || items[0].Content[0].Text != "complete this" {
		t.Errorf("items = %+v", items)
	}
}

func TestPlainTextJoinsParts(t *testing.T) {
	got := plainText(gjson.Parse(`[{"type":"text","text":"a"},{"type":"text","text":"b"}]`))
	if got != "ab" {
		t.Errorf("plainText = %q", got)
	}
	if !strings.Contains(got, "a") {
		t.Error("lost first part")
	}
}
