package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/mizuikk/codex-openai-wrapper/internal/upstream"
)

func userMessage(text string) upstream.InputItem {
	return upstream.InputItem{
		Type: "message",
		Role: "user",
		Content: []upstream.ContentPart{
			{Type: "input_text", Text: text},
		},
	}
}

func TestEnsureSessionIDStable(t *testing.T) {
	c := NewCache(0)
	items := []upstream.InputItem{userMessage("hello")}

	first := c.EnsureSessionID("be helpful", items, "")
	second := c.EnsureSessionID("be helpful", items, "")
	if first == "" {
		t.Fatal("expected a generated id")
	}
	if first != second {
		t.Errorf("same conversation produced different ids: %q vs %q", first, second)
	}

	other := c.EnsureSessionID("be helpful", []upstream.InputItem{userMessage("different")}, "")
	if other == first {
		t.Error("distinct conversations share an id")
	}
}

func TestEnsureSessionIDClientProvided(t *testing.T) {
	c := NewCache(0)
	items := []upstream.InputItem{userMessage("hello")}

	got := c.EnsureSessionID("", items, "  client-chosen  ")
	if got != "client-chosen" {
		t.Errorf("client id not honored: got %q", got)
	}
	if c.Len() != 0 {
		t.Errorf("client-supplied id was cached; Len() = %d", c.Len())
	}
}

func TestEnsureSessionIDIgnoresNonUserItems(t *testing.T) {
	c := NewCache(0)
	base := []upstream.InputItem{userMessage("question")}
	extended := []upstream.InputItem{
		userMessage("question"),
		{Type: "message", Role: "assistant", Content: []upstream.ContentPart{{Type: "output_text", Text: "answer"}}},
		{Type: "function_call", CallID: "call_1", Name: "lookup", Arguments: "{}"},
	}

	if a, b := c.EnsureSessionID("sys", base, ""), c.EnsureSessionID("sys", extended, ""); a != b {
		t.Errorf("trailing non-user items changed the fingerprint: %q vs %q", a, b)
	}
}

func TestFingerprintImageReducedToURL(t *testing.T) {
	items := []upstream.InputItem{{
		Type: "message",
		Role: "user",
		Content: []upstream.ContentPart{
			{Type: "input_text", Text: "what is this"},
			{Type: "input_image", ImageURL: "https://example.com/cat.png"},
		},
	}}
	key := fingerprint("sys", items)
	if key == "" {
		t.Fatal("empty fingerprint")
	}
	same := fingerprint("sys", items)
	if key != same {
		t.Error("fingerprint not deterministic")
	}
}

func TestFIFOEviction(t *testing.T) {
	c := NewCache(3)
	ids := make([]string, 4)
	for i := range ids {
		ids[i] = c.EnsureSessionID("sys", []upstream.InputItem{userMessage(fmt.Sprintf("m%d", i))}, "")
	}
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}

	// Oldest fingerprint was evicted, so asking again mints a new id.
	again := c.EnsureSessionID("sys", []upstream.InputItem{userMessage("m0")}, "")
	if again == ids[0] {
		t.Error("evicted fingerprint returned its old id")
	}
	// Most recent entries survive.
	kept := c.EnsureSessionID("sys", []upstream.InputItem{userMessage("m3")}, "")
	if kept != ids[3] {
		t.Errorf("recent fingerprint lost: got %q, want %q", kept, ids[3])
	}
}

func TestEnsureSessionIDConcurrent(t *testing.T) {
	c := NewCache(0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.EnsureSessionID("sys", []upstream.InputItem{userMessage(fmt.Sprintf("w%d-%d", n, j%5))}, "")
			}
		}(i)
	}
	wg.Wait()
	if c.Len() == 0 || c.Len() > DefaultCapacity {
		t.Errorf("unexpected cache size %d", c.Len())
	}
}
