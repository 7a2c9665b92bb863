package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "usage.db"), 7)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddAndGlobalStats(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	s.Add(Record{Model: "gpt-5", Endpoint: "/v1/chat/completions", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, RequestedAt: now})
	s.Add(Record{Model: "gpt-5", Endpoint: "/v1/chat/completions", Failed: true, RequestedAt: now})
	if err := s.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	stats, err := s.GlobalStats(context.Background(), now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Requests != 2 || stats.Failures != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.PromptTokens != 10 || stats.CompletionTokens != 5 || stats.TotalTokens != 15 {
		t.Errorf("token sums = %+v", stats)
	}
}

func TestPerModelStats(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		s.Add(Record{Model: "gpt-5", TotalTokens: 10, RequestedAt: now})
	}
	s.Add(Record{Model: "codex-mini-latest", TotalTokens: 2, RequestedAt: now})
	if err := s.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	models, err := s.PerModelStats(context.Background(), now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 {
		t.Fatalf("models = %+v", models)
	}
	if models[0].Model != "gpt-5" || models[0].Requests != 3 || models[0].TotalTokens != 30 {
		t.Errorf("top model = %+v", models[0])
	}
}

func TestSinceFilter(t *testing.T) {
	s := openTestStore(t)
	old := time.Now().UTC().Add(-48 * time.Hour)
	s.Add(Record{Model: "gpt-5", TotalTokens: 100, RequestedAt: old})
	if err := s.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	stats, err := s.GlobalStats(context.Background(), time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Requests != 0 {
		t.Errorf("old record leaked into window: %+v", stats)
	}
}

func TestNilStoreIsNoOp(t *testing.T) {
	var s *Store
	s.Add(Record{Model: "gpt-5"})
	if err := s.Flush(context.Background()); err != nil {
		t.Error(err)
	}
	if err := s.Close(); err != nil {
		t.Error(err)
	}
	if stats, err := s.GlobalStats(context.Background(), time.Time{}); err != nil || stats.Requests != 0 {
		t.Errorf("nil store stats = %+v, err = %v", stats, err)
	}
}
