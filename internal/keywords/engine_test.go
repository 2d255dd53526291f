package keywords

import (
	"context"
	"testing"

	"github.com/yungbote/vidscribe-backend/internal/platform/llm"
	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
	"github.com/yungbote/vidscribe-backend/internal/types"
)

func TestNormalizeTerm(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  Quantum Computing  ", "quantum computing"},
		{"Einstein's theory", "einstein theory"},
		{"what?!", "what"},
		{"multi   space", "multi space"},
		{"量子计算", "量子计算"},
	}
	for _, tc := range cases {
		if got := NormalizeTerm(tc.in); got != tc.want {
			t.Fatalf("NormalizeTerm(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCountOccurrences(t *testing.T) {
	text := "The cat sat. Cats love the cat tree. catalogue"
	if got := CountOccurrences("cat", text); got != 2 {
		t.Fatalf("latin boundary count = %d, want 2", got)
	}
	cjkText := "量子计算是量子力学与计算的结合"
	if got := CountOccurrences("量子", cjkText); got != 2 {
		t.Fatalf("cjk substring count = %d, want 2", got)
	}
	if got := CountOccurrences("", text); got != 0 {
		t.Fatalf("empty term count = %d, want 0", got)
	}
}

func TestMergeWithCountsDropsHallucinations(t *testing.T) {
	text := "Neural networks approximate functions. Networks generalize."
	candidates := []llm.KeywordCandidate{
		{Term: "Networks", Score: 0.9},
		{Term: "blockchain", Score: 0.95}, // not in text
		{Term: "networks", Score: 0.5},    // dup, lower score
		{Term: "functions", Score: 0.6},
	}
	got := MergeWithCounts(candidates, text)
	if len(got) != 2 {
		t.Fatalf("merged %d keywords, want 2: %+v", len(got), got)
	}
	if got[0].Term != "networks" || got[0].Score != 0.9 || got[0].Count != 2 {
		t.Fatalf("first keyword = %+v, want networks/0.9/2", got[0])
	}
	if got[1].Term != "functions" || got[1].Count != 1 {
		t.Fatalf("second keyword = %+v, want functions/1", got[1])
	}
}

func TestSortKeywordsOrdering(t *testing.T) {
	kws := []types.Keyword{
		{Term: "beta", Score: 0.5, Count: 3},
		{Term: "alpha", Score: 0.5, Count: 3},
		{Term: "gamma", Score: 0.9, Count: 1},
		{Term: "delta", Score: 0.5, Count: 7},
	}
	SortKeywords(kws)
	want := []string{"gamma", "delta", "alpha", "beta"}
	for i, term := range want {
		if kws[i].Term != term {
			t.Fatalf("position %d = %q, want %q (all: %+v)", i, kws[i].Term, term, kws)
		}
	}
}

func TestFilterByQueryLanguage(t *testing.T) {
	kws := []types.Keyword{
		{Term: "量子"},
		{Term: "quantum"},
	}
	got := FilterByQueryLanguage(kws, "量子计算")
	if len(got) != 1 || got[0].Term != "量子" {
		t.Fatalf("CJK query filter = %+v, want only 量子", got)
	}
	got = FilterByQueryLanguage(kws, "quantum computing")
	if len(got) != 2 {
		t.Fatalf("latin query filter = %+v, want both kept", got)
	}
}

func TestIsLowQualityTerm(t *testing.T) {
	cases := []struct {
		term string
		want bool
	}{
		{"because", true},
		{"这个", true},
		{"ai", false},
		{"xy", true},
		{"42", true},
		{"4-5", true},
		{"transformer", false},
		{"量", true},
		{"量子", false},
	}
	for _, tc := range cases {
		if got := IsLowQualityTerm(tc.term); got != tc.want {
			t.Fatalf("IsLowQualityTerm(%q) = %v, want %v", tc.term, got, tc.want)
		}
	}
}

func TestApplyCoverageCompensation(t *testing.T) {
	log := logger.NewNop()
	transcripts := []string{
		"Quantum entanglement links qubit pairs. Superposition and decoherence both matter.",
		"Teleportation moves state between labs.",
	}
	combined := []types.Keyword{
		{Term: "quantum", Score: 0.9, Count: 1},
		{Term: "entanglement", Score: 0.8, Count: 1},
		{Term: "qubit", Score: 0.7, Count: 1},
		{Term: "superposition", Score: 0.6, Count: 1},
		{Term: "decoherence", Score: 0.5, Count: 1},
	}
	perTranscript := [][]types.Keyword{
		{{Term: "entanglement", Score: 0.8, Count: 1}},
		{{Term: "teleportation", Score: 0.4, Count: 1}},
	}

	final, replaced := ApplyCoverageCompensation(log, combined, transcripts, perTranscript)
	if replaced != 1 {
		t.Fatalf("replaceCount = %d, want 1", replaced)
	}
	if len(final) != TopK {
		t.Fatalf("len(final) = %d, want %d", len(final), TopK)
	}
	// Core slots survive.
	if final[0].Term != "quantum" || final[1].Term != "entanglement" {
		t.Fatalf("core keywords disturbed: %+v", final)
	}
	// Lowest-value tail keyword was swapped for the uncovered transcript's candidate.
	terms := map[string]bool{}
	for _, kw := range final {
		terms[kw.Term] = true
	}
	if !terms["teleportation"] {
		t.Fatalf("compensation did not add teleportation: %+v", final)
	}
	if terms["decoherence"] {
		t.Fatalf("compensation kept the weakest keyword: %+v", final)
	}
}

func TestApplyCoverageCompensationShortInput(t *testing.T) {
	log := logger.NewNop()
	combined := []types.Keyword{{Term: "only", Score: 1, Count: 1}}
	final, replaced := ApplyCoverageCompensation(log, combined, []string{"only text"}, [][]types.Keyword{nil})
	if replaced != 0 || len(final) != 1 {
		t.Fatalf("short input handling: final=%+v replaced=%d", final, replaced)
	}
}

func TestApplyCoverageCompensationDeterministic(t *testing.T) {
	log := logger.NewNop()
	transcripts := []string{"alpha beta gamma", "delta epsilon"}
	combined := []types.Keyword{
		{Term: "alpha", Score: 0.9, Count: 1},
		{Term: "beta", Score: 0.8, Count: 1},
		{Term: "gamma", Score: 0.7, Count: 1},
		{Term: "missing1", Score: 0.6, Count: 1},
		{Term: "missing2", Score: 0.5, Count: 1},
	}
	perTranscript := [][]types.Keyword{
		nil,
		{{Term: "delta", Score: 0.4, Count: 1}, {Term: "epsilon", Score: 0.3, Count: 1}},
	}
	a, ra := ApplyCoverageCompensation(log, combined, transcripts, perTranscript)
	b, rb := ApplyCoverageCompensation(log, combined, transcripts, perTranscript)
	if ra != rb || len(a) != len(b) {
		t.Fatalf("nondeterministic compensation: %d/%d", ra, rb)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("nondeterministic result at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestFallbackFromText(t *testing.T) {
	text := "Rust rust RUST memory memory safety guarantees"
	got := FallbackFromText(text, 3)
	if len(got) != 3 {
		t.Fatalf("fallback returned %d keywords, want 3: %+v", len(got), got)
	}
	if got[0].Term != "rust" || got[0].Count != 3 || got[0].Score != 1.0 {
		t.Fatalf("top fallback keyword = %+v, want rust/3/1.0", got[0])
	}
	if got[1].Term != "memory" || got[1].Count != 2 {
		t.Fatalf("second fallback keyword = %+v, want memory/2", got[1])
	}
}

type failingLLM struct{}

func (failingLLM) ExtractKeywords(ctx context.Context, query, text string, k int) (*llm.KeywordResponse, error) {
	return nil, context.DeadlineExceeded
}

func (failingLLM) Summarize(ctx context.Context, text string) (*llm.SummaryResponse, error) {
	return nil, context.DeadlineExceeded
}

func TestEngineFallsBackWhenLLMDown(t *testing.T) {
	e := NewEngine(logger.NewNop(), failingLLM{})
	got := e.ExtractSingle(context.Background(), "rust memory", "Rust ownership prevents memory bugs. Rust compiles fast.", 5)
	if len(got) == 0 {
		t.Fatalf("expected fallback keywords, got none")
	}
	for _, kw := range got {
		if kw.Count < 1 {
			t.Fatalf("fallback keyword with zero count: %+v", kw)
		}
	}
}
