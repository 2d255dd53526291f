// Package keywords ranks query keywords across transcripts. The LLM supplies
// semantic relevance scores; occurrence counts always come from the actual
// text, so hallucinated terms are dropped. Coverage compensation then makes
// sure every transcript is represented in the final set.
package keywords

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/yungbote/vidscribe-backend/internal/platform/llm"
	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
	"github.com/yungbote/vidscribe-backend/internal/types"
)

// Selection parameters.
const (
	TopK       = 5 // combined keywords kept
	CoreKeep   = 2 // top-ranked slots protected from replacement
	MaxReplace = 3 // replacement iterations allowed
)

var (
	cjkRe        = regexp.MustCompile(`\p{Han}`)
	possessiveRe = regexp.MustCompile(`\b([a-z0-9]+)'s\b`)
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}\s-]`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

func ContainsCJK(s string) bool { return cjkRe.MatchString(s) }

// NormalizeTerm lowercases, strips possessives and punctuation, and collapses
// whitespace.
func NormalizeTerm(term string) string {
	t := strings.ToLower(strings.TrimSpace(term))
	t = strings.NewReplacer("’", "'", "`", "'").Replace(t)
	t = possessiveRe.ReplaceAllString(t, "$1")
	t = punctRe.ReplaceAllString(t, "")
	t = spaceRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// CountOccurrences counts case-insensitive occurrences of term in text. CJK
// terms match as substrings since ideographic text has no word boundaries;
// latin terms require word boundaries.
func CountOccurrences(term, text string) int {
	if term == "" {
		return 0
	}
	var pattern string
	if ContainsCJK(term) {
		pattern = `(?i)` + regexp.QuoteMeta(term)
	} else {
		pattern = `(?i)\b` + regexp.QuoteMeta(term) + `\b`
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0
	}
	return len(re.FindAllStringIndex(text, -1))
}

// TermCompatibleWithQuery keeps keyword language consistent with the query:
// a CJK query only admits CJK terms, otherwise everything passes.
func TermCompatibleWithQuery(term string, queryIsCJK bool) bool {
	if term == "" {
		return false
	}
	if queryIsCJK {
		return ContainsCJK(term)
	}
	return true
}

// FilterByQueryLanguage drops terms incompatible with the query's script.
func FilterByQueryLanguage(kws []types.Keyword, query string) []types.Keyword {
	queryIsCJK := ContainsCJK(query)
	out := make([]types.Keyword, 0, len(kws))
	for _, kw := range kws {
		if TermCompatibleWithQuery(kw.Term, queryIsCJK) {
			out = append(out, kw)
		}
	}
	return out
}

// FilterLowQuality drops generic/noise terms and deduplicates by lowercase term.
func FilterLowQuality(kws []types.Keyword) []types.Keyword {
	out := make([]types.Keyword, 0, len(kws))
	seen := make(map[string]bool, len(kws))
	for _, kw := range kws {
		term := strings.TrimSpace(kw.Term)
		if term == "" || IsLowQualityTerm(term) {
			continue
		}
		norm := strings.ToLower(term)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, kw)
	}
	return out
}

// MergeWithCounts grounds LLM candidates in the text: normalize, count, drop
// zero-count hallucinations, deduplicate keeping max score, then rank.
func MergeWithCounts(candidates []llm.KeywordCandidate, text string) []types.Keyword {
	byTerm := make(map[string]types.Keyword, len(candidates))
	for _, cand := range candidates {
		normalized := NormalizeTerm(cand.Term)
		if normalized == "" || IsLowQualityTerm(normalized) {
			continue
		}
		count := CountOccurrences(normalized, text)
		if count == 0 {
			continue
		}
		if existing, ok := byTerm[normalized]; ok {
			if cand.Score > existing.Score {
				existing.Score = cand.Score
				byTerm[normalized] = existing
			}
			continue
		}
		byTerm[normalized] = types.Keyword{Term: normalized, Score: cand.Score, Count: count}
	}

	merged := make([]types.Keyword, 0, len(byTerm))
	for _, kw := range byTerm {
		merged = append(merged, kw)
	}
	SortKeywords(merged)
	return merged
}

// SortKeywords orders by score DESC, count DESC, term ASC.
func SortKeywords(kws []types.Keyword) {
	sort.SliceStable(kws, func(i, j int) bool {
		if kws[i].Score != kws[j].Score {
			return kws[i].Score > kws[j].Score
		}
		if kws[i].Count != kws[j].Count {
			return kws[i].Count > kws[j].Count
		}
		return kws[i].Term < kws[j].Term
	})
}

// ComputeCoverage returns, for each keyword, the set of transcript indices
// whose text contains the keyword under the matcher rule.
func ComputeCoverage(kws []types.Keyword, transcripts []string) []map[int]bool {
	coverage := make([]map[int]bool, len(kws))
	for i, kw := range kws {
		indices := make(map[int]bool)
		for idx, text := range transcripts {
			if CountOccurrences(kw.Term, text) > 0 {
				indices[idx] = true
			}
		}
		coverage[i] = indices
	}
	return coverage
}

// ApplyCoverageCompensation swaps low-priority tail keywords for candidates
// from transcripts that the current selection misses. The CoreKeep prefix is
// never replaced and at most MaxReplace substitutions happen; the result is
// deterministic for identical inputs.
func ApplyCoverageCompensation(
	log *logger.Logger,
	combined []types.Keyword,
	transcripts []string,
	perTranscript [][]types.Keyword,
) ([]types.Keyword, int) {
	if len(combined) < TopK {
		out := make([]types.Keyword, len(combined))
		copy(out, combined)
		return out, 0
	}

	final := make([]types.Keyword, TopK)
	copy(final, combined[:TopK])
	replaceCount := 0

	for iter := 0; iter < MaxReplace; iter++ {
		coverage := ComputeCoverage(final, transcripts)

		covered := make(map[int]bool)
		for _, indices := range coverage {
			for idx := range indices {
				covered[idx] = true
			}
		}

		uncovered := -1
		for i := range transcripts {
			if !covered[i] {
				uncovered = i
				break
			}
		}
		if uncovered < 0 {
			break
		}

		var candidate *types.Keyword
		inFinal := make(map[string]bool, len(final))
		for _, kw := range final {
			inFinal[kw.Term] = true
		}
		for i := range perTranscript[uncovered] {
			if !inFinal[perTranscript[uncovered][i].Term] {
				candidate = &perTranscript[uncovered][i]
				break
			}
		}
		if candidate == nil {
			log.Warn("No compensation candidate for uncovered transcript", "transcript_index", uncovered)
			break
		}

		// Victim: smallest (coverage_count, score, count) outside the core.
		removeIdx := -1
		var bestKey [3]float64
		for idx := CoreKeep; idx < len(final); idx++ {
			key := [3]float64{float64(len(coverage[idx])), final[idx].Score, float64(final[idx].Count)}
			if removeIdx < 0 || lessKey(key, bestKey) {
				removeIdx = idx
				bestKey = key
			}
		}
		if removeIdx < 0 {
			log.Warn("All keyword slots protected; compensation stopped")
			break
		}

		log.Info("Coverage compensation swap", "removed", final[removeIdx].Term, "added", candidate.Term, "transcript_index", uncovered)
		final[removeIdx] = *candidate
		SortKeywords(final)
		replaceCount++
	}

	return final, replaceCount
}

func lessKey(a, b [3]float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Engine runs LLM-backed extraction with the deterministic fallback path.
type Engine struct {
	log *logger.Logger
	llm llm.Client
}

func NewEngine(log *logger.Logger, client llm.Client) *Engine {
	return &Engine{log: log.With("service", "KeywordEngine"), llm: client}
}

// ExtractSingle ranks keywords for one transcript.
func (e *Engine) ExtractSingle(ctx context.Context, query, transcript string, k int) []types.Keyword {
	return e.extract(ctx, query, transcript, k, "single")
}

// ExtractCombined ranks keywords across the joined transcripts.
func (e *Engine) ExtractCombined(ctx context.Context, query string, transcripts []string, k int) []types.Keyword {
	combined := strings.Join(transcripts, "\n\n---\n\n")
	return e.extract(ctx, query, combined, k, "combined")
}

func (e *Engine) extract(ctx context.Context, query, text string, k int, scope string) []types.Keyword {
	resp, err := e.llm.ExtractKeywords(ctx, query, text, k)
	if err != nil || resp == nil {
		e.log.Warn("LLM extraction failed; using frequency fallback", "scope", scope, "query", query, "error", err)
		fallback := FallbackFromText(text, k)
		fallback = FilterLowQuality(fallback)
		return FilterByQueryLanguage(fallback, query)
	}

	merged := MergeWithCounts(resp.Keywords, text)
	merged = FilterLowQuality(merged)
	merged = FilterByQueryLanguage(merged, query)
	if len(merged) > 0 {
		return merged
	}

	e.log.Warn("LLM keywords unusable; using frequency fallback", "scope", scope, "query", query)
	fallback := FallbackFromText(text, k)
	fallback = FilterLowQuality(fallback)
	return FilterByQueryLanguage(fallback, query)
}
