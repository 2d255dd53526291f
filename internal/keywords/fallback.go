package keywords

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yungbote/vidscribe-backend/internal/types"
)

var fallbackStopEnglish = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "you": true, "your": true, "are": true, "was": true,
	"have": true, "has": true, "had": true, "from": true, "they": true,
	"their": true, "about": true, "there": true, "what": true, "when": true,
	"where": true, "which": true, "will": true, "would": true, "could": true,
	"should": true, "into": true, "just": true, "like": true, "more": true,
	"than": true, "then": true, "over": true, "very": true, "some": true,
	"such": true, "been": true, "being": true, "also": true, "but": true,
	"not": true, "its": true, "our": true, "out": true, "all": true,
	"can": true, "get": true, "got": true, "one": true, "two": true,
	"three": true, "how": true, "why": true, "who": true, "whom": true,
	"whose": true, "video": true, "today": true, "people": true,
	"thing": true, "things": true, "make": true, "made": true, "using": true,
}

var fallbackStopChinese = map[string]bool{
	"我们": true, "你们": true, "他们": true, "这个": true, "那个": true,
	"以及": true, "因为": true, "所以": true, "可以": true, "一个": true,
	"没有": true, "如果": true, "就是": true, "然后": true, "什么": true,
	"怎么": true, "现在": true, "已经": true, "还是": true, "但是": true,
}

var (
	cjkTokenRe   = regexp.MustCompile(`\p{Han}{2,8}`)
	latinTokenRe = regexp.MustCompile(`[A-Za-z][A-Za-z0-9'-]{2,}`)
)

// FallbackFromText is the deterministic token-frequency path used whenever the
// LLM is unavailable or returns unusable output. Scores are counts normalized
// against the most frequent token.
func FallbackFromText(text string, k int) []types.Keyword {
	if ContainsCJK(text) {
		if kws := rankTokens(cjkTokenRe.FindAllString(text, -1), fallbackStopChinese, k); len(kws) > 0 {
			return kws
		}
	}

	tokens := latinTokenRe.FindAllString(strings.ToLower(text), -1)
	return rankTokens(tokens, fallbackStopEnglish, k)
}

func rankTokens(tokens []string, stop map[string]bool, k int) []types.Keyword {
	counts := make(map[string]int)
	for _, t := range tokens {
		if stop[t] {
			continue
		}
		counts[t]++
	}
	if len(counts) == 0 {
		return nil
	}

	type entry struct {
		term  string
		count int
	}
	ranked := make([]entry, 0, len(counts))
	for term, count := range counts {
		ranked = append(ranked, entry{term, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].term < ranked[j].term
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	maxCount := ranked[0].count
	out := make([]types.Keyword, 0, len(ranked))
	for _, e := range ranked {
		score := float64(e.count) / float64(maxCount)
		if score > 1.0 {
			score = 1.0
		}
		out = append(out, types.Keyword{Term: e.term, Score: score, Count: e.count})
	}
	return out
}
