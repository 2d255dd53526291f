// Package sentences selects evidence sentences for combined keywords while
// keeping per-transcript coverage: at most one sentence per transcript in the
// primary pass, then a global backfill until the budget is reached.
package sentences

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/vidscribe-backend/internal/types"
)

const (
	// MaxSentenceLen is the trim budget for one evidence sentence.
	MaxSentenceLen = 220
	// DefaultMaxSentences is the evidence budget per combined artifact.
	DefaultMaxSentences = 5
)

var (
	splitRe = regexp.MustCompile(`[.!?。！？]+[\s\n]*|\n+`)
	cjkRe   = regexp.MustCompile(`\p{Han}`)
)

var terminators = []string{".", "!", "?", "。", "！", "？"}

// Split breaks text on latin and CJK sentence terminators plus newlines,
// dropping empties.
func Split(text string) []string {
	if text == "" {
		return nil
	}
	parts := splitRe.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FindWithKeyword returns the first sentence containing keyword under the
// same matcher rule as keyword counting: substring for CJK, word boundary for
// latin. Empty string means no match.
func FindWithKeyword(sentenceList []string, keyword string) string {
	if keyword == "" {
		return ""
	}
	var pattern string
	if cjkRe.MatchString(keyword) {
		pattern = `(?i)` + regexp.QuoteMeta(keyword)
	} else {
		pattern = `(?i)\b` + regexp.QuoteMeta(keyword) + `\b`
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ""
	}
	for _, s := range sentenceList {
		if re.MatchString(s) {
			return s
		}
	}
	return ""
}

// TrimAround caps sentence at maxLen runes, centering the window on the
// keyword occurrence and marking truncation with ellipses. The budget counts
// characters, not bytes, so CJK sentences keep a full window.
func TrimAround(sentence, keyword string, maxLen int) string {
	sentence = strings.TrimSpace(sentence)
	runes := []rune(sentence)
	if len(runes) <= maxLen {
		return sentence
	}

	idx := -1
	if keyword != "" {
		if byteIdx := strings.Index(strings.ToLower(sentence), strings.ToLower(keyword)); byteIdx >= 0 {
			idx = utf8.RuneCountInString(sentence[:byteIdx])
		}
	}
	if idx < 0 {
		return strings.TrimSpace(string(runes[:maxLen]))
	}

	half := maxLen / 2
	start := idx - half
	if start < 0 {
		start = 0
	}
	end := start + maxLen
	if end > len(runes) {
		end = len(runes)
	}
	clipped := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		clipped = "..." + clipped
	}
	if end < len(runes) {
		clipped = clipped + "..."
	}
	return clipped
}

// ExtractKeySentenceItems picks evidence per §primary-then-backfill:
//  1. per transcript in order, the first sentence matching any keyword (or the
//     transcript's first sentence when none match), deduplicated by text;
//  2. if still under budget, scan all (transcript, sentence) pairs per keyword
//     for further unique matches.
func ExtractKeySentenceItems(transcripts []string, kws []string, maxSentences int) []types.KeySentence {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}

	items := make([]types.KeySentence, 0, maxSentences)
	seen := make(map[string]bool)

	for idx, transcript := range transcripts {
		if len(items) >= maxSentences {
			break
		}
		sentenceList := Split(transcript)

		selected := ""
		matched := ""
		for _, kw := range kws {
			if found := FindWithKeyword(sentenceList, kw); found != "" {
				selected = TrimAround(found, kw, MaxSentenceLen)
				matched = kw
				break
			}
		}
		if selected == "" && len(sentenceList) > 0 {
			selected = TrimAround(sentenceList[0], "", MaxSentenceLen)
		}
		if selected == "" || seen[selected] {
			continue
		}
		seen[selected] = true
		items = append(items, types.KeySentence{Sentence: selected, Keyword: matched, SourceIndex: idx})
	}

	if len(items) < maxSentences {
		type indexed struct {
			source   int
			sentence string
		}
		var all []indexed
		for idx, transcript := range transcripts {
			for _, s := range Split(transcript) {
				all = append(all, indexed{idx, s})
			}
		}

		for _, kw := range kws {
			if len(items) >= maxSentences {
				break
			}
			for _, pair := range all {
				if FindWithKeyword([]string{pair.sentence}, kw) == "" {
					continue
				}
				trimmed := TrimAround(pair.sentence, kw, MaxSentenceLen)
				if seen[trimmed] {
					continue
				}
				seen[trimmed] = true
				items = append(items, types.KeySentence{Sentence: trimmed, Keyword: kw, SourceIndex: pair.source})
				break
			}
		}
	}

	return items
}

// ExtractCombinedSentence joins selected evidence with single spaces,
// guaranteeing each piece ends in a terminator.
func ExtractCombinedSentence(transcripts []string, kws []string, maxSentences int) string {
	items := ExtractKeySentenceItems(transcripts, kws, maxSentences)
	normalized := make([]string, 0, len(items))
	for _, item := range items {
		s := strings.TrimSpace(item.Sentence)
		if s == "" {
			continue
		}
		if !endsWithTerminator(s) {
			s += "."
		}
		normalized = append(normalized, s)
	}
	return strings.Join(normalized, " ")
}

func endsWithTerminator(s string) bool {
	for _, t := range terminators {
		if strings.HasSuffix(s, t) {
			return true
		}
	}
	return false
}
