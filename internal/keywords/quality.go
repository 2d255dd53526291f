package keywords

import (
	"regexp"
	"strings"
)

var genericEnglish = map[string]bool{
	"because": true, "users": true, "user": true, "people": true, "person": true,
	"thing": true, "things": true, "today": true, "now": true, "then": true,
	"also": true, "just": true, "really": true, "very": true, "some": true,
	"many": true, "much": true, "more": true, "most": true, "less": true,
	"least": true, "good": true, "bad": true, "better": true, "best": true,
	"worse": true, "new": true, "old": true, "big": true, "small": true,
	"high": true, "low": true, "use": true, "used": true, "using": true,
	"make": true, "made": true, "get": true, "got": true, "take": true,
	"taken": true, "look": true, "looks": true, "looking": true, "say": true,
	"said": true, "go": true, "goes": true, "went": true, "come": true,
	"came": true, "know": true, "known": true, "need": true, "needs": true,
	"want": true, "wants": true, "think": true, "thinks": true, "its": true,
	"it's": true, "this": true, "that": true, "these": true, "those": true,
	"there": true, "here": true, "their": true, "them": true, "they": true,
	"we": true, "our": true, "you": true, "your": true, "theyre": true,
	"were": true, "youre": true, "im": true, "ive": true, "dont": true,
	"cant": true, "wont": true, "thats": true, "theres": true,
}

var genericChinese = map[string]bool{
	"这个": true, "那个": true, "这些": true, "那些": true, "我们": true,
	"你们": true, "他们": true, "然后": true, "就是": true, "可以": true,
	"没有": true, "因为": true, "所以": true, "现在": true, "已经": true,
	"还是": true, "但是": true, "一个": true, "一些": true, "很多": true,
	"比较": true, "非常": true, "东西": true, "内容": true, "问题": true,
	"情况": true, "时候": true, "地方": true, "方面": true,
}

// shortLatinAllow lists short latin tokens that are real domain terms.
var shortLatinAllow = map[string]bool{
	"ai": true, "llm": true, "gpu": true, "cpu": true, "api": true, "sdk": true,
}

var (
	pureNumberRe = regexp.MustCompile(`^\d+([.-]\d+)?$`)
	hasLatinRe   = regexp.MustCompile(`[a-z]`)
)

// IsLowQualityTerm rejects generic filler words, bare numbers, and latin
// tokens with no letters or fewer than three characters (outside the short
// allow list).
func IsLowQualityTerm(term string) bool {
	t := strings.ToLower(strings.TrimSpace(term))
	t = strings.NewReplacer("’", "'", "`", "'").Replace(t)
	if t == "" {
		return true
	}
	noApostrophe := strings.ReplaceAll(t, "'", "")

	if genericEnglish[t] || genericEnglish[noApostrophe] || genericChinese[t] {
		return true
	}

	if ContainsCJK(t) {
		return len([]rune(t)) < 2
	}

	if shortLatinAllow[t] {
		return false
	}
	if len(t) < 3 {
		return true
	}
	if pureNumberRe.MatchString(t) {
		return true
	}
	if !hasLatinRe.MatchString(t) {
		return true
	}
	return false
}
