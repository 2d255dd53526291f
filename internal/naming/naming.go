// Package naming owns the canonical per-query object layout.
//
// Canonical layout, one bucket:
//
//	queries/<slug>/videos/<file>
//	queries/<slug>/thumbnails/<file>
//	queries/<slug>/transcripts/<basename>.json
//	queries/<slug>/combined/combined-*.{json,txt,mp4}
//	queries/<slug>/manifest.json
//
// The flat pre-queries layout (videos/<file>, transcripts/<file>.json,
// thumbnails/<file>, process/batch-<slug>/combined-output.json) is read-only
// legacy; writers never produce it.
package naming

import (
	"path"
	"regexp"
	"strings"

	"github.com/mozillazg/go-pinyin"
)

const (
	CategoryVideos      = "videos"
	CategoryThumbnails  = "thumbnails"
	CategoryTranscripts = "transcripts"
	CategoryCombined    = "combined"

	CombinedOutputFile        = "combined-output.json"
	CombinedTranscriptionFile = "combined-transcription.txt"
	CombinedKeywordsFile      = "combined-keywords.json"
	CombinedSentenceFile      = "combined-sentence.txt"
	CombinedVideoFile         = "combined-video.mp4"
)

var (
	ideographRe   = regexp.MustCompile(`\p{Han}`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	disallowedRe  = regexp.MustCompile(`[^a-z0-9\-_]`)
	underscoresRe = regexp.MustCompile(`_+`)
)

// Slug derives the canonical path-safe identifier for a query. Ideographic
// text is transliterated to latin syllables first so CJK queries still get
// stable readable slugs. Empty or fully-stripped input becomes "batch".
func Slug(query string) string {
	raw := strings.TrimSpace(query)
	if raw == "" {
		return "batch"
	}

	candidate := raw
	if ideographRe.MatchString(raw) {
		if p := transliterate(raw); strings.TrimSpace(p) != "" {
			candidate = p
		}
	}

	candidate = strings.ToLower(candidate)
	candidate = whitespaceRe.ReplaceAllString(candidate, "-")
	candidate = disallowedRe.ReplaceAllString(candidate, "_")
	candidate = underscoresRe.ReplaceAllString(candidate, "_")
	candidate = strings.Trim(candidate, "_-")
	if candidate == "" {
		return "batch"
	}
	return candidate
}

func transliterate(text string) string {
	args := pinyin.NewArgs()
	var b strings.Builder
	for _, r := range text {
		if ideographRe.MatchString(string(r)) {
			syllables := pinyin.SinglePinyin(r, args)
			if len(syllables) > 0 {
				b.WriteString(syllables[0])
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// KeyFor places a file under the canonical per-query folder for a category.
func KeyFor(slug, category, filename string) string {
	return "queries/" + slug + "/" + category + "/" + filename
}

func ManifestKey(slug string) string {
	return "queries/" + slug + "/manifest.json"
}

func CombinedKey(slug, filename string) string {
	return KeyFor(slug, CategoryCombined, filename)
}

func CombinedOutputKey(slug string) string {
	return CombinedKey(slug, CombinedOutputFile)
}

// LegacyCombinedOutputKey is the pre-queries location of the aggregate artifact.
func LegacyCombinedOutputKey(slug string) string {
	return "process/batch-" + slug + "/combined-output.json"
}

// TranscriptKeyFromVideoKey maps a video object key to its transcript key,
// preserving the layout generation of the input: canonical keys map into the
// same query folder, legacy flat keys map to the flat transcripts/ prefix.
func TranscriptKeyFromVideoKey(videoKey string) string {
	base := path.Base(videoKey)
	name := strings.TrimSuffix(base, path.Ext(base))

	if slug, ok := SlugFromKey(videoKey); ok {
		return KeyFor(slug, CategoryTranscripts, name+".json")
	}
	return "transcripts/" + name + ".json"
}

// LegacyTranscriptKey is the flat fallback for a video key of either layout.
func LegacyTranscriptKey(videoKey string) string {
	base := path.Base(videoKey)
	name := strings.TrimSuffix(base, path.Ext(base))
	return "transcripts/" + name + ".json"
}

// SlugFromKey recovers the query slug from a canonical object key.
func SlugFromKey(key string) (string, bool) {
	parts := strings.Split(key, "/")
	if len(parts) >= 3 && parts[0] == "queries" && parts[1] != "" {
		return parts[1], true
	}
	return "", false
}
