// Package types holds the wire-level payloads shared by activities,
// workflows, and the stored JSON artifacts.
package types

import (
	"encoding/json"
	"strings"
)

// Video lifecycle statuses recorded in the manifest.
const (
	StatusDiscovered  = "discovered"
	StatusDownloaded  = "downloaded"
	StatusTranscribed = "transcribed"
	StatusSummarized  = "summarized"
	StatusFailed      = "failed"
)

// QueryRequest is one dispatch of the batch pipeline, signaled into the
// orchestrator. RequestID uniquely identifies the dispatch; duplicates are
// dropped.
type QueryRequest struct {
	RequestID          string `json:"request_id"`
	Query              string `json:"query"`
	Limit              int    `json:"limit"`
	Parallelism        int    `json:"parallelism"`
	MaxDurationMinutes int    `json:"max_duration_minutes"`
	MaxAgeDays         int    `json:"max_age_days"`
	Category           string `json:"category,omitempty"`
}

// VideoRecord tracks one discovered URL through the pipeline stages.
type VideoRecord struct {
	URL           string `json:"url"`
	ObjectKey     string `json:"object_key,omitempty"`
	TranscriptKey string `json:"transcript_key,omitempty"`
	ThumbnailKey  string `json:"thumbnail_key,omitempty"`
	Status        string `json:"status,omitempty"`
	SearchQuery   string `json:"search_query,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Segment is one STT segment; Start is non-decreasing across a transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptKeyword is the keyword shape stored in transcript JSON. Older
// transcripts stored bare strings; those are normalized on read.
type TranscriptKeyword struct {
	Word      string  `json:"word"`
	Count     int     `json:"count,omitempty"`
	Score     float64 `json:"score,omitempty"`
	StartTime float64 `json:"start_time,omitempty"`
}

func (k *TranscriptKeyword) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var word string
		if err := json.Unmarshal(data, &word); err != nil {
			return err
		}
		*k = TranscriptKeyword{Word: word}
		return nil
	}
	type alias TranscriptKeyword
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*k = TranscriptKeyword(a)
	return nil
}

// Transcript is the per-video STT artifact, enriched in place by summarize.
type Transcript struct {
	Text        string              `json:"text"`
	Language    string              `json:"language"`
	Segments    []Segment           `json:"segments"`
	Keywords    []TranscriptKeyword `json:"keywords,omitempty"`
	Summary     string              `json:"summary,omitempty"`
	SearchQuery string              `json:"search_query,omitempty"`
}

// Keyword is the canonical ranked keyword: normalized lowercase term, LLM
// relevance score in [0,1], and the word-boundary occurrence count in the
// originating text.
type Keyword struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
	Count int     `json:"count"`
}

// TranscriptRef points a combined artifact entry back at its sources.
type TranscriptRef struct {
	VideoObject   string `json:"video_object"`
	TranscriptKey string `json:"transcript_key"`
	TextLen       int    `json:"text_len"`
}

// KeySentence is one evidence sentence selected for the combined artifact.
type KeySentence struct {
	Sentence          string `json:"sentence"`
	Keyword           string `json:"keyword"`
	SourceIndex       int    `json:"source_index"`
	SourceVideoObject string `json:"source_video_object,omitempty"`
}

// CombinedVideoClip records one stitched highlight clip window.
type CombinedVideoClip struct {
	SourceVideoObject string  `json:"source_video_object"`
	Sentence          string  `json:"sentence"`
	ClipStart         float64 `json:"clip_start"`
	ClipEnd           float64 `json:"clip_end"`
	ClipDuration      float64 `json:"clip_duration"`
}

// CombinedOutput is the per-query aggregate artifact.
type CombinedOutput struct {
	Query                   string              `json:"query"`
	Status                  string              `json:"status,omitempty"`
	Count                   int                 `json:"count"`
	ReplaceCount            int                 `json:"replaceCount"`
	Transcripts             []TranscriptRef     `json:"transcripts"`
	CombinedTranscription   string              `json:"combined_transcription"`
	CombinedKeywords        []Keyword           `json:"combined_keywords"`
	KeySentences            []KeySentence       `json:"key_sentences"`
	CombinedSentence        string              `json:"combined_sentence"`
	CombinedVideoKey        string              `json:"combined_video_key,omitempty"`
	CombinedVideoURL        string              `json:"combined_video_url,omitempty"`
	CombinedVideoClips      []CombinedVideoClip `json:"combined_video_clips,omitempty"`
	CombinedVideoClipCount  int                 `json:"combined_video_clip_count,omitempty"`
	CombinedRebuiltAtUTC    string              `json:"combined_rebuilt_at_utc,omitempty"`
	CombinedSentenceVersion string              `json:"combined_sentence_version,omitempty"`
}

// CombinedSummary is the manifest's view of the combined artifacts.
type CombinedSummary struct {
	Status           string    `json:"status,omitempty"`
	OutputKey        string    `json:"output_key,omitempty"`
	TranscriptionKey string    `json:"transcription_key,omitempty"`
	KeywordsKey      string    `json:"keywords_key,omitempty"`
	SentenceKey      string    `json:"sentence_key,omitempty"`
	VideoKey         string    `json:"video_key,omitempty"`
	VideoURL         string    `json:"video_url,omitempty"`
	Count            int       `json:"count,omitempty"`
	Keywords         []Keyword `json:"keywords,omitempty"`
	Sentence         string    `json:"sentence,omitempty"`
	UpdatedAtUTC     string    `json:"updated_at_utc,omitempty"`
}

// QueryManifest is the per-query index stored at queries/<slug>/manifest.json.
// Videos are deduplicated by object key.
type QueryManifest struct {
	Query    string           `json:"query"`
	Slug     string           `json:"slug"`
	Videos   []VideoRecord    `json:"videos"`
	Combined *CombinedSummary `json:"combined,omitempty"`
}
