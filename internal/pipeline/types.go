// Package pipeline is the per-batch durable workflow: search the platform for
// a query, fan per-URL sub-pipelines out in bounded chunks, then aggregate the
// combined artifacts.
package pipeline

import "github.com/yungbote/vidscribe-backend/internal/types"

const (
	WorkflowName = "video_pipeline"

	ActivitySearch        = "search_videos"
	ActivityDownload      = "download_video"
	ActivityTranscribe    = "transcribe_video"
	ActivitySummarize     = "summarize_content"
	ActivityBuildCombined = "build_combined_output"
	ActivityRefreshIndex  = "refresh_index"
	ActivityMarkFailed    = "mark_failed"

	// Activities are pinned to one queue each: scraping and aggregation on
	// CPU workers, model inference on GPU workers.
	TaskQueueCPU = "vidscribe-cpu"
	TaskQueueGPU = "vidscribe-gpu"
)

// Typed error names matched by retry policies.
const (
	ErrTypeLiveStreamRejected = "LiveStreamRejected"
	ErrTypeNoCandidates       = "NoCandidates"
	ErrTypeInvalidArgument    = "InvalidArgument"
)

// Input is one batch dispatch, already validated and defaulted by the caller.
type Input struct {
	Query              string `json:"query"`
	Limit              int    `json:"limit"`
	Parallelism        int    `json:"parallelism"`
	MaxDurationMinutes int    `json:"max_duration_minutes"`
	MaxAgeDays         int    `json:"max_age_days"`
	Category           string `json:"category,omitempty"`
}

// Failure records one sub-pipeline that did not finish.
type Failure struct {
	PipelineID string `json:"pipeline_id"`
	URL        string `json:"url"`
	Error      string `json:"error"`
}

// Report is the workflow result, aggregated deterministically in dispatch
// order.
type Report struct {
	Query          string                `json:"query"`
	Slug           string                `json:"slug"`
	Dispatched     int                   `json:"dispatched"`
	Completed      int                   `json:"completed"`
	Failed         []Failure             `json:"failed"`
	CombinedOutput *types.CombinedOutput `json:"combined_output,omitempty"`
}

// SearchInput selects candidate URLs for one query.
type SearchInput struct {
	Query              string `json:"query"`
	Limit              int    `json:"limit"`
	MaxDurationMinutes int    `json:"max_duration_minutes"`
	MaxAgeDays         int    `json:"max_age_days"`
}

// DownloadInput fetches one URL into the query's folder.
type DownloadInput struct {
	URL   string `json:"url"`
	Query string `json:"query"`
}

// DownloadOutput reports the stored object keys.
type DownloadOutput struct {
	VideoKey     string `json:"video_key"`
	ThumbnailKey string `json:"thumbnail_key,omitempty"`
}

// SummarizeInput enriches one transcript with summary and keywords.
type SummarizeInput struct {
	Text     string `json:"text"`
	VideoKey string `json:"video_key"`
	Query    string `json:"query"`
}

// SummarizeOutput is the summarize activity result, also merged into the
// stored transcript JSON.
type SummarizeOutput struct {
	Summary     string                    `json:"summary"`
	Keywords    []types.TranscriptKeyword `json:"keywords"`
	SearchQuery string                    `json:"search_query"`
}

// BuildInput aggregates the completed videos of one batch.
type BuildInput struct {
	Query     string   `json:"query"`
	VideoKeys []string `json:"video_keys"`
}
