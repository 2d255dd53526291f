package pipeline

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/vidscribe-backend/internal/naming"
	"github.com/yungbote/vidscribe-backend/internal/scraper"
	"github.com/yungbote/vidscribe-backend/internal/types"
)

// Per-stage limits from the activity contracts.
const (
	searchTimeout     = 10 * time.Minute
	downloadTimeout   = 30 * time.Minute
	transcribeTimeout = 60 * time.Minute
	summarizeTimeout  = 10 * time.Minute
	combineTimeout    = 20 * time.Minute
	refreshTimeout    = 2 * time.Minute
)

func defaultRetry(nonRetryable ...string) *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:        2 * time.Second,
		BackoffCoefficient:     2.0,
		MaximumInterval:        60 * time.Second,
		MaximumAttempts:        3,
		NonRetryableErrorTypes: nonRetryable,
	}
}

func activityOpts(queue string, timeout time.Duration, retry *temporal.RetryPolicy) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		TaskQueue:           queue,
		StartToCloseTimeout: timeout,
		RetryPolicy:         retry,
	}
}

type subResult struct {
	pipelineID string
	url        string
	videoKey   string
	err        error
}

// Workflow runs one batch end to end: search, chunked per-URL fan-out, then
// combined aggregation. A failed sub-pipeline never aborts its siblings.
func Workflow(ctx workflow.Context, in Input) (Report, error) {
	log := workflow.GetLogger(ctx)

	in = normalize(in)
	if in.Query == "" {
		return Report{}, fmt.Errorf("pipeline: empty query")
	}
	slug := naming.Slug(in.Query)
	report := Report{Query: in.Query, Slug: slug, Failed: []Failure{}}

	searchCtx := workflow.WithActivityOptions(ctx,
		activityOpts(TaskQueueCPU, searchTimeout, defaultRetry(ErrTypeNoCandidates, ErrTypeInvalidArgument)))
	var urls []string
	err := workflow.ExecuteActivity(searchCtx, ActivitySearch, SearchInput{
		Query:              in.Query,
		Limit:              in.Limit,
		MaxDurationMinutes: in.MaxDurationMinutes,
		MaxAgeDays:         in.MaxAgeDays,
	}).Get(ctx, &urls)
	if err != nil {
		if isErrType(err, ErrTypeNoCandidates) {
			log.Warn("No candidates; writing empty combined artifact", "query", in.Query)
			report.CombinedOutput = buildCombined(ctx, in.Query, nil)
			refreshIndex(ctx, slug)
			return report, nil
		}
		return report, err
	}

	report.Dispatched = len(urls)
	results := make([]*subResult, len(urls))

	for chunkStart := 0; chunkStart < len(urls); chunkStart += in.Parallelism {
		chunkEnd := chunkStart + in.Parallelism
		if chunkEnd > len(urls) {
			chunkEnd = len(urls)
		}

		wg := workflow.NewWaitGroup(ctx)
		for idx := chunkStart; idx < chunkEnd; idx++ {
			idx := idx
			wg.Add(1)
			workflow.Go(ctx, func(gctx workflow.Context) {
				defer wg.Done()
				results[idx] = runSubPipeline(gctx, in, slug, urls[idx], idx)
			})
		}
		wg.Wait(ctx)
	}

	var completed []string
	for _, res := range results {
		if res == nil {
			continue
		}
		if res.err != nil {
			report.Failed = append(report.Failed, Failure{
				PipelineID: res.pipelineID,
				URL:        res.url,
				Error:      res.err.Error(),
			})
			continue
		}
		completed = append(completed, res.videoKey)
	}
	report.Completed = len(completed)

	report.CombinedOutput = buildCombined(ctx, in.Query, completed)
	refreshIndex(ctx, slug)

	log.Info("Batch finished", "query", in.Query, "dispatched", report.Dispatched, "completed", report.Completed, "failed", len(report.Failed))
	return report, nil
}

// runSubPipeline takes one URL through download, transcribe, and summarize.
// Stage failures are recorded on the manifest and isolated to this URL.
func runSubPipeline(ctx workflow.Context, in Input, slug, url string, idx int) *subResult {
	res := &subResult{
		pipelineID: fmt.Sprintf("video-%s-%s-%d", slug, scraper.VideoIDFromURL(url), idx),
		url:        url,
	}
	log := workflow.GetLogger(ctx)

	downloadCtx := workflow.WithActivityOptions(ctx,
		activityOpts(TaskQueueCPU, downloadTimeout, defaultRetry(ErrTypeLiveStreamRejected, ErrTypeInvalidArgument)))
	var dl DownloadOutput
	if err := workflow.ExecuteActivity(downloadCtx, ActivityDownload, DownloadInput{URL: url, Query: in.Query}).Get(ctx, &dl); err != nil {
		res.err = fmt.Errorf("download: %w", err)
		markFailed(ctx, in.Query, url)
		return res
	}
	res.videoKey = dl.VideoKey

	transcribeCtx := workflow.WithActivityOptions(ctx,
		activityOpts(TaskQueueGPU, transcribeTimeout, defaultRetry()))
	var text string
	if err := workflow.ExecuteActivity(transcribeCtx, ActivityTranscribe, dl.VideoKey).Get(ctx, &text); err != nil {
		res.err = fmt.Errorf("transcribe: %w", err)
		markFailed(ctx, in.Query, url)
		return res
	}

	summarizeCtx := workflow.WithActivityOptions(ctx,
		activityOpts(TaskQueueGPU, summarizeTimeout, defaultRetry(ErrTypeInvalidArgument)))
	var sum SummarizeOutput
	if err := workflow.ExecuteActivity(summarizeCtx, ActivitySummarize, SummarizeInput{
		Text:     text,
		VideoKey: dl.VideoKey,
		Query:    in.Query,
	}).Get(ctx, &sum); err != nil {
		res.err = fmt.Errorf("summarize: %w", err)
		markFailed(ctx, in.Query, url)
		return res
	}

	log.Debug("Sub-pipeline finished", "pipeline_id", res.pipelineID, "video_key", dl.VideoKey)
	return res
}

func buildCombined(ctx workflow.Context, query string, completed []string) *types.CombinedOutput {
	log := workflow.GetLogger(ctx)
	combineCtx := workflow.WithActivityOptions(ctx,
		activityOpts(TaskQueueCPU, combineTimeout, defaultRetry()))
	var out types.CombinedOutput
	err := workflow.ExecuteActivity(combineCtx, ActivityBuildCombined, BuildInput{
		Query:     query,
		VideoKeys: completed,
	}).Get(ctx, &out)
	if err != nil {
		log.Error("Combined build failed", "query", query, "error", err)
		return nil
	}
	return &out
}

func refreshIndex(ctx workflow.Context, slug string) {
	log := workflow.GetLogger(ctx)
	refreshCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		TaskQueue:           TaskQueueCPU,
		StartToCloseTimeout: refreshTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    2,
		},
	})
	var msg string
	if err := workflow.ExecuteActivity(refreshCtx, ActivityRefreshIndex, slug).Get(ctx, &msg); err != nil {
		log.Warn("Index refresh failed", "slug", slug, "error", err)
	}
}

func markFailed(ctx workflow.Context, query, url string) {
	log := workflow.GetLogger(ctx)
	failCtx := workflow.WithActivityOptions(ctx,
		activityOpts(TaskQueueCPU, time.Minute, defaultRetry()))
	if err := workflow.ExecuteActivity(failCtx, ActivityMarkFailed, DownloadInput{URL: url, Query: query}).Get(ctx, nil); err != nil {
		log.Warn("Failure record not written", "url", url, "error", err)
	}
}

func isErrType(err error, errType string) bool {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type() == errType
	}
	return false
}

// normalize clamps request fields to their documented ranges.
func normalize(in Input) Input {
	if in.Limit < 1 {
		in.Limit = 1
	}
	if in.Limit > 50 {
		in.Limit = 50
	}
	if in.Parallelism < 1 {
		in.Parallelism = ResolveParallelism(in.Limit)
	}
	if in.Parallelism > 4 {
		in.Parallelism = 4
	}
	if in.MaxDurationMinutes < 1 {
		in.MaxDurationMinutes = 10
	}
	if in.MaxDurationMinutes > 180 {
		in.MaxDurationMinutes = 180
	}
	if in.MaxAgeDays < 0 {
		in.MaxAgeDays = 0
	}
	return in
}

// ResolveParallelism picks a chunk size proportional to the batch size.
func ResolveParallelism(limit int) int {
	switch {
	case limit <= 2:
		return 1
	case limit <= 5:
		return 2
	case limit <= 10:
		return 3
	default:
		return 4
	}
}
