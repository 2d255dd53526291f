package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/vidscribe-backend/internal/types"
)

// recorder counts activity invocations across the test env's goroutines.
type recorder struct {
	mu    sync.Mutex
	calls map[string]int
}

func newRecorder() *recorder {
	return &recorder{calls: map[string]int{}}
}

func (r *recorder) hit(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[name]++
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func newEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, *recorder) {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	return env, newRecorder()
}

func TestWorkflowIsolatesSubPipelineFailure(t *testing.T) {
	env, rec := newEnv(t)

	urls := []string{
		"https://www.youtube.com/watch?v=abc123",
		"https://www.youtube.com/watch?v=def456",
	}
	env.RegisterActivityWithOptions(func(ctx context.Context, in SearchInput) ([]string, error) {
		rec.hit(ActivitySearch)
		return urls, nil
	}, activity.RegisterOptions{Name: ActivitySearch})

	env.RegisterActivityWithOptions(func(ctx context.Context, in DownloadInput) (DownloadOutput, error) {
		rec.hit(ActivityDownload)
		if strings.Contains(in.URL, "def456") {
			return DownloadOutput{}, temporal.NewApplicationError("stream is live", ErrTypeLiveStreamRejected)
		}
		return DownloadOutput{VideoKey: "queries/golang/videos/a_abc123.mp4"}, nil
	}, activity.RegisterOptions{Name: ActivityDownload})

	env.RegisterActivityWithOptions(func(ctx context.Context, videoKey string) (string, error) {
		rec.hit(ActivityTranscribe)
		return "some transcript text", nil
	}, activity.RegisterOptions{Name: ActivityTranscribe})

	env.RegisterActivityWithOptions(func(ctx context.Context, in SummarizeInput) (SummarizeOutput, error) {
		rec.hit(ActivitySummarize)
		return SummarizeOutput{Summary: "a summary"}, nil
	}, activity.RegisterOptions{Name: ActivitySummarize})

	env.RegisterActivityWithOptions(func(ctx context.Context, in BuildInput) (types.CombinedOutput, error) {
		rec.hit(ActivityBuildCombined)
		if len(in.VideoKeys) != 1 {
			t.Errorf("build received %d video keys, want 1", len(in.VideoKeys))
		}
		return types.CombinedOutput{Query: in.Query, Status: "ok"}, nil
	}, activity.RegisterOptions{Name: ActivityBuildCombined})

	env.RegisterActivityWithOptions(func(ctx context.Context, slug string) (string, error) {
		rec.hit(ActivityRefreshIndex)
		return "refreshed:" + slug, nil
	}, activity.RegisterOptions{Name: ActivityRefreshIndex})

	env.RegisterActivityWithOptions(func(ctx context.Context, in DownloadInput) error {
		rec.hit(ActivityMarkFailed)
		return nil
	}, activity.RegisterOptions{Name: ActivityMarkFailed})

	env.ExecuteWorkflow(WorkflowName, Input{Query: "golang", Limit: 2})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}

	var report Report
	if err := env.GetWorkflowResult(&report); err != nil {
		t.Fatalf("result decode: %v", err)
	}
	if report.Dispatched != 2 || report.Completed != 1 {
		t.Fatalf("report = dispatched %d completed %d, want 2/1", report.Dispatched, report.Completed)
	}
	if len(report.Failed) != 1 {
		t.Fatalf("failed = %+v, want one entry", report.Failed)
	}
	if report.Failed[0].URL != urls[1] {
		t.Fatalf("failed url = %q, want %q", report.Failed[0].URL, urls[1])
	}
	if !strings.Contains(report.Failed[0].Error, "download") {
		t.Fatalf("failure not attributed to download stage: %q", report.Failed[0].Error)
	}
	if !strings.Contains(report.Failed[0].PipelineID, "def456") {
		t.Fatalf("pipeline id = %q, want video id embedded", report.Failed[0].PipelineID)
	}
	if report.CombinedOutput == nil || report.CombinedOutput.Status != "ok" {
		t.Fatalf("combined output = %+v", report.CombinedOutput)
	}

	// The live stream failure is typed non-retryable: exactly one attempt.
	if got := rec.count(ActivityDownload); got != 2 {
		t.Fatalf("download attempts = %d, want 2", got)
	}
	if got := rec.count(ActivityTranscribe); got != 1 {
		t.Fatalf("transcribe attempts = %d, want 1", got)
	}
	if got := rec.count(ActivityMarkFailed); got != 1 {
		t.Fatalf("mark_failed attempts = %d, want 1", got)
	}
	if got := rec.count(ActivityRefreshIndex); got != 1 {
		t.Fatalf("refresh attempts = %d, want 1", got)
	}
}

func TestWorkflowNoCandidatesCompletesEmpty(t *testing.T) {
	env, rec := newEnv(t)

	env.RegisterActivityWithOptions(func(ctx context.Context, in SearchInput) ([]string, error) {
		return nil, temporal.NewApplicationError("no results", ErrTypeNoCandidates)
	}, activity.RegisterOptions{Name: ActivitySearch})

	env.RegisterActivityWithOptions(func(ctx context.Context, in BuildInput) (types.CombinedOutput, error) {
		rec.hit(ActivityBuildCombined)
		if len(in.VideoKeys) != 0 {
			t.Errorf("build received video keys %v, want none", in.VideoKeys)
		}
		return types.CombinedOutput{Query: in.Query, Status: "no-transcripts"}, nil
	}, activity.RegisterOptions{Name: ActivityBuildCombined})

	env.RegisterActivityWithOptions(func(ctx context.Context, slug string) (string, error) {
		rec.hit(ActivityRefreshIndex)
		return "refreshed:" + slug, nil
	}, activity.RegisterOptions{Name: ActivityRefreshIndex})

	env.ExecuteWorkflow(WorkflowName, Input{Query: "nothing here", Limit: 3})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("no-candidates should not fail the workflow: %v", err)
	}

	var report Report
	if err := env.GetWorkflowResult(&report); err != nil {
		t.Fatalf("result decode: %v", err)
	}
	if report.Dispatched != 0 || report.Completed != 0 || len(report.Failed) != 0 {
		t.Fatalf("report = %+v, want empty counts", report)
	}
	if report.CombinedOutput == nil || report.CombinedOutput.Status != "no-transcripts" {
		t.Fatalf("combined output = %+v", report.CombinedOutput)
	}
	if rec.count(ActivityBuildCombined) != 1 || rec.count(ActivityRefreshIndex) != 1 {
		t.Fatalf("aggregation skipped: build=%d refresh=%d", rec.count(ActivityBuildCombined), rec.count(ActivityRefreshIndex))
	}
}

func TestWorkflowEmptyQuery(t *testing.T) {
	env, _ := newEnv(t)
	env.ExecuteWorkflow(WorkflowName, Input{Query: ""})
	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if env.GetWorkflowError() == nil {
		t.Fatal("empty query accepted")
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		want Input
	}{
		{
			name: "zero_values_defaulted",
			in:   Input{Query: "q"},
			want: Input{Query: "q", Limit: 1, Parallelism: 1, MaxDurationMinutes: 10},
		},
		{
			name: "limit_clamped_high",
			in:   Input{Query: "q", Limit: 500, Parallelism: 9, MaxDurationMinutes: 999},
			want: Input{Query: "q", Limit: 50, Parallelism: 4, MaxDurationMinutes: 180},
		},
		{
			name: "parallelism_derived_from_limit",
			in:   Input{Query: "q", Limit: 8, MaxDurationMinutes: 15},
			want: Input{Query: "q", Limit: 8, Parallelism: 3, MaxDurationMinutes: 15},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalize(tc.in); got != tc.want {
				t.Fatalf("normalize(%+v) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestResolveParallelism(t *testing.T) {
	cases := []struct {
		limit int
		want  int
	}{
		{1, 1}, {2, 1}, {3, 2}, {5, 2}, {6, 3}, {10, 3}, {11, 4}, {50, 4},
	}
	for _, tc := range cases {
		if got := ResolveParallelism(tc.limit); got != tc.want {
			t.Fatalf("ResolveParallelism(%d) = %d, want %d", tc.limit, got, tc.want)
		}
	}
}
