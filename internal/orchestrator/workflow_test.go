package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/vidscribe-backend/internal/pipeline"
	"github.com/yungbote/vidscribe-backend/internal/types"
)

// newEnv wires an environment where every batch resolves as "no candidates",
// so inline pipeline runs finish without sub-pipelines.
func newEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, *searchCounter) {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})

	counter := &searchCounter{}
	env.RegisterActivityWithOptions(func(ctx context.Context, in pipeline.SearchInput) ([]string, error) {
		counter.hit(in.Query)
		return nil, temporal.NewApplicationError("no results", pipeline.ErrTypeNoCandidates)
	}, activity.RegisterOptions{Name: pipeline.ActivitySearch})
	env.RegisterActivityWithOptions(func(ctx context.Context, in pipeline.BuildInput) (types.CombinedOutput, error) {
		return types.CombinedOutput{Query: in.Query, Status: "no-transcripts"}, nil
	}, activity.RegisterOptions{Name: pipeline.ActivityBuildCombined})
	env.RegisterActivityWithOptions(func(ctx context.Context, slug string) (string, error) {
		return "refreshed:" + slug, nil
	}, activity.RegisterOptions{Name: pipeline.ActivityRefreshIndex})

	return env, counter
}

type searchCounter struct {
	mu      sync.Mutex
	queries []string
}

func (c *searchCounter) hit(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, query)
}

func (c *searchCounter) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.queries...)
}

func TestWorkflowDedupesAndProcessesInOrder(t *testing.T) {
	env, counter := newEnv(t)

	send := func(id, query string) {
		env.SignalWorkflow(SignalEnqueue, types.QueryRequest{RequestID: id, Query: query, Limit: 1})
	}
	env.RegisterDelayedCallback(func() {
		send("r1", "alpha")
		send("r1", "alpha again")
		send("", "missing id")
		send("r3", "")
		send("r2", "beta")
	}, time.Millisecond)
	env.RegisterDelayedCallback(func() {
		env.CancelWorkflow()
	}, time.Minute)

	env.ExecuteWorkflow(WorkflowName, State{})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	err := env.GetWorkflowError()
	if err == nil || !temporal.IsCanceledError(err) {
		t.Fatalf("workflow error = %v, want cancellation", err)
	}

	got := counter.seen()
	want := []string{"alpha", "beta"}
	if len(got) != len(want) {
		t.Fatalf("processed queries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("processed queries = %v, want %v", got, want)
		}
	}
}

func TestWorkflowCancelWhileIdle(t *testing.T) {
	env, counter := newEnv(t)

	// No signals at all: the loop must notice cancellation while blocked
	// waiting for work.
	env.RegisterDelayedCallback(func() {
		env.CancelWorkflow()
	}, time.Second)

	env.ExecuteWorkflow(WorkflowName, State{})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	err := env.GetWorkflowError()
	if err == nil || !temporal.IsCanceledError(err) {
		t.Fatalf("workflow error = %v, want canceled", err)
	}
	if got := counter.seen(); len(got) != 0 {
		t.Fatalf("processed queries = %v, want none", got)
	}
}

func TestWorkflowCompactsHistoryAfterThreshold(t *testing.T) {
	env, counter := newEnv(t)

	env.RegisterDelayedCallback(func() {
		for i := 0; i < continueAfter; i++ {
			env.SignalWorkflow(SignalEnqueue, types.QueryRequest{
				RequestID: fmt.Sprintf("r%03d", i),
				Query:     fmt.Sprintf("query %d", i),
				Limit:     1,
			})
		}
	}, time.Millisecond)

	env.ExecuteWorkflow(WorkflowName, State{})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	err := env.GetWorkflowError()
	if err == nil || !workflow.IsContinueAsNewError(err) {
		t.Fatalf("workflow error = %v, want continue-as-new", err)
	}
	if got := counter.seen(); len(got) != continueAfter {
		t.Fatalf("processed %d queries, want %d", len(got), continueAfter)
	}

	var canErr *workflow.ContinueAsNewError
	if !errors.As(err, &canErr) {
		t.Fatalf("error %T does not unwrap to ContinueAsNewError", err)
	}
	if canErr.WorkflowType == nil || canErr.WorkflowType.Name != WorkflowName {
		t.Fatalf("continue-as-new targets %+v, want %q", canErr.WorkflowType, WorkflowName)
	}
	var carried State
	if err := converter.GetDefaultDataConverter().FromPayloads(canErr.Input, &carried); err != nil {
		t.Fatalf("carried state decode: %v", err)
	}
	if len(carried.Pending) != 0 {
		t.Fatalf("carried pending = %+v, want empty after full drain", carried.Pending)
	}
	if len(carried.Seen) != continueAfter {
		t.Fatalf("carried %d seen ids, want %d", len(carried.Seen), continueAfter)
	}
	if carried.Seen[0] != "r000" || carried.Seen[continueAfter-1] != fmt.Sprintf("r%03d", continueAfter-1) {
		t.Fatalf("seen window out of order: first %q last %q", carried.Seen[0], carried.Seen[len(carried.Seen)-1])
	}
}

func TestWorkflowPendingCountQuery(t *testing.T) {
	env, _ := newEnv(t)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalEnqueue, types.QueryRequest{RequestID: "q1", Query: "gamma", Limit: 1})
	}, time.Millisecond)
	env.RegisterDelayedCallback(func() {
		env.CancelWorkflow()
	}, time.Minute)

	env.ExecuteWorkflow(WorkflowName, State{})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}

	val, err := env.QueryWorkflow(QueryPendingCount)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var pending int
	if err := val.Get(&pending); err != nil {
		t.Fatalf("query decode: %v", err)
	}
	if pending != 0 {
		t.Fatalf("pending = %d, want 0 after drain", pending)
	}
}

func TestWorkflowResumesCarriedState(t *testing.T) {
	env, counter := newEnv(t)

	env.RegisterDelayedCallback(func() {
		// The id was already seen before continue-as-new: the signal is dropped.
		env.SignalWorkflow(SignalEnqueue, types.QueryRequest{RequestID: "old", Query: "stale", Limit: 1})
	}, time.Millisecond)
	env.RegisterDelayedCallback(func() {
		env.CancelWorkflow()
	}, time.Minute)

	env.ExecuteWorkflow(WorkflowName, State{
		Pending: []types.QueryRequest{{RequestID: "carried", Query: "delta", Limit: 1}},
		Seen:    []string{"carried", "old"},
	})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}

	got := counter.seen()
	if len(got) != 1 || got[0] != "delta" {
		t.Fatalf("processed queries = %v, want [delta]", got)
	}
}
